package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

const (
	dpi            = 120.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 150.0
	swatchSize     = 12

	// Default border sizes in pixels
	defaultTopBorder    = 20
	defaultLeftBorder   = 80
	defaultBottomBorder = 70
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Top padding
	Left   int // Space for intensity scale
	Bottom int // Space for time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for trace visualization
type RenderConfig struct {
	Width  int // plot width in pixels
	Height int // plot height in pixels

	// Time display configuration
	TimeFormat     string         // Format string for time display (e.g. "15:04:05")
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	FontSize      float64
	NoRaw         bool // draw only the smoothed intensity
	NoAnnotations bool

	BorderConfig BorderConfig
}

// TraceRenderer draws the intensity trace of a session with its beats
type TraceRenderer struct {
	config RenderConfig
}

// NewTraceRenderer creates a new trace renderer with the given configuration
func NewTraceRenderer(config RenderConfig) (*TraceRenderer, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid plot size: %dx%d", config.Width, config.Height)
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &TraceRenderer{config: config}, nil
}

// plot maps trace coordinates onto the image
type plot struct {
	area   image.Rectangle
	start  time.Time
	span   time.Duration
	bounds Bounds
}

func (p plot) x(t time.Time) int {
	if p.span <= 0 {
		return p.area.Min.X
	}
	ratio := float64(t.Sub(p.start)) / float64(p.span)
	return p.area.Min.X + int(math.Round(ratio*float64(p.area.Dx()-1)))
}

func (p plot) y(v float64) int {
	ratio := (v - p.bounds.Min) / (p.bounds.Max - p.bounds.Min)
	ratio = math.Max(0, math.Min(1, ratio))
	return p.area.Max.Y - 1 - int(math.Round(ratio*float64(p.area.Dy()-1)))
}

// Render creates an image of the trace with annotations
func (r *TraceRenderer) Render(data *TraceData, sess *measurement.Session) (*image.RGBA, error) {
	if len(data.Points) == 0 {
		return nil, fmt.Errorf("no trace points to render")
	}

	borders := r.config.BorderConfig
	fullWidth := r.config.Width + borders.Left + borders.Right
	fullHeight := r.config.Height + borders.Top + borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	p := plot{
		area:   image.Rect(borders.Left, borders.Top, borders.Left+r.config.Width, borders.Top+r.config.Height),
		start:  data.TimestampStart,
		span:   data.Duration(),
		bounds: data.Bounds(!r.config.NoRaw),
	}

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			Borders:        borders,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, p, data, sess); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderTrace(img, p, data)
	drawRect(img, p.area, frameColor)

	return img, nil
}

// renderTrace draws beat markers first, then the raw and smoothed lines
func (r *TraceRenderer) renderTrace(img *image.RGBA, p plot, data *TraceData) {
	for _, b := range data.Beats {
		c := beatColor
		if b.Interval == 0 {
			c = runStartColor
		}
		x := p.x(b.Timestamp)
		drawLine(img, x, p.area.Min.Y, x, p.area.Max.Y-1, c)
	}

	if !r.config.NoRaw {
		drawPolyline(img, p, data.Points, func(tp measurement.TracePoint) float64 { return tp.Intensity }, rawColor)
	}
	drawPolyline(img, p, data.Points, func(tp measurement.TracePoint) float64 { return tp.Smoothed }, smoothedColor)
}

func drawPolyline(img *image.RGBA, p plot, points []measurement.TracePoint, value func(measurement.TracePoint) float64, c color.Color) {
	px, py := p.x(points[0].Timestamp), p.y(value(points[0]))
	img.Set(px, py, c)
	for _, tp := range points[1:] {
		x, y := p.x(tp.Timestamp), p.y(value(tp))
		drawLine(img, px, py, x, y, c)
		px, py = x, y
	}
}

// drawLine draws a straight line with Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	drawLine(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Min.Y, c)
	drawLine(img, r.Min.X, r.Max.Y-1, r.Max.X-1, r.Max.Y-1, c)
	drawLine(img, r.Min.X, r.Min.Y, r.Min.X, r.Max.Y-1, c)
	drawLine(img, r.Max.X-1, r.Min.Y, r.Max.X-1, r.Max.Y-1, c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Internal annotator implementation
type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, p plot, data *TraceData, sess *measurement.Session) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTimeScale(img, p); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawIntensityScale(img, p); err != nil {
		return fmt.Errorf("drawing intensity scale: %w", err)
	}
	if err := a.drawInfoBar(img, data, sess); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawTimeScale(img *image.RGBA, p plot) error {
	step := calculateNiceTimeStep(p.span, p.area.Dx())
	textY := p.area.Max.Y + tickMarkLength + a.fontHeight()

	first := p.start.Truncate(step)
	if first.Before(p.start) {
		first = first.Add(step)
	}

	for t := first; !t.After(p.start.Add(p.span)); t = t.Add(step) {
		x := p.x(t)

		// grid line and tick mark
		drawLine(img, x, p.area.Min.Y, x, p.area.Max.Y-1, gridColor)
		drawLine(img, x, p.area.Max.Y, x, p.area.Max.Y+tickMarkLength, frameColor)

		label := t.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawIntensityScale(img *image.RGBA, p plot) error {
	const labels = 4

	metrics := a.fontFace.Metrics()
	for i := 0; i <= labels; i++ {
		v := p.bounds.Min + float64(i)*(p.bounds.Max-p.bounds.Min)/labels
		y := p.y(v)

		drawLine(img, p.area.Min.X-tickMarkLength, y, p.area.Min.X-1, y, frameColor)

		label := humanize.FtoaWithDigits(v, 1)
		width := font.MeasureString(a.fontFace, label)
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()
		pt := freetype.Pt(p.area.Min.X-tickMarkLength-3-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing intensity label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *TraceData, sess *measurement.Session) error {
	result := sess.Result()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session %d (%s)", sess.ID, sess.State))
	sb.WriteString("; ")
	if result.Bpm > 0 {
		sb.WriteString(fmt.Sprintf("BPM: %d", result.Bpm))
	} else {
		sb.WriteString("BPM: n/a")
	}
	sb.WriteString("; ")
	sb.WriteString("RMSSD: " + formatMetric(result.Rmssd, " ms"))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Stress: %s (%s)", formatMetric(result.StressIndex, ""), stressLabel(result.StressIndex)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Beats: %s; Frames: %s",
		humanize.Comma(int64(len(data.Beats))),
		humanize.Comma(int64(len(data.Points)))))

	timeLine := fmt.Sprintf("Time: %s - %s (%s)",
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.Duration().Round(time.Millisecond))

	fontHeight := a.fontHeight()
	bottom := img.Bounds().Max.Y
	left := a.config.Borders.Left

	// stress swatch in front of the metrics line
	swatchTop := bottom - 2*fontHeight - swatchSize/2
	swatch := image.Rect(left, swatchTop-swatchSize/2, left+swatchSize, swatchTop+swatchSize/2)
	draw.Draw(img, swatch, image.NewUniform(stressColor(result.StressIndex)), image.Point{}, draw.Src)

	pt := freetype.Pt(left+swatchSize+6, bottom-2*fontHeight)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	pt = freetype.Pt(left, bottom-fontHeight/2)
	if _, err := a.context.DrawString(timeLine, pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

func formatMetric(v *float64, unit string) string {
	if v == nil {
		return "n/a"
	}
	return humanize.FtoaWithDigits(*v, 1) + unit
}

func calculateNiceTimeStep(duration time.Duration, width int) time.Duration {
	niceIntervals := []time.Duration{
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
		2 * time.Minute,
		5 * time.Minute,
	}

	desiredSteps := math.Max(1, float64(width)/pixelsPerLabel)
	roughStep := time.Duration(float64(duration) / desiredSteps)

	// Find the first interval larger than our rough step
	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return interval
		}
	}

	return 10 * time.Minute
}
