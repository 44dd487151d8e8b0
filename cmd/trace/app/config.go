package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	defaultWidth  = 1600
	defaultHeight = 400
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Width         int            // plot width in pixels
	Height        int            // plot height in pixels
	TimeZone      *time.Location // time axis and info bar
	From          *time.Duration // offset from session start
	To            *time.Duration // offset from session start
	NoRaw         bool           // hide the unsmoothed intensity
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Width:    defaultWidth,
		Height:   defaultHeight,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses the process command line
func NewConfigFromCLI() (*Config, error) {
	return NewConfigFromArgs(os.Args[0], os.Args[1:], os.Stderr)
}

// NewConfigFromArgs parses args with a dedicated flag set. Usage is printed
// to output when the arguments are invalid.
func NewConfigFromArgs(name string, args []string, output io.Writer) (*Config, error) {
	c := NewConfig()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, timeZone string
	var from, to time.Duration
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.IntVar(&c.Width, "width", defaultWidth, "Plot width in pixels")
	fs.IntVar(&c.Height, "height", defaultHeight, "Plot height in pixels")
	fs.StringVar(&timeZone, "tz", "", "Time zone of the time axis, e.g. Europe/London (default: local)")
	fs.DurationVar(&from, "from", 0, "Render from this offset after the session start, e.g. 10s")
	fs.DurationVar(&to, "to", 0, "Render up to this offset after the session start, e.g. 30s")
	fs.BoolVar(&c.NoRaw, "no-raw", false, "Draw only the smoothed intensity")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time scale and info bar")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "from" {
			c.From = &from
		}
		if f.Name == "to" {
			c.To = &to
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.Width < 100 || c.Height < 50 {
		err = fmt.Errorf("plot is too small: %dx%d", c.Width, c.Height)
	} else if c.From != nil && c.To != nil && *c.From >= *c.To {
		err = fmt.Errorf("invalid range: from %s to %s", from, to)
	}

	if err == nil && timeZone != "" {
		if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
			err = fmt.Errorf("invalid time zone: %w", err)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
