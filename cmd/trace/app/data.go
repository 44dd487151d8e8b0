package app

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

const (
	// percentiles of the vertical scale; motion spikes fall outside
	lowerPercentile = 0.02
	upperPercentile = 0.98

	minAmplitudeRange = 2.0
	minimumPointCount = 20
)

// Bounds is the vertical range of the plot
type Bounds struct {
	Min float64
	Max float64
}

// TraceData accumulates a session trace for rendering
type TraceData struct {
	Points                       []measurement.TracePoint
	Beats                        []measurement.Beat
	TimestampStart, TimestampEnd time.Time
}

func NewTraceData() *TraceData {
	return &TraceData{}
}

func (d *TraceData) Update(p measurement.TracePoint) {
	if d.TimestampStart.IsZero() || d.TimestampStart.After(p.Timestamp) {
		d.TimestampStart = p.Timestamp
	}
	if d.TimestampEnd.IsZero() || d.TimestampEnd.Before(p.Timestamp) {
		d.TimestampEnd = p.Timestamp
	}
	d.Points = append(d.Points, p)
}

// AddBeats keeps the beats that fall within the trace time range
func (d *TraceData) AddBeats(beats []measurement.Beat) {
	for _, b := range beats {
		if b.Timestamp.Before(d.TimestampStart) || b.Timestamp.After(d.TimestampEnd) {
			continue
		}
		d.Beats = append(d.Beats, b)
	}
}

func (d *TraceData) Duration() time.Duration {
	return d.TimestampEnd.Sub(d.TimestampStart)
}

// Bounds returns the percentile range of the plotted values with a 10%
// margin. includeRaw adds the unsmoothed intensity to the range.
func (d *TraceData) Bounds(includeRaw bool) Bounds {
	values := make([]float64, 0, 2*len(d.Points))
	for _, p := range d.Points {
		values = append(values, p.Smoothed)
		if includeRaw {
			values = append(values, p.Intensity)
		}
	}
	if len(values) == 0 {
		return Bounds{Min: 0, Max: minAmplitudeRange}
	}

	slices.Sort(values)

	lo, hi := values[0], values[len(values)-1]
	if len(values) >= minimumPointCount {
		lo = stat.Quantile(lowerPercentile, stat.Empirical, values, nil)
		hi = stat.Quantile(upperPercentile, stat.Empirical, values, nil)
	}

	if hi-lo < minAmplitudeRange {
		center := (hi + lo) / 2
		lo = center - minAmplitudeRange/2
		hi = center + minAmplitudeRange/2
	}

	margin := (hi - lo) / 10
	return Bounds{Min: lo - margin, Max: hi + margin}
}
