// Package signal keeps the rolling history of intensity samples reduced from
// camera frames and exposes the short-window views the peak detector needs.
package signal

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Config holds the Signal Buffer tunables
type Config struct {
	Capacity        int `yaml:"capacity" json:"capacity"`               // raw samples retained
	SmoothingWindow int `yaml:"smoothingWindow" json:"smoothingWindow"` // trailing moving average length
	RangeWindow     int `yaml:"rangeWindow" json:"rangeWindow"`         // trailing min/max length
	WarmupSamples   int `yaml:"warmupSamples" json:"warmupSamples"`     // samples before the baseline is established
}

// DefaultConfig returns the Signal Buffer defaults
func DefaultConfig() Config {
	return Config{
		Capacity:        100,
		SmoothingWindow: 3,
		RangeWindow:     20,
		WarmupSamples:   20,
	}
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("signal.Config: capacity must be positive: %d", c.Capacity)
	}
	if c.SmoothingWindow <= 0 || c.SmoothingWindow > c.Capacity {
		return fmt.Errorf("signal.Config: smoothing window must be in [1, %d]: %d", c.Capacity, c.SmoothingWindow)
	}
	if c.RangeWindow <= 0 || c.RangeWindow > c.Capacity {
		return fmt.Errorf("signal.Config: range window must be in [1, %d]: %d", c.Capacity, c.RangeWindow)
	}
	if c.WarmupSamples < 0 {
		return fmt.Errorf("signal.Config: warmup samples must not be negative: %d", c.WarmupSamples)
	}
	return nil
}

// Buffer is the bounded history of raw intensity samples. It is single-writer
// and not safe for concurrent use.
type Buffer struct {
	cfg      Config
	samples  *Ring
	ingested int
	scratch  []float64
}

// NewBuffer creates a Signal Buffer
func NewBuffer(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{
		cfg:     cfg,
		samples: NewRing(cfg.Capacity),
		scratch: make([]float64, 0, max(cfg.SmoothingWindow, cfg.RangeWindow)),
	}, nil
}

// Push ingests one raw sample
func (b *Buffer) Push(v float64) {
	b.samples.Push(v)
	b.ingested++
}

// Smoothed returns the trailing moving average over the smoothing window,
// or over all samples while fewer are available. It is 0 when empty.
func (b *Buffer) Smoothed() float64 {
	if b.samples.Len() == 0 {
		return 0
	}
	b.scratch = b.samples.Tail(b.scratch[:0], b.cfg.SmoothingWindow)
	return stat.Mean(b.scratch, nil)
}

// DynamicRange returns max - min over the trailing range window
func (b *Buffer) DynamicRange() float64 {
	if b.samples.Len() == 0 {
		return 0
	}
	b.scratch = b.samples.Tail(b.scratch[:0], b.cfg.RangeWindow)
	return floats.Max(b.scratch) - floats.Min(b.scratch)
}

// BaselineEstablished reports whether the warmup count has been ingested
func (b *Buffer) BaselineEstablished() bool {
	return b.ingested >= b.cfg.WarmupSamples
}

// Len returns the number of retained samples
func (b *Buffer) Len() int {
	return b.samples.Len()
}

// Ingested returns the number of samples pushed since the last Reset
func (b *Buffer) Ingested() int {
	return b.ingested
}

// Reset drops every sample and clears the baseline flag
func (b *Buffer) Reset() {
	b.samples.Clear()
	b.ingested = 0
}
