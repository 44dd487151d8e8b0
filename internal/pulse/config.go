package pulse

import (
	"fmt"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/config"
)

// Config holds the Wavelet Peak Detector tunables
type Config struct {
	KernelLength    int     `yaml:"kernelLength" json:"kernelLength"`       // wavelet coefficients
	KernelSigma     float64 `yaml:"kernelSigma" json:"kernelSigma"`         // wavelet scale in samples
	TransformWindow int     `yaml:"transformWindow" json:"transformWindow"` // transformed samples retained

	MinPeakInterval config.Duration `yaml:"minPeakInterval" json:"minPeakInterval"` // refractory period after a beat
	MaxPeakInterval config.Duration `yaml:"maxPeakInterval" json:"maxPeakInterval"` // longer gaps start a new run

	MinPriorIntervals   int             `yaml:"minPriorIntervals" json:"minPriorIntervals"`     // history needed before the consistency gate applies
	EarlyTolerance      float64         `yaml:"earlyTolerance" json:"earlyTolerance"`           // allowed deviation while stabilizing
	SettledTolerance    float64         `yaml:"settledTolerance" json:"settledTolerance"`       // allowed deviation afterwards
	StabilizationPeriod config.Duration `yaml:"stabilizationPeriod" json:"stabilizationPeriod"` // measured from session start
	RecentIntervals     int             `yaml:"recentIntervals" json:"recentIntervals"`         // consistency history length

	MinDynamicRange float64 `yaml:"minDynamicRange" json:"minDynamicRange"` // raw signal swing required for a candidate
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		KernelLength:        12,
		KernelSigma:         2.0,
		TransformWindow:     20,
		MinPeakInterval:     config.NewDuration(550 * time.Millisecond),
		MaxPeakInterval:     config.NewDuration(1200 * time.Millisecond),
		MinPriorIntervals:   3,
		EarlyTolerance:      0.5,
		SettledTolerance:    0.3,
		StabilizationPeriod: config.NewDuration(10 * time.Second),
		RecentIntervals:     10,
		MinDynamicRange:     0.5,
	}
}

func (c Config) Validate() error {
	if c.KernelLength < 3 {
		return fmt.Errorf("pulse.Config: kernel length must be at least 3: %d", c.KernelLength)
	}
	if c.KernelSigma <= 0 {
		return fmt.Errorf("pulse.Config: kernel sigma must be positive: %f", c.KernelSigma)
	}
	if c.TransformWindow < 3 {
		return fmt.Errorf("pulse.Config: transform window must be at least 3: %d", c.TransformWindow)
	}
	if err := c.MinPeakInterval.Positive(); err != nil {
		return fmt.Errorf("pulse.Config: invalid min peak interval: %w", err)
	}
	if c.MaxPeakInterval <= c.MinPeakInterval {
		return fmt.Errorf("pulse.Config: max peak interval must be greater than min: %s <= %s", c.MaxPeakInterval, c.MinPeakInterval)
	}
	if c.MinPriorIntervals < 1 {
		return fmt.Errorf("pulse.Config: min prior intervals must be positive: %d", c.MinPriorIntervals)
	}
	if c.RecentIntervals < c.MinPriorIntervals {
		return fmt.Errorf("pulse.Config: recent intervals must hold at least %d: %d", c.MinPriorIntervals, c.RecentIntervals)
	}
	if c.EarlyTolerance <= 0 || c.SettledTolerance <= 0 {
		return fmt.Errorf("pulse.Config: tolerances must be positive: %0.2f, %0.2f", c.EarlyTolerance, c.SettledTolerance)
	}
	if c.StabilizationPeriod < 0 {
		return fmt.Errorf("pulse.Config: stabilization period must not be negative: %s", c.StabilizationPeriod)
	}
	if c.MinDynamicRange < 0 {
		return fmt.Errorf("pulse.Config: min dynamic range must not be negative: %f", c.MinDynamicRange)
	}
	return nil
}
