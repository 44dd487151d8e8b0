// Package hrv computes heart rate and heart rate variability metrics from the
// beat timestamps of a finished measurement session.
package hrv

import (
	"fmt"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/config"
)

const (
	StressNoData StressLevel = iota
	StressRelaxed
	StressCalm
	StressModerate
	StressElevated
	StressExhausted
)

// StressLevel is a display classification of the stress index
type StressLevel int

func (s StressLevel) String() string {
	switch s {
	case StressRelaxed:
		return "relaxed"
	case StressCalm:
		return "calm"
	case StressModerate:
		return "moderate"
	case StressElevated:
		return "elevated"
	case StressExhausted:
		return "exhausted"
	default:
		return "no-data"
	}
}

// ClassifyStress maps a stress index to a StressLevel; nil means no data
func ClassifyStress(si *float64) StressLevel {
	switch {
	case si == nil:
		return StressNoData
	case *si < 15:
		return StressRelaxed
	case *si < 25:
		return StressCalm
	case *si < 35:
		return StressModerate
	case *si < 50:
		return StressElevated
	default:
		return StressExhausted
	}
}

// Config holds the Interval Processor tunables
type Config struct {
	MinInterval       config.Duration `yaml:"minInterval" json:"minInterval"`             // plausibility lower bound
	MaxInterval       config.Duration `yaml:"maxInterval" json:"maxInterval"`             // plausibility upper bound
	MinPlausible      int             `yaml:"minPlausible" json:"minPlausible"`           // intervals required after the plausibility filter
	ArtifactWindow    int             `yaml:"artifactWindow" json:"artifactWindow"`       // accepted intervals averaged by artifact correction
	ArtifactTolerance float64         `yaml:"artifactTolerance" json:"artifactTolerance"` // allowed deviation from that average
	MinCorrected      int             `yaml:"minCorrected" json:"minCorrected"`           // intervals required for RMSSD and stress index
	StressBin         config.Duration `yaml:"stressBin" json:"stressBin"`                 // histogram bin width
}

// DefaultConfig returns the Interval Processor defaults
func DefaultConfig() Config {
	return Config{
		MinInterval:       config.NewDuration(550 * time.Millisecond),
		MaxInterval:       config.NewDuration(1200 * time.Millisecond),
		MinPlausible:      10,
		ArtifactWindow:    5,
		ArtifactTolerance: 0.2,
		MinCorrected:      2,
		StressBin:         config.NewDuration(50 * time.Millisecond),
	}
}

func (c Config) Validate() error {
	if err := c.MinInterval.Positive(); err != nil {
		return fmt.Errorf("hrv.Config: invalid min interval: %w", err)
	}
	if c.MaxInterval <= c.MinInterval {
		return fmt.Errorf("hrv.Config: max interval must be greater than min: %s <= %s", c.MaxInterval, c.MinInterval)
	}
	if c.MinPlausible < 1 {
		return fmt.Errorf("hrv.Config: min plausible intervals must be positive: %d", c.MinPlausible)
	}
	if c.ArtifactWindow < 1 {
		return fmt.Errorf("hrv.Config: artifact window must be positive: %d", c.ArtifactWindow)
	}
	if c.ArtifactTolerance <= 0 {
		return fmt.Errorf("hrv.Config: artifact tolerance must be positive: %0.2f", c.ArtifactTolerance)
	}
	if c.MinCorrected < 2 {
		return fmt.Errorf("hrv.Config: min corrected intervals must be at least 2: %d", c.MinCorrected)
	}
	if c.StressBin.Milliseconds() < 1 {
		return fmt.Errorf("hrv.Config: stress bin must be at least 1ms: %s", c.StressBin)
	}
	return nil
}

// Result is the outcome of one session. Absent metrics are nil; a zero Bpm
// with nil metrics means the session did not produce enough usable beats.
type Result struct {
	Bpm         int      `json:"bpm"`
	Rmssd       *float64 `json:"rmssd"`
	StressIndex *float64 `json:"stressIndex"`

	RawIntervals       int `json:"rawIntervals"`
	PlausibleIntervals int `json:"plausibleIntervals"`
	CorrectedIntervals int `json:"correctedIntervals"`
}

// Sufficient reports whether at least one variability metric is present
func (r Result) Sufficient() bool {
	return r.Rmssd != nil || r.StressIndex != nil
}

// StressLevel classifies the stress index
func (r Result) StressLevel() StressLevel {
	return ClassifyStress(r.StressIndex)
}

func (r Result) String() string {
	format := func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%0.1f", *v)
	}
	return fmt.Sprintf("bpm=%d rmssd=%s stress=%s (%s) intervals=%d/%d/%d",
		r.Bpm, format(r.Rmssd), format(r.StressIndex), r.StressLevel(),
		r.RawIntervals, r.PlausibleIntervals, r.CorrectedIntervals)
}

// Process derives BPM, RMSSD and stress index from ordered beat timestamps in
// milliseconds. It never fails: insufficient or degenerate data yields absent
// metrics.
func Process(timestamps []int64, cfg Config) Result {
	raw := Intervals(timestamps)
	plausible := FilterPlausible(raw, cfg.MinInterval.Milliseconds(), cfg.MaxInterval.Milliseconds())

	result := Result{
		RawIntervals:       len(raw),
		PlausibleIntervals: len(plausible),
	}
	if len(plausible) < cfg.MinPlausible {
		return result
	}

	corrected := CorrectArtifacts(plausible, cfg.ArtifactWindow, cfg.ArtifactTolerance)
	result.CorrectedIntervals = len(corrected)
	result.Bpm = CalculateBpm(corrected)
	if len(corrected) < cfg.MinCorrected {
		return result
	}

	if rmssd, ok := CalculateRmssd(corrected); ok {
		result.Rmssd = &rmssd
	}
	if si, ok := CalculateStressIndex(corrected, cfg.StressBin.Milliseconds()); ok {
		result.StressIndex = &si
	}
	return result
}
