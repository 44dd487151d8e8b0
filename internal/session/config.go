package session

import (
	"fmt"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/config"
	"github.com/roman-kulish/pulse-hrv/internal/frame"
	"github.com/roman-kulish/pulse-hrv/internal/hrv"
	"github.com/roman-kulish/pulse-hrv/internal/pulse"
	"github.com/roman-kulish/pulse-hrv/internal/signal"
)

// Config holds every analyzer tunable for one measurement session
type Config struct {
	ROIMargin float64 `yaml:"roiMargin" json:"roiMargin"` // fraction trimmed from each frame edge
	Stride    int     `yaml:"stride" json:"stride"`       // pixel sampling stride

	Duration       config.Duration `yaml:"duration" json:"duration"`             // measured from the first accepted beat
	StallTimeout   config.Duration `yaml:"stallTimeout" json:"stallTimeout"`     // max silence before the session fails
	MinStallFrames int             `yaml:"minStallFrames" json:"minStallFrames"` // frames processed before the watchdog arms
	SettlingBeats  int             `yaml:"settlingBeats" json:"settlingBeats"`   // leading beats dropped on completion
	RollingBeats   int             `yaml:"rollingBeats" json:"rollingBeats"`     // timestamps behind the live BPM

	Signal signal.Config `yaml:"signal" json:"signal"`
	Pulse  pulse.Config  `yaml:"pulse" json:"pulse"`
	HRV    hrv.Config    `yaml:"hrv" json:"hrv"`
}

// DefaultConfig returns the session defaults
func DefaultConfig() Config {
	return Config{
		ROIMargin:      frame.DefaultROIMargin,
		Stride:         frame.DefaultStride,
		Duration:       config.NewDuration(40 * time.Second),
		StallTimeout:   config.NewDuration(5 * time.Second),
		MinStallFrames: 60,
		SettlingBeats:  5,
		RollingBeats:   6,
		Signal:         signal.DefaultConfig(),
		Pulse:          pulse.DefaultConfig(),
		HRV:            hrv.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if err := c.Duration.Positive(); err != nil {
		return fmt.Errorf("session.Config: invalid duration: %w", err)
	}
	if err := c.StallTimeout.Positive(); err != nil {
		return fmt.Errorf("session.Config: invalid stall timeout: %w", err)
	}
	if c.MinStallFrames < 0 {
		return fmt.Errorf("session.Config: min stall frames must not be negative: %d", c.MinStallFrames)
	}
	if c.SettlingBeats < 0 {
		return fmt.Errorf("session.Config: settling beats must not be negative: %d", c.SettlingBeats)
	}
	if c.RollingBeats < 2 {
		return fmt.Errorf("session.Config: rolling beats must be at least 2: %d", c.RollingBeats)
	}
	if err := c.Signal.Validate(); err != nil {
		return fmt.Errorf("session.Config: %w", err)
	}
	if err := c.Pulse.Validate(); err != nil {
		return fmt.Errorf("session.Config: %w", err)
	}
	if err := c.HRV.Validate(); err != nil {
		return fmt.Errorf("session.Config: %w", err)
	}
	return nil
}
