// Package ffmpeg captures camera or recorded video through the ffmpeg CLI.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/pulse-hrv/internal/capture"
)

const (
	Runtime = "ffmpeg"
	Device  = "ffmpeg"
)

// handler struct represents an ffmpeg camera handler
type handler struct {
	binPath string
	args    []string
	config  Config
}

// New creates a new ffmpeg handler
func New(config *Config) (capture.Handler, error) {
	binPath, err := capture.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return newHandler(binPath, config)
}

func newHandler(binPath string, config *Config) (*handler, error) {
	args, err := config.Args()
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}

	return &handler{binPath: binPath, args: args, config: *config}, nil
}

// Cmd returns an exec.Cmd for the ffmpeg handler
func (h handler) Cmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, h.binPath, h.args...)
}

func (h handler) Geometry() (int, int) {
	return h.config.Width, h.config.Height
}

func (h handler) FrameRate() float64 {
	return h.config.FrameRate
}

func (h handler) Device() string {
	return Device
}
