// Package capture runs an external camera process that writes raw I420 video
// to stdout and turns its output into timestamped frames.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/frame"
)

var (
	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrShortFrame is returned when the stream ends in the middle of a frame
	ErrShortFrame = errors.New("truncated frame")

	// ErrAlreadyRunning is returned by BeginCapture on a capturing device
	ErrAlreadyRunning = errors.New("device is already running")
)

// Handler describes the camera process
type Handler interface {
	Cmd(ctx context.Context) *exec.Cmd
	Geometry() (width, height int)
	FrameRate() float64
	Device() string
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("device", d.handler.Device()))
	}
}

// WithClock sets the function returning the capture start time
func WithClock(now func() time.Time) func(d *Device) {
	return func(d *Device) {
		d.now = now
	}
}

// Device is a camera that can be started and stopped
type Device struct {
	handler Handler

	isCapturing atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	now    func() time.Time
	logger *slog.Logger
}

// NewDevice creates a new Device with a discard logger
func NewDevice(h Handler, options ...func(d *Device)) *Device {
	d := Device{
		handler: h,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// BeginCapture starts the camera process and sends decoded frames to the
// frames channel, one at a time and in timestamp order. The returned channel
// is closed when capture stops and carries the joined errors, if any.
func (d *Device) BeginCapture(ctx context.Context, frames chan<- *frame.Frame) (<-chan error, error) {
	if !d.isCapturing.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	cmd := d.handler.Cmd(ctx)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.isCapturing.Store(false)
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.isCapturing.Store(false)
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		d.isCapturing.Store(false)
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	width, height := d.handler.Geometry()
	stream := Stream{
		Width:     width,
		Height:    height,
		FrameRate: d.handler.FrameRate(),
		Start:     d.now(),
	}

	captureStopped := make(chan error, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(captureStopped)
		defer cancel() // releases the context when the process exits on its own

		d.logger.Info("starting frame capture...",
			slog.Int("width", width),
			slog.Int("height", height),
			slog.Float64("fps", stream.FrameRate))

		done := make(chan error, 2) // expects two results from the pipe readers

		go func() {
			n, err := stream.Read(ctx, stdout, frames)
			d.logger.Debug("stdout closed", slog.Int("frames", n))
			if err != nil {
				err = fmt.Errorf("error reading stdout: %w", err)
			}
			done <- err
		}()
		go d.handleStderr(stderr, done)

		var errs []error
		for i := 0; i < cap(done); i++ {
			if err := <-done; err != nil {
				cancel() // cancel context on error
				d.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		// Wait closes the pipes, so it runs only after both readers are drained
		if err := d.waitCmd(ctx, cmd); err != nil {
			d.logger.Error(err.Error())
			errs = append(errs, err)
		}

		d.logger.Info("frame capture stopped")
		d.isCapturing.Store(false)

		if len(errs) > 0 {
			captureStopped <- errors.Join(errs...)
		}
	}()

	return captureStopped, nil
}

// Stop terminates the camera process and waits for the readers to finish
func (d *Device) Stop() {
	if !d.isCapturing.Load() {
		return // already stopped
	}

	d.cancel()
	d.wg.Wait()
}

// IsCapturing returns true if the device is running
func (d *Device) IsCapturing() bool {
	return d.isCapturing.Load()
}

// handleStderr reads from stderr and logs it
func (d *Device) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Warn(fmt.Sprintf("%s >> %s", d.handler.Device(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// waitCmd waits for the command to exit. An exit caused by Stop or by the
// parent context is not an error.
func (d *Device) waitCmd(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("command exited with error: %w", err)
	}

	return nil
}
