package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/frame"
)

// Stream describes a raw I420 byte stream of fixed geometry and frame rate
type Stream struct {
	Width     int
	Height    int
	FrameRate float64
	Start     time.Time // timestamp of the first frame
}

// FrameSize returns the number of bytes per frame
func (s Stream) FrameSize() int {
	return frame.I420Size(s.Width, s.Height)
}

// Timestamp returns the nominal timestamp of the n-th frame
func (s Stream) Timestamp(n int) time.Time {
	return s.Start.Add(time.Duration(float64(n) * float64(time.Second) / s.FrameRate))
}

// Read decodes frames from r until EOF or cancellation and returns the number
// of frames sent. Every frame owns its buffer. A stream ending mid-frame
// reports ErrShortFrame.
func (s Stream) Read(ctx context.Context, r io.Reader, frames chan<- *frame.Frame) (int, error) {
	if s.Width <= 0 || s.Height <= 0 || s.FrameRate <= 0 {
		return 0, fmt.Errorf("invalid stream: %dx%d@%0.2f", s.Width, s.Height, s.FrameRate)
	}

	size := s.FrameSize()
	var n int
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, fs.ErrClosed):
				return n, nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return n, fmt.Errorf("%w: frame %d", ErrShortFrame, n)
			default:
				return n, fmt.Errorf("%w: %w", ErrBrokenPipe, err)
			}
		}

		f, err := frame.FromI420(s.Width, s.Height, buf, s.Timestamp(n))
		if err != nil {
			return n, err
		}

		select {
		case frames <- f:
			n++
		case <-ctx.Done():
			return n, nil
		}
	}
}
