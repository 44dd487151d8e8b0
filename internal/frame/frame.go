package frame

import (
	"fmt"
	"time"
)

const (
	// FormatUnknown is any pixel layout the reducer does not understand
	FormatUnknown PixelFormat = iota

	// FormatYUV420 is 8-bit luma with 2x2 subsampled chroma planes. Planar (I420)
	// and semi-planar (NV12/NV21) layouts are both described through plane strides.
	FormatYUV420
)

// PixelFormat identifies the pixel layout of a Frame
type PixelFormat int

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420"
	default:
		return "unknown"
	}
}

// Plane is a single image plane. The pixel at (x, y) of the plane lives at
// Data[y*RowStride + x*PixelStride].
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is one camera frame as delivered by the frame source. Plane order is
// Y, U, V. The frame buffer is owned by the caller and must not be retained.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Planes    [3]Plane
	Timestamp time.Time
}

// I420Size returns the size in bytes of a packed I420 frame
func I420Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// FromI420 builds a Frame view over a packed I420 buffer (Y plane followed by
// the U and V planes). The buffer is not copied.
func FromI420(width, height int, buf []byte, ts time.Time) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry: %dx%d", width, height)
	}
	if size := I420Size(width, height); len(buf) < size {
		return nil, fmt.Errorf("short I420 buffer: got %d bytes, want %d", len(buf), size)
	}

	cw, ch := (width+1)/2, (height+1)/2
	ySize := width * height
	cSize := cw * ch

	return &Frame{
		Width:  width,
		Height: height,
		Format: FormatYUV420,
		Planes: [3]Plane{
			{Data: buf[:ySize], RowStride: width, PixelStride: 1},
			{Data: buf[ySize : ySize+cSize], RowStride: cw, PixelStride: 1},
			{Data: buf[ySize+cSize : ySize+2*cSize], RowStride: cw, PixelStride: 1},
		},
		Timestamp: ts,
	}, nil
}
