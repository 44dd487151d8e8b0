package frame

import (
	"fmt"
	"math"
)

const (
	// DefaultROIMargin is the fraction of width and height trimmed from each
	// edge, leaving the center third of the frame
	DefaultROIMargin = 1.0 / 3.0

	// DefaultStride samples every other pixel in both axes
	DefaultStride = 2

	// yuvRedFactor is the V contribution to red in the BT.601 YUV -> RGB conversion
	yuvRedFactor = 1.402
)

// WithROIMargin sets the fraction of the frame trimmed from each edge.
// Valid values are in [0, 0.5).
func WithROIMargin(margin float64) func(r *Reducer) {
	return func(r *Reducer) {
		r.margin = margin
	}
}

// WithStride sets the sampling stride in both axes
func WithStride(stride int) func(r *Reducer) {
	return func(r *Reducer) {
		r.stride = stride
	}
}

// Reducer turns a camera frame into a single red-channel intensity sample
// averaged over a centered region of interest.
type Reducer struct {
	margin float64
	stride int
}

// NewReducer creates a Reducer sampling the center third of each frame at stride 2
func NewReducer(options ...func(r *Reducer)) (*Reducer, error) {
	r := Reducer{
		margin: DefaultROIMargin,
		stride: DefaultStride,
	}
	for _, option := range options {
		option(&r)
	}

	if r.margin < 0 || r.margin >= 0.5 {
		return nil, fmt.Errorf("invalid ROI margin: %0.3f, must be in [0, 0.5)", r.margin)
	}
	if r.stride <= 0 {
		return nil, fmt.Errorf("invalid stride: %d", r.stride)
	}
	return &r, nil
}

// Reduce returns the mean estimated red brightness over the region of
// interest. It reports false for frames that are not YUV420 or whose planes
// are too small for the declared geometry; such frames are skipped.
func (r *Reducer) Reduce(f *Frame) (float64, bool) {
	if f == nil || f.Format != FormatYUV420 || f.Width <= 0 || f.Height <= 0 {
		return 0, false
	}

	yp, vp := f.Planes[0], f.Planes[2]
	if yp.PixelStride <= 0 || vp.PixelStride <= 0 {
		return 0, false
	}

	startX := int(math.Round(float64(f.Width) * r.margin))
	endX := f.Width - startX
	startY := int(math.Round(float64(f.Height) * r.margin))
	endY := f.Height - startY

	var sum float64
	var count int
	for y := startY; y < endY; y += r.stride {
		for x := startX; x < endX; x += r.stride {
			yIdx := y*yp.RowStride + x*yp.PixelStride
			vIdx := (y/2)*vp.RowStride + (x/2)*vp.PixelStride
			if yIdx < 0 || vIdx < 0 || yIdx >= len(yp.Data) || vIdx >= len(vp.Data) {
				return 0, false
			}

			luma := float64(yp.Data[yIdx])
			chroma := float64(vp.Data[vIdx])
			sum += luma + yuvRedFactor*(chroma-128)
			count++
		}
	}
	if count == 0 {
		return 0, false
	}

	return sum / float64(count), true
}
