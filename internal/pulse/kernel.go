package pulse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Kernel is an immutable Ricker (Mexican hat) wavelet: the negated, normalized
// second derivative of a Gaussian sampled at integer offsets around the
// kernel center.
type Kernel struct {
	coeffs []float64
}

// NewKernel builds a zero-mean, unit-norm Ricker kernel of the given length
// and scale, both expressed in samples.
func NewKernel(length int, sigma float64) (*Kernel, error) {
	if length < 3 {
		return nil, fmt.Errorf("pulse.Kernel: length must be at least 3: %d", length)
	}
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("pulse.Kernel: sigma must be positive and finite: %f", sigma)
	}

	center := float64(length-1) / 2
	coeffs := make([]float64, length)
	for i := range coeffs {
		t := (float64(i) - center) / sigma
		coeffs[i] = (1 - t*t) * math.Exp(-t*t/2)
	}

	// A truncated wavelet is not exactly zero-mean; remove the residual DC so a
	// flat input convolves to zero.
	floats.AddConst(-floats.Sum(coeffs)/float64(length), coeffs)

	norm := floats.Norm(coeffs, 2)
	if norm == 0 {
		return nil, fmt.Errorf("pulse.Kernel: degenerate kernel for length %d sigma %f", length, sigma)
	}
	floats.Scale(1/norm, coeffs)

	return &Kernel{coeffs: coeffs}, nil
}

// Len returns the number of coefficients
func (k *Kernel) Len() int {
	return len(k.coeffs)
}

// Coefficients returns a copy of the kernel
func (k *Kernel) Coefficients() []float64 {
	return append([]float64(nil), k.coeffs...)
}

// Apply returns the inner product of the kernel with window, which must have
// exactly Len() values, oldest first.
func (k *Kernel) Apply(window []float64) float64 {
	return floats.Dot(k.coeffs, window)
}
