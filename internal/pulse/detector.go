// Package pulse turns the smoothed intensity signal into discrete heart beats
// using a wavelet matched filter followed by timing and consistency gates.
package pulse

import (
	"io"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/pulse-hrv/internal/signal"
)

// Beat is one accepted cardiac cycle
type Beat struct {
	TimestampMs int64   // frame timestamp of the detection, Unix milliseconds
	IntervalMs  int64   // gap to the previous beat; 0 when RunStart is set
	RunStart    bool    // first beat, or first beat after a gap longer than the max peak interval
	Strength    float64 // transformed value at the peak
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(d *Detector) {
	return func(d *Detector) {
		d.logger = logger
	}
}

// Detector is the Wavelet Peak Detector. It is single-writer and not safe for
// concurrent use.
type Detector struct {
	cfg    Config
	kernel *Kernel

	inputs      *signal.Ring // smoothed samples, one kernel length
	transformed *signal.Ring
	scratch     []float64

	recent     []int64
	lastBeatMs int64
	hasBeat    bool
	originMs   int64
	hasOrigin  bool

	logger *slog.Logger
}

// NewDetector creates a detector and its wavelet kernel
func NewDetector(cfg Config, options ...func(d *Detector)) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kernel, err := NewKernel(cfg.KernelLength, cfg.KernelSigma)
	if err != nil {
		return nil, err
	}

	d := Detector{
		cfg:         cfg,
		kernel:      kernel,
		inputs:      signal.NewRing(kernel.Len()),
		transformed: signal.NewRing(cfg.TransformWindow),
		scratch:     make([]float64, 0, kernel.Len()),
		recent:      make([]int64, 0, cfg.RecentIntervals),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&d)
	}
	return &d, nil
}

// Kernel returns the wavelet kernel in use
func (d *Detector) Kernel() *Kernel {
	return d.kernel
}

// SetOrigin marks the session start used for the stabilization period. Without
// it the first processed timestamp is used.
func (d *Detector) SetOrigin(ts time.Time) {
	d.originMs = ts.UnixMilli()
	d.hasOrigin = true
}

// Process consumes one smoothed sample together with the current raw dynamic
// range and reports whether a beat was accepted at ts. Timestamps must be
// non-decreasing.
func (d *Detector) Process(smoothed, dynamicRange float64, ts time.Time) (Beat, bool) {
	nowMs := ts.UnixMilli()
	if !d.hasOrigin {
		d.originMs = nowMs
		d.hasOrigin = true
	}

	d.inputs.Push(smoothed)
	if d.inputs.Len() < d.kernel.Len() {
		return Beat{}, false
	}

	d.scratch = d.inputs.Tail(d.scratch[:0], d.kernel.Len())
	d.transformed.Push(d.kernel.Apply(d.scratch))

	n := d.transformed.Len()
	if n < 3 {
		return Beat{}, false
	}

	left, peak, right := d.transformed.At(n-3), d.transformed.At(n-2), d.transformed.At(n-1)
	if !(peak > left && peak > right && peak > 0) {
		return Beat{}, false
	}
	if dynamicRange <= d.cfg.MinDynamicRange {
		return Beat{}, false
	}

	beat := Beat{TimestampMs: nowMs, Strength: peak}

	if !d.hasBeat {
		beat.RunStart = true
		d.accept(beat)
		return beat, true
	}

	elapsed := nowMs - d.lastBeatMs
	if elapsed < d.cfg.MinPeakInterval.Milliseconds() {
		return Beat{}, false
	}

	if elapsed > d.cfg.MaxPeakInterval.Milliseconds() {
		d.logger.Debug("Gap exceeds max peak interval, starting new run", slog.Int64("elapsed", elapsed))
		beat.RunStart = true
		d.accept(beat)
		return beat, true
	}

	if len(d.recent) >= d.cfg.MinPriorIntervals {
		mean := d.meanInterval()
		deviation := math.Abs(float64(elapsed)-mean) / mean
		if deviation > d.tolerance(nowMs) {
			d.logger.Debug("Inconsistent interval rejected",
				slog.Int64("interval", elapsed),
				slog.Float64("mean", mean),
				slog.Float64("deviation", deviation))
			return Beat{}, false
		}
	}

	beat.IntervalMs = elapsed
	d.accept(beat)
	return beat, true
}

func (d *Detector) accept(beat Beat) {
	if !beat.RunStart {
		if len(d.recent) == d.cfg.RecentIntervals {
			d.recent = append(d.recent[:0], d.recent[1:]...)
		}
		d.recent = append(d.recent, beat.IntervalMs)
	}
	d.lastBeatMs = beat.TimestampMs
	d.hasBeat = true
}

func (d *Detector) meanInterval() float64 {
	values := make([]float64, len(d.recent))
	for i, v := range d.recent {
		values[i] = float64(v)
	}
	return stat.Mean(values, nil)
}

func (d *Detector) tolerance(nowMs int64) float64 {
	if nowMs-d.originMs < d.cfg.StabilizationPeriod.Milliseconds() {
		return d.cfg.EarlyTolerance
	}
	return d.cfg.SettledTolerance
}

// RecentIntervals returns a copy of the bounded recent-interval window,
// oldest first
func (d *Detector) RecentIntervals() []int64 {
	return append([]int64(nil), d.recent...)
}

// LastBeat returns the timestamp of the last accepted beat
func (d *Detector) LastBeat() (int64, bool) {
	return d.lastBeatMs, d.hasBeat
}

// Reset clears every window, the interval history and the origin
func (d *Detector) Reset() {
	d.inputs.Clear()
	d.transformed.Clear()
	d.recent = d.recent[:0]
	d.lastBeatMs = 0
	d.hasBeat = false
	d.originMs = 0
	d.hasOrigin = false
}
