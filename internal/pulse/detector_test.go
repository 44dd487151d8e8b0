package pulse

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pulse-hrv/internal/config"
	"github.com/roman-kulish/pulse-hrv/internal/signal"
)

const fps = 30

var epoch = time.UnixMilli(1_700_000_000_000)

func frameTime(i int) time.Time {
	return epoch.Add(time.Duration(i) * time.Second / fps)
}

// drive feeds a synthetic intensity trace through a Signal Buffer into the
// detector the same way the session controller does and returns the beats.
func drive(t *testing.T, frames int, sample func(i int) float64) []Beat {
	t.Helper()
	return driveWith(t, DefaultConfig(), frames, sample)
}

func driveWith(t *testing.T, cfg Config, frames int, sample func(i int) float64) []Beat {
	t.Helper()

	buf, err := signal.NewBuffer(signal.DefaultConfig())
	require.NoError(t, err)
	det, err := NewDetector(cfg)
	require.NoError(t, err)
	det.SetOrigin(frameTime(0))

	var beats []Beat
	for i := 0; i < frames; i++ {
		buf.Push(sample(i))
		if !buf.BaselineEstablished() {
			continue
		}
		if beat, ok := det.Process(buf.Smoothed(), buf.DynamicRange(), frameTime(i)); ok {
			beats = append(beats, beat)
		}
	}
	return beats
}

// sinusoid returns a pulse trace whose period may change over time; the phase
// is accumulated so the waveform stays continuous. The initial phase keeps the
// crests off integer sample positions, where the even-length kernel would
// produce two equal transformed neighbors.
func sinusoid(period func(i int) time.Duration) func(i int) float64 {
	phase := 0.7
	last := -1
	return func(i int) float64 {
		for last < i {
			last++
			phase += 2 * math.Pi * (float64(time.Second/fps) / float64(period(last)))
		}
		return 120 + 3*math.Sin(phase)
	}
}

func constantPeriod(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

func TestDetector_ConstantSignalEmitsNoBeats(t *testing.T) {
	beats := drive(t, 60*fps, func(int) float64 { return 87.25 })
	assert.Empty(t, beats)
}

func TestDetector_PeriodicPulse(t *testing.T) {
	const period = 800 * time.Millisecond
	beats := drive(t, 20*fps, sinusoid(constantPeriod(period)))

	require.GreaterOrEqual(t, len(beats), 20)
	assert.True(t, beats[0].RunStart)
	assert.Zero(t, beats[0].IntervalMs)

	for i, beat := range beats[1:] {
		assert.False(t, beat.RunStart, "beat %d", i+1)
		assert.InDelta(t, period.Milliseconds(), beat.IntervalMs, 0.3*float64(period.Milliseconds()), "beat %d", i+1)
		assert.Equal(t, beat.TimestampMs-beats[i].TimestampMs, beat.IntervalMs)
		assert.Greater(t, beat.Strength, 0.0)
	}
}

func TestDetector_RefractoryPeriod(t *testing.T) {
	// 150 BPM is above the ceiling; every other peak falls inside the
	// refractory window
	beats := drive(t, 20*fps, sinusoid(constantPeriod(400*time.Millisecond)))

	require.NotEmpty(t, beats)
	for _, beat := range beats[1:] {
		assert.GreaterOrEqual(t, beat.IntervalMs, int64(550))
	}
}

func TestDetector_RejectsInconsistentIntervals(t *testing.T) {
	const switchFrame = 15 * fps
	period := func(i int) time.Duration {
		if i < switchFrame {
			return 800 * time.Millisecond
		}
		return 1100 * time.Millisecond
	}
	beats := drive(t, 40*fps, sinusoid(period))

	settled := frameTime(switchFrame + 3*fps).UnixMilli()
	var late []Beat
	for _, beat := range beats {
		if beat.TimestampMs > settled {
			late = append(late, beat)
		}
	}

	// 1100 ms deviates more than 30% from the 800 ms history, so each such
	// candidate is rejected and the next one arrives after the max interval
	require.NotEmpty(t, late)
	for _, beat := range late {
		assert.True(t, beat.RunStart)
	}
}

func TestDetector_EarlyToleranceWhileStabilizing(t *testing.T) {
	// the rate drops from 75 to about 55 BPM four seconds in; 1100 ms is
	// about 40% above the 800 ms history
	period := func(i int) time.Duration {
		if i < 4*fps {
			return 800 * time.Millisecond
		}
		return 1100 * time.Millisecond
	}
	stabilized := epoch.Add(10 * time.Second).UnixMilli()

	slow := func(beats []Beat) []Beat {
		var out []Beat
		for _, beat := range beats {
			if !beat.RunStart && beat.IntervalMs >= 1000 {
				out = append(out, beat)
			}
		}
		return out
	}

	t.Run("accepted before stabilization", func(t *testing.T) {
		accepted := slow(driveWith(t, DefaultConfig(), 20*fps, sinusoid(period)))
		require.NotEmpty(t, accepted)
		assert.Less(t, accepted[0].TimestampMs, stabilized)
		assert.InDelta(t, 1100, accepted[0].IntervalMs, 50)
	})

	t.Run("rejected once stabilized", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StabilizationPeriod = config.NewDuration(0)
		assert.Empty(t, slow(driveWith(t, cfg, 20*fps, sinusoid(period))))
	})
}

func TestDetector_RecentIntervalsBounded(t *testing.T) {
	beats := drive(t, 30*fps, sinusoid(constantPeriod(750*time.Millisecond)))
	require.Greater(t, len(beats), 15)

	det, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	buf, err := signal.NewBuffer(signal.DefaultConfig())
	require.NoError(t, err)
	sample := sinusoid(constantPeriod(750 * time.Millisecond))
	for i := 0; i < 30*fps; i++ {
		buf.Push(sample(i))
		if buf.BaselineEstablished() {
			det.Process(buf.Smoothed(), buf.DynamicRange(), frameTime(i))
		}
	}

	recent := det.RecentIntervals()
	assert.Len(t, recent, DefaultConfig().RecentIntervals)
	_, ok := det.LastBeat()
	assert.True(t, ok)

	det.Reset()
	assert.Empty(t, det.RecentIntervals())
	_, ok = det.LastBeat()
	assert.False(t, ok)
}

func TestKernel(t *testing.T) {
	k, err := NewKernel(12, 2.0)
	require.NoError(t, err)
	require.Equal(t, 12, k.Len())

	coeffs := k.Coefficients()
	var sum, sq float64
	for _, c := range coeffs {
		sum += c
		sq += c * c
	}
	assert.InDelta(t, 0.0, sum, 1e-12, "zero mean")
	assert.InDelta(t, 1.0, sq, 1e-12, "unit norm")

	for i := range coeffs {
		assert.InDelta(t, coeffs[i], coeffs[len(coeffs)-1-i], 1e-12, "symmetric")
	}
	assert.Greater(t, coeffs[5], 0.0, "positive center lobe")
	assert.Less(t, coeffs[0], coeffs[5])

	flat := make([]float64, 12)
	for i := range flat {
		flat[i] = 42
	}
	assert.InDelta(t, 0.0, k.Apply(flat), 1e-9)

	coeffs[0] = 100
	assert.NotEqual(t, 100.0, k.Coefficients()[0], "kernel is immutable")
}

func TestKernel_Invalid(t *testing.T) {
	_, err := NewKernel(2, 2.0)
	assert.Error(t, err)

	_, err = NewKernel(12, 0)
	assert.Error(t, err)

	_, err = NewKernel(12, math.Inf(1))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short kernel", func(c *Config) { c.KernelLength = 2 }},
		{"max below min", func(c *Config) { c.MaxPeakInterval = c.MinPeakInterval }},
		{"recent shorter than priors", func(c *Config) { c.RecentIntervals = 2 }},
		{"zero tolerance", func(c *Config) { c.SettledTolerance = 0 }},
		{"negative range", func(c *Config) { c.MinDynamicRange = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}
