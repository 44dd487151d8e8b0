package app

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

func TestTraceData_UpdateAndBeats(t *testing.T) {
	t0 := time.UnixMilli(1_700_000_000_000)
	d := NewTraceData()
	for _, offset := range []time.Duration{time.Second, 0, 3 * time.Second} {
		d.Update(measurement.TracePoint{Timestamp: t0.Add(offset), Intensity: 100, Smoothed: 100})
	}

	assert.True(t, t0.Equal(d.TimestampStart))
	assert.True(t, t0.Add(3*time.Second).Equal(d.TimestampEnd))
	assert.Equal(t, 3*time.Second, d.Duration())

	d.AddBeats([]measurement.Beat{
		{Timestamp: t0.Add(-time.Second)},
		{Timestamp: t0, Interval: 0},
		{Timestamp: t0.Add(800 * time.Millisecond), Interval: 800},
		{Timestamp: t0.Add(4 * time.Second), Interval: 800},
	})
	assert.Len(t, d.Beats, 2)
}

func TestTraceData_Bounds(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		b := NewTraceData().Bounds(true)
		assert.Equal(t, Bounds{Min: 0, Max: minAmplitudeRange}, b)
	})

	t.Run("flat trace is widened", func(t *testing.T) {
		d := NewTraceData()
		d.Update(measurement.TracePoint{Timestamp: time.Unix(0, 0), Intensity: 100, Smoothed: 100})
		b := d.Bounds(true)
		assert.InDelta(t, 98.8, b.Min, 1e-9)
		assert.InDelta(t, 101.2, b.Max, 1e-9)
	})

	t.Run("spikes are clipped", func(t *testing.T) {
		d := NewTraceData()
		for i := 0; i < 200; i++ {
			v := 100 + 10*math.Sin(float64(i)/5)
			raw := v
			if i == 50 {
				raw = 1000 // motion artefact
			}
			d.Update(measurement.TracePoint{Timestamp: time.Unix(int64(i), 0), Intensity: raw, Smoothed: v})
		}

		b := d.Bounds(true)
		assert.Less(t, b.Max, 115.0)
		assert.Greater(t, b.Min, 85.0)

		smoothed := d.Bounds(false)
		assert.LessOrEqual(t, smoothed.Max, b.Max+1e-9)
	})
}
