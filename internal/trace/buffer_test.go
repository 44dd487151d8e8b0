package trace

import (
	"testing"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

func point(base time.Time, offset time.Duration, intensity float64) measurement.TracePoint {
	return measurement.TracePoint{
		Timestamp: base.Add(offset),
		Intensity: intensity,
		Smoothed:  intensity,
	}
}

func TestBuffer_Ordering(t *testing.T) {
	b, err := NewBuffer(10, 5)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	base := time.UnixMilli(1_700_000_000_000)
	points := []measurement.TracePoint{
		point(base, 0, 1),
		point(base, 66*time.Millisecond, 3),
		point(base, 33*time.Millisecond, 2), // late frame
		point(base, 100*time.Millisecond, 4),
		// before head
		point(base, -33*time.Millisecond, 0),
		point(base, 133*time.Millisecond, 5),
	}

	for _, p := range points {
		b.Insert(p)
	}

	if size := b.Size(); size != len(points) {
		t.Errorf("Expected buffer size %d, got %d", len(points), size)
	}

	results := b.DrainAll()
	if len(results) != len(points) {
		t.Fatalf("Expected %d results, got %d", len(points), len(results))
	}

	for i, r := range results {
		if r.Intensity != float64(i) {
			t.Errorf("Result %d: expected intensity %d, got %.0f", i, i, r.Intensity)
		}
		if i > 0 && !r.Timestamp.After(results[i-1].Timestamp) {
			t.Errorf("Result %d: timestamp %s is not after %s", i, r.Timestamp, results[i-1].Timestamp)
		}
	}

	if b.Size() != 0 {
		t.Error("Drained buffer should have size 0")
	}
}

func TestBuffer_EqualTimestamps(t *testing.T) {
	b, err := NewBuffer(10, 5)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	base := time.UnixMilli(1_700_000_000_000)
	b.Insert(point(base, 0, 1))
	b.Insert(point(base, 0, 2))
	b.Insert(point(base, 33*time.Millisecond, 3))

	results := b.DrainAll()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	if got := results[1].Timestamp.Sub(results[0].Timestamp); got != time.Microsecond {
		t.Errorf("Expected duplicate timestamp to be nudged by 1µs, got %s", got)
	}
	if results[1].Intensity != 2 {
		t.Errorf("Expected the later insert second, got intensity %.0f", results[1].Intensity)
	}
}

func TestBuffer_FlushBehavior(t *testing.T) {
	b, err := NewBuffer(3, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 3; i++ {
		b.Insert(point(base, time.Duration(i)*33*time.Millisecond, float64(i)))
	}

	if !b.IsFull() {
		t.Error("Buffer should be full")
	}

	flushed := b.Flush()
	if len(flushed) != 2 {
		t.Errorf("Expected 2 flushed items, got %d", len(flushed))
	}
	if size := b.Size(); size != 1 {
		t.Errorf("Expected remaining size 1, got %d", size)
	}
	for i, p := range flushed {
		if p.Intensity != float64(i) {
			t.Errorf("Flushed result %d: expected intensity %d, got %.0f", i, i, p.Intensity)
		}
	}

	// overfilled buffers release the excess as well
	for i := 3; i < 7; i++ {
		b.Insert(point(base, time.Duration(i)*33*time.Millisecond, float64(i)))
	}
	if flushed = b.Flush(); len(flushed) != 4 {
		t.Errorf("Expected 4 flushed items, got %d", len(flushed))
	}
	if size := b.Size(); size != 1 {
		t.Errorf("Expected remaining size 1, got %d", size)
	}

	// the tail survives a partial flush
	b.Insert(point(base, time.Second, 10))
	results := b.DrainAll()
	if len(results) != 2 || results[1].Intensity != 10 {
		t.Errorf("Expected the new point after the remaining one, got %+v", results)
	}
}

func TestBuffer_EdgeCases(t *testing.T) {
	b, err := NewBuffer(5, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if b.Flush() != nil {
		t.Error("Flush on empty buffer should return nil")
	}
	if b.DrainAll() != nil {
		t.Error("DrainAll on empty buffer should return nil")
	}
	if b.IsFull() {
		t.Error("Empty buffer should not be full")
	}

	b.Insert(point(time.Now(), 0, 1))
	b.Clear()
	if b.Size() != 0 {
		t.Error("Cleared buffer should have size 0")
	}

	testCases := []struct {
		name     string
		capacity int
		flush    int
	}{
		{"invalid capacity", 0, 1},
		{"invalid flush count", 5, 6},
		{"zero flush count", 5, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewBuffer(tc.capacity, tc.flush); err == nil {
				t.Error("Expected error for invalid parameters")
			}
		})
	}
}
