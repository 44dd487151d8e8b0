// Package trace buffers the intensity trace of a session before it is
// written to storage in batches.
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/pulse-hrv/internal/measurement"
)

type node struct {
	point measurement.TracePoint
	next  *node
}

// Buffer is a thread-safe list of trace points kept in timestamp order.
// Points that arrive out of order are placed where they belong; a point
// whose timestamp equals an existing one is moved 1µs past it so that
// timestamps stay unique.
type Buffer struct {
	capacity   int // Maximum number of points to hold before a flush is due
	flushCount int // Number of points removed by Flush

	mu   sync.Mutex
	head *node
	tail *node
	size int
}

// NewBuffer creates a trace buffer holding up to capacity points and
// releasing flushCount points per Flush.
//
// Returns an error if parameters are invalid.
func NewBuffer(capacity, flushCount int) (*Buffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	return &Buffer{
		capacity:   capacity,
		flushCount: flushCount,
	}, nil
}

// Insert adds a point to the buffer in timestamp order
func (b *Buffer) Insert(p measurement.TracePoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := &node{point: p}
	b.size++

	if b.head == nil {
		b.head, b.tail = n, n
		return
	}

	// frames usually arrive in order
	if p.Timestamp.After(b.tail.point.Timestamp) {
		b.tail.next = n
		b.tail = n
		return
	}

	if p.Timestamp.Before(b.head.point.Timestamp) {
		n.next = b.head
		b.head = n
		return
	}

	current := b.head
	for current.next != nil && !current.next.point.Timestamp.After(p.Timestamp) {
		current = current.next
	}
	if n.point.Timestamp.Equal(current.point.Timestamp) {
		n.point.Timestamp = current.point.Timestamp.Add(time.Microsecond)
	}

	n.next = current.next
	current.next = n
	if n.next == nil {
		b.tail = n
	}
}

// IsFull returns true if the buffer has reached its capacity
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size >= b.capacity
}

// Flush removes and returns the oldest points. Points above capacity are
// released together with the regular flush count.
func (b *Buffer) Flush() []measurement.TracePoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head == nil {
		return nil
	}

	count := b.flushCount
	if b.size > b.capacity {
		count += b.size - b.capacity
	}
	return b.take(min(count, b.size))
}

// DrainAll removes and returns every point in the buffer
func (b *Buffer) DrainAll() []measurement.TracePoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head == nil {
		return nil
	}
	return b.take(b.size)
}

func (b *Buffer) take(count int) []measurement.TracePoint {
	points := make([]measurement.TracePoint, 0, count)
	current := b.head
	for i := 0; i < count && current != nil; i++ {
		points = append(points, current.point)
		current = current.next
	}

	b.head = current
	if current == nil {
		b.tail = nil
	}
	b.size -= len(points)
	return points
}

// Size returns the current number of points in the buffer
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Clear removes all points from the buffer
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = nil
	b.tail = nil
	b.size = 0
}
