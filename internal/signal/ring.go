package signal

// Ring is a fixed-capacity ring buffer of float64 values. When full, each Push
// evicts the oldest value.
type Ring struct {
	data []float64
	pos  int
	full bool
}

// NewRing creates a Ring with the given capacity
func NewRing(capacity int) *Ring {
	return &Ring{data: make([]float64, capacity)}
}

// Push adds a value, evicting the oldest one when the ring is full
func (r *Ring) Push(v float64) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= len(r.data) {
		r.pos = 0
		r.full = true
	}
}

// Len returns the number of stored values
func (r *Ring) Len() int {
	if r.full {
		return len(r.data)
	}
	return r.pos
}

// Cap returns the ring capacity
func (r *Ring) Cap() int {
	return len(r.data)
}

// At returns the i-th value counted from the oldest one. It panics if i is
// out of range.
func (r *Ring) At(i int) float64 {
	n := r.Len()
	if i < 0 || i >= n {
		panic("signal: ring index out of range")
	}
	if !r.full {
		return r.data[i]
	}
	return r.data[(r.pos+i)%len(r.data)]
}

// Latest returns the most recently pushed value, or 0 if the ring is empty
func (r *Ring) Latest() float64 {
	n := r.Len()
	if n == 0 {
		return 0
	}
	return r.At(n - 1)
}

// Tail appends the newest n values (oldest first) to dst and returns it.
// Fewer values are appended if the ring holds less than n.
func (r *Ring) Tail(dst []float64, n int) []float64 {
	size := r.Len()
	n = min(n, size)
	for i := size - n; i < size; i++ {
		dst = append(dst, r.At(i))
	}
	return dst
}

// Slice returns the ring contents in insertion order
func (r *Ring) Slice() []float64 {
	return r.Tail(make([]float64, 0, r.Len()), r.Len())
}

// Clear removes all values
func (r *Ring) Clear() {
	r.pos = 0
	r.full = false
}
