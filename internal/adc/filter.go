package adc

import "math"

// Smoothing window bounds. At 80SPS the maximum (20 samples plus the rejected
// high and low) settles in about 250ms; at 10SPS the minimum keeps lag near 0.5s.
const (
	MinWindow = 5
	MaxWindow = 22
)

// ClampWindow limits n to [MinWindow, MaxWindow].
func ClampWindow(n int) int {
	if n < MinWindow {
		return MinWindow
	}
	if n > MaxWindow {
		return MaxWindow
	}
	return n
}

// Filter is a fixed-capacity circular window of raw codes averaged with
// high/low rejection. Its storage is allocated once; only the logical size moves.
type Filter struct {
	slots [MaxWindow]int32
	size  int
	pos   int
}

// NewFilter creates a filter of the given (clamped) size with every slot set to seed.
func NewFilter(size int, seed int32) *Filter {
	f := &Filter{size: ClampWindow(size)}
	f.Reset(seed)
	return f
}

// Size returns the logical window size.
func (f *Filter) Size() int {
	return f.size
}

// Push writes v at the current position and advances it, wrapping at the logical size.
func (f *Filter) Push(v int32) {
	f.slots[f.pos] = v
	f.pos++
	if f.pos >= f.size {
		f.pos = 0
	}
}

// Resize clamps n into bounds and, if the size changes, reseeds every slot so
// samples taken at the old size cannot skew the new average.
// It reports whether the size changed.
func (f *Filter) Resize(n int, seed int32) bool {
	n = ClampWindow(n)
	if n == f.size {
		return false
	}
	f.size = n
	f.Reset(seed)
	return true
}

// Reset sets every slot to seed and rewinds the write position.
func (f *Filter) Reset(seed int32) {
	for i := range f.slots {
		f.slots[i] = seed
	}
	f.pos = 0
}

// Value returns the mean of the window after discarding one minimum and one maximum.
func (f *Filter) Value() int32 {
	var sum int64
	lo, hi := int32(math.MaxInt32), int32(math.MinInt32)
	for _, v := range f.slots[:f.size] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += int64(v)
	}
	sum -= int64(lo) + int64(hi)
	return int32(sum / int64(f.size-2))
}
