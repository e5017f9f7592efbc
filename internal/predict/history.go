package predict

import "gonum.org/v1/gonum/spatial/r3"

// VelocityHistory is a fixed-capacity ring buffer of measured velocities.
// Once full, the oldest sample is overwritten first.
type VelocityHistory struct {
	data []r3.Vec
	pos  int
	full bool
}

// NewVelocityHistory creates a VelocityHistory holding n samples. n must be
// at least 1.
func NewVelocityHistory(n int) *VelocityHistory {
	return &VelocityHistory{data: make([]r3.Vec, n)}
}

// Push adds a velocity sample.
func (h *VelocityHistory) Push(v r3.Vec) {
	h.data[h.pos] = v
	h.pos++
	if h.pos >= len(h.data) {
		h.pos = 0
		h.full = true
	}
}

// Cap returns the capacity of the buffer.
func (h *VelocityHistory) Cap() int { return len(h.data) }

// Len returns the number of samples pushed so far, up to Cap.
func (h *VelocityHistory) Len() int {
	if h.full {
		return len(h.data)
	}
	return h.pos
}

// Slice returns the samples in insertion order.
func (h *VelocityHistory) Slice() []r3.Vec {
	n := h.Len()
	out := make([]r3.Vec, n)
	if h.full {
		copy(out, h.data[h.pos:])
		copy(out[len(h.data)-h.pos:], h.data[:h.pos])
	} else {
		copy(out, h.data[:h.pos])
	}
	return out
}

// Mean returns the sum of the buffer divided by its capacity. Slots not yet
// written count as zero, so the mean ramps up over the first Cap pushes.
func (h *VelocityHistory) Mean() r3.Vec {
	var sum r3.Vec
	for _, v := range h.data {
		sum = r3.Add(sum, v)
	}
	return r3.Scale(1/float64(len(h.data)), sum)
}

// Reset clears all samples.
func (h *VelocityHistory) Reset() {
	clear(h.data)
	h.pos = 0
	h.full = false
}
