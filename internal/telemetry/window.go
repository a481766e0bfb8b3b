package telemetry

import "time"

// DefaultAlpha is the EWMA smoothing factor applied when none is configured
const DefaultAlpha = 0.3

// DefaultWindowSize bounds the latency ring when none is configured
const DefaultWindowSize = 10

// Sample is one observed batch latency
type Sample struct {
	Timestamp time.Time `json:"ts"`
	LatencyMs float64   `json:"latency_ms"`
}

// Window is a bounded FIFO of latency samples with an incrementally
// maintained EWMA and an on-demand regression slope. It is not internally
// synchronised; the owning controller serialises access.
type Window struct {
	size    int
	alpha   float64
	samples []Sample
	ewma    float64
	seeded  bool
}

// NewWindow creates a window holding at most size samples
func NewWindow(size int, alpha float64) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Window{
		size:    size,
		alpha:   alpha,
		samples: make([]Sample, 0, size),
	}
}

// Observe appends a sample, evicting the oldest when the ring is full.
// The first sample initialises the EWMA directly rather than blending
// with zero.
func (w *Window) Observe(ts time.Time, latencyMs float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, Sample{Timestamp: ts, LatencyMs: latencyMs})

	if !w.seeded {
		w.ewma = latencyMs
		w.seeded = true
		return
	}
	w.ewma = w.alpha*latencyMs + (1-w.alpha)*w.ewma
}

// EWMA returns the current smoothed latency, 0 before any sample
func (w *Window) EWMA() float64 {
	return w.ewma
}

// Slope fits an ordinary-least-squares line over the ring, x being the
// 0-based sample index and y the latency. Returns 0 for fewer than two
// samples or a degenerate denominator. Unit is ms per batch position,
// reported as ms/s on the assumption of roughly one batch per second.
func (w *Window) Slope() float64 {
	n := float64(len(w.samples))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, s := range w.samples {
		x := float64(i)
		sumX += x
		sumY += s.LatencyMs
		sumXY += x * s.LatencyMs
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Len returns the number of buffered samples
func (w *Window) Len() int {
	return len(w.samples)
}

// Size returns the configured capacity W
func (w *Window) Size() int {
	return w.size
}

// Samples returns a copy of the buffered samples, oldest first
func (w *Window) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Reset discards all samples and the EWMA seed. The controller calls this
// after a failover so the debounce restarts against the new path set.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
	w.ewma = 0
	w.seeded = false
}
