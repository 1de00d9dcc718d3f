package ensemble

// accuracyRing is a fixed-capacity ring buffer of observed accuracy scores.
// The ensemble only ever consults the rolling average of the most recent
// entries, so older observations are overwritten in place.
type accuracyRing struct {
	values []float64
	next   int
	filled int
}

func newAccuracyRing(capacity int) *accuracyRing {
	if capacity <= 0 {
		capacity = 10
	}
	return &accuracyRing{values: make([]float64, capacity)}
}

func (r *accuracyRing) Push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.filled < len(r.values) {
		r.filled++
	}
}

func (r *accuracyRing) Len() int {
	return r.filled
}

// Average returns the rolling mean, or the fallback when empty.
func (r *accuracyRing) Average(fallback float64) float64 {
	if r.filled == 0 {
		return fallback
	}
	sum := 0.0
	for i := 0; i < r.filled; i++ {
		sum += r.values[i]
	}
	return sum / float64(r.filled)
}
