package monitor

import (
	"math"
	"sort"
	"sync"
)

// defaultTrackerSize bounds the sliding window of response time samples.
const defaultTrackerSize = 1000

// Tracker keeps a bounded FIFO of duration samples in milliseconds and
// answers aggregate queries over the current window.
type Tracker struct {
	mu      sync.Mutex
	samples []float64
	max     int
	head    int
}

// NewTracker creates a tracker holding up to maxSamples entries.
// Non-positive sizes fall back to the default of 1000.
func NewTracker(maxSamples int) *Tracker {
	if maxSamples <= 0 {
		maxSamples = defaultTrackerSize
	}
	return &Tracker{samples: make([]float64, 0, maxSamples), max: maxSamples}
}

// Record appends a sample, dropping the oldest when the window is full.
func (t *Tracker) Record(ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < t.max {
		t.samples = append(t.samples, ms)
		return
	}
	t.samples[t.head] = ms
	t.head = (t.head + 1) % t.max
}

// Average returns the arithmetic mean of the window, or 0 when empty.
func (t *Tracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s
	}
	return sum / float64(len(t.samples))
}

// Percentile returns the p-th percentile (0..100) over a sorted copy of
// the window, or 0 when empty.
func (t *Tracker) Percentile(p float64) float64 {
	t.mu.Lock()
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	t.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)

	idx := int(math.Round(p / 100 * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Min returns the smallest sample in the window, or 0 when empty.
func (t *Tracker) Min() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	min := t.samples[0]
	for _, s := range t.samples[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

// Max returns the largest sample in the window, or 0 when empty.
func (t *Tracker) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	max := t.samples[0]
	for _, s := range t.samples[1:] {
		if s > max {
			max = s
		}
	}
	return max
}

// Count returns the number of samples currently in the window.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}
