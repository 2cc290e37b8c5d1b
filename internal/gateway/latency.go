package gateway

import (
	"math"
	"slices"
	"sync"
)

// LatencyTracker keeps the last N latency samples (ms) and reports
// percentiles over them. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

// NewLatencyTracker creates a tracker that holds the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds a latency sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.samples[lt.next] = ms
	lt.next++
	if lt.next == len(lt.samples) {
		lt.next = 0
		lt.filled = true
	}
	lt.mu.Unlock()
}

// Percentiles returns p50, p95, p99 in milliseconds, or zeros when empty.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := slices.Clone(lt.samples[:lt.count()])
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}

	slices.Sort(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// Count returns the number of samples held (up to capacity).
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.count()
}

func (lt *LatencyTracker) count() int {
	if lt.filled {
		return len(lt.samples)
	}
	return lt.next
}

// percentile linearly interpolates the p-th quantile (0..1) of sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
