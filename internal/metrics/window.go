package metrics

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Window keeps the most recent request latencies in a fixed-size ring buffer
// plus lifetime counters. Percentiles are computed on read.
type Window struct {
	mu      sync.Mutex
	samples []float64 // milliseconds
	next    int
	full    bool
	status  map[int]uint64

	requests atomic.Uint64
	denials  atomic.Uint64
}

// WindowSnapshot is a point-in-time copy of a Window.
type WindowSnapshot struct {
	P50Ms         float64           `json:"p50_ms"`
	P95Ms         float64           `json:"p95_ms"`
	Samples       int               `json:"samples"`
	RequestsTotal uint64            `json:"requests_total"`
	Denials       uint64            `json:"denials"`
	StatusCounts  map[string]uint64 `json:"status_counts"`
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		samples: make([]float64, size),
		status:  make(map[int]uint64),
	}
}

// Observe records one completed request.
func (w *Window) Observe(d time.Duration, status int) {
	w.requests.Add(1)
	ms := float64(d) / float64(time.Millisecond)

	w.mu.Lock()
	w.samples[w.next] = ms
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
	w.status[status]++
	w.mu.Unlock()
}

// Deny counts a request refused at the boundary.
func (w *Window) Deny() {
	w.denials.Add(1)
}

func (w *Window) Snapshot() WindowSnapshot {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	sorted := make([]float64, n)
	copy(sorted, w.samples[:n])
	counts := make(map[string]uint64, len(w.status))
	for code, c := range w.status {
		counts[strconv.Itoa(code)] = c
	}
	w.mu.Unlock()

	sort.Float64s(sorted)
	return WindowSnapshot{
		P50Ms:         Percentile(sorted, 0.50),
		P95Ms:         Percentile(sorted, 0.95),
		Samples:       n,
		RequestsTotal: w.requests.Load(),
		Denials:       w.denials.Load(),
		StatusCounts:  counts,
	}
}

// Percentile interpolates linearly between the order statistics of an
// ascending slice. p is in [0, 1]. An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
