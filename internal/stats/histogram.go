package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SafeHistogram guards an hdrhistogram for concurrent recording from the
// session goroutines while the progress loop reads quantiles.
type SafeHistogram struct {
	mu   sync.RWMutex
	hist *hdrhistogram.Histogram
}

// NewSafeHistogram tracks values from 1us to 10min at 3 significant figures,
// wide enough for any per-request latency the executor can record.
func NewSafeHistogram() *SafeHistogram {
	return &SafeHistogram{
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// RecordValue records one latency in microseconds.
func (h *SafeHistogram) RecordValue(v int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(v)
}

func (h *SafeHistogram) ValueAtQuantile(q float64) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist.ValueAtQuantile(q)
}

func (h *SafeHistogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist.Mean()
}

func (h *SafeHistogram) Min() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist.Min()
}

func (h *SafeHistogram) Max() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist.Max()
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist.TotalCount()
}
