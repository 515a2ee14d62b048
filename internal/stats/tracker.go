package stats

import (
	"context"
	"sync/atomic"
	"time"
)

// Tracker holds the live counters the progress loop and the optional
// Prometheus endpoint read while the test is running. The authoritative
// per-request records live in the coordinator's collections; the tracker is
// cheap, lossy-snapshot instrumentation only.
type Tracker struct {
	dispatched     uint64
	completed      uint64
	success        uint64
	clientErrors   uint64
	serverErrors   uint64
	timeouts       uint64
	transportFails uint64
	retries        uint64
	attempts       uint64
	tokensSent     uint64
	tokensReceived uint64
	inflight       int64

	healthOK   uint64
	healthFail uint64

	start time.Time

	// Latency over successful requests (microseconds).
	Latency *SafeHistogram

	prom *promMetrics
}

func NewTracker() *Tracker {
	return &Tracker{
		start:   time.Now(),
		Latency: NewSafeHistogram(),
	}
}

// RequestStarted marks one logical request dispatched and in flight.
func (t *Tracker) RequestStarted() {
	atomic.AddUint64(&t.dispatched, 1)
	atomic.AddInt64(&t.inflight, 1)
	if t.prom != nil {
		t.prom.inflight.Inc()
	}
}

// RecordAttempt counts one HTTP attempt (first try or retry).
func (t *Tracker) RecordAttempt() {
	atomic.AddUint64(&t.attempts, 1)
	if t.prom != nil {
		t.prom.attempts.Inc()
	}
}

// RecordRetry counts one scheduled retry.
func (t *Tracker) RecordRetry() {
	atomic.AddUint64(&t.retries, 1)
	if t.prom != nil {
		t.prom.retries.Inc()
	}
}

// RecordOutcome finalizes one logical request. The status strings are the
// report package's outcome statuses.
func (t *Tracker) RecordOutcome(status string, elapsed time.Duration, tokensSent, tokensReceived int) {
	atomic.AddUint64(&t.completed, 1)
	atomic.AddInt64(&t.inflight, -1)
	atomic.AddUint64(&t.tokensSent, uint64(tokensSent))
	atomic.AddUint64(&t.tokensReceived, uint64(tokensReceived))

	switch status {
	case "success":
		atomic.AddUint64(&t.success, 1)
		t.Latency.RecordValue(elapsed.Microseconds())
	case "client_error":
		atomic.AddUint64(&t.clientErrors, 1)
	case "server_error":
		atomic.AddUint64(&t.serverErrors, 1)
	case "timeout":
		atomic.AddUint64(&t.timeouts, 1)
	default:
		atomic.AddUint64(&t.transportFails, 1)
	}

	if t.prom != nil {
		t.prom.inflight.Dec()
		t.prom.requests.WithLabelValues(status).Inc()
		if status == "success" {
			t.prom.latency.Observe(elapsed.Seconds())
		}
		t.prom.tokens.WithLabelValues("sent").Add(float64(tokensSent))
		t.prom.tokens.WithLabelValues("received").Add(float64(tokensReceived))
	}
}

// RecordHealth counts one probe result.
func (t *Tracker) RecordHealth(healthy bool) {
	if healthy {
		atomic.AddUint64(&t.healthOK, 1)
	} else {
		atomic.AddUint64(&t.healthFail, 1)
	}
	if t.prom != nil {
		t.prom.health.WithLabelValues(healthLabel(healthy)).Inc()
	}
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// InFlight is the number of logical requests currently executing.
func (t *Tracker) InFlight() int64 {
	return atomic.LoadInt64(&t.inflight)
}

// Snapshot is one copy of the live counters, cheap enough to push a few
// times a second.
type Snapshot struct {
	Elapsed        time.Duration
	Dispatched     uint64
	Completed      uint64
	Success        uint64
	Failed         uint64
	Retries        uint64
	InFlight       int64
	TokensSent     uint64
	TokensReceived uint64

	P50Ms float64
	P95Ms float64
	P99Ms float64
	MinMs float64
	MaxMs float64
}

// SnapshotChan carries snapshots to the progress loop.
type SnapshotChan chan Snapshot

func (t *Tracker) Snapshot() Snapshot {
	completed := atomic.LoadUint64(&t.completed)
	success := atomic.LoadUint64(&t.success)
	return Snapshot{
		Elapsed:        time.Since(t.start),
		Dispatched:     atomic.LoadUint64(&t.dispatched),
		Completed:      completed,
		Success:        success,
		Failed:         completed - success,
		Retries:        atomic.LoadUint64(&t.retries),
		InFlight:       atomic.LoadInt64(&t.inflight),
		TokensSent:     atomic.LoadUint64(&t.tokensSent),
		TokensReceived: atomic.LoadUint64(&t.tokensReceived),
		P50Ms:          float64(t.Latency.ValueAtQuantile(50)) / 1000.0,
		P95Ms:          float64(t.Latency.ValueAtQuantile(95)) / 1000.0,
		P99Ms:          float64(t.Latency.ValueAtQuantile(99)) / 1000.0,
		MinMs:          float64(t.Latency.Min()) / 1000.0,
		MaxMs:          float64(t.Latency.Max()) / 1000.0,
	}
}

// StartTickLoop pushes snapshots on updates until ctx is done. Sends are
// non-blocking; a slow consumer just misses ticks.
func (t *Tracker) StartTickLoop(ctx context.Context, interval time.Duration, updates SnapshotChan) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case updates <- t.Snapshot():
				default:
				}
			}
		}
	}()
}
