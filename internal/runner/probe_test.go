package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/stats"
	"inferload/internal/transport"
)

func newTestProbe(t *testing.T, endpoint string, clk clock.Clock) (*Probe, *Collector) {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.ModelName = "test-model"
	cfg.HealthCheckIntervalSeconds = 30
	cfg.HealthCheckTimeoutSeconds = 2

	client, err := transport.New("std", transport.Options{MaxConns: 2})
	require.NoError(t, err)
	collector := NewCollector()
	p := NewProbe(cfg, client, clk, stats.NewTracker(), collector, zap.NewNop())
	p.markStart(time.Now())
	return p, collector
}

func TestProbeCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatJSON("OK", 2))
	}))
	defer srv.Close()

	p, collector := newTestProbe(t, srv.URL, clock.New())
	hc := p.Check(context.Background())

	assert.True(t, hc.Healthy)
	assert.Equal(t, report.HealthHealthy, hc.Status)
	assert.Equal(t, http.StatusOK, hc.HTTPStatus)
	assert.Equal(t, "OK", hc.Response)
	assert.Empty(t, hc.Error)

	_, health, _ := collector.Snapshot()
	require.Len(t, health, 1)
	assert.Equal(t, hc.Status, health[0].Status)
}

func TestProbeCheckUnhealthyStatus(t *testing.T) {
	// Anything but a literal 200 is unhealthy, even other 2xx.
	for _, code := range []int{http.StatusAccepted, http.StatusServiceUnavailable, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			fmt.Fprint(w, "nope")
		}))

		p, _ := newTestProbe(t, srv.URL, clock.New())
		hc := p.Check(context.Background())
		srv.Close()

		assert.False(t, hc.Healthy, "status %d", code)
		assert.Equal(t, report.HealthUnhealthy, hc.Status, "status %d", code)
		assert.Equal(t, code, hc.HTTPStatus)
	}
}

func TestProbeCheckConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p, _ := newTestProbe(t, srv.URL, clock.New())
	hc := p.Check(context.Background())

	assert.False(t, hc.Healthy)
	assert.Equal(t, report.HealthError, hc.Status)
	assert.NotEmpty(t, hc.Error)
	assert.Zero(t, hc.HTTPStatus)
}

func TestProbeRunCadence(t *testing.T) {
	var checks int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&checks, 1)
		fmt.Fprint(w, chatJSON("OK", 2))
	}))
	defer srv.Close()

	clk := clock.NewMock()
	p, collector := newTestProbe(t, srv.URL, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Advance the mock clock in small steps until the count is reached;
	// stepping sidesteps the race between Add and the loop parking on its
	// timer.
	advanceUntil := func(n int32) {
		t.Helper()
		require.Eventually(t, func() bool {
			clk.Add(time.Second)
			return atomic.LoadInt32(&checks) >= n
		}, 5*time.Second, time.Millisecond, "never reached %d checks", n)
	}

	// Nothing happens until mock time moves.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&checks))

	advanceUntil(1)
	advanceUntil(2)
	advanceUntil(3)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probe loop did not stop on cancel")
	}

	_, health, _ := collector.Snapshot()
	assert.GreaterOrEqual(t, len(health), 3)
}
