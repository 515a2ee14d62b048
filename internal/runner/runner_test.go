package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/scenario"
	"inferload/internal/stats"
)

func shortRunConfig(endpoint string) config.TestConfig {
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.ModelName = "test-model"
	cfg.APIKey = "sk-test"
	cfg.ConcurrentUsers = 3
	cfg.TestDurationSeconds = 1
	cfg.ThinkTimeMinSeconds = 0.05
	cfg.ThinkTimeMaxSeconds = 0.1
	cfg.ShutdownGraceSeconds = 2
	cfg.MaxContextTokens = 2000
	cfg.Seed = 42
	return cfg
}

func TestCoordinatorRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatJSON("All good here.", 7))
	}))
	defer srv.Close()

	updates := make(stats.SnapshotChan, 100)
	c, err := New(shortRunConfig(srv.URL), scenario.Builtin(), Options{Updates: updates})
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.GreaterOrEqual(t, len(rep.Results), 3, "each user should complete at least one request")
	assert.Equal(t, len(rep.Results), rep.Summary.TotalRequests)
	assert.Equal(t, len(rep.Results), rep.Summary.Successful)
	assert.InDelta(t, 100.0, rep.Summary.SuccessRate, 1e-9)

	seenUsers := map[int]bool{}
	for _, o := range rep.Results {
		assert.Equal(t, report.StatusSuccess, o.Status)
		assert.Zero(t, o.Retries)
		assert.GreaterOrEqual(t, o.UserID, 0)
		assert.Less(t, o.UserID, 3)
		assert.NotEmpty(t, o.Scenario)
		assert.Positive(t, o.ContextTokens)
		seenUsers[o.UserID] = true
	}
	assert.Len(t, seenUsers, 3, "every simulated user should have run")

	require.NotNil(t, rep.Summary.Latency)
	assert.Less(t, rep.Summary.Latency.P95, 0.5)
	assert.Positive(t, rep.Summary.Throughput.RequestsPerSecond)

	// Pre-flight check is first in the health timeline.
	require.NotEmpty(t, rep.HealthChecks)
	assert.True(t, rep.HealthChecks[0].Healthy)
	assert.Equal(t, report.HealthHealthy, rep.Summary.EndpointHealth.FinalStatus)

	want := len(rep.Results)
	if want > maxSamples {
		want = maxSamples
	}
	assert.Len(t, rep.ResponseSamples, want)

	assert.Equal(t, "***", rep.Config.APIKey)
	assert.NotEmpty(t, updates, "progress snapshots should have been pushed")
}

func TestCoordinatorEveryDispatchGetsOneOutcome(t *testing.T) {
	var loadHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == probeMaxTokens {
			fmt.Fprint(w, chatJSON("OK", 2))
			return
		}
		atomic.AddInt32(&loadHits, 1)
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, chatJSON("slow but steady", 4))
	}))
	defer srv.Close()

	cfg := shortRunConfig(srv.URL)
	cfg.ConcurrentUsers = 2
	c, err := New(cfg, scenario.Builtin(), Options{})
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	// One hit per outcome: requests in flight at the deadline finish inside
	// the grace window and are still recorded.
	assert.Equal(t, int(atomic.LoadInt32(&loadHits)), len(rep.Results))
	for _, o := range rep.Results {
		assert.Equal(t, report.StatusSuccess, o.Status)
	}
}

func TestCoordinatorProbeFailuresLeaveSessionsUnaffected(t *testing.T) {
	// Pre-flight passes and every later probe gets a 500 while load
	// requests keep succeeding.
	var probeHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == probeMaxTokens {
			if atomic.AddInt32(&probeHits, 1) == 1 {
				fmt.Fprint(w, chatJSON("OK", 2))
			} else {
				http.Error(w, "probe down", http.StatusInternalServerError)
			}
			return
		}
		fmt.Fprint(w, chatJSON("still serving", 5))
	}))
	defer srv.Close()

	cfg := shortRunConfig(srv.URL)
	cfg.ConcurrentUsers = 2
	cfg.TestDurationSeconds = 4
	cfg.HealthCheckIntervalSeconds = 1
	c, err := New(cfg, scenario.Builtin(), Options{})
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	require.NoError(t, err, "failing probes must not fail the run")

	require.NotEmpty(t, rep.Results)
	seenUsers := map[int]bool{}
	for _, o := range rep.Results {
		assert.Equal(t, report.StatusSuccess, o.Status)
		assert.Zero(t, o.Retries)
		seenUsers[o.UserID] = true
	}
	assert.Len(t, seenUsers, 2, "both users should keep issuing requests")

	// Timeline: healthy pre-flight first, then the failing periodic probes.
	require.GreaterOrEqual(t, len(rep.HealthChecks), 3, "periodic probes should have fired")
	assert.True(t, rep.HealthChecks[0].Healthy)
	for _, hc := range rep.HealthChecks[1:] {
		assert.False(t, hc.Healthy)
		assert.Equal(t, report.HealthUnhealthy, hc.Status)
		assert.Equal(t, http.StatusInternalServerError, hc.HTTPStatus)
	}
	assert.Equal(t, report.HealthUnhealthy, rep.Summary.EndpointHealth.FinalStatus)
	assert.GreaterOrEqual(t, rep.Summary.EndpointHealth.UnhealthyChecks, 2)
}

func TestCoordinatorPreflightAbort(t *testing.T) {
	t.Run("unhealthy endpoint", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := New(shortRunConfig(srv.URL), scenario.Builtin(), Options{})
		require.NoError(t, err)

		rep, err := c.Run(context.Background())
		assert.Nil(t, rep)

		var pf *PreflightError
		require.ErrorAs(t, err, &pf)
		assert.Equal(t, http.StatusInternalServerError, pf.Status)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "no load before a healthy pre-flight")
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c, err := New(shortRunConfig(srv.URL), scenario.Builtin(), Options{})
		require.NoError(t, err)

		rep, err := c.Run(context.Background())
		assert.Nil(t, rep)

		var pf *PreflightError
		require.ErrorAs(t, err, &pf)
		assert.Zero(t, pf.Status)
		assert.NotNil(t, pf.Unwrap())
	})
}

func TestCoordinatorRateCapWiring(t *testing.T) {
	cfg := shortRunConfig("http://localhost:1")
	c, err := New(cfg, scenario.Builtin(), Options{})
	require.NoError(t, err)
	assert.Nil(t, c.limiter, "no cap configured")

	cfg.MaxRequestsPerSecond = 50
	c, err = New(cfg, scenario.Builtin(), Options{})
	require.NoError(t, err)
	assert.NotNil(t, c.limiter, "cap should build the shared limiter")
}

func TestCoordinatorRejectsUnknownEngine(t *testing.T) {
	cfg := shortRunConfig("http://localhost:1")
	cfg.HTTPEngine = "carrier-pigeon"
	_, err := New(cfg, scenario.Builtin(), Options{})
	require.Error(t, err)
}
