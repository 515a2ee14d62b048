package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/scenario"
	"inferload/internal/stats"
	"inferload/internal/transport"
)

func newRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func chatJSON(content string, completionTokens int) string {
	return fmt.Sprintf(
		`{"choices":[{"message":{"role":"assistant","content":%q}}],"usage":{"prompt_tokens":12,"completion_tokens":%d,"total_tokens":%d}}`,
		content, completionTokens, completionTokens+12)
}

func newTestExecutor(t *testing.T, endpoint string, mutate func(*config.TestConfig)) (*Executor, *stats.Tracker) {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.ModelName = "test-model"
	cfg.APIKey = "sk-test"
	cfg.MaxRetries = 2
	cfg.RequestTimeoutSeconds = 5
	cfg.BackoffBaseSeconds = 0.001
	cfg.BackoffMaxSeconds = 0.01
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := transport.New("std", transport.Options{MaxConns: 4})
	require.NoError(t, err)
	tracker := stats.NewTracker()
	return NewExecutor(cfg, client, clock.New(), tracker, zap.NewNop()), tracker
}

func testJob() Job {
	tmpl := scenario.Builtin().All()[0]
	return Job{
		UserID:       3,
		Scenario:     tmpl,
		Prompt:       "Summarize the quarterly report in two sentences.",
		TargetTokens: 1200,
	}
}

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	type captured struct {
		auth        string
		contentType string
		req         chatRequest
	}
	var attempts int32
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		var c captured
		c.auth = r.Header.Get("Authorization")
		c.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&c.req)
		seen <- c
		fmt.Fprint(w, chatJSON("The quarter closed ahead of plan.", 18))
	}))
	defer srv.Close()

	exec, tracker := newTestExecutor(t, srv.URL, nil)
	job := testJob()
	out := exec.Do(context.Background(), job, newRng(1))

	assert.Equal(t, report.StatusSuccess, out.Status)
	assert.True(t, out.Success())
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, 0, out.Retries)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, 3, out.UserID)
	assert.Equal(t, job.Scenario.QualifiedName(), out.Scenario)
	assert.Equal(t, 1200, out.ContextTokens)
	assert.Equal(t, 18, out.TokensReceived)
	assert.Equal(t, scenario.EstimateTokens(job.Prompt), out.TokensSent)
	assert.Equal(t, "The quarter closed ahead of plan.", out.ResponseExcerpt)
	assert.Empty(t, out.Error)
	assert.Greater(t, out.ElapsedSeconds, 0.0)

	got := <-seen
	assert.Equal(t, "Bearer sk-test", got.auth)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "test-model", got.req.Model)
	require.Len(t, got.req.Messages, 1)
	assert.Equal(t, "user", got.req.Messages[0].Role)
	assert.Equal(t, job.Prompt, got.req.Messages[0].Content)
	assert.Equal(t, 500, got.req.MaxTokens)
	assert.InDelta(t, 0.7, got.req.Temperature, 1e-9)

	snap := tracker.Snapshot()
	assert.Equal(t, uint64(1), snap.Dispatched)
	assert.Equal(t, uint64(1), snap.Completed)
	assert.Equal(t, uint64(1), snap.Success)
	assert.Equal(t, int64(0), snap.InFlight)
}

func TestExecutorRetriesTransientThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatJSON("recovered", 5))
	}))
	defer srv.Close()

	exec, tracker := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusSuccess, out.Status)
	assert.Equal(t, 2, out.Retries)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Empty(t, out.Error)
	assert.Equal(t, "recovered", out.ResponseExcerpt)

	snap := tracker.Snapshot()
	assert.Equal(t, uint64(2), snap.Retries)
	assert.Equal(t, uint64(1), snap.Completed)
}

func TestExecutorClientErrorIsTerminal(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusClientError, out.Status)
	assert.Equal(t, http.StatusNotFound, out.HTTPStatus)
	assert.Equal(t, 0, out.Retries)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.True(t, strings.HasPrefix(out.Error, "HTTP 404:"), out.Error)
}

func TestExecutorRetryExhaustion(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "still overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusServerError, out.Status)
	assert.Equal(t, 2, out.Retries)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Contains(t, out.Error, "HTTP 503")
}

func TestExecutorRateLimitIsTransient(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatJSON("ok now", 3))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusSuccess, out.Status)
	assert.Equal(t, 1, out.Retries)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestExecutorPlainBodySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusSuccess, out.Status)
	assert.Equal(t, 0, out.TokensReceived)
	assert.Equal(t, "pong", out.ResponseExcerpt)
}

func TestExecutorDeadlineReadsAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, chatJSON("too late", 1))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, func(cfg *config.TestConfig) {
		cfg.MaxRetries = 0
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := exec.Do(ctx, testJob(), newRng(1))

	assert.Equal(t, report.StatusTimeout, out.Status)
	assert.Equal(t, "request timeout", out.Error)
	assert.Equal(t, 0, out.Retries)
	assert.Zero(t, out.HTTPStatus)
}

func TestExecutorCanceledContextReadsAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatJSON("unreachable", 1))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := exec.Do(ctx, testJob(), newRng(1))

	assert.Equal(t, report.StatusTimeout, out.Status)
	assert.Equal(t, 0, out.Retries)
}

func TestExecutorElapsedExcludesBackoff(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatJSON("ok", 2))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, func(cfg *config.TestConfig) {
		cfg.BackoffBaseSeconds = 0.2
		cfg.BackoffMaxSeconds = 0.4
	})

	start := time.Now()
	out := exec.Do(context.Background(), testJob(), newRng(1))
	wall := time.Since(start)

	assert.Equal(t, report.StatusSuccess, out.Status)
	assert.GreaterOrEqual(t, wall, 200*time.Millisecond, "backoff did not happen")
	assert.Less(t, out.ElapsedSeconds, 0.15, "elapsed must not include the backoff wait")
}

func TestExecutorErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 5000), http.StatusBadRequest)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, srv.URL, nil)
	out := exec.Do(context.Background(), testJob(), newRng(1))

	assert.Equal(t, report.StatusClientError, out.Status)
	assert.LessOrEqual(t, len(out.Error), len("HTTP 400: ")+errorWidth)
}
