package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/scenario"
	"inferload/internal/stats"
	"inferload/internal/transport"
)

// errorWidth caps error strings carried in outcomes.
const errorWidth = 200

// excerptWidth caps response bodies carried in outcomes.
const excerptWidth = 1000

// Job is one logical request handed to the executor.
type Job struct {
	UserID       int
	Scenario     scenario.Template
	Prompt       string
	TargetTokens int
}

// Executor turns a Job into exactly one Outcome, retrying transient
// failures (429, 5xx, timeouts, connection errors) with capped exponential
// backoff. 4xx responses other than 429 are terminal on first sight.
// Executors are stateless and shared by all sessions; the per-session rng
// flows in per call.
type Executor struct {
	cfg     config.TestConfig
	client  transport.Client
	clock   clock.Clock
	tracker *stats.Tracker
	log     *zap.Logger
	target  string
	headers map[string]string
}

func NewExecutor(cfg config.TestConfig, client transport.Client, clk clock.Clock, tracker *stats.Tracker, log *zap.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		client:  client,
		clock:   clk,
		tracker: tracker,
		log:     log,
		target:  cfg.ChatCompletionsURL(),
		headers: authHeaders(cfg),
	}
}

func authHeaders(cfg config.TestConfig) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + cfg.APIKey
	}
	return h
}

// Do runs one logical request to completion. ElapsedSeconds accumulates the
// round-trip time of every attempt; backoff waits are not counted. ctx is
// the grace context: when it expires the current attempt is cut off and the
// request finalizes with whatever failure it last saw.
func (e *Executor) Do(ctx context.Context, job Job, rng *rand.Rand) report.Outcome {
	e.tracker.RequestStarted()

	body := buildChatBody(e.cfg.ModelName, job.Prompt, e.cfg.MaxResponseTokens, e.cfg.Temperature)

	out := report.Outcome{
		UserID:        job.UserID,
		Scenario:      job.Scenario.QualifiedName(),
		Category:      string(job.Scenario.Category),
		ContextTokens: job.TargetTokens,
		TokensSent:    scenario.EstimateTokens(job.Prompt),
	}

	var elapsed time.Duration
	attempt := 0
	for {
		out.Retries = attempt
		e.tracker.RecordAttempt()

		start := time.Now()
		resp, err := e.client.Send(ctx, &transport.Request{
			Target:  e.target,
			Headers: e.headers,
			Body:    body,
			Timeout: e.cfg.RequestTimeout(),
		})
		elapsed += time.Since(start)

		terminal, retryAfter := e.classify(resp, err, &out)
		if terminal {
			break
		}
		if attempt >= e.cfg.MaxRetries || ctx.Err() != nil {
			break
		}

		e.tracker.RecordRetry()
		delay := backoffDelay(e.cfg.BackoffBase(), e.cfg.BackoffMax(), attempt, retryAfter, rng)
		e.log.Warn("transient failure, backing off",
			zap.Int("user", job.UserID),
			zap.Int("retry", attempt+1),
			zap.Int("max_retries", e.cfg.MaxRetries),
			zap.String("error", out.Error),
			zap.Duration("backoff", delay))
		if sleepCtx(ctx, e.clock, delay) != nil {
			break
		}
		attempt++
	}

	out.ElapsedSeconds = elapsed.Seconds()
	out.Timestamp = time.Now()
	e.tracker.RecordOutcome(out.Status, elapsed, out.TokensSent, out.TokensReceived)
	return out
}

// classify writes the attempt's result into out and reports whether it is
// terminal. retryAfter is the server-requested floor for the next backoff,
// zero when absent.
func (e *Executor) classify(resp *transport.Response, err error, out *report.Outcome) (terminal bool, retryAfter time.Duration) {
	if err != nil {
		out.HTTPStatus = 0
		var terr *transport.Error
		if errors.As(err, &terr) && terr.Timeout {
			out.Status = report.StatusTimeout
			out.Error = "request timeout"
		} else {
			out.Status = report.StatusTransportError
			out.Error = truncate(err.Error(), errorWidth)
		}
		return false, 0
	}

	out.HTTPStatus = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		out.Status = report.StatusSuccess
		out.Error = ""
		content, tokens, ok := parseChatResponse(resp.Body)
		if !ok {
			content, tokens = string(resp.Body), 0
		}
		out.TokensReceived = tokens
		out.ResponseExcerpt = truncate(content, excerptWidth)
		return true, 0

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		out.Status = report.StatusServerError
		out.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(resp.Body), errorWidth))
		if ra, ok := parseRetryAfter(resp.RetryAfter, time.Now()); ok {
			retryAfter = ra
		}
		return false, retryAfter

	default:
		// Remaining 4xx (and stray 1xx/3xx): the request itself is wrong,
		// retrying cannot fix it.
		out.Status = report.StatusClientError
		out.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(resp.Body), errorWidth))
		return true, 0
	}
}
