package runner

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/stats"
	"inferload/internal/transport"
)

const (
	// initialProbeDelay is the pause before the first periodic probe.
	initialProbeDelay = 2 * time.Second
	probePrompt       = "Reply with OK if you can read this."
	probeMaxTokens    = 10
	probeWidth        = 200
)

// Probe checks endpoint liveness on a fixed cadence, independent of user
// traffic. Probe requests are never retried and a failing probe never stops
// the run; results are recorded for the report's health timeline.
type Probe struct {
	cfg       config.TestConfig
	client    transport.Client
	clock     clock.Clock
	tracker   *stats.Tracker
	collector *Collector
	log       *zap.Logger
	target    string
	headers   map[string]string
	started   time.Time
}

func NewProbe(cfg config.TestConfig, client transport.Client, clk clock.Clock, tracker *stats.Tracker, collector *Collector, log *zap.Logger) *Probe {
	return &Probe{
		cfg:       cfg,
		client:    client,
		clock:     clk,
		tracker:   tracker,
		collector: collector,
		log:       log,
		target:    cfg.ChatCompletionsURL(),
		headers:   authHeaders(cfg),
	}
}

// markStart anchors the timeline offsets to the run start.
func (p *Probe) markStart(t time.Time) {
	p.started = t
}

// Check performs one probe round trip and records the observation. Only a
// literal 200 counts as healthy.
func (p *Probe) Check(ctx context.Context) report.HealthCheck {
	body := buildChatBody(p.cfg.ModelName, probePrompt, probeMaxTokens, 0.0)
	resp, err := p.client.Send(ctx, &transport.Request{
		Target:  p.target,
		Headers: p.headers,
		Body:    body,
		Timeout: p.cfg.HealthCheckTimeout(),
	})

	hc := report.HealthCheck{
		Timestamp:      time.Now(),
		ElapsedSeconds: int(time.Since(p.started).Seconds()),
		ActiveRequests: int(p.tracker.InFlight()),
	}
	switch {
	case err != nil:
		hc.Status = report.HealthError
		hc.Error = truncate(err.Error(), probeWidth)
	case resp.StatusCode == http.StatusOK:
		hc.Status = report.HealthHealthy
		hc.Healthy = true
		hc.HTTPStatus = resp.StatusCode
		content, _, ok := parseChatResponse(resp.Body)
		if !ok {
			content = string(resp.Body)
		}
		hc.Response = truncate(content, probeWidth)
	default:
		hc.Status = report.HealthUnhealthy
		hc.HTTPStatus = resp.StatusCode
		hc.Response = truncate(string(resp.Body), probeWidth)
	}

	p.collector.AddHealth(hc)
	p.tracker.RecordHealth(hc.Healthy)

	if hc.Healthy {
		p.log.Info("health check passed",
			zap.Int("elapsed_s", hc.ElapsedSeconds),
			zap.Int("active_requests", hc.ActiveRequests))
	} else {
		p.log.Warn("health check failed",
			zap.Int("elapsed_s", hc.ElapsedSeconds),
			zap.Int("active_requests", hc.ActiveRequests),
			zap.Int("http_status", hc.HTTPStatus),
			zap.String("error", hc.Error))
	}
	return hc
}

// Run probes until ctx is done: once shortly after start, then on a fixed
// ticker cadence unaffected by how long each probe takes.
func (p *Probe) Run(ctx context.Context) {
	if sleepCtx(ctx, p.clock, initialProbeDelay) != nil {
		return
	}
	p.Check(ctx)

	t := p.clock.Ticker(p.cfg.HealthCheckInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Check(ctx)
		}
	}
}
