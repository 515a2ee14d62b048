package runner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/scenario"
	"inferload/internal/stats"
	"inferload/internal/transport"
)

// snapshotInterval is how often live counters are pushed to the progress
// loop.
const snapshotInterval = 200 * time.Millisecond

// extraConns is headroom on top of one pooled connection per user.
const extraConns = 10

// Options inject test doubles; zero values select production defaults.
type Options struct {
	Client  transport.Client
	Clock   clock.Clock
	Logger  *zap.Logger
	Updates stats.SnapshotChan
}

// Coordinator owns the run: N sessions, one probe, the shared collections
// and the global test window.
type Coordinator struct {
	RunID   string
	Tracker *stats.Tracker

	cfg       config.TestConfig
	catalog   *scenario.Catalog
	client    transport.Client
	clock     clock.Clock
	log       *zap.Logger
	updates   stats.SnapshotChan
	collector *Collector
	exec      *Executor
	probe     *Probe
	limiter   ratelimit.Limiter
	started   time.Time
}

func New(cfg config.TestConfig, catalog *scenario.Catalog, opts Options) (*Coordinator, error) {
	client := opts.Client
	if client == nil {
		var err error
		client, err = transport.New(cfg.HTTPEngine, transport.Options{
			MaxConns:  cfg.ConcurrentUsers + extraConns,
			VerifySSL: cfg.VerifySSL,
		})
		if err != nil {
			return nil, err
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	updates := opts.Updates
	if updates == nil {
		// Avoid nil sends; snapshots are dropped when nobody listens.
		updates = make(stats.SnapshotChan, 10)
	}

	tracker := stats.NewTracker()
	collector := NewCollector()

	var limiter ratelimit.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	c := &Coordinator{
		RunID:     uuid.New().String(),
		Tracker:   tracker,
		cfg:       cfg,
		catalog:   catalog,
		client:    client,
		clock:     clk,
		log:       log,
		updates:   updates,
		collector: collector,
		limiter:   limiter,
	}
	c.exec = NewExecutor(cfg, client, clk, tracker, log)
	c.probe = NewProbe(cfg, client, clk, tracker, collector, log)
	return c, nil
}

// Run executes the complete test and returns the aggregated report.
//
// Sequence: synchronous pre-flight check (a failure aborts with
// PreflightError before any session starts), then N staggered sessions plus
// the probe loop, then a drain bounded by the shutdown grace window, then
// one aggregation pass over the snapshotted collections. Every dispatched
// request is guaranteed a recorded outcome.
func (c *Coordinator) Run(ctx context.Context) (*report.Report, error) {
	c.started = time.Now()
	c.probe.markStart(c.started)

	c.log.Info("starting load test",
		zap.String("run_id", c.RunID),
		zap.String("endpoint", c.cfg.Endpoint),
		zap.String("model", c.cfg.ModelName),
		zap.Int("concurrent_users", c.cfg.ConcurrentUsers),
		zap.Int("duration_s", c.cfg.TestDurationSeconds),
		zap.Int("max_context_tokens", c.cfg.MaxContextTokens),
		zap.Int("request_timeout_s", c.cfg.RequestTimeoutSeconds),
		zap.Int("max_retries", c.cfg.MaxRetries),
		zap.String("http_engine", c.cfg.HTTPEngine))

	pf := c.probe.Check(ctx)
	if !pf.Healthy {
		var cause error
		if pf.Error != "" {
			cause = errors.New(pf.Error)
		}
		return nil, &PreflightError{Status: pf.HTTPStatus, Cause: cause}
	}
	c.log.Info("pre-flight health check passed", zap.String("response", pf.Response))

	deadline := c.started.Add(c.cfg.Duration())
	runCtx, cancelRun := context.WithDeadline(ctx, deadline)
	defer cancelRun()
	graceCtx, cancelGrace := context.WithDeadline(ctx, deadline.Add(c.cfg.ShutdownGrace()))
	defer cancelGrace()

	c.Tracker.StartTickLoop(graceCtx, snapshotInterval, c.updates)

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		c.probe.Run(probeCtx)
	}()

	seed := c.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.ConcurrentUsers; i++ {
		s := &Session{
			ID:        i,
			cfg:       c.cfg,
			catalog:   c.catalog,
			exec:      c.exec,
			collector: c.collector,
			clock:     c.clock,
			limiter:   c.limiter,
			rng:       rand.New(rand.NewSource(seed + int64(i)*7919)),
			log:       c.log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(runCtx, graceCtx)
		}()
	}

	wg.Wait()
	stopProbe()
	<-probeDone

	elapsed := time.Since(c.started)
	outcomes, health, samples := c.collector.Snapshot()
	c.log.Info("load test finished",
		zap.Int("requests", len(outcomes)),
		zap.Int("health_checks", len(health)),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)))

	return report.Aggregate(c.cfg, c.RunID, c.started, elapsed, outcomes, health, samples), nil
}
