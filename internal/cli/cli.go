package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/runner"
	"inferload/internal/scenario"
	"inferload/internal/sink"
	"inferload/internal/stats"
)

// Exit codes, stable for CI pipelines.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitPreflight = 3
)

const progressTemplate = `{{bar . "[" "█" "█" "-" "]"}} {{percent . }} {{string . "live" }}`

// BuildLogger constructs the run logger at the configured level.
func BuildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

// Run drives one headless load test end to end: console header, coordinator,
// progress bar fed by tracker snapshots, then summary, report file and
// history. The returned code is the process exit code.
func Run(cfg config.TestConfig) int {
	log, err := BuildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitConfig
	}
	defer log.Sync()

	catalog := scenario.Builtin()
	if cfg.ScenarioFile != "" {
		catalog, err = scenario.LoadFile(cfg.ScenarioFile)
		if err != nil {
			log.Error("loading scenario catalogue failed", zap.String("file", cfg.ScenarioFile), zap.Error(err))
			return ExitConfig
		}
		log.Info("loaded scenario catalogue",
			zap.String("file", cfg.ScenarioFile),
			zap.Int("scenarios", len(catalog.All())))
	}

	updates := make(stats.SnapshotChan, 100)
	coord, err := runner.New(cfg, catalog, runner.Options{Logger: log, Updates: updates})
	if err != nil {
		log.Error("building load generator failed", zap.Error(err))
		return ExitConfig
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		coord.Tracker.EnablePrometheus(reg)
		metricsSrv = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving prometheus metrics", zap.String("addr", cfg.MetricsAddr))
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutCtx)
		}()
	}

	sink.NewConsole(os.Stdout).Header(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type runResult struct {
		rep *report.Report
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		rep, err := coord.Run(ctx)
		done <- runResult{rep, err}
	}()

	total := int64(cfg.TestDurationSeconds)
	var bar *pb.ProgressBar
	var res runResult

loop:
	for {
		select {
		case snap := <-updates:
			// The first snapshot means the pre-flight check passed and the
			// test window is open.
			if bar == nil {
				bar = pb.ProgressBarTemplate(progressTemplate).Start64(total)
			}
			cur := int64(snap.Elapsed.Seconds())
			if cur > total {
				cur = total
			}
			bar.SetCurrent(cur)
			rps := 0.0
			if snap.Elapsed > 0 {
				rps = float64(snap.Completed) / snap.Elapsed.Seconds()
			}
			bar.Set("live", fmt.Sprintf(" %s | rps %.1f | ok %d | err %d | inflight %d | lat %.0f-%.0fms p95 %.0fms",
				sink.FormatElapsed(snap.Elapsed), rps, snap.Success, snap.Failed, snap.InFlight,
				snap.MinMs, snap.MaxMs, snap.P95Ms))
		case res = <-done:
			break loop
		}
	}
	if bar != nil {
		bar.SetCurrent(total)
		bar.Finish()
	}

	if res.err != nil {
		var pf *runner.PreflightError
		if errors.As(res.err, &pf) {
			log.Error("endpoint failed pre-flight check, aborting", zap.Error(res.err))
			return ExitPreflight
		}
		log.Error("load test failed", zap.Error(res.err))
		return ExitFailure
	}

	rep := res.rep
	sink.NewConsole(os.Stdout).Summary(rep)

	path, err := sink.WriteJSON(rep, cfg.ReportPath)
	if err != nil {
		log.Error("writing report failed", zap.Error(err))
		return ExitFailure
	}
	log.Info("report written", zap.String("path", path))

	if cfg.HistoryDir != "" {
		if err := saveHistory(cfg.HistoryDir, rep); err != nil {
			log.Warn("saving run history failed", zap.Error(err))
		} else {
			log.Info("run archived", zap.String("dir", cfg.HistoryDir), zap.String("run_id", rep.Summary.RunID))
		}
	}
	return ExitOK
}

func saveHistory(dir string, rep *report.Report) error {
	h, err := sink.OpenHistory(dir)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.Save(rep)
}
