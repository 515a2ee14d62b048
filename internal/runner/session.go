package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"inferload/internal/config"
	"inferload/internal/report"
	"inferload/internal/scenario"
)

// staggerBound caps the initial-start spread regardless of user count.
const staggerBound = 5 * time.Second

// staggerOffset delays a session's first request to break up the initial
// burst. The offset is deterministic per user id and stays below
// min(5s, 100ms * concurrentUsers).
func staggerOffset(userID, concurrentUsers int) time.Duration {
	bound := time.Duration(concurrentUsers) * 100 * time.Millisecond
	if bound > staggerBound {
		bound = staggerBound
	}
	rng := rand.New(rand.NewSource(int64(userID) + 1))
	return time.Duration(rng.Float64() * float64(bound))
}

// thinkTime draws the pause between a user's requests, uniform in
// [min, max).
func thinkTime(min, max time.Duration, rng *rand.Rand) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Float64()*float64(max-min))
}

// Session simulates one user: stagger, then loop sample/request/think until
// the run deadline.
type Session struct {
	ID        int
	cfg       config.TestConfig
	catalog   *scenario.Catalog
	exec      *Executor
	collector *Collector
	clock     clock.Clock
	limiter   ratelimit.Limiter
	rng       *rand.Rand
	log       *zap.Logger
}

// Run drives the session loop. runCtx gates new work and think-time waits;
// graceCtx bounds requests already in flight when the deadline passes. The
// loop only ever exits between logical requests.
func (s *Session) Run(runCtx, graceCtx context.Context) {
	if sleepCtx(runCtx, s.clock, staggerOffset(s.ID, s.cfg.ConcurrentUsers)) != nil {
		return
	}

	for {
		if runCtx.Err() != nil {
			return
		}
		if s.limiter != nil {
			s.limiter.Take()
			if runCtx.Err() != nil {
				return
			}
		}

		tmpl := s.catalog.Sample(s.rng, s.cfg.MCPRatio)
		target := scenario.TargetTokens(tmpl.SizeFraction, s.cfg.MaxContextTokens, s.rng)
		data := scenario.TemplateData{UserID: s.ID, UUID: uuid.New().String()}
		prompt, err := s.catalog.RenderPrompt(tmpl, data, target)
		if err != nil {
			// Only reachable with a broken custom template function; skip
			// the iteration rather than emit a bogus outcome.
			s.log.Error("prompt rendering failed",
				zap.Int("user", s.ID),
				zap.String("scenario", tmpl.QualifiedName()),
				zap.Error(err))
			if sleepCtx(runCtx, s.clock, thinkTime(s.cfg.ThinkTimeMin(), s.cfg.ThinkTimeMax(), s.rng)) != nil {
				return
			}
			continue
		}

		out := s.exec.Do(graceCtx, Job{
			UserID:       s.ID,
			Scenario:     tmpl,
			Prompt:       prompt,
			TargetTokens: target,
		}, s.rng)
		s.collector.AddOutcome(out)
		s.logOutcome(out)

		if sleepCtx(runCtx, s.clock, thinkTime(s.cfg.ThinkTimeMin(), s.cfg.ThinkTimeMax(), s.rng)) != nil {
			return
		}
	}
}

func (s *Session) logOutcome(out report.Outcome) {
	fields := []zap.Field{
		zap.Int("user", out.UserID),
		zap.String("scenario", out.Scenario),
		zap.Int("context_ktokens", out.ContextTokens/1000),
		zap.String("status", out.Status),
		zap.Float64("elapsed_s", out.ElapsedSeconds),
	}
	if out.Retries > 0 {
		fields = append(fields, zap.Int("retries", out.Retries))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}
	if out.ResponseExcerpt != "" {
		fields = append(fields, zap.String("response", truncate(out.ResponseExcerpt, 80)))
	}
	s.log.Info("request finished", fields...)
}
