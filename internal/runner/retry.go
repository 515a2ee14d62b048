package runner

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

// backoffDelay computes the wait before retry k (0-based count of retries
// already attempted): min(base * 2^k, ceiling) plus jitter uniform in
// [0, base/2). Keeping the jitter strictly below half the base guarantees
// successive delays below the ceiling are strictly increasing. retryAfter,
// when positive, floors the exponential term but never exceeds the ceiling.
func backoffDelay(base, ceiling time.Duration, k int, retryAfter time.Duration, rng *rand.Rand) time.Duration {
	exp := float64(base) * math.Pow(2, float64(k))
	if exp > float64(ceiling) {
		exp = float64(ceiling)
	}
	d := time.Duration(exp)
	if retryAfter > d {
		d = retryAfter
		if d > ceiling {
			d = ceiling
		}
	}
	if half := int64(base / 2); half > 0 {
		d += time.Duration(rng.Int63n(half))
	}
	return d
}

// parseRetryAfter reads a Retry-After value as delay seconds or an HTTP
// date. Absent, malformed or non-positive values report false.
func parseRetryAfter(h string, now time.Time) (time.Duration, bool) {
	if h == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(h); err == nil {
		d := t.Sub(now)
		if d <= 0 {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

// sleepCtx waits d on the injected clock, returning early with the context
// error when ctx is done first.
func sleepCtx(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
