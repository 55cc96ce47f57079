package fetch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Policy is the exponential backoff applied to transient fetch errors.
type Policy struct {
	MaxAttempts int // total attempts including the first, >= 1
	BaseDelay   time.Duration
	MaxDelay    time.Duration // 0 = uncapped
	// Jitter returns the extra delay added to a computed backoff; nil = none.
	Jitter func(time.Duration) time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: common.DefaultMaxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      ProportionalJitter(0.2),
	}
}

// ProportionalJitter adds a uniform random delay in [0, frac*d).
func ProportionalJitter(frac float64) func(time.Duration) time.Duration {
	return func(d time.Duration) time.Duration {
		span := int64(float64(d) * frac)
		if span <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(span))
	}
}

// Delay is the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter != nil {
		d += p.Jitter(d)
	}
	return d
}

// Retrying retries the wrapped fetcher on KindTransient only.
type Retrying struct {
	next   Fetcher
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

type RetryOption func(*Retrying)

// WithSleep replaces the wait between attempts (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrying) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

func NewRetrying(next Fetcher, policy Policy, logger *slog.Logger, opts ...RetryOption) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrying{next: next, policy: policy, sleep: sleepCtx, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Fetch makes at most policy.MaxAttempts calls. The returned Attempts is the
// number of calls made.
func (r *Retrying) Fetch(ctx context.Context, d entity.Descriptor) Result {
	log := common.LoggerFromContext(ctx, r.logger)
	var res Result
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		res = r.next.Fetch(ctx, d)
		res.Attempts = attempt
		if res.Kind != KindTransient {
			return res
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		delay := r.policy.Delay(attempt)
		log.Info("fetch.retry",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", res.Err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			res.Err = common.TransientFetchError("retry wait interrupted", err)
			return res
		}
	}
	log.Warn("fetch.retry.exhausted", "attempts", res.Attempts, "error", res.Err)
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
