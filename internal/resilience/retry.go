// Package resilience retries remote dataset requests that fail transiently:
// throttled or failing OpenFEMA responses and dropped connections.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Retry budget and backoff defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
	DefaultJitter     = 0.25
)

// Policy describes how a request is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retries.
	MaxRetries int

	// BaseDelay is the wait before the first retry. It doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including server Retry-After hints.
	MaxDelay time.Duration

	// Jitter spreads each wait by up to ±Jitter of itself.
	Jitter float64

	// Retryable reports whether err deserves another attempt. Nil uses
	// IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each wait.
	OnRetry func(retry int, wait time.Duration, err error)

	// Clock times the waits. Nil uses the wall clock.
	Clock clockwork.Clock
}

// NewPolicy returns a jittered exponential policy. A negative maxRetries
// uses DefaultMaxRetries and a non-positive baseDelay uses DefaultBaseDelay.
func NewPolicy(maxRetries int, baseDelay time.Duration) Policy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// Wait returns how long to sleep before retry n (1-based) after err. A
// Retry-After hint on err lengthens the wait; MaxDelay caps it.
func (p Policy) Wait(n int, err error) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 {
		d = math.Min(d, float64(p.MaxDelay))
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}

	wait := time.Duration(math.Max(d, 0))
	if hint := RetryAfter(err); hint > wait {
		wait = hint
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or the
// policy's retries are spent. The last error is returned unchanged, also when
// ctx ends during a wait.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var zero T
	for n := 1; ; n++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if n > p.MaxRetries || ctx.Err() != nil || !retryable(err) {
			return zero, err
		}

		wait := p.Wait(n, err)
		if p.OnRetry != nil {
			p.OnRetry(n, wait, err)
		}
		select {
		case <-ctx.Done():
			return zero, err
		case <-clock.After(wait):
		}
	}
}

// RetryLogger returns an OnRetry callback that logs each retry of op
// against host.
func RetryLogger(host, op string) func(int, time.Duration, error) {
	return func(retry int, wait time.Duration, err error) {
		zap.L().Warn("retrying request",
			zap.String("host", host),
			zap.String("operation", op),
			zap.Int("retry", retry),
			zap.Int("status", StatusCode(err)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
