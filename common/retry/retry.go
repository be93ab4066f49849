// Package retry re-runs calls to flaky external services (image inference,
// MQTT broker connects) with exponential backoff.
//
// A call can shape the schedule through its error: Permanent stops retrying,
// After asks for a specific wait (a Retry-After header, a model warm-up
// estimate). Hinted waits are still capped by Config.MaxDelay.
//
//	err := retry.Do(ctx, retry.DefaultConfig, func() error {
//	    return bridge.Connect(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls the schedule.
type Config struct {
	// MaxAttempts counts every call, the first included. Values below 1
	// mean a single call.
	MaxAttempts int
	// InitialDelay is the first backoff; each later one doubles.
	InitialDelay time.Duration
	// MaxDelay caps every wait, hinted ones included.
	MaxDelay time.Duration
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits calls that finish within seconds.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
// Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type hintedError struct {
	err  error
	wait time.Duration
}

func (h *hintedError) Error() string { return h.err.Error() }
func (h *hintedError) Unwrap() error { return h.err }

// After marks err as retryable after wait instead of the backoff delay.
// A non-positive wait leaves the backoff unchanged. After(nil, d) is nil.
func After(err error, wait time.Duration) error {
	if err == nil {
		return nil
	}
	return &hintedError{err: err, wait: wait}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx ends or
// MaxAttempts is spent. The last error is returned; after cancellation it is
// joined with ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialDelay
	if backoff <= 0 {
		backoff = DefaultConfig.InitialDelay
	}
	ceiling := cfg.MaxDelay
	if ceiling <= 0 {
		ceiling = DefaultConfig.MaxDelay
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}
		last = fn()
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt == attempts {
			return last
		}

		wait := backoff
		var hint *hintedError
		if errors.As(last, &hint) && hint.wait > 0 {
			wait = hint.wait
		}
		wait = min(wait, ceiling)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, last, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(last, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, ceiling)
	}
}
