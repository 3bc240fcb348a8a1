package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config controls the executor: how many attempts to make, the base delay
// before the first retry, and the multiplier applied to the delay after
// every wait.
type Config struct {
	MaxAttempts   int
	Delay         time.Duration
	BackoffFactor float64
}

// DefaultConfig returns the executor defaults: 3 attempts, 2s base delay,
// doubling after each wait.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		Delay:         2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// normalized clamps out-of-range values so a zero Config still behaves.
func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Delay <= 0 {
		c.Delay = 2 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	return c
}

// Observer is notified before each retry wait with the 1-based number of
// the attempt that just failed and its error. Observers must not block;
// panics inside an observer are swallowed so a misbehaving callback cannot
// take down a worker.
type Observer func(attempt int, err error)

// statusCoder is implemented by errors that carry an HTTP-style status.
type statusCoder interface {
	StatusCode() int
}

// retryAfterHinter is implemented by errors that carry a server-supplied
// retry-after hint.
type retryAfterHinter interface {
	RetryAfter() time.Duration
}

// Do runs op up to cfg.MaxAttempts times. The first success wins. Between
// attempts it waits cfg.Delay scaled by cfg.BackoffFactor per elapsed wait;
// rate-limited failures instead wait the larger of twice the current delay
// and the server's retry-after hint. Waits abort promptly when ctx is
// canceled. With MaxAttempts of 1 a failure returns immediately, without
// waiting or notifying the observer.
func Do(ctx context.Context, cfg Config, op func() error, observer Observer) error {
	cfg = cfg.normalized()
	delay := cfg.Delay

	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := delay
		if IsRateLimit(err) {
			wait = delay * 2
			if hint := retryAfterHint(err); hint > wait {
				wait = hint
			}
		}

		notify(observer, attempt+1, err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, err)
}

// notify invokes the observer, isolating the caller from panics.
func notify(observer Observer, attempt int, err error) {
	if observer == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	observer(attempt, err)
}

// IsRateLimit reports whether err looks like provider rate limiting: a 429
// status on the error chain, or a message mentioning the usual throttle
// phrases.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == 429 {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// retryAfterHint extracts a positive retry-after hint from the error chain,
// or 0 when none is present.
func retryAfterHint(err error) time.Duration {
	var h retryAfterHinter
	if errors.As(err, &h) {
		if d := h.RetryAfter(); d > 0 {
			return d
		}
	}
	return 0
}
