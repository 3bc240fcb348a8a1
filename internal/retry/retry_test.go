package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// throttleError mimics a provider rate-limit error carrying a status code
// and a retry-after hint.
type throttleError struct {
	status     int
	retryAfter time.Duration
}

func (e *throttleError) Error() string             { return "quota exhausted" }
func (e *throttleError) StatusCode() int           { return e.status }
func (e *throttleError) RetryAfter() time.Duration { return e.retryAfter }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	observed := 0

	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Second, BackoffFactor: 2}, func() error {
		calls++
		return nil
	}, func(int, error) { observed++ })

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, observed, "observer must not fire without a retry")
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	var attempts []int

	err := Do(context.Background(), Config{MaxAttempts: 4, Delay: time.Millisecond, BackoffFactor: 2}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) {
		attempts = append(attempts, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts, "observer sees 1-based attempts that failed")
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("model unavailable")
	calls := 0

	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond, BackoffFactor: 1}, func() error {
		calls++
		return boom
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, boom, "last error stays on the chain")
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestDoSingleAttemptDoesNotWait(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 1, Delay: 2 * time.Second, BackoffFactor: 2}, func() error {
		return errors.New("nope")
	}, func(int, error) {
		t.Error("observer must not fire when no wait happens")
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDoBackoffGrows(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: 20 * time.Millisecond, BackoffFactor: 2}, func() error {
		return errors.New("transient")
	}, nil)

	require.Error(t, err)
	// Two waits: 20ms then 40ms.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestDoRateLimitHonorsHint(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: 5 * time.Millisecond, BackoffFactor: 2}, func() error {
		calls++
		if calls == 1 {
			return &throttleError{status: 429, retryAfter: 90 * time.Millisecond}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "hint outranks doubled delay")
}

func TestDoRateLimitDoublesDelayWithoutHint(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: 40 * time.Millisecond, BackoffFactor: 2}, func() error {
		calls++
		if calls == 1 {
			return errors.New("got 429 from upstream")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDoContextCancelAbortsWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, Config{MaxAttempts: 3, Delay: 5 * time.Second, BackoffFactor: 2}, func() error {
		return errors.New("transient")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "wait must abort on cancellation")
}

func TestDoObserverPanicIsSwallowed(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: time.Millisecond, BackoffFactor: 1}, func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, func(int, error) {
		panic("listener bug")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status code", &throttleError{status: 429}, true},
		{"wrapped status code", fmt.Errorf("detect: %w", &throttleError{status: 429}), true},
		{"message 429", errors.New("upstream returned 429"), true},
		{"message rate limit", errors.New("Rate Limit exceeded"), true},
		{"message too many requests", errors.New("Too Many Requests"), true},
		{"plain failure", errors.New("connection refused"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRateLimit(tc.err))
		})
	}
}
