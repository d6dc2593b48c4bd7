package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		BackoffFactor:  2.0,
		JitterFraction: 0.25,
	}
}

func TestRetrier_ClientErrorNotRetried(t *testing.T) {
	r := NewRetrier(fastRetryConfig())

	calls := 0
	attempts, err := r.Do(context.Background(), func() error {
		calls++
		return engineerr.New(engineerr.ErrorCategoryValidation, "consensus", "resolve", "interval out of range")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "validation errors must be attempted exactly once")
	assert.Equal(t, 1, attempts)
}

func TestRetrier_TransientErrorRetriedThenSucceeds(t *testing.T) {
	r := NewRetrier(fastRetryConfig())

	calls := 0
	attempts, err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("server error: status 503")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_TransientErrorExhausted(t *testing.T) {
	r := NewRetrier(fastRetryConfig())

	calls := 0
	attempts, err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "retry exhausted")
}

func TestRetrier_DelayGrowsAndIsCapped(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       300 * time.Millisecond,
		BackoffFactor:  2.0,
		JitterFraction: 0.25,
	})

	// attempt 0 -> ~100ms, attempt 1 -> ~200ms, attempt 3 -> capped ~300ms
	d0 := r.Delay(0)
	assert.GreaterOrEqual(t, d0, 75*time.Millisecond)
	assert.LessOrEqual(t, d0, 125*time.Millisecond)

	d3 := r.Delay(3)
	assert.LessOrEqual(t, d3, 375*time.Millisecond)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   time.Second,
		MaxDelay:       time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.25,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Do(ctx, func() error {
		return errors.New("timeout talking to exchange")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
