package safety

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
)

// RetryConfig holds configuration for the retry policy.
type RetryConfig struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialDelay   time.Duration `json:"initial_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	BackoffFactor  float64       `json:"backoff_factor"`
	JitterFraction float64       `json:"jitter_fraction"` // +-25% by default
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       time.Minute,
		BackoffFactor:  2.0,
		JitterFraction: 0.25,
	}
}

// RetryableFunc represents a function that can be retried.
type RetryableFunc func() error

// Retrier executes operations with exponential backoff and jitter. Only
// transient failure classes (rate limited, server error, timeout,
// connection failure) are re-attempted; validation and other client errors
// fail immediately.
type Retrier struct {
	config RetryConfig
	rng    *rand.Rand
}

// NewRetrier creates a retrier with the given configuration.
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = time.Minute
	}
	if config.BackoffFactor <= 1 {
		config.BackoffFactor = 2.0
	}
	if config.JitterFraction <= 0 {
		config.JitterFraction = 0.25
	}
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do executes fn, re-attempting transient failures up to MaxAttempts total
// attempts. It returns the number of attempts used alongside the final
// error, if any.
func (r *Retrier) Do(ctx context.Context, fn RetryableFunc) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !engineerr.IsTransient(err) {
			return attempt, err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.Delay(attempt - 1)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}

	return r.config.MaxAttempts, fmt.Errorf("retry exhausted after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// Delay returns the backoff delay for the given zero-based attempt index,
// with jitter applied.
func (r *Retrier) Delay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	jitter := time.Duration(float64(delay) * r.config.JitterFraction * (2*r.rng.Float64() - 1))
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}
