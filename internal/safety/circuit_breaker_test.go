package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOnDailyLoss(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 5.0, MaxDrawdownPercent: 50.0}, 10000, now)

	cb.RecordEquity(9600, now.Add(time.Hour)) // -4%, still fine
	assert.True(t, cb.Allow(now.Add(time.Hour)))

	cb.RecordEquity(9400, now.Add(2*time.Hour)) // -6%, trips
	assert.False(t, cb.Allow(now.Add(2*time.Hour)))

	state := cb.State()
	assert.True(t, state.Tripped)
	assert.Contains(t, state.Reason, "daily loss")
}

func TestCircuitBreaker_DrawdownBelowLimitDoesNotTrip(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 90.0, MaxDrawdownPercent: 10.0}, 10000, now)

	cb.RecordEquity(12000, now.Add(time.Hour)) // new peak
	cb.RecordEquity(11000, now.Add(2*time.Hour))

	// 12000 -> 11000 is an 8.33% drawdown, below the 10% limit.
	assert.False(t, cb.State().Tripped)
	assert.True(t, cb.Allow(now.Add(2*time.Hour)))
}

func TestCircuitBreaker_DrawdownTrip(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 90.0, MaxDrawdownPercent: 10.0}, 10000, now)

	cb.RecordEquity(12000, now.Add(time.Hour))
	cb.RecordEquity(10700, now.Add(2*time.Hour)) // 10.8% below peak

	state := cb.State()
	require.True(t, state.Tripped)
	assert.Contains(t, state.Reason, "drawdown")
	assert.False(t, cb.Allow(now.Add(2*time.Hour)))
}

func TestCircuitBreaker_AutoResetsAtDayBoundary(t *testing.T) {
	now := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 5.0, MaxDrawdownPercent: 90.0}, 10000, now)

	cb.RecordEquity(9000, now.Add(time.Hour))
	require.False(t, cb.Allow(now.Add(time.Hour)))

	nextDay := time.Date(2025, 6, 3, 0, 5, 0, 0, time.UTC)
	assert.True(t, cb.Allow(nextDay), "trip should clear when the UTC day rolls over")
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 5.0, MaxDrawdownPercent: 90.0}, 10000, now)

	cb.RecordEquity(9000, now.Add(time.Hour))
	require.False(t, cb.Allow(now.Add(time.Hour)))

	cb.Reset(9000, now.Add(2*time.Hour))
	assert.True(t, cb.Allow(now.Add(2*time.Hour)))
	assert.Equal(t, 9000.0, cb.State().DayStartEquity)
}

func TestCircuitBreaker_TripCallback(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossPercent: 5.0, MaxDrawdownPercent: 90.0}, 10000, now)

	done := make(chan string, 1)
	cb.SetTripCallback(func(reason string) { done <- reason })

	cb.RecordEquity(9000, now.Add(time.Hour))

	select {
	case reason := <-done:
		assert.Contains(t, reason, "daily loss")
	case <-time.After(time.Second):
		t.Fatal("trip callback was not invoked")
	}
}
