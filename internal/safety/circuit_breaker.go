package safety

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerConfig holds thresholds for the account-level breaker.
type CircuitBreakerConfig struct {
	DailyLossPercent   float64 // loss from day-start equity that trips, e.g. 5.0
	MaxDrawdownPercent float64 // drawdown from peak equity that trips, e.g. 15.0
}

// DefaultCircuitBreakerConfig returns the standard account breaker thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		DailyLossPercent:   5.0,
		MaxDrawdownPercent: 15.0,
	}
}

// CircuitBreakerState is a snapshot of the breaker for status reads.
type CircuitBreakerState struct {
	Tripped        bool      `json:"tripped"`
	Reason         string    `json:"reason"`
	DayStartEquity float64   `json:"day_start_equity"`
	PeakEquity     float64   `json:"peak_equity"`
	TrippedAt      time.Time `json:"tripped_at,omitempty"`
}

// CircuitBreaker halts new position submission once account equity falls
// past a daily-loss or drawdown-from-peak threshold. Data ingestion and
// management of already-open positions are unaffected by a trip. The
// breaker auto-resets when the UTC day rolls over, or via Reset.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu             sync.RWMutex
	tripped        bool
	reason         string
	trippedAt      time.Time
	dayStart       time.Time // UTC midnight anchoring the daily window
	dayStartEquity float64
	peakEquity     float64
	lastEquity     float64
	onTrip         func(reason string)
}

// NewCircuitBreaker creates an account breaker anchored at the given equity.
func NewCircuitBreaker(config CircuitBreakerConfig, equity float64, now time.Time) *CircuitBreaker {
	if config.DailyLossPercent <= 0 {
		config.DailyLossPercent = 5.0
	}
	if config.MaxDrawdownPercent <= 0 {
		config.MaxDrawdownPercent = 15.0
	}
	return &CircuitBreaker{
		config:         config,
		dayStart:       dayStartUTC(now),
		dayStartEquity: equity,
		peakEquity:     equity,
		lastEquity:     equity,
	}
}

// SetTripCallback registers a callback invoked (in its own goroutine) when
// the breaker trips.
func (cb *CircuitBreaker) SetTripCallback(fn func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = fn
}

// RecordEquity feeds the breaker a fresh equity reading. It rolls the daily
// window over at UTC midnight and trips if either threshold is breached.
func (cb *CircuitBreaker) RecordEquity(equity float64, now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastEquity = equity
	cb.rollDayLocked(now)

	if equity > cb.peakEquity {
		cb.peakEquity = equity
	}
	if cb.tripped {
		return
	}

	if cb.dayStartEquity > 0 {
		dailyLoss := (cb.dayStartEquity - equity) / cb.dayStartEquity * 100
		if dailyLoss >= cb.config.DailyLossPercent {
			cb.tripLocked(fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", dailyLoss, cb.config.DailyLossPercent), now)
			return
		}
	}
	if cb.peakEquity > 0 {
		drawdown := (cb.peakEquity - equity) / cb.peakEquity * 100
		if drawdown >= cb.config.MaxDrawdownPercent {
			cb.tripLocked(fmt.Sprintf("drawdown %.2f%% from peak reached limit %.2f%%", drawdown, cb.config.MaxDrawdownPercent), now)
		}
	}
}

// Allow reports whether new position submission is currently permitted.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollDayLocked(now)
	return !cb.tripped
}

// Reset manually clears a trip without waiting for the day boundary.
func (cb *CircuitBreaker) Reset(equity float64, now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripped = false
	cb.reason = ""
	cb.trippedAt = time.Time{}
	cb.dayStart = dayStartUTC(now)
	cb.dayStartEquity = equity
	if equity > cb.peakEquity {
		cb.peakEquity = equity
	}
}

// State returns a snapshot of the breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerState{
		Tripped:        cb.tripped,
		Reason:         cb.reason,
		DayStartEquity: cb.dayStartEquity,
		PeakEquity:     cb.peakEquity,
		TrippedAt:      cb.trippedAt,
	}
}

func (cb *CircuitBreaker) tripLocked(reason string, now time.Time) {
	cb.tripped = true
	cb.reason = reason
	cb.trippedAt = now
	if cb.onTrip != nil {
		go cb.onTrip(reason)
	}
}

// rollDayLocked resets the daily window (and any trip) at UTC midnight.
func (cb *CircuitBreaker) rollDayLocked(now time.Time) {
	start := dayStartUTC(now)
	if start.After(cb.dayStart) {
		cb.dayStart = start
		cb.dayStartEquity = cb.lastEquity
		cb.tripped = false
		cb.reason = ""
		cb.trippedAt = time.Time{}
	}
}

func dayStartUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
