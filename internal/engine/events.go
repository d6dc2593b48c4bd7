package engine

import (
	"sync"
	"time"
)

// EventType identifies what happened inside the engine.
type EventType string

const (
	EventTradeOpened          EventType = "trade_opened"
	EventTrailingStopUpdated  EventType = "trailing_stop_updated"
	EventExitTriggered        EventType = "exit_triggered"
	EventPartialExitExecuted  EventType = "partial_exit_executed"
	EventPortfolioRiskWarning EventType = "portfolio_risk_warning"
	EventDailyLossLimit       EventType = "daily_loss_limit_reached"
	EventCooldownActivated    EventType = "cooldown_activated"
	EventCircuitBreakerTrip   EventType = "circuit_breaker_tripped"
)

// Event is one engine occurrence delivered to downstream subscribers
// (notifiers, console display, metrics).
type Event struct {
	Type       EventType `json:"type"`
	Symbol     string    `json:"symbol,omitempty"`
	PositionID string    `json:"position_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	At         time.Time `json:"at"`
}

// EventBus fans events out to subscribers. Publishing never blocks: a
// subscriber that stops draining its channel loses events rather than
// stalling the engine.
type EventBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a buffered channel of future events.
func (b *EventBus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *EventBus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish must not be called after.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
