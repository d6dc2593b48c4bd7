package notifications

import (
	"fmt"

	"github.com/trashpanda-labs/papertrade/internal/engine"
	"github.com/trashpanda-labs/papertrade/internal/logger"
)

// Dispatcher turns engine events into notifier alerts. Low-severity events
// (trailing updates) are dropped; trades and limit breaches are forwarded.
type Dispatcher struct {
	notifiers []Notifier
	log       *logger.Logger
}

func NewDispatcher(log *logger.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, log: log}
}

// Run consumes an engine event subscription until the channel closes.
func (d *Dispatcher) Run(events <-chan engine.Event) {
	for ev := range events {
		level, message, ok := d.render(ev)
		if !ok {
			continue
		}
		for _, n := range d.notifiers {
			if err := n.SendAlert(level, message); err != nil {
				d.log.Warning("Alert delivery failed: %v", err)
			}
		}
	}
}

func (d *Dispatcher) render(ev engine.Event) (level, message string, ok bool) {
	switch ev.Type {
	case engine.EventTradeOpened:
		return "trade", fmt.Sprintf("Opened %s: %.6f @ %.4f\n%s",
			ev.Symbol, ev.Quantity, ev.Price, ev.Reason), true
	case engine.EventExitTriggered:
		level = "success"
		if ev.PnL < 0 {
			level = "warning"
		}
		return level, fmt.Sprintf("Closed %s (%s): %.6f @ %.4f, PnL %.2f",
			ev.Symbol, ev.Trigger, ev.Quantity, ev.Price, ev.PnL), true
	case engine.EventPartialExitExecuted:
		return "success", fmt.Sprintf("Partial exit %s: %.6f @ %.4f, PnL %.2f",
			ev.Symbol, ev.Quantity, ev.Price, ev.PnL), true
	case engine.EventDailyLossLimit:
		return "error", fmt.Sprintf("Daily loss limit reached: %s", ev.Reason), true
	case engine.EventCooldownActivated:
		return "warning", fmt.Sprintf("Cool-down active: %s", ev.Reason), true
	case engine.EventCircuitBreakerTrip:
		return "error", fmt.Sprintf("Circuit breaker tripped: %s", ev.Reason), true
	default:
		return "", "", false
	}
}
