package monitoring

import (
	"github.com/trashpanda-labs/papertrade/internal/engine"
)

// ObserveEvents consumes an engine event subscription and turns it into
// metrics. It returns when the channel closes; run it in its own goroutine.
func ObserveEvents(events <-chan engine.Event) {
	for ev := range events {
		switch ev.Type {
		case engine.EventTradeOpened:
			RecordTradeOpened(ev.Symbol)
			UpdatePrice(ev.Symbol, ev.Price)
		case engine.EventExitTriggered, engine.EventPartialExitExecuted:
			RecordExit(ev.Symbol, ev.Trigger, ev.PnL)
			UpdatePrice(ev.Symbol, ev.Price)
		case engine.EventPortfolioRiskWarning:
			RecordEntryRejection("portfolio_risk")
		case engine.EventDailyLossLimit:
			RecordEntryRejection("daily_loss_limit")
		case engine.EventCooldownActivated:
			RecordEntryRejection("cooldown")
		case engine.EventCircuitBreakerTrip:
			RecordEntryRejection("circuit_breaker")
			RecordError("CIRCUIT_BREAKER")
		}
	}
}
