package types

import "time"

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	PositionOpen             PositionStatus = "OPEN"
	PositionPartiallyClosing PositionStatus = "PARTIALLY_CLOSING"
	PositionClosed           PositionStatus = "CLOSED"
	PositionFlagged          PositionStatus = "FLAGGED" // excluded from automated management
)

// Position is a simulated open trade. It is created by the execution
// simulator and mutated in place by its exit manager until RemainingQty
// reaches zero.
type Position struct {
	ID           string         `json:"id"`
	Symbol       string         `json:"symbol"`
	Direction    Direction      `json:"direction"`
	EntryPrice   float64        `json:"entry_price"`
	Quantity     float64        `json:"quantity"`
	RemainingQty float64        `json:"remaining_qty"`
	StopLoss     float64        `json:"stop_loss"`
	TakeProfit   float64        `json:"take_profit"`
	OpenedAt     time.Time      `json:"opened_at"`
	Status       PositionStatus `json:"status"`

	// Exit manager bookkeeping, persisted alongside the trade so a
	// restarted engine resumes with the same trailing level and
	// partial-exit history.
	Exit ExitState `json:"exit_state"`
}

// ExitState is the per-position dynamic exit bookkeeping.
type ExitState struct {
	HighestPrice     float64   `json:"highest_price"`
	LowestPrice      float64   `json:"lowest_price"`
	TrailingArmed    bool      `json:"trailing_armed"`
	TrailingStop     float64   `json:"trailing_stop"`
	ConsecutiveDrops int       `json:"consecutive_drops"`
	ExecutedPartials []float64 `json:"executed_partials"` // fractions already taken
	LastPrices       []float64 `json:"last_prices"`
}

// UnrealizedPnLPercent returns the percentage move in the position's favor.
func (p *Position) UnrealizedPnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Direction == Short {
		pct = -pct
	}
	return pct
}

// ClosedTrade is the journal record appended when a position (or a slice of
// one) is closed.
type ClosedTrade struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    float64   `json:"quantity"`
	RealizedPnL float64   `json:"realized_pnl"`
	Fees        float64   `json:"fees"`
	Reason      string    `json:"reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}
