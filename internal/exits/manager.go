package exits

import (
	"fmt"
	"math"
	"time"

	"github.com/trashpanda-labs/papertrade/internal/logger"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Trigger identifies which exit check fired. Lower values have higher
// priority when several fire on the same tick; the static stop/take-profit
// can never be overridden by a softer heuristic.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerStaticStopLoss
	TriggerStaticTakeProfit
	TriggerTrailingStop
	TriggerMarketReversal
	TriggerPartialExit
	TriggerTimeExit
	TriggerReanalysis
)

func (t Trigger) String() string {
	switch t {
	case TriggerStaticStopLoss:
		return "static_stop_loss"
	case TriggerStaticTakeProfit:
		return "static_take_profit"
	case TriggerTrailingStop:
		return "trailing_stop"
	case TriggerMarketReversal:
		return "market_reversal"
	case TriggerPartialExit:
		return "partial_exit"
	case TriggerTimeExit:
		return "time_exit"
	case TriggerReanalysis:
		return "reanalysis"
	default:
		return "none"
	}
}

// PartialExitRule closes a fraction of the remaining quantity once
// unrealized profit crosses the trigger percentage.
type PartialExitRule struct {
	TriggerProfitPercent float64 `json:"trigger_profit_percent"`
	ExitFraction         float64 `json:"exit_fraction"`
}

// Config holds the exit-strategy preset parameters.
type Config struct {
	DefaultStopLossPercent float64 `json:"default_stop_loss_percent"`

	TrailingActivationPercent float64 `json:"trailing_activation_percent"`
	TrailingPercent           float64 `json:"trailing_percent"`

	ReversalDropCount      int     `json:"reversal_drop_count"`
	ReversalMinMovePercent float64 `json:"reversal_min_move_percent"`

	PartialExitRules []PartialExitRule `json:"partial_exit_rules"`

	MaxHoldDuration  time.Duration `json:"max_hold_duration"`
	PriceHistorySize int           `json:"price_history_size"`
}

// DefaultConfig returns the standard exit preset.
func DefaultConfig() Config {
	return Config{
		DefaultStopLossPercent:    2.0,
		TrailingActivationPercent: 1.5,
		TrailingPercent:           1.0,
		ReversalDropCount:         4,
		ReversalMinMovePercent:    0.2,
		PartialExitRules: []PartialExitRule{
			{TriggerProfitPercent: 2.0, ExitFraction: 0.5},
			{TriggerProfitPercent: 4.0, ExitFraction: 0.5},
		},
		MaxHoldDuration:  72 * time.Hour,
		PriceHistorySize: 10,
	}
}

// Decision is the outcome of one tick's trigger evaluation. Fraction is the
// share of the currently remaining quantity to close; 1.0 closes fully.
type Decision struct {
	Trigger  Trigger
	Fraction float64
	Reason   string
}

// Manager runs the exit state machine for a single position. It is not
// safe for concurrent use; each open position owns exactly one manager and
// the engine evaluates it from one goroutine.
type Manager struct {
	position *types.Position
	config   Config
	log      *logger.Logger

	onTrailingUpdate func(level float64)
}

// NewManager wires an exit manager to its position. A position arriving
// without a resolvable stop-loss gets one synthesized from the configured
// default before any risk math runs; that repair is logged as an anomaly.
func NewManager(position *types.Position, config Config, log *logger.Logger) *Manager {
	if config.PriceHistorySize <= 0 {
		config.PriceHistorySize = 10
	}
	if config.ReversalDropCount <= 0 {
		config.ReversalDropCount = 4
	}

	m := &Manager{position: position, config: config, log: log}

	if position.StopLoss <= 0 {
		position.StopLoss = m.synthesizedStopLoss()
		log.Anomaly("position %s (%s) arrived without stop-loss; synthesized %.4f from default %.2f%%",
			position.ID, position.Symbol, position.StopLoss, config.DefaultStopLossPercent)
	}

	if position.Exit.HighestPrice == 0 {
		position.Exit.HighestPrice = position.EntryPrice
	}
	if position.Exit.LowestPrice == 0 {
		position.Exit.LowestPrice = position.EntryPrice
	}

	return m
}

// SetTrailingUpdateCallback registers a hook invoked whenever the trailing
// stop level tightens.
func (m *Manager) SetTrailingUpdateCallback(fn func(level float64)) {
	m.onTrailingUpdate = fn
}

// Position returns the managed position.
func (m *Manager) Position() *types.Position {
	return m.position
}

// State returns the current exit bookkeeping.
func (m *Manager) State() types.ExitState {
	return m.position.Exit
}

// Evaluate runs every trigger check against the latest price and returns
// the highest-priority decision, or nil when nothing fires. reanalysis, when
// non-nil, carries the latest consensus direction for the symbol; a flip to
// Neutral is the lowest-priority exit.
func (m *Manager) Evaluate(price float64, now time.Time, reanalysis *types.Direction) *Decision {
	if m.position.Status == types.PositionClosed || m.position.Status == types.PositionFlagged {
		return nil
	}

	m.observe(price)
	m.updateTrailing(price)

	if d := m.checkStaticStopLoss(price); d != nil {
		return d
	}
	if d := m.checkStaticTakeProfit(price); d != nil {
		return d
	}
	if d := m.checkTrailingStop(price); d != nil {
		return d
	}
	if d := m.checkReversal(); d != nil {
		return d
	}
	if d := m.checkPartialExit(price); d != nil {
		return d
	}
	if d := m.checkTimeExit(now); d != nil {
		return d
	}
	if d := m.checkReanalysis(reanalysis); d != nil {
		return d
	}
	return nil
}

// ApplyPartial records a partial-exit fill: the fraction is marked executed
// and the remaining quantity is reduced. Returns the quantity closed.
func (m *Manager) ApplyPartial(fraction float64) float64 {
	closed := m.position.RemainingQty * fraction
	m.position.RemainingQty -= closed
	m.position.Exit.ExecutedPartials = append(m.position.Exit.ExecutedPartials, fraction)
	if m.position.RemainingQty <= 1e-12 {
		m.position.RemainingQty = 0
		m.position.Status = types.PositionClosed
	} else {
		m.position.Status = types.PositionPartiallyClosing
	}
	return closed
}

// ApplyFull records a full close. Returns the quantity closed.
func (m *Manager) ApplyFull() float64 {
	closed := m.position.RemainingQty
	m.position.RemainingQty = 0
	m.position.Status = types.PositionClosed
	return closed
}

// observe updates extremes, the price-history window, and the consecutive
// adverse-move counter.
func (m *Manager) observe(price float64) {
	st := &m.position.Exit

	if price > st.HighestPrice {
		st.HighestPrice = price
	}
	if price < st.LowestPrice {
		st.LowestPrice = price
	}

	if n := len(st.LastPrices); n > 0 {
		prev := st.LastPrices[n-1]
		if prev > 0 {
			movePct := (price - prev) / prev * 100
			adverse := movePct
			if m.position.Direction == types.Long {
				adverse = -movePct
			}
			if adverse >= m.config.ReversalMinMovePercent {
				st.ConsecutiveDrops++
			} else {
				st.ConsecutiveDrops = 0
			}
		}
	}

	st.LastPrices = append(st.LastPrices, price)
	if len(st.LastPrices) > m.config.PriceHistorySize {
		st.LastPrices = st.LastPrices[len(st.LastPrices)-m.config.PriceHistorySize:]
	}
}

// updateTrailing arms and tightens the trailing stop. The level only ever
// moves in the position's favor.
func (m *Manager) updateTrailing(price float64) {
	if m.config.TrailingPercent <= 0 {
		return
	}
	st := &m.position.Exit

	if !st.TrailingArmed {
		if m.position.UnrealizedPnLPercent(price) >= m.config.TrailingActivationPercent {
			st.TrailingArmed = true
		} else {
			return
		}
	}

	var level float64
	if m.position.Direction == types.Long {
		level = st.HighestPrice * (1 - m.config.TrailingPercent/100)
		if st.TrailingStop == 0 || level > st.TrailingStop {
			m.moveTrailing(level)
		}
	} else {
		level = st.LowestPrice * (1 + m.config.TrailingPercent/100)
		if st.TrailingStop == 0 || level < st.TrailingStop {
			m.moveTrailing(level)
		}
	}
}

func (m *Manager) moveTrailing(level float64) {
	m.position.Exit.TrailingStop = level
	if m.onTrailingUpdate != nil {
		m.onTrailingUpdate(level)
	}
}

func (m *Manager) checkStaticStopLoss(price float64) *Decision {
	sl := m.position.StopLoss
	hit := (m.position.Direction == types.Long && price <= sl) ||
		(m.position.Direction == types.Short && price >= sl)
	if !hit {
		return nil
	}
	return &Decision{
		Trigger:  TriggerStaticStopLoss,
		Fraction: 1.0,
		Reason:   fmt.Sprintf("price %.4f crossed static stop-loss %.4f", price, sl),
	}
}

func (m *Manager) checkStaticTakeProfit(price float64) *Decision {
	tp := m.position.TakeProfit
	if tp <= 0 {
		return nil
	}
	hit := (m.position.Direction == types.Long && price >= tp) ||
		(m.position.Direction == types.Short && price <= tp)
	if !hit {
		return nil
	}
	return &Decision{
		Trigger:  TriggerStaticTakeProfit,
		Fraction: 1.0,
		Reason:   fmt.Sprintf("price %.4f reached take-profit %.4f", price, tp),
	}
}

func (m *Manager) checkTrailingStop(price float64) *Decision {
	st := m.position.Exit
	if !st.TrailingArmed || st.TrailingStop == 0 {
		return nil
	}
	hit := (m.position.Direction == types.Long && price <= st.TrailingStop) ||
		(m.position.Direction == types.Short && price >= st.TrailingStop)
	if !hit {
		return nil
	}
	return &Decision{
		Trigger:  TriggerTrailingStop,
		Fraction: 1.0,
		Reason:   fmt.Sprintf("price %.4f crossed trailing stop %.4f", price, st.TrailingStop),
	}
}

// checkReversal forces an early close after enough consecutive adverse
// moves, before a slow reversal erodes profit that a wide static stop
// would tolerate.
func (m *Manager) checkReversal() *Decision {
	if m.position.Exit.ConsecutiveDrops < m.config.ReversalDropCount {
		return nil
	}
	return &Decision{
		Trigger:  TriggerMarketReversal,
		Fraction: 1.0,
		Reason: fmt.Sprintf("%d consecutive moves of >=%.2f%% against the position",
			m.position.Exit.ConsecutiveDrops, m.config.ReversalMinMovePercent),
	}
}

// checkPartialExit fires the next unexecuted rule whose profit trigger has
// been crossed. Rules apply in order and each measures its fraction against
// the quantity remaining at evaluation time.
func (m *Manager) checkPartialExit(price float64) *Decision {
	next := len(m.position.Exit.ExecutedPartials)
	if next >= len(m.config.PartialExitRules) {
		return nil
	}
	rule := m.config.PartialExitRules[next]

	if m.position.UnrealizedPnLPercent(price) < rule.TriggerProfitPercent {
		return nil
	}
	return &Decision{
		Trigger:  TriggerPartialExit,
		Fraction: math.Min(rule.ExitFraction, 1.0),
		Reason: fmt.Sprintf("profit %.2f%% crossed partial-exit trigger %.2f%% (rule %d, fraction %.0f%%)",
			m.position.UnrealizedPnLPercent(price), rule.TriggerProfitPercent, next+1, rule.ExitFraction*100),
	}
}

func (m *Manager) checkTimeExit(now time.Time) *Decision {
	if m.config.MaxHoldDuration <= 0 {
		return nil
	}
	age := now.Sub(m.position.OpenedAt)
	if age < m.config.MaxHoldDuration {
		return nil
	}
	return &Decision{
		Trigger:  TriggerTimeExit,
		Fraction: 1.0,
		Reason:   fmt.Sprintf("position age %s exceeded max hold %s", age.Round(time.Minute), m.config.MaxHoldDuration),
	}
}

func (m *Manager) checkReanalysis(reanalysis *types.Direction) *Decision {
	if reanalysis == nil || *reanalysis != types.Neutral {
		return nil
	}
	return &Decision{
		Trigger:  TriggerReanalysis,
		Fraction: 1.0,
		Reason:   "consensus re-analysis flipped to neutral",
	}
}

func (m *Manager) synthesizedStopLoss() float64 {
	pct := m.config.DefaultStopLossPercent
	if pct <= 0 {
		pct = 2.0
	}
	if m.position.Direction == types.Short {
		return m.position.EntryPrice * (1 + pct/100)
	}
	return m.position.EntryPrice * (1 - pct/100)
}

// StopDistancePercent returns the distance between entry and stop-loss as a
// percentage of entry price, used by the portfolio risk guard.
func StopDistancePercent(p *types.Position) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return math.Abs(p.EntryPrice-p.StopLoss) / p.EntryPrice * 100
}
