package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trashpanda-labs/papertrade/internal/consensus"
	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/execution"
	"github.com/trashpanda-labs/papertrade/internal/exits"
	"github.com/trashpanda-labs/papertrade/internal/logger"
	"github.com/trashpanda-labs/papertrade/internal/marketdata"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/internal/risk"
	"github.com/trashpanda-labs/papertrade/internal/safety"
	"github.com/trashpanda-labs/papertrade/internal/storage"
	"github.com/trashpanda-labs/papertrade/internal/strategy"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Config is the engine's own tuning surface. Component-level knobs live in
// the component configs passed through Deps.
type Config struct {
	Symbols             []string      `json:"symbols"`
	EvalInterval        time.Duration `json:"eval_interval"`    // signal evaluation cadence
	StreamTimeframe     string        `json:"stream_timeframe"` // kline interval driving exit ticks
	CandleLimit         int           `json:"candle_limit"`     // history fetched per timeframe
	MinConfidence       float64       `json:"min_confidence"`   // adjusted-confidence floor for entries
	RiskPerTradePercent float64       `json:"risk_per_trade_percent"`
	TakeProfitPercent   float64       `json:"take_profit_percent"`
	CloseFeePercent     float64       `json:"close_fee_percent"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		EvalInterval:        time.Hour,
		StreamTimeframe:     "1m",
		CandleLimit:         250,
		MinConfidence:       0.6,
		RiskPerTradePercent: 1.0,
		TakeProfitPercent:   4.0,
		CloseFeePercent:     0.065,
	}
}

// Deps are the collaborators the engine is wired with at construction.
type Deps struct {
	Provider   marketdata.Provider
	Stream     marketdata.Stream
	Store      storage.TradeStore
	Strategies []strategy.Strategy
	Resolver   *consensus.Resolver
	Guard      *risk.Guard
	Breaker    *safety.CircuitBreaker
	Simulator  *execution.Simulator
	ExitConfig exits.Config
	Log        *logger.Logger
	Bus        *EventBus
}

// Engine is the long-lived reactive core: it evaluates strategies on a
// timer, gates entries through readiness, risk guard and circuit breaker,
// opens simulated positions, and drives each position's exit manager from
// streamed price ticks.
type Engine struct {
	config    Config
	provider  marketdata.Provider
	stream    marketdata.Stream
	store     storage.TradeStore
	strats    []strategy.Strategy
	resolver  *consensus.Resolver
	validator *readiness.Validator
	guard     *risk.Guard
	breaker   *safety.CircuitBreaker
	simulator *execution.Simulator
	exitCfg   exits.Config
	log       *logger.Logger
	bus       *EventBus

	// commitMu serializes the risk-check, simulate, create sequence so two
	// concurrent signals can never both pass the same portfolio limit. The
	// guard and close-time aggregate updates rely on it.
	commitMu sync.Mutex

	// stateMu guards the maps below. Held only for snapshots and map
	// mutation, never across a network call.
	stateMu       sync.RWMutex
	managers      map[string]*exits.Manager // by position ID
	lastConsensus map[string]types.Direction
	availability  map[string]map[string]int // symbol -> timeframe -> candle count

	now func() time.Time
}

// NewEngine wires the engine. The readiness validator is derived from the
// registered strategies' declared window requirements.
func NewEngine(config Config, deps Deps) (*Engine, error) {
	if len(config.Symbols) == 0 {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "engine", "new", "no symbols configured")
	}
	if len(deps.Strategies) == 0 {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "engine", "new", "no strategies registered")
	}
	def := DefaultConfig()
	if config.EvalInterval <= 0 {
		config.EvalInterval = def.EvalInterval
	}
	if config.StreamTimeframe == "" {
		config.StreamTimeframe = def.StreamTimeframe
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = def.CandleLimit
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = def.MinConfidence
	}
	if config.RiskPerTradePercent <= 0 {
		config.RiskPerTradePercent = def.RiskPerTradePercent
	}
	if config.TakeProfitPercent <= 0 {
		config.TakeProfitPercent = def.TakeProfitPercent
	}
	if config.CloseFeePercent < 0 {
		config.CloseFeePercent = def.CloseFeePercent
	}

	requirements := make([]readiness.Requirement, 0, len(deps.Strategies))
	for _, s := range deps.Strategies {
		requirements = append(requirements, s.Requirement())
	}

	if deps.Bus == nil {
		deps.Bus = NewEventBus()
	}

	e := &Engine{
		config:        config,
		provider:      deps.Provider,
		stream:        deps.Stream,
		store:         deps.Store,
		strats:        deps.Strategies,
		resolver:      deps.Resolver,
		validator:     readiness.NewValidator(requirements),
		guard:         deps.Guard,
		breaker:       deps.Breaker,
		simulator:     deps.Simulator,
		exitCfg:       deps.ExitConfig,
		log:           deps.Log,
		bus:           deps.Bus,
		managers:      make(map[string]*exits.Manager),
		lastConsensus: make(map[string]types.Direction),
		availability:  make(map[string]map[string]int),
		now:           func() time.Time { return time.Now().UTC() },
	}

	e.breaker.SetTripCallback(func(reason string) {
		e.log.Anomaly("Circuit breaker tripped: %s", reason)
		e.bus.Publish(Event{Type: EventCircuitBreakerTrip, Reason: reason})
	})

	return e, nil
}

// Events exposes the engine's event stream for subscribers.
func (e *Engine) Events() *EventBus {
	return e.bus
}

// Restore reloads open positions from the store and resumes managing them.
// Records missing required fields are flagged and left alone.
func (e *Engine) Restore(ctx context.Context) error {
	open, err := e.store.ListOpenTrades(ctx)
	if err != nil {
		return err
	}
	for _, p := range open {
		if reason := invalidPositionReason(p); reason != "" {
			e.flagPosition(ctx, p, reason)
			continue
		}
		if p.Status == types.PositionFlagged {
			e.log.Warning("Position %s (%s) is flagged, not resuming management", p.ID, p.Symbol)
			continue
		}
		e.registerManager(p)
		e.log.Info("Resumed position %s: %s %s %.6f @ %.4f", p.ID, p.Symbol, p.Direction, p.RemainingQty, p.EntryPrice)
	}
	return nil
}

// Run drives the engine until ctx is cancelled: periodic signal evaluation
// plus exit evaluation on every streamed tick.
func (e *Engine) Run(ctx context.Context) error {
	for _, symbol := range e.config.Symbols {
		if err := e.stream.Subscribe(symbol, e.config.StreamTimeframe); err != nil {
			return err
		}
	}

	evalTicker := time.NewTicker(e.config.EvalInterval)
	defer evalTicker.Stop()

	// Evaluate once on startup rather than waiting out the first interval.
	e.EvaluateAll(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("Engine shutting down")
			return ctx.Err()
		case tick, ok := <-e.stream.Ticks():
			if !ok {
				return engineerr.New(engineerr.ErrorCategoryFatalState, "engine", "run", "price stream closed")
			}
			e.handleTick(ctx, tick)
		case <-evalTicker.C:
			e.EvaluateAll(ctx)
		}
	}
}

// EvaluateAll runs one signal-evaluation pass over every configured symbol.
// A failure on one symbol never aborts the others.
func (e *Engine) EvaluateAll(ctx context.Context) {
	for _, symbol := range e.config.Symbols {
		if err := e.evaluateSymbol(ctx, symbol); err != nil {
			e.log.Warning("Evaluation skipped for %s: %v", symbol, err)
		}
	}
}

// evaluateSymbol gathers candle windows, collects strategy votes, and feeds
// the resulting signal into ApplySignal. Strategies that fail to vote shrink
// the consensus denominator.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) error {
	windows := make(map[string][]types.OHLCV)
	available := make(map[string]int)
	votes := make([]types.Vote, 0, len(e.strats))

	for _, strat := range e.strats {
		tf := strat.Requirement().Timeframe
		window, ok := windows[tf]
		if !ok {
			candles, err := e.provider.GetCandles(ctx, symbol, tf, e.config.CandleLimit)
			if err != nil {
				e.log.Warning("Candle fetch failed for %s %s: %v", symbol, tf, err)
				candles = nil
			}
			windows[tf] = candles
			window = candles
		}
		available[tf] = len(window)

		vote, err := strat.Evaluate(symbol, window)
		if err != nil {
			e.log.Warning("Strategy %s did not vote for %s: %v", strat.GetName(), symbol, err)
			continue
		}
		votes = append(votes, vote)
	}

	e.stateMu.Lock()
	e.availability[symbol] = available
	e.stateMu.Unlock()

	signal := types.TradingSignal{Symbol: symbol, Votes: votes, Timestamp: e.now()}
	return e.ApplySignal(ctx, signal)
}

// ApplySignal resolves consensus for one symbol's votes and, when the
// decision survives readiness, confidence, circuit-breaker and risk checks,
// opens a simulated position. Rejections by the risk guard are intentional
// non-executions: they are logged and emitted as events, not returned as
// errors.
func (e *Engine) ApplySignal(ctx context.Context, signal types.TradingSignal) error {
	decision := e.resolver.Resolve(signal)

	e.stateMu.Lock()
	e.lastConsensus[signal.Symbol] = decision.Direction
	e.stateMu.Unlock()

	if decision.Direction == types.Neutral {
		e.log.Info("No consensus for %s: %s", signal.Symbol, decision.Reasoning)
		return nil
	}
	if e.hasOpenPosition(signal.Symbol) {
		e.log.Info("Skipping %s %s signal: position already open", signal.Symbol, decision.Direction)
		return nil
	}

	assessment := e.validator.Grade(signal.Symbol, e.availabilityFor(signal.Symbol))
	if assessment.TradeBlocked() {
		e.log.Warning("Trade blocked for %s: data readiness %s", signal.Symbol, assessment.Level)
		return nil
	}
	for _, w := range assessment.Warnings {
		e.log.Warning("Readiness warning for %s: %s", signal.Symbol, w)
	}

	confidence := decision.Confidence * assessment.Adjustment.ConfidenceMultiplier
	if confidence < e.config.MinConfidence {
		e.log.Info("Skipping %s %s signal: adjusted confidence %.2f below %.2f",
			signal.Symbol, decision.Direction, confidence, e.config.MinConfidence)
		return nil
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	now := e.now()
	if !e.breaker.Allow(now) {
		state := e.breaker.State()
		e.publishRejection(signal.Symbol, engineerr.New(engineerr.ErrorCategoryCircuitBreaker,
			"engine", "check circuit breaker", "entry blocked: circuit breaker tripped (%s)", state.Reason))
		return nil
	}

	price, err := e.provider.GetPrice(ctx, signal.Symbol)
	if err != nil {
		return err
	}

	stopDistPct := e.exitCfg.DefaultStopLossPercent * assessment.Adjustment.StopDistanceMultiplier
	riskBudget := e.guard.Equity() * e.config.RiskPerTradePercent / 100 * assessment.Adjustment.SizeMultiplier
	if riskBudget <= 0 || stopDistPct <= 0 || price <= 0 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "engine", "apply_signal",
			"cannot size position: budget %.4f stop %.4f%% price %.4f", riskBudget, stopDistPct, price)
	}
	quantity := riskBudget / (price * stopDistPct / 100)

	candidate := risk.Candidate{
		Symbol:              signal.Symbol,
		Direction:           decision.Direction,
		Price:               price,
		Quantity:            quantity,
		StopDistancePercent: stopDistPct,
	}
	if err := e.guard.CheckNewPosition(candidate, e.openPositions(), now); err != nil {
		e.publishRejection(signal.Symbol, err)
		return nil
	}

	fill, err := e.simulator.Execute(ctx, signal.Symbol, decision.Direction, quantity, signal.Timestamp)
	if err != nil {
		return err
	}

	position := e.buildPosition(fill, stopDistPct)
	if err := e.store.CreateTrade(ctx, position); err != nil {
		e.log.Error("Failed to persist new position %s: %v", position.ID, err)
		return err
	}

	e.guard.RecordFees(fill.Fees)
	e.registerManager(position)

	e.log.Trade("OPENED %s %s qty=%.6f @ %.4f (requested %.6f, latency %s, stop %.4f, target %.4f)",
		position.Direction, position.Symbol, position.Quantity, position.EntryPrice,
		fill.RequestedQty, fill.Latency.Round(time.Millisecond), position.StopLoss, position.TakeProfit)
	e.bus.Publish(Event{
		Type:       EventTradeOpened,
		Symbol:     position.Symbol,
		PositionID: position.ID,
		Price:      position.EntryPrice,
		Quantity:   position.Quantity,
		Reason:     decision.Reasoning,
	})
	return nil
}

func (e *Engine) buildPosition(fill *execution.Fill, stopDistPct float64) *types.Position {
	stop := fill.Price * (1 - stopDistPct/100)
	target := fill.Price * (1 + e.config.TakeProfitPercent/100)
	if fill.Direction == types.Short {
		stop = fill.Price * (1 + stopDistPct/100)
		target = fill.Price * (1 - e.config.TakeProfitPercent/100)
	}
	return &types.Position{
		ID:           uuid.NewString(),
		Symbol:       fill.Symbol,
		Direction:    fill.Direction,
		EntryPrice:   fill.Price,
		Quantity:     fill.Quantity,
		RemainingQty: fill.Quantity,
		StopLoss:     stop,
		TakeProfit:   target,
		OpenedAt:     fill.ExecutedAt,
		Status:       types.PositionOpen,
		Exit: types.ExitState{
			HighestPrice: fill.Price,
			LowestPrice:  fill.Price,
		},
	}
}

func (e *Engine) registerManager(p *types.Position) {
	mgr := exits.NewManager(p, e.exitCfg, e.log)
	mgr.SetTrailingUpdateCallback(func(level float64) {
		e.bus.Publish(Event{
			Type:       EventTrailingStopUpdated,
			Symbol:     p.Symbol,
			PositionID: p.ID,
			Price:      level,
		})
	})
	e.stateMu.Lock()
	e.managers[p.ID] = mgr
	e.stateMu.Unlock()
}

// handleTick runs exit evaluation for every managed position on the tick's
// symbol. A panic while evaluating one position flags that position and
// leaves all others untouched.
func (e *Engine) handleTick(ctx context.Context, tick types.Ticker) {
	now := tick.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	for _, mgr := range e.managersFor(tick.Symbol) {
		e.evaluatePosition(ctx, mgr, tick.Price, now)
	}
}

func (e *Engine) evaluatePosition(ctx context.Context, mgr *exits.Manager, price float64, now time.Time) {
	p := mgr.Position()
	defer func() {
		if r := recover(); r != nil {
			e.flagPosition(ctx, p, fmt.Sprintf("panic during exit evaluation: %v", r))
		}
	}()

	if p.Status == types.PositionFlagged || p.Status == types.PositionClosed {
		return
	}

	reanalysis := e.lastConsensusFor(p.Symbol)
	decision := mgr.Evaluate(price, now, reanalysis)
	if decision == nil {
		// Persist trailing/extreme updates so a restart resumes exactly here.
		if err := e.store.UpdateTrade(ctx, p); err != nil {
			e.log.Error("Failed to persist exit state for %s: %v", p.ID, err)
		}
		return
	}

	e.executeClose(ctx, mgr, decision, price, now)
}

// executeClose applies an exit decision: reduces or zeroes the remaining
// quantity, updates the portfolio aggregates under the commit lock, persists
// the trade, and journals the closed slice.
func (e *Engine) executeClose(ctx context.Context, mgr *exits.Manager, decision *exits.Decision, price float64, now time.Time) {
	p := mgr.Position()

	var closedQty float64
	if decision.Trigger == exits.TriggerPartialExit {
		closedQty = mgr.ApplyPartial(decision.Fraction)
	} else {
		closedQty = mgr.ApplyFull()
	}
	if closedQty <= 0 {
		return
	}

	grossPnL := (price - p.EntryPrice) * closedQty
	if p.Direction == types.Short {
		grossPnL = -grossPnL
	}
	fees := price * closedQty * e.config.CloseFeePercent / 100
	netPnL := grossPnL - fees

	e.commitMu.Lock()
	e.guard.RecordClose(netPnL, now)
	e.breaker.RecordEquity(e.guard.Equity(), now)
	e.commitMu.Unlock()

	if err := e.store.UpdateTrade(ctx, p); err != nil {
		e.log.Error("Failed to persist close of %s: %v", p.ID, err)
	}
	record := &types.ClosedTrade{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Direction:   p.Direction,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		Quantity:    closedQty,
		RealizedPnL: netPnL,
		Fees:        fees,
		Reason:      decision.Trigger.String(),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    now,
	}
	if err := e.store.AppendClosedTrade(ctx, record); err != nil {
		e.log.Error("Failed to journal close of %s: %v", p.ID, err)
	}

	eventType := EventExitTriggered
	if decision.Trigger == exits.TriggerPartialExit && p.Status != types.PositionClosed {
		eventType = EventPartialExitExecuted
	}
	e.log.Trade("CLOSED %s %s qty=%.6f @ %.4f pnl=%.2f (%s)",
		p.Direction, p.Symbol, closedQty, price, netPnL, decision.Reason)
	e.bus.Publish(Event{
		Type:       eventType,
		Symbol:     p.Symbol,
		PositionID: p.ID,
		Reason:     decision.Reason,
		Trigger:    decision.Trigger.String(),
		Price:      price,
		Quantity:   closedQty,
		PnL:        netPnL,
	})

	if p.Status == types.PositionClosed {
		e.stateMu.Lock()
		delete(e.managers, p.ID)
		e.stateMu.Unlock()
	}
}

// flagPosition marks a position as excluded from automated management.
// Other positions are unaffected.
func (e *Engine) flagPosition(ctx context.Context, p *types.Position, reason string) {
	p.Status = types.PositionFlagged
	e.log.Anomaly("Position %s (%s) flagged for manual review: %s", p.ID, p.Symbol, reason)
	if err := e.store.UpdateTrade(ctx, p); err != nil {
		e.log.Error("Failed to persist flag on %s: %v", p.ID, err)
	}
	e.stateMu.Lock()
	delete(e.managers, p.ID)
	e.stateMu.Unlock()
}

func (e *Engine) publishRejection(symbol string, err error) {
	eventType := EventPortfolioRiskWarning
	if ee, ok := err.(*engineerr.EngineError); ok {
		switch ee.Operation {
		case "check cooldown":
			eventType = EventCooldownActivated
		case "check daily loss":
			eventType = EventDailyLossLimit
		case "check circuit breaker":
			eventType = EventCircuitBreakerTrip
		}
	}
	e.log.Warning("Entry rejected for %s: %v", symbol, err)
	e.bus.Publish(Event{Type: eventType, Symbol: symbol, Reason: err.Error()})
}

// PortfolioStatus is the snapshot returned by GetPortfolioStatus.
type PortfolioStatus struct {
	Risk    risk.State                 `json:"risk"`
	Breaker safety.CircuitBreakerState `json:"circuit_breaker"`
	Open    []*types.Position          `json:"open_positions"`
}

// GetPortfolioStatus returns a point-in-time snapshot of equity, limits and
// open positions. It never blocks on network calls.
func (e *Engine) GetPortfolioStatus() PortfolioStatus {
	return PortfolioStatus{
		Risk:    e.guard.Snapshot(),
		Breaker: e.breaker.State(),
		Open:    e.openPositions(),
	}
}

// GetExitState returns the exit bookkeeping for one managed position.
func (e *Engine) GetExitState(tradeID string) (types.ExitState, error) {
	e.stateMu.RLock()
	mgr, ok := e.managers[tradeID]
	e.stateMu.RUnlock()
	if !ok {
		return types.ExitState{}, engineerr.New(engineerr.ErrorCategoryValidation, "engine", "get_exit_state",
			"no managed position with id %s", tradeID)
	}
	return mgr.State(), nil
}

func (e *Engine) hasOpenPosition(symbol string) bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	for _, mgr := range e.managers {
		if mgr.Position().Symbol == symbol {
			return true
		}
	}
	return false
}

func (e *Engine) openPositions() []*types.Position {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	positions := make([]*types.Position, 0, len(e.managers))
	for _, mgr := range e.managers {
		positions = append(positions, mgr.Position())
	}
	return positions
}

func (e *Engine) managersFor(symbol string) []*exits.Manager {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	var out []*exits.Manager
	for _, mgr := range e.managers {
		if mgr.Position().Symbol == symbol {
			out = append(out, mgr)
		}
	}
	return out
}

func (e *Engine) lastConsensusFor(symbol string) *types.Direction {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if dir, ok := e.lastConsensus[symbol]; ok {
		d := dir
		return &d
	}
	return nil
}

func (e *Engine) availabilityFor(symbol string) map[string]int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.availability[symbol]
}

func invalidPositionReason(p *types.Position) string {
	switch {
	case p.ID == "":
		return "missing position id"
	case p.Symbol == "":
		return "missing symbol"
	case p.EntryPrice <= 0:
		return fmt.Sprintf("non-positive entry price %.4f", p.EntryPrice)
	case p.Quantity <= 0 || p.RemainingQty <= 0:
		return "non-positive quantity"
	case p.Direction != types.Long && p.Direction != types.Short:
		return "unresolved direction"
	default:
		return ""
	}
}
