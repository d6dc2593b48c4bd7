package risk

import (
	"time"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/exits"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Config holds the account-wide risk limits.
type Config struct {
	MaxPortfolioRiskPercent float64 `json:"max_portfolio_risk_percent"` // default 10
	DailyLossLimitPercent   float64 `json:"daily_loss_limit_percent"`   // default 3
	MaxConsecutiveLosses    int     `json:"max_consecutive_losses"`     // default 5
	CooldownMinutes         int     `json:"cooldown_minutes"`           // default 60
	CorrelationLimitPercent float64 `json:"correlation_limit_percent"`  // default 70
}

// DefaultConfig returns the standard account risk limits.
func DefaultConfig() Config {
	return Config{
		MaxPortfolioRiskPercent: 10.0,
		DailyLossLimitPercent:   3.0,
		MaxConsecutiveLosses:    5,
		CooldownMinutes:         60,
		CorrelationLimitPercent: 70.0,
	}
}

// State is a snapshot of the guard's bookkeeping for status reads.
type State struct {
	Equity            float64   `json:"equity"`
	PeakEquity        float64   `json:"peak_equity"`
	DailyRealizedPnL  float64   `json:"daily_realized_pnl"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until,omitempty"`
	DailyLossLimited  bool      `json:"daily_loss_limited"`
}

// Candidate describes a position the engine wants to open.
type Candidate struct {
	Symbol              string
	Direction           types.Direction
	Price               float64
	Quantity            float64
	StopDistancePercent float64
}

// Guard is the account-wide gatekeeper consulted before every new position
// and updated after every close. It carries no lock of its own: the engine
// calls it under the single serializing commit lock, which is what makes
// the compound risk checks atomic against concurrent signals.
type Guard struct {
	config Config

	equity            float64
	peakEquity        float64
	dayStart          time.Time // UTC midnight
	dayStartEquity    float64
	dailyRealizedPnL  float64
	consecutiveLosses int
	cooldownUntil     time.Time
}

// NewGuard creates a risk guard anchored at the given starting equity.
func NewGuard(config Config, equity float64, now time.Time) *Guard {
	if config.MaxPortfolioRiskPercent <= 0 {
		config.MaxPortfolioRiskPercent = 10.0
	}
	if config.CorrelationLimitPercent <= 0 {
		config.CorrelationLimitPercent = 70.0
	}
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = 5
	}
	return &Guard{
		config:         config,
		equity:         equity,
		peakEquity:     equity,
		dayStart:       dayStartUTC(now),
		dayStartEquity: equity,
	}
}

// CheckNewPosition runs every account-level gate against the candidate.
// A nil return means the candidate may be committed. Rejections are
// intentional non-executions, categorized as RISK_REJECTED.
func (g *Guard) CheckNewPosition(candidate Candidate, open []*types.Position, now time.Time) error {
	g.rollDay(now)

	if g.equity <= 0 {
		return engineerr.New(engineerr.ErrorCategoryRiskRejected, "risk", "check equity",
			"equity %.2f is not positive; no percentage-of-equity math is possible", g.equity)
	}

	if !g.cooldownUntil.IsZero() && now.Before(g.cooldownUntil) {
		return engineerr.New(engineerr.ErrorCategoryRiskRejected, "risk", "check cooldown",
			"cooling down after %d consecutive losses until %s", g.consecutiveLosses, g.cooldownUntil.Format(time.RFC3339))
	}

	if g.dailyLossLimited() {
		return engineerr.New(engineerr.ErrorCategoryRiskRejected, "risk", "check daily loss",
			"daily realized loss %.2f exceeded %.2f%% of day-start equity %.2f; entries blocked until the day rolls over",
			-g.dailyRealizedPnL, g.config.DailyLossLimitPercent, g.dayStartEquity)
	}

	if err := g.checkPortfolioRisk(candidate, open); err != nil {
		return err
	}

	return g.checkCorrelation(candidate, open)
}

// checkPortfolioRisk sums the per-position risk fractions of current equity
// across all open positions plus the candidate; the sum must stay strictly
// below the configured ceiling.
func (g *Guard) checkPortfolioRisk(candidate Candidate, open []*types.Position) error {
	totalRiskPct := 0.0
	for _, p := range open {
		riskAmount := p.RemainingQty * p.EntryPrice * (exits.StopDistancePercent(p) / 100)
		totalRiskPct += riskAmount / g.equity * 100
	}

	candidateRisk := candidate.Quantity * candidate.Price * (candidate.StopDistancePercent / 100)
	candidatePct := candidateRisk / g.equity * 100
	totalRiskPct += candidatePct

	if totalRiskPct >= g.config.MaxPortfolioRiskPercent {
		return engineerr.New(engineerr.ErrorCategoryRiskRejected, "risk", "check portfolio risk",
			"cumulative portfolio risk %.2f%% (candidate %.2f%%) reaches ceiling %.2f%%",
			totalRiskPct, candidatePct, g.config.MaxPortfolioRiskPercent)
	}
	return nil
}

// checkCorrelation rejects entries that push the dominant directional
// exposure above the configured share of total open notional.
func (g *Guard) checkCorrelation(candidate Candidate, open []*types.Position) error {
	if len(open) == 0 {
		// Nothing to correlate against: a lone position is always 100%
		// of its own notional.
		return nil
	}

	longNotional := 0.0
	shortNotional := 0.0
	for _, p := range open {
		notional := p.RemainingQty * p.EntryPrice
		if p.Direction == types.Long {
			longNotional += notional
		} else {
			shortNotional += notional
		}
	}
	candNotional := candidate.Quantity * candidate.Price
	if candidate.Direction == types.Long {
		longNotional += candNotional
	} else {
		shortNotional += candNotional
	}

	total := longNotional + shortNotional
	if total <= 0 {
		return nil
	}

	dominant := longNotional
	side := types.Long
	if shortNotional > longNotional {
		dominant = shortNotional
		side = types.Short
	}

	exposurePct := dominant / total * 100
	if exposurePct > g.config.CorrelationLimitPercent {
		return engineerr.New(engineerr.ErrorCategoryRiskRejected, "risk", "check correlation",
			"%s exposure would reach %.1f%% of open notional, above the %.1f%% limit",
			side, exposurePct, g.config.CorrelationLimitPercent)
	}
	return nil
}

// RecordClose books realized PnL from a (partial or full) close, updating
// equity, the daily loss counter and the consecutive-loss streak. A single
// winning close resets the streak immediately.
func (g *Guard) RecordClose(pnl float64, now time.Time) {
	g.rollDay(now)

	g.equity += pnl
	if g.equity > g.peakEquity {
		g.peakEquity = g.equity
	}
	g.dailyRealizedPnL += pnl

	if pnl < 0 {
		g.consecutiveLosses++
		// Re-arm on every qualifying loss once the previous deadline has
		// elapsed; an already-running cool-down keeps its deadline.
		if g.consecutiveLosses >= g.config.MaxConsecutiveLosses && !g.CooldownActive(now) {
			g.cooldownUntil = now.Add(time.Duration(g.config.CooldownMinutes) * time.Minute)
		}
	} else if pnl > 0 {
		g.consecutiveLosses = 0
		g.cooldownUntil = time.Time{}
	}
}

// RecordFees books execution fees against equity without touching the
// loss streak.
func (g *Guard) RecordFees(fees float64) {
	g.equity -= fees
}

// Equity returns current account equity.
func (g *Guard) Equity() float64 {
	return g.equity
}

// CooldownActive reports whether the cool-down gate currently blocks entries.
func (g *Guard) CooldownActive(now time.Time) bool {
	return !g.cooldownUntil.IsZero() && now.Before(g.cooldownUntil)
}

// Snapshot returns the guard's current state.
func (g *Guard) Snapshot() State {
	return State{
		Equity:            g.equity,
		PeakEquity:        g.peakEquity,
		DailyRealizedPnL:  g.dailyRealizedPnL,
		ConsecutiveLosses: g.consecutiveLosses,
		CooldownUntil:     g.cooldownUntil,
		DailyLossLimited:  g.dailyLossLimited(),
	}
}

func (g *Guard) dailyLossLimited() bool {
	if g.config.DailyLossLimitPercent <= 0 || g.dayStartEquity <= 0 {
		return false
	}
	loss := -g.dailyRealizedPnL
	return loss >= g.dayStartEquity*g.config.DailyLossLimitPercent/100
}

// rollDay resets the daily counters when the UTC day rolls over.
func (g *Guard) rollDay(now time.Time) {
	start := dayStartUTC(now)
	if start.After(g.dayStart) {
		g.dayStart = start
		g.dayStartEquity = g.equity
		g.dailyRealizedPnL = 0
	}
}

func dayStartUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
