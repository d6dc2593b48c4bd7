package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// onePercentPosition risks exactly 1% of a $10,000 account: quantity 100 at
// price 100 with a 1% stop distance -> 100 * 100 * 0.01 = $100 at risk.
func onePercentPosition(i int) *types.Position {
	return &types.Position{
		ID:           string(rune('a' + i)),
		Symbol:       "BTCUSDT",
		Direction:    types.Long,
		EntryPrice:   100,
		Quantity:     100,
		RemainingQty: 100,
		StopLoss:     99, // 1% stop distance
		Status:       types.PositionOpen,
	}
}

func onePercentCandidate() Candidate {
	return Candidate{
		Symbol:              "ETHUSDT",
		Direction:           types.Long,
		Price:               100,
		Quantity:            100,
		StopDistancePercent: 1.0,
	}
}

func TestGuard_NonPositiveEquityIsHardRejection(t *testing.T) {
	for _, equity := range []float64{0, -500} {
		g := NewGuard(DefaultConfig(), equity, t0)
		err := g.CheckNewPosition(onePercentCandidate(), nil, t0)
		require.Error(t, err)
		assert.Equal(t, engineerr.ErrorCategoryRiskRejected, engineerr.CategoryOf(err))
		assert.Contains(t, err.Error(), "not positive")
	}
}

// $10,000 equity, ceiling 10%: nine open 1% positions total 9%; a ninth
// position was fine (8% + 1% = 9% < 10%) but a tenth candidate reaching
// exactly 10% is rejected.
func TestGuard_PortfolioRiskCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CorrelationLimitPercent = 100 // isolate the risk ceiling

	g := NewGuard(cfg, 10000, t0)

	var open []*types.Position
	for i := 0; i < 8; i++ {
		open = append(open, onePercentPosition(i))
	}

	// Ninth position: cumulative 9%, still below the ceiling.
	require.NoError(t, g.CheckNewPosition(onePercentCandidate(), open, t0))

	// Tenth position: cumulative exactly 10% reaches the ceiling.
	open = append(open, onePercentPosition(8))
	err := g.CheckNewPosition(onePercentCandidate(), open, t0)
	require.Error(t, err)
	assert.Equal(t, engineerr.ErrorCategoryRiskRejected, engineerr.CategoryOf(err))
	assert.Contains(t, err.Error(), "ceiling")
}

func TestGuard_CooldownAfterConsecutiveLosses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveLosses = 5
	cfg.CooldownMinutes = 60
	cfg.DailyLossLimitPercent = 0 // isolate cooldown
	g := NewGuard(cfg, 10000, t0)

	for i := 0; i < 4; i++ {
		g.RecordClose(-10, t0.Add(time.Duration(i)*time.Minute))
		assert.False(t, g.CooldownActive(t0.Add(time.Duration(i)*time.Minute)))
	}

	g.RecordClose(-10, t0.Add(5*time.Minute))
	require.True(t, g.CooldownActive(t0.Add(6*time.Minute)))

	err := g.CheckNewPosition(onePercentCandidate(), nil, t0.Add(10*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooling down")

	// Deadline elapses: entries allowed again.
	after := t0.Add(66 * time.Minute)
	assert.False(t, g.CooldownActive(after))
	assert.NoError(t, g.CheckNewPosition(onePercentCandidate(), nil, after))
}

func TestGuard_CooldownReArmsOnLossAfterExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveLosses = 5
	cfg.CooldownMinutes = 60
	cfg.DailyLossLimitPercent = 0 // isolate cooldown
	g := NewGuard(cfg, 10000, t0)

	for i := 0; i < 5; i++ {
		g.RecordClose(-10, t0.Add(time.Duration(i)*time.Minute))
	}
	require.True(t, g.CooldownActive(t0.Add(5*time.Minute)))

	// First deadline elapses without a win; the streak is still running.
	expired := t0.Add(70 * time.Minute)
	require.False(t, g.CooldownActive(expired))

	g.RecordClose(-10, expired)
	assert.Equal(t, 6, g.Snapshot().ConsecutiveLosses)
	assert.True(t, g.CooldownActive(expired.Add(time.Minute)))

	err := g.CheckNewPosition(onePercentCandidate(), nil, expired.Add(time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooling down")

	// A loss while the new cool-down is running keeps its deadline.
	g.RecordClose(-10, expired.Add(10*time.Minute))
	assert.True(t, g.CooldownActive(expired.Add(59*time.Minute)))
	assert.False(t, g.CooldownActive(expired.Add(61*time.Minute)))
}

func TestGuard_WinningCloseResetsLossStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLossLimitPercent = 0
	g := NewGuard(cfg, 10000, t0)

	for i := 0; i < 4; i++ {
		g.RecordClose(-10, t0)
	}
	assert.Equal(t, 4, g.Snapshot().ConsecutiveLosses)

	g.RecordClose(25, t0)
	assert.Equal(t, 0, g.Snapshot().ConsecutiveLosses)

	// The streak starts over; four more losses still don't trip it.
	for i := 0; i < 4; i++ {
		g.RecordClose(-10, t0)
	}
	assert.False(t, g.CooldownActive(t0))
}

func TestGuard_DailyLossLimitBlocksAndAutoResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLossLimitPercent = 3.0
	cfg.MaxConsecutiveLosses = 100 // isolate the daily limit
	g := NewGuard(cfg, 10000, t0)

	g.RecordClose(-150, t0.Add(time.Hour))
	require.NoError(t, g.CheckNewPosition(onePercentCandidate(), nil, t0.Add(time.Hour)))

	g.RecordClose(-200, t0.Add(2*time.Hour)) // cumulative -350, beyond 3% of 10k
	err := g.CheckNewPosition(onePercentCandidate(), nil, t0.Add(3*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily realized loss")

	// Day rolls over in UTC: the counter auto-resets.
	nextDay := time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC)
	assert.NoError(t, g.CheckNewPosition(onePercentCandidate(), nil, nextDay))
}

func TestGuard_CorrelationLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPortfolioRiskPercent = 1000 // isolate correlation
	cfg.CorrelationLimitPercent = 70
	g := NewGuard(cfg, 100000, t0)

	// Two longs and one short open: 2/3 long exposure (66.7%).
	open := []*types.Position{onePercentPosition(0), onePercentPosition(1)}
	short := onePercentPosition(2)
	short.Direction = types.Short
	open = append(open, short)

	// Another long pushes long share to 75% of open notional.
	err := g.CheckNewPosition(onePercentCandidate(), open, t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exposure")

	// A short candidate rebalances instead: 50/50, accepted.
	cand := onePercentCandidate()
	cand.Direction = types.Short
	assert.NoError(t, g.CheckNewPosition(cand, open, t0))
}

func TestGuard_RecordCloseUpdatesEquity(t *testing.T) {
	g := NewGuard(DefaultConfig(), 10000, t0)

	g.RecordClose(250, t0)
	assert.Equal(t, 10250.0, g.Equity())
	assert.Equal(t, 10250.0, g.Snapshot().PeakEquity)

	g.RecordClose(-100, t0)
	assert.Equal(t, 10150.0, g.Equity())
	assert.Equal(t, 10250.0, g.Snapshot().PeakEquity, "peak is sticky")

	g.RecordFees(10)
	assert.Equal(t, 10140.0, g.Equity())
}

func TestGuard_BreakevenCloseKeepsStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLossLimitPercent = 0
	g := NewGuard(cfg, 10000, t0)

	g.RecordClose(-10, t0)
	g.RecordClose(0, t0)
	assert.Equal(t, 1, g.Snapshot().ConsecutiveLosses, "a flat close neither extends nor resets the streak")
}
