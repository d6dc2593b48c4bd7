package execution

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

type stubProvider struct {
	price float64
	err   error
	calls int
}

func (s *stubProvider) GetPrice(ctx context.Context, symbol string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func (s *stubProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	return nil, errors.New("not implemented")
}

func newTestSimulator(cfg Config, provider *stubProvider, seed int64) *Simulator {
	sim := NewSimulator(cfg, provider)
	sim.rng = rand.New(rand.NewSource(seed))
	sim.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return sim
}

func TestSimulator_BuySlippageIsAdverse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0 // isolate price effects
	provider := &stubProvider{price: 100}

	for seed := int64(0); seed < 20; seed++ {
		sim := newTestSimulator(cfg, provider, seed)
		fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1.0, time.Now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fill.Price, 100.0, "buys must pay at or above reference")
		bound := 100.0 * (1 + (cfg.MaxImpactPercent+cfg.MaxSlippagePercent)/100)
		assert.LessOrEqual(t, fill.Price, bound)
	}
}

func TestSimulator_SellSlippageIsAdverse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0
	provider := &stubProvider{price: 100}

	for seed := int64(0); seed < 20; seed++ {
		sim := newTestSimulator(cfg, provider, seed)
		fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Short, 1.0, time.Now())
		require.NoError(t, err)
		assert.LessOrEqual(t, fill.Price, 100.0, "sells must receive at or below reference")
	}
}

func TestSimulator_MarketImpactScalesWithNotionalAndIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0
	cfg.MaxSlippagePercent = 0 // isolate impact
	cfg.TypicalVolume = 1_000_000
	cfg.MaxImpactPercent = 0.1
	provider := &stubProvider{price: 100}

	sim := newTestSimulator(cfg, provider, 1)

	// Small order: 100 notional of 1M typical = 0.01% impact.
	small, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1.0, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 100.01, small.Price, 1e-6)

	// Huge order: impact capped at 0.1%.
	huge, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1_000_000, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 100.1, huge.Price, 1e-6)
}

func TestSimulator_PartialFillBoundedFraction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 1.0 // always partial
	provider := &stubProvider{price: 100}

	for seed := int64(0); seed < 50; seed++ {
		sim := newTestSimulator(cfg, provider, seed)
		fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 10.0, time.Now())
		require.NoError(t, err)
		assert.True(t, fill.Partial)
		assert.GreaterOrEqual(t, fill.Quantity, 3.0, "fraction floor is 30%")
		assert.LessOrEqual(t, fill.Quantity, 9.0, "fraction ceiling is 90%")
	}
}

func TestSimulator_NoPartialFillDeliversFullQuantity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0
	provider := &stubProvider{price: 100}

	sim := newTestSimulator(cfg, provider, 1)
	fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 10.0, time.Now())
	require.NoError(t, err)
	assert.False(t, fill.Partial)
	assert.Equal(t, 10.0, fill.Quantity)
}

func TestSimulator_FeesAreFlatPercentages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0
	cfg.MaxSlippagePercent = 0
	cfg.TypicalVolume = 0 // disable impact
	cfg.TradingFeePercent = 0.1
	cfg.FundingFeePercent = 0.05
	provider := &stubProvider{price: 100}

	sim := newTestSimulator(cfg, provider, 1)
	fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 2.0, time.Now())
	require.NoError(t, err)
	// notional 200, fees 0.15% = 0.30
	assert.InDelta(t, 0.30, fill.Fees, 1e-9)
}

func TestSimulator_LatencyMeasuredFromSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialFillProb = 0
	provider := &stubProvider{price: 100}

	sim := newTestSimulator(cfg, provider, 1)
	signalTime := time.Now().Add(-2 * time.Second)
	fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1.0, signalTime)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fill.Latency, 2*time.Second)
}

func TestSimulator_PriceResampledAfterDelay(t *testing.T) {
	cfg := DefaultConfig()
	provider := &stubProvider{price: 105}

	sim := newTestSimulator(cfg, provider, 1)
	fill, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1.0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "price must be re-sampled exactly once, after the delay")
	assert.Equal(t, 105.0, fill.ReferencePrice)
}

func TestSimulator_RejectsBadInput(t *testing.T) {
	provider := &stubProvider{price: 100}
	sim := newTestSimulator(DefaultConfig(), provider, 1)

	_, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 0, time.Now())
	require.Error(t, err)
	assert.Equal(t, engineerr.ErrorCategoryValidation, engineerr.CategoryOf(err))

	_, err = sim.Execute(context.Background(), "BTCUSDT", types.Neutral, 1, time.Now())
	require.Error(t, err)
	assert.Equal(t, engineerr.ErrorCategoryValidation, engineerr.CategoryOf(err))
}

func TestSimulator_PriceFetchFailureIsTransient(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection reset")}
	sim := newTestSimulator(DefaultConfig(), provider, 1)

	_, err := sim.Execute(context.Background(), "BTCUSDT", types.Long, 1, time.Now())
	require.Error(t, err)
	assert.Equal(t, engineerr.ErrorCategoryTransientNetwork, engineerr.CategoryOf(err))
}
