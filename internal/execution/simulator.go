package execution

import (
	"context"
	"math/rand"
	"time"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/marketdata"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Config holds the execution model parameters.
type Config struct {
	Delay              time.Duration `json:"delay"`                // simulated network/processing delay
	MaxSlippagePercent float64       `json:"max_slippage_percent"` // e.g. 0.05
	TypicalVolume      float64       `json:"typical_volume"`       // notional constant for impact scaling
	MaxImpactPercent   float64       `json:"max_impact_percent"`   // cap on market impact
	PartialFillProb    float64       `json:"partial_fill_prob"`    // e.g. 0.1
	PartialFillMin     float64       `json:"partial_fill_min"`     // fraction, e.g. 0.3
	PartialFillMax     float64       `json:"partial_fill_max"`     // fraction, e.g. 0.9
	TradingFeePercent  float64       `json:"trading_fee_percent"`  // flat, e.g. 0.055
	FundingFeePercent  float64       `json:"funding_fee_percent"`  // flat, e.g. 0.01
}

// DefaultConfig returns the standard execution model parameters.
func DefaultConfig() Config {
	return Config{
		Delay:              500 * time.Millisecond,
		MaxSlippagePercent: 0.05,
		TypicalVolume:      1_000_000,
		MaxImpactPercent:   0.1,
		PartialFillProb:    0.1,
		PartialFillMin:     0.3,
		PartialFillMax:     0.9,
		TradingFeePercent:  0.055,
		FundingFeePercent:  0.01,
	}
}

// Fill is the outcome of one simulated execution.
type Fill struct {
	Symbol         string
	Direction      types.Direction
	Price          float64 // executed price after impact and slippage
	Quantity       float64 // executed quantity, <= requested
	RequestedQty   float64
	Partial        bool
	Fees           float64 // flat trading + funding fees on the notional
	Latency        time.Duration
	ExecutedAt     time.Time
	ReferencePrice float64 // re-sampled price before adjustments
}

// Simulator turns an accepted decision into a simulated fill against
// real-time prices.
type Simulator struct {
	config   Config
	provider marketdata.Provider
	rng      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewSimulator creates an execution simulator over the given price source.
func NewSimulator(config Config, provider marketdata.Provider) *Simulator {
	if config.PartialFillMax <= config.PartialFillMin {
		config.PartialFillMin = 0.3
		config.PartialFillMax = 0.9
	}
	return &Simulator{
		config:   config,
		provider: provider,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute simulates filling requestedQty of symbol in the given direction.
// The reference price is re-sampled after the artificial delay, so the fill
// reflects any drift that happened while the order was "in flight".
func (s *Simulator) Execute(ctx context.Context, symbol string, direction types.Direction, requestedQty float64, signalTime time.Time) (*Fill, error) {
	if requestedQty <= 0 {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "execution", "execute",
			"requested quantity must be positive, got %f", requestedQty)
	}
	if direction != types.Long && direction != types.Short {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "execution", "execute",
			"cannot execute a %s decision", direction)
	}

	if err := s.sleep(ctx, s.config.Delay); err != nil {
		return nil, err
	}

	refPrice, err := s.provider.GetPrice(ctx, symbol)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "execution", "resample price")
	}
	if refPrice <= 0 {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "execution", "resample price",
			"non-positive reference price %f for %s", refPrice, symbol)
	}

	price := s.applyMarketImpact(refPrice, requestedQty, direction)
	price = s.applySlippage(price, direction)

	quantity := requestedQty
	partial := false
	if s.rng.Float64() < s.config.PartialFillProb {
		fraction := s.config.PartialFillMin + s.rng.Float64()*(s.config.PartialFillMax-s.config.PartialFillMin)
		quantity = requestedQty * fraction
		partial = true
	}

	executedAt := s.now()
	fees := price * quantity * (s.config.TradingFeePercent + s.config.FundingFeePercent) / 100

	return &Fill{
		Symbol:         symbol,
		Direction:      direction,
		Price:          price,
		Quantity:       quantity,
		RequestedQty:   requestedQty,
		Partial:        partial,
		Fees:           fees,
		Latency:        executedAt.Sub(signalTime),
		ExecutedAt:     executedAt,
		ReferencePrice: refPrice,
	}, nil
}

// applyMarketImpact moves the price against the taker in proportion to the
// order's notional relative to the typical volume constant, capped.
func (s *Simulator) applyMarketImpact(price, quantity float64, direction types.Direction) float64 {
	if s.config.TypicalVolume <= 0 {
		return price
	}
	notional := price * quantity
	impactPct := notional / s.config.TypicalVolume * 100
	if impactPct > s.config.MaxImpactPercent {
		impactPct = s.config.MaxImpactPercent
	}
	if direction == types.Long {
		return price * (1 + impactPct/100)
	}
	return price * (1 - impactPct/100)
}

// applySlippage applies bounded random slippage. Buys pay more, sells
// receive less.
func (s *Simulator) applySlippage(price float64, direction types.Direction) float64 {
	slipPct := s.rng.Float64() * s.config.MaxSlippagePercent
	if direction == types.Long {
		return price * (1 + slipPct/100)
	}
	return price * (1 - slipPct/100)
}
