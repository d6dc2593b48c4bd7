package strategy

import (
	"fmt"
	"math"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// SMACrossStrategy votes with the trend: Long when the fast moving average
// sits above the slow one, Short when below.
type SMACrossStrategy struct {
	timeframe  string
	fastPeriod int
	slowPeriod int
}

// NewSMACrossStrategy creates an SMA crossover voter.
func NewSMACrossStrategy(timeframe string, fast, slow int) *SMACrossStrategy {
	if fast <= 0 {
		fast = 20
	}
	if slow <= fast {
		slow = fast * 2
	}
	return &SMACrossStrategy{timeframe: timeframe, fastPeriod: fast, slowPeriod: slow}
}

func (s *SMACrossStrategy) GetName() string {
	return fmt.Sprintf("sma-cross-%d-%d", s.fastPeriod, s.slowPeriod)
}

func (s *SMACrossStrategy) Requirement() readiness.Requirement {
	return readiness.Requirement{
		Timeframe: s.timeframe,
		Min:       s.slowPeriod,
		Warmup:    s.slowPeriod * 2,
		Optimal:   s.slowPeriod * 4,
	}
}

func (s *SMACrossStrategy) Evaluate(symbol string, window []types.OHLCV) (types.Vote, error) {
	prices := closes(window)
	if len(prices) < s.slowPeriod {
		return types.Vote{}, engineerr.New(engineerr.ErrorCategoryDataInsufficient, s.GetName(), "evaluate",
			"insufficient data: have %d candles, need %d", len(prices), s.slowPeriod)
	}

	fast := sma(prices[len(prices)-s.fastPeriod:])
	slow := sma(prices[len(prices)-s.slowPeriod:])

	vote := types.Vote{Strategy: s.GetName(), Direction: types.Neutral}
	if slow == 0 {
		return vote, nil
	}

	// Spread between the averages, as a fraction of the slow average,
	// doubles as the confidence score.
	spread := (fast - slow) / slow
	confidence := math.Min(math.Abs(spread)*20, 1.0)

	switch {
	case spread > 0.001:
		vote.Direction = types.Long
		vote.Confidence = confidence
	case spread < -0.001:
		vote.Direction = types.Short
		vote.Confidence = confidence
	}
	return vote, nil
}
