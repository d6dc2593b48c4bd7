package strategy

import (
	"fmt"
	"math"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// EMATrendStrategy votes with price position relative to a single EMA: Long
// above it, Short below, Neutral inside a small dead band around it.
type EMATrendStrategy struct {
	timeframe string
	period    int
}

// NewEMATrendStrategy creates an EMA trend voter.
func NewEMATrendStrategy(timeframe string, period int) *EMATrendStrategy {
	if period <= 0 {
		period = 50
	}
	return &EMATrendStrategy{timeframe: timeframe, period: period}
}

func (s *EMATrendStrategy) GetName() string {
	return fmt.Sprintf("ema-trend-%d", s.period)
}

func (s *EMATrendStrategy) Requirement() readiness.Requirement {
	return readiness.Requirement{
		Timeframe: s.timeframe,
		Min:       s.period,
		Warmup:    s.period * 2,
		Optimal:   s.period * 4,
	}
}

func (s *EMATrendStrategy) Evaluate(symbol string, window []types.OHLCV) (types.Vote, error) {
	prices := closes(window)
	if len(prices) < s.period {
		return types.Vote{}, engineerr.New(engineerr.ErrorCategoryDataInsufficient, s.GetName(), "evaluate",
			"insufficient data: have %d candles, need %d", len(prices), s.period)
	}

	avg := ema(prices, s.period)
	price := prices[len(prices)-1]

	vote := types.Vote{Strategy: s.GetName(), Direction: types.Neutral}
	if avg == 0 {
		return vote, nil
	}

	distance := (price - avg) / avg
	confidence := math.Min(math.Abs(distance)*25, 1.0)

	switch {
	case distance > 0.002:
		vote.Direction = types.Long
		vote.Confidence = confidence
	case distance < -0.002:
		vote.Direction = types.Short
		vote.Confidence = confidence
	}
	return vote, nil
}
