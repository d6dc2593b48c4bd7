package strategy

import (
	"fmt"
	"math"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// RSIStrategy votes Long in oversold conditions and Short in overbought.
type RSIStrategy struct {
	timeframe  string
	period     int
	oversold   float64
	overbought float64
}

// NewRSIStrategy creates an RSI voter with the standard 14-period setup.
func NewRSIStrategy(timeframe string, period int, oversold, overbought float64) *RSIStrategy {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= 0 {
		overbought = 70
	}
	return &RSIStrategy{timeframe: timeframe, period: period, oversold: oversold, overbought: overbought}
}

func (s *RSIStrategy) GetName() string { return fmt.Sprintf("rsi-%d", s.period) }

func (s *RSIStrategy) Requirement() readiness.Requirement {
	return readiness.Requirement{
		Timeframe: s.timeframe,
		Min:       s.period + 1,
		Warmup:    s.period * 3,
		Optimal:   s.period * 10,
	}
}

func (s *RSIStrategy) Evaluate(symbol string, window []types.OHLCV) (types.Vote, error) {
	prices := closes(window)
	rsi, err := s.calculate(prices)
	if err != nil {
		return types.Vote{}, engineerr.Wrap(err, engineerr.ErrorCategoryDataInsufficient, s.GetName(), "evaluate")
	}

	vote := types.Vote{Strategy: s.GetName(), Direction: types.Neutral}
	switch {
	case rsi < s.oversold:
		vote.Direction = types.Long
		vote.Confidence = (s.oversold - rsi) / s.oversold
	case rsi > s.overbought:
		vote.Direction = types.Short
		vote.Confidence = (rsi - s.overbought) / (100 - s.overbought)
	}
	return vote, nil
}

func (s *RSIStrategy) calculate(prices []float64) (float64, error) {
	if len(prices) < s.period+1 {
		return 0, fmt.Errorf("insufficient data for RSI: have %d candles, need %d", len(prices), s.period+1)
	}

	gains := make([]float64, 0, s.period)
	losses := make([]float64, 0, s.period)
	for i := len(prices) - s.period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, math.Abs(change))
		}
	}

	avgGain := sma(gains)
	avgLoss := sma(losses)
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
