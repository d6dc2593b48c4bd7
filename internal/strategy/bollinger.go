package strategy

import (
	"fmt"
	"math"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// BollingerStrategy votes mean-reversion: Long near the lower band, Short
// near the upper band.
type BollingerStrategy struct {
	timeframe      string
	period         int
	stdDevMultiple float64
}

// NewBollingerStrategy creates a Bollinger Bands voter.
func NewBollingerStrategy(timeframe string, period int, stdDev float64) *BollingerStrategy {
	if period <= 0 {
		period = 20
	}
	if stdDev <= 0 {
		stdDev = 2.0
	}
	return &BollingerStrategy{timeframe: timeframe, period: period, stdDevMultiple: stdDev}
}

func (s *BollingerStrategy) GetName() string { return fmt.Sprintf("bollinger-%d", s.period) }

func (s *BollingerStrategy) Requirement() readiness.Requirement {
	return readiness.Requirement{
		Timeframe: s.timeframe,
		Min:       s.period,
		Warmup:    s.period * 2,
		Optimal:   s.period * 5,
	}
}

func (s *BollingerStrategy) Evaluate(symbol string, window []types.OHLCV) (types.Vote, error) {
	prices := closes(window)
	if len(prices) < s.period {
		return types.Vote{}, engineerr.New(engineerr.ErrorCategoryDataInsufficient, s.GetName(), "evaluate",
			"insufficient data: have %d candles, need %d", len(prices), s.period)
	}

	recent := prices[len(prices)-s.period:]
	middle := sma(recent)
	stdDev := standardDeviation(recent, middle)

	upper := middle + s.stdDevMultiple*stdDev
	lower := middle - s.stdDevMultiple*stdDev

	currentPrice := prices[len(prices)-1]
	bbPercent := 50.0
	if upper != lower {
		bbPercent = (currentPrice - lower) / (upper - lower) * 100
	}

	vote := types.Vote{Strategy: s.GetName(), Direction: types.Neutral}
	switch {
	case bbPercent < 20:
		vote.Direction = types.Long
		vote.Confidence = math.Min((20-bbPercent)/20, 1.0)
	case bbPercent > 80:
		vote.Direction = types.Short
		vote.Confidence = math.Min((bbPercent-80)/20, 1.0)
	}
	return vote, nil
}

func standardDeviation(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
