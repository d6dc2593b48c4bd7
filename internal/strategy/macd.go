package strategy

import (
	"fmt"
	"math"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// MACDStrategy votes on crossovers of the MACD line against its signal line.
type MACDStrategy struct {
	timeframe    string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDStrategy creates a MACD voter with the classic 12/26/9 defaults.
func NewMACDStrategy(timeframe string, fast, slow, signal int) *MACDStrategy {
	if fast <= 0 {
		fast = 12
	}
	if slow <= fast {
		slow = 26
	}
	if signal <= 0 {
		signal = 9
	}
	return &MACDStrategy{timeframe: timeframe, fastPeriod: fast, slowPeriod: slow, signalPeriod: signal}
}

func (s *MACDStrategy) GetName() string {
	return fmt.Sprintf("macd-%d-%d-%d", s.fastPeriod, s.slowPeriod, s.signalPeriod)
}

func (s *MACDStrategy) Requirement() readiness.Requirement {
	need := s.slowPeriod + s.signalPeriod
	return readiness.Requirement{
		Timeframe: s.timeframe,
		Min:       need,
		Warmup:    need * 2,
		Optimal:   need * 4,
	}
}

func (s *MACDStrategy) Evaluate(symbol string, window []types.OHLCV) (types.Vote, error) {
	prices := closes(window)
	need := s.slowPeriod + s.signalPeriod
	if len(prices) < need {
		return types.Vote{}, engineerr.New(engineerr.ErrorCategoryDataInsufficient, s.GetName(), "evaluate",
			"insufficient data: have %d candles, need %d", len(prices), need)
	}

	// MACD history over the last signalPeriod+1 bars so the signal line is
	// a proper EMA of the MACD line, and a crossover can be detected.
	history := make([]float64, 0, s.signalPeriod+1)
	for i := s.signalPeriod; i >= 0; i-- {
		upto := prices[:len(prices)-i]
		history = append(history, ema(upto, s.fastPeriod)-ema(upto, s.slowPeriod))
	}

	macdLine := history[len(history)-1]
	prevMACD := history[len(history)-2]
	signalLine := ema(history, s.signalPeriod)
	prevSignal := ema(history[:len(history)-1], s.signalPeriod)

	vote := types.Vote{Strategy: s.GetName(), Direction: types.Neutral}
	price := prices[len(prices)-1]
	if price == 0 {
		return vote, nil
	}
	confidence := math.Min(math.Abs(macdLine-signalLine)/price*500, 1.0)

	switch {
	case prevMACD <= prevSignal && macdLine > signalLine:
		vote.Direction = types.Long
		vote.Confidence = confidence
	case prevMACD >= prevSignal && macdLine < signalLine:
		vote.Direction = types.Short
		vote.Confidence = confidence
	}
	return vote, nil
}
