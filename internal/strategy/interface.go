package strategy

import (
	"github.com/trashpanda-labs/papertrade/internal/readiness"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Strategy is a single independent voter. Each registered strategy is
// evaluated once per signal tick; the consensus resolver combines the votes.
type Strategy interface {
	// GetName returns the name of the strategy.
	GetName() string

	// Evaluate analyzes the candle window and returns a directional vote.
	Evaluate(symbol string, window []types.OHLCV) (types.Vote, error)

	// Requirement declares the historical-window lengths this strategy
	// needs, used by the data readiness validator.
	Requirement() readiness.Requirement
}

func closes(window []types.OHLCV) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func ema(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	value := prices[0]
	for _, p := range prices[1:] {
		value = p*k + value*(1-k)
	}
	return value
}
