package types

import "time"

type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

type Ticker struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Direction is the side of a vote or an open position.
type Direction int

const (
	Neutral Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	case Neutral:
		return "NEUTRAL"
	default:
		return "UNKNOWN"
	}
}

// Vote is a single strategy's opinion for one symbol at one evaluation tick.
type Vote struct {
	Strategy   string
	Direction  Direction
	Confidence float64
}

// TradingSignal bundles the votes produced for one symbol at one tick.
// Strategies that failed to evaluate are simply absent from Votes.
type TradingSignal struct {
	Symbol    string
	Votes     []Vote
	Timestamp time.Time
}
