package readiness

import (
	"fmt"
)

// Level grades how much historical data is available for a
// symbol/timeframe relative to what the registered strategies need.
type Level int

const (
	Insufficient Level = iota
	Minimum
	Warmup
	Optimal
)

func (l Level) String() string {
	switch l {
	case Insufficient:
		return "INSUFFICIENT"
	case Minimum:
		return "MINIMUM"
	case Warmup:
		return "WARMUP"
	case Optimal:
		return "OPTIMAL"
	default:
		return "UNKNOWN"
	}
}

// Requirement declares how many historical candles a strategy needs on one
// timeframe to produce minimum, warmed-up and optimal quality output.
type Requirement struct {
	Timeframe string
	Min       int
	Warmup    int
	Optimal   int
}

// Adjustment scales trade parameters down when data is not Optimal.
type Adjustment struct {
	ConfidenceMultiplier   float64
	SizeMultiplier         float64
	StopDistanceMultiplier float64
}

// Assessment is the validator's verdict for one symbol.
type Assessment struct {
	Symbol     string
	Level      Level
	Adjustment Adjustment
	Warnings   []string
}

// TradeBlocked reports whether trading is blocked entirely.
func (a Assessment) TradeBlocked() bool {
	return a.Level == Insufficient
}

// adjustmentFor maps a readiness tier to its parameter adjustments.
func adjustmentFor(level Level) Adjustment {
	switch level {
	case Insufficient:
		return Adjustment{ConfidenceMultiplier: 0, SizeMultiplier: 0, StopDistanceMultiplier: 1}
	case Minimum:
		return Adjustment{ConfidenceMultiplier: 0.7, SizeMultiplier: 0.25, StopDistanceMultiplier: 1.5}
	case Warmup:
		return Adjustment{ConfidenceMultiplier: 0.9, SizeMultiplier: 0.5, StopDistanceMultiplier: 1.25}
	default:
		return Adjustment{ConfidenceMultiplier: 1, SizeMultiplier: 1, StopDistanceMultiplier: 1}
	}
}

// Validator grades per-symbol data availability against strategy
// requirements and derives confidence/size/stop adjustments.
type Validator struct {
	requirements []Requirement
}

// NewValidator creates a validator over the union of the registered
// strategies' data requirements.
func NewValidator(requirements []Requirement) *Validator {
	return &Validator{requirements: requirements}
}

// Grade assesses the symbol given the number of available candles per
// timeframe. Overall readiness is the worst tier among required timeframes.
func (v *Validator) Grade(symbol string, available map[string]int) Assessment {
	assessment := Assessment{
		Symbol: symbol,
		Level:  Optimal,
	}

	for _, req := range v.requirements {
		have := available[req.Timeframe]
		level := gradeOne(have, req)
		if level < assessment.Level {
			assessment.Level = level
		}
		if level != Optimal {
			assessment.Warnings = append(assessment.Warnings,
				fmt.Sprintf("%s %s: %d candles available, %s tier (min=%d warmup=%d optimal=%d)",
					symbol, req.Timeframe, have, level, req.Min, req.Warmup, req.Optimal))
		}
	}

	assessment.Adjustment = adjustmentFor(assessment.Level)
	return assessment
}

func gradeOne(have int, req Requirement) Level {
	switch {
	case have < req.Min:
		return Insufficient
	case have < req.Warmup:
		return Minimum
	case have < req.Optimal:
		return Warmup
	default:
		return Optimal
	}
}
