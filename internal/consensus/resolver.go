package consensus

import (
	"fmt"

	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// Decision is the single Long/Short/Neutral call derived from the votes of
// one evaluation tick.
type Decision struct {
	Symbol     string
	Direction  types.Direction
	Agreement  int     // votes on the winning side
	Total      int     // strategies that actually reported
	Strength   float64 // max(long, short) / total
	Confidence float64 // average confidence of agreeing votes
	Reasoning  string
}

// Resolver combines per-strategy votes into one trading decision. The
// agreement threshold is checked against the count of strategies that
// actually reported; strategies that failed to evaluate shrink the
// denominator, they never count toward agreement.
type Resolver struct {
	minRequired int
}

// NewResolver creates a resolver with the given minimum agreement count.
func NewResolver(minRequired int) *Resolver {
	if minRequired <= 0 {
		minRequired = 4
	}
	return &Resolver{minRequired: minRequired}
}

// Resolve turns the votes of one signal into a decision.
func (r *Resolver) Resolve(signal types.TradingSignal) Decision {
	var long, short, neutral int
	var longConf, shortConf float64

	for _, v := range signal.Votes {
		switch v.Direction {
		case types.Long:
			long++
			longConf += v.Confidence
		case types.Short:
			short++
			shortConf += v.Confidence
		default:
			neutral++
		}
	}
	total := len(signal.Votes)

	d := Decision{
		Symbol:    signal.Symbol,
		Direction: types.Neutral,
		Total:     total,
	}
	if total > 0 {
		d.Strength = float64(maxInt(long, short)) / float64(total)
	}

	if total < r.minRequired {
		d.Reasoning = fmt.Sprintf("insufficient participation: %d of %d required strategies reported", total, r.minRequired)
		return d
	}

	switch {
	case long >= r.minRequired:
		d.Direction = types.Long
		d.Agreement = long
		d.Confidence = longConf / float64(long)
		d.Reasoning = fmt.Sprintf("LONG consensus: %d/%d strategies agree (strength %.2f)", long, total, d.Strength)
	case short >= r.minRequired:
		d.Direction = types.Short
		d.Agreement = short
		d.Confidence = shortConf / float64(short)
		d.Reasoning = fmt.Sprintf("SHORT consensus: %d/%d strategies agree (strength %.2f)", short, total, d.Strength)
	default:
		d.Reasoning = fmt.Sprintf("no consensus: long=%d short=%d neutral=%d of %d (need %d)", long, short, neutral, total, r.minRequired)
	}

	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
