package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trashpanda-labs/papertrade/pkg/types"
)

func votes(dirs ...types.Direction) types.TradingSignal {
	vs := make([]types.Vote, 0, len(dirs))
	for i, d := range dirs {
		vs = append(vs, types.Vote{
			Strategy:   string(rune('A' + i)),
			Direction:  d,
			Confidence: 0.8,
		})
	}
	return types.TradingSignal{Symbol: "BTCUSDT", Votes: vs, Timestamp: time.Now()}
}

func TestResolver_InsufficientParticipationIsNeutral(t *testing.T) {
	r := NewResolver(4)

	tests := []struct {
		name   string
		signal types.TradingSignal
	}{
		{"no votes", votes()},
		{"one vote", votes(types.Long)},
		{"three long votes", votes(types.Long, types.Long, types.Long)},
		{"three short votes", votes(types.Short, types.Short, types.Short)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(tt.signal)
			assert.Equal(t, types.Neutral, d.Direction)
			assert.Contains(t, d.Reasoning, "insufficient participation")
		})
	}
}

func TestResolver_LongConsensus(t *testing.T) {
	r := NewResolver(4)

	d := r.Resolve(votes(types.Long, types.Long, types.Long, types.Long, types.Short))
	assert.Equal(t, types.Long, d.Direction)
	assert.Equal(t, 4, d.Agreement)
	assert.Equal(t, 5, d.Total)
	assert.InDelta(t, 0.8, d.Strength, 1e-9)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestResolver_ShortConsensus(t *testing.T) {
	r := NewResolver(4)

	d := r.Resolve(votes(types.Short, types.Short, types.Short, types.Short, types.Neutral))
	assert.Equal(t, types.Short, d.Direction)
	assert.Equal(t, 4, d.Agreement)
}

func TestResolver_NoMajorityIsNeutral(t *testing.T) {
	r := NewResolver(4)

	d := r.Resolve(votes(types.Long, types.Long, types.Short, types.Short, types.Neutral))
	assert.Equal(t, types.Neutral, d.Direction)
	assert.Contains(t, d.Reasoning, "no consensus")
}

// With min_required=4 of up to 5 voters, Long and Short can never both hold:
// 4+4 > 5. Exhaustive check over all 5-voter vote sets.
func TestResolver_LongAndShortMutuallyExclusive(t *testing.T) {
	r := NewResolver(4)
	dirs := []types.Direction{types.Long, types.Short, types.Neutral}

	var signals int
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			for c := 0; c < 3; c++ {
				for d := 0; d < 3; d++ {
					for e := 0; e < 3; e++ {
						sig := votes(dirs[a], dirs[b], dirs[c], dirs[d], dirs[e])
						long, short := 0, 0
						for _, v := range sig.Votes {
							switch v.Direction {
							case types.Long:
								long++
							case types.Short:
								short++
							}
						}
						if long >= 4 && short >= 4 {
							t.Fatalf("impossible vote set generated: long=%d short=%d", long, short)
						}
						dec := r.Resolve(sig)
						if long >= 4 {
							assert.Equal(t, types.Long, dec.Direction)
						}
						signals++
					}
				}
			}
		}
	}
	assert.Equal(t, 243, signals)
}

// Failed strategies reduce the reporting denominator; they never inflate
// agreement. Four long reporters out of four reporting is a valid consensus
// even when a fifth strategy errored out.
func TestResolver_FailedStrategiesShrinkDenominator(t *testing.T) {
	r := NewResolver(4)

	d := r.Resolve(votes(types.Long, types.Long, types.Long, types.Long))
	assert.Equal(t, types.Long, d.Direction)
	assert.Equal(t, 4, d.Total)
	assert.InDelta(t, 1.0, d.Strength, 1e-9)
}
