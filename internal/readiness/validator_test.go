package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRequirements() []Requirement {
	return []Requirement{
		{Timeframe: "1h", Min: 50, Warmup: 100, Optimal: 200},
		{Timeframe: "4h", Min: 30, Warmup: 60, Optimal: 120},
	}
}

func TestValidator_TierGrading(t *testing.T) {
	v := NewValidator(testRequirements())

	tests := []struct {
		name      string
		available map[string]int
		want      Level
	}{
		{"all optimal", map[string]int{"1h": 500, "4h": 200}, Optimal},
		{"one warmup", map[string]int{"1h": 150, "4h": 200}, Warmup},
		{"one minimum", map[string]int{"1h": 60, "4h": 200}, Minimum},
		{"one insufficient", map[string]int{"1h": 10, "4h": 200}, Insufficient},
		{"worst tier wins", map[string]int{"1h": 500, "4h": 40}, Minimum},
		{"missing timeframe counts as zero", map[string]int{"1h": 500}, Insufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := v.Grade("BTCUSDT", tt.available)
			assert.Equal(t, tt.want, a.Level)
		})
	}
}

func TestValidator_InsufficientBlocksTrade(t *testing.T) {
	v := NewValidator(testRequirements())

	a := v.Grade("ETHUSDT", map[string]int{"1h": 5, "4h": 5})
	assert.True(t, a.TradeBlocked())
	assert.Equal(t, 0.0, a.Adjustment.ConfidenceMultiplier)
	assert.Equal(t, 0.0, a.Adjustment.SizeMultiplier)
}

func TestValidator_MinimumAdjustments(t *testing.T) {
	v := NewValidator(testRequirements())

	a := v.Grade("BTCUSDT", map[string]int{"1h": 60, "4h": 200})
	assert.Equal(t, Minimum, a.Level)
	assert.InDelta(t, 0.7, a.Adjustment.ConfidenceMultiplier, 1e-9)   // -30% confidence
	assert.InDelta(t, 0.25, a.Adjustment.SizeMultiplier, 1e-9)        // quarter size
	assert.InDelta(t, 1.5, a.Adjustment.StopDistanceMultiplier, 1e-9) // wider stop
}

func TestValidator_WarmupAdjustments(t *testing.T) {
	v := NewValidator(testRequirements())

	a := v.Grade("BTCUSDT", map[string]int{"1h": 150, "4h": 200})
	assert.Equal(t, Warmup, a.Level)
	assert.InDelta(t, 0.9, a.Adjustment.ConfidenceMultiplier, 1e-9)
	assert.InDelta(t, 0.5, a.Adjustment.SizeMultiplier, 1e-9)
	assert.InDelta(t, 1.25, a.Adjustment.StopDistanceMultiplier, 1e-9)
}

func TestValidator_OptimalHasNoWarnings(t *testing.T) {
	v := NewValidator(testRequirements())

	a := v.Grade("BTCUSDT", map[string]int{"1h": 500, "4h": 500})
	assert.Equal(t, Optimal, a.Level)
	assert.Empty(t, a.Warnings)
	assert.Equal(t, 1.0, a.Adjustment.SizeMultiplier)
}

func TestValidator_NonOptimalCarriesWarnings(t *testing.T) {
	v := NewValidator(testRequirements())

	a := v.Grade("BTCUSDT", map[string]int{"1h": 60, "4h": 40})
	assert.Len(t, a.Warnings, 2)
	assert.Contains(t, a.Warnings[0], "MINIMUM")
}
