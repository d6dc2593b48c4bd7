package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `{"symbols": ["BTCUSDT"]}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1m", cfg.Interval)
	assert.Equal(t, 60, cfg.EvalIntervalMinutes)
	assert.Equal(t, 10_000.0, cfg.InitialEquity)
	assert.Equal(t, 4, cfg.MinRequiredVotes)
	assert.Equal(t, 10.0, cfg.Risk.MaxPortfolioRiskPercent)
	assert.Equal(t, 2.0, cfg.Exits.DefaultStopLossPercent)
	assert.Len(t, cfg.Exits.PartialExitRules, 2)
	assert.Equal(t, "data/papertrade.db", cfg.Storage.Path)
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, `{
		"symbols": ["ETHUSDT", "BTCUSDT"],
		"interval": "5m",
		"eval_interval_minutes": 15,
		"initial_equity": 25000,
		"risk": {"max_portfolio_risk_percent": 5}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, "5m", cfg.Interval)
	assert.Equal(t, 25_000.0, cfg.InitialEquity)
	assert.Equal(t, 5.0, cfg.Risk.MaxPortfolioRiskPercent)
	assert.Equal(t, 15*time.Minute, cfg.EngineConfig().EvalInterval)
}

func TestLoad_RejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `{"symbols": ["BTCUSDT"], "interval": "7m"}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestLoad_RejectsEmptySymbols(t *testing.T) {
	path := writeConfig(t, `{"symbols": []}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsNegativeEquity(t *testing.T) {
	path := writeConfig(t, `{"symbols": ["BTCUSDT"], "initial_equity": -5}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadPartialFraction(t *testing.T) {
	path := writeConfig(t, `{
		"symbols": ["BTCUSDT"],
		"exits": {"partial_exit_rules": [{"trigger_profit_percent": 2, "exit_fraction": 1.5}]}
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("BYBIT_API_SECRET", "env-secret")

	path := writeConfig(t, `{"symbols": ["BTCUSDT"], "exchange": {"api_key": "file-key"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)
}

func TestConfig_ComponentBuilders(t *testing.T) {
	path := writeConfig(t, `{
		"symbols": ["BTCUSDT"],
		"execution": {"delay_ms": 2000},
		"exits": {"max_hold_hours": 48},
		"retry": {"max_attempts": 5}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.ExecutionConfig().Delay)
	assert.Equal(t, 48*time.Hour, cfg.ExitsConfig().MaxHoldDuration)
	assert.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
	assert.Greater(t, cfg.BreakerConfig().DailyLossPercent, 0.0)
}
