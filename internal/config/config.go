package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trashpanda-labs/papertrade/internal/engine"
	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/internal/execution"
	"github.com/trashpanda-labs/papertrade/internal/exits"
	"github.com/trashpanda-labs/papertrade/internal/risk"
	"github.com/trashpanda-labs/papertrade/internal/safety"
)

// allowedIntervals are the tick timeframes the stream supports.
var allowedIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true, "1d": true,
}

// Config is the complete engine configuration, loaded from a JSON file in
// configs/ with environment overrides for credentials.
type Config struct {
	Symbols             []string `json:"symbols"`
	Interval            string   `json:"interval"`              // tick timeframe, e.g. "1m"
	EvalIntervalMinutes int      `json:"eval_interval_minutes"` // signal cadence, default 60
	InitialEquity       float64  `json:"initial_equity"`
	MinRequiredVotes    int      `json:"min_required_votes"`
	MinConfidence       float64  `json:"min_confidence"`
	RiskPerTradePercent float64  `json:"risk_per_trade_percent"`
	TakeProfitPercent   float64  `json:"take_profit_percent"`

	Exchange      ExchangeConfig      `json:"exchange"`
	Execution     ExecutionConfig     `json:"execution"`
	Exits         ExitConfig          `json:"exits"`
	Risk          risk.Config         `json:"risk"`
	Breaker       BreakerConfig       `json:"circuit_breaker"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Retry         RetryConfig         `json:"retry"`
	Storage       StorageConfig       `json:"storage"`
	Monitoring    MonitoringConfig    `json:"monitoring"`
	Notifications *NotificationConfig `json:"notifications,omitempty"`
}

// ExchangeConfig holds the market-data connection settings.
type ExchangeConfig struct {
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	Category  string `json:"category"` // "spot", "linear", "inverse"
	Testnet   bool   `json:"testnet"`
}

// ExecutionConfig mirrors the simulator knobs with JSON-friendly units.
type ExecutionConfig struct {
	DelayMs            int     `json:"delay_ms"`
	MaxSlippagePercent float64 `json:"max_slippage_percent"`
	TypicalVolume      float64 `json:"typical_volume"`
	MaxImpactPercent   float64 `json:"max_impact_percent"`
	PartialFillProb    float64 `json:"partial_fill_prob"`
	PartialFillMin     float64 `json:"partial_fill_min"`
	PartialFillMax     float64 `json:"partial_fill_max"`
	TradingFeePercent  float64 `json:"trading_fee_percent"`
	FundingFeePercent  float64 `json:"funding_fee_percent"`
}

// ExitConfig mirrors the exit-strategy preset with JSON-friendly units.
type ExitConfig struct {
	DefaultStopLossPercent    float64                 `json:"default_stop_loss_percent"`
	TrailingActivationPercent float64                 `json:"trailing_activation_percent"`
	TrailingPercent           float64                 `json:"trailing_percent"`
	ReversalDropCount         int                     `json:"reversal_drop_count"`
	ReversalMinMovePercent    float64                 `json:"reversal_min_move_percent"`
	PartialExitRules          []exits.PartialExitRule `json:"partial_exit_rules"`
	MaxHoldHours              int                     `json:"max_hold_hours"`
}

// BreakerConfig holds the account circuit-breaker thresholds.
type BreakerConfig struct {
	DailyLossPercent   float64 `json:"daily_loss_percent"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
}

// RateLimitConfig holds the REST token-bucket settings.
type RateLimitConfig struct {
	Capacity     int     `json:"capacity"`
	RefillPerSec float64 `json:"refill_per_sec"`
}

// RetryConfig holds the backoff policy with JSON-friendly units.
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms"`
	BackoffFactor  float64 `json:"backoff_factor"`
	JitterFraction float64 `json:"jitter_fraction"`
}

// StorageConfig holds the trade store location.
type StorageConfig struct {
	Path string `json:"path"`
}

// MonitoringConfig holds the metrics/health HTTP listener settings.
type MonitoringConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// NotificationConfig holds optional alerting settings.
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"`
	TelegramChat  string `json:"telegram_chat,omitempty"`
}

// Load reads a JSON config. Bare names resolve to configs/<name>.json.
func Load(configFile string) (*Config, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryValidation, "config", "load")
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryValidation, "config", "parse")
	}

	config.setDefaults()
	config.applyEnv()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.EvalIntervalMinutes == 0 {
		c.EvalIntervalMinutes = 60
	}
	if c.InitialEquity == 0 {
		c.InitialEquity = 10_000
	}
	if c.MinRequiredVotes == 0 {
		c.MinRequiredVotes = 4
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.6
	}
	if c.RiskPerTradePercent == 0 {
		c.RiskPerTradePercent = 1.0
	}
	if c.TakeProfitPercent == 0 {
		c.TakeProfitPercent = 4.0
	}

	if c.Exchange.Category == "" {
		c.Exchange.Category = "linear"
	}

	def := execution.DefaultConfig()
	if c.Execution.DelayMs == 0 {
		c.Execution.DelayMs = int(def.Delay / time.Millisecond)
	}
	if c.Execution.MaxSlippagePercent == 0 {
		c.Execution.MaxSlippagePercent = def.MaxSlippagePercent
	}
	if c.Execution.TypicalVolume == 0 {
		c.Execution.TypicalVolume = def.TypicalVolume
	}
	if c.Execution.MaxImpactPercent == 0 {
		c.Execution.MaxImpactPercent = def.MaxImpactPercent
	}
	if c.Execution.PartialFillProb == 0 {
		c.Execution.PartialFillProb = def.PartialFillProb
	}
	if c.Execution.PartialFillMin == 0 {
		c.Execution.PartialFillMin = def.PartialFillMin
	}
	if c.Execution.PartialFillMax == 0 {
		c.Execution.PartialFillMax = def.PartialFillMax
	}
	if c.Execution.TradingFeePercent == 0 {
		c.Execution.TradingFeePercent = def.TradingFeePercent
	}
	if c.Execution.FundingFeePercent == 0 {
		c.Execution.FundingFeePercent = def.FundingFeePercent
	}

	exitDef := exits.DefaultConfig()
	if c.Exits.DefaultStopLossPercent == 0 {
		c.Exits.DefaultStopLossPercent = exitDef.DefaultStopLossPercent
	}
	if c.Exits.TrailingActivationPercent == 0 {
		c.Exits.TrailingActivationPercent = exitDef.TrailingActivationPercent
	}
	if c.Exits.TrailingPercent == 0 {
		c.Exits.TrailingPercent = exitDef.TrailingPercent
	}
	if c.Exits.ReversalDropCount == 0 {
		c.Exits.ReversalDropCount = exitDef.ReversalDropCount
	}
	if c.Exits.ReversalMinMovePercent == 0 {
		c.Exits.ReversalMinMovePercent = exitDef.ReversalMinMovePercent
	}
	if len(c.Exits.PartialExitRules) == 0 {
		c.Exits.PartialExitRules = exitDef.PartialExitRules
	}
	if c.Exits.MaxHoldHours == 0 {
		c.Exits.MaxHoldHours = int(exitDef.MaxHoldDuration / time.Hour)
	}

	riskDef := risk.DefaultConfig()
	if c.Risk.MaxPortfolioRiskPercent == 0 {
		c.Risk.MaxPortfolioRiskPercent = riskDef.MaxPortfolioRiskPercent
	}
	if c.Risk.DailyLossLimitPercent == 0 {
		c.Risk.DailyLossLimitPercent = riskDef.DailyLossLimitPercent
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = riskDef.MaxConsecutiveLosses
	}
	if c.Risk.CooldownMinutes == 0 {
		c.Risk.CooldownMinutes = riskDef.CooldownMinutes
	}
	if c.Risk.CorrelationLimitPercent == 0 {
		c.Risk.CorrelationLimitPercent = riskDef.CorrelationLimitPercent
	}

	breakerDef := safety.DefaultCircuitBreakerConfig()
	if c.Breaker.DailyLossPercent == 0 {
		c.Breaker.DailyLossPercent = breakerDef.DailyLossPercent
	}
	if c.Breaker.MaxDrawdownPercent == 0 {
		c.Breaker.MaxDrawdownPercent = breakerDef.MaxDrawdownPercent
	}

	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 10
	}
	if c.RateLimit.RefillPerSec == 0 {
		c.RateLimit.RefillPerSec = 5
	}

	retryDef := safety.DefaultRetryConfig()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retryDef.MaxAttempts
	}
	if c.Retry.InitialDelayMs == 0 {
		c.Retry.InitialDelayMs = int(retryDef.InitialDelay / time.Millisecond)
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = int(retryDef.MaxDelay / time.Millisecond)
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = retryDef.BackoffFactor
	}
	if c.Retry.JitterFraction == 0 {
		c.Retry.JitterFraction = retryDef.JitterFraction
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/papertrade.db"
	}
	if c.Monitoring.ListenAddr == "" {
		c.Monitoring.ListenAddr = ":9090"
	}
}

// applyEnv overrides credentials from the environment so secrets never live
// in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if c.Notifications != nil {
		if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
			c.Notifications.TelegramToken = v
		}
		if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
			c.Notifications.TelegramChat = v
		}
	}
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate", "symbols must not be empty")
	}
	if !allowedIntervals[c.Interval] {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
			"interval %q outside allowed set", c.Interval)
	}
	if c.InitialEquity <= 0 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
			"initial equity must be positive, got %.2f", c.InitialEquity)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
			"min confidence %.2f outside [0, 1]", c.MinConfidence)
	}
	if c.Execution.PartialFillMin > c.Execution.PartialFillMax {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
			"partial fill min %.2f exceeds max %.2f", c.Execution.PartialFillMin, c.Execution.PartialFillMax)
	}
	if c.Risk.MaxPortfolioRiskPercent <= 0 || c.Risk.MaxPortfolioRiskPercent > 100 {
		return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
			"portfolio risk ceiling %.2f%% outside (0, 100]", c.Risk.MaxPortfolioRiskPercent)
	}
	for _, rule := range c.Exits.PartialExitRules {
		if rule.ExitFraction <= 0 || rule.ExitFraction > 1 {
			return engineerr.New(engineerr.ErrorCategoryValidation, "config", "validate",
				"partial exit fraction %.2f outside (0, 1]", rule.ExitFraction)
		}
	}
	return nil
}

// EngineConfig builds the engine tuning struct.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Symbols:             c.Symbols,
		EvalInterval:        time.Duration(c.EvalIntervalMinutes) * time.Minute,
		StreamTimeframe:     c.Interval,
		MinConfidence:       c.MinConfidence,
		RiskPerTradePercent: c.RiskPerTradePercent,
		TakeProfitPercent:   c.TakeProfitPercent,
		CloseFeePercent:     c.Execution.TradingFeePercent + c.Execution.FundingFeePercent,
	}
}

// ExecutionConfig builds the simulator config.
func (c *Config) ExecutionConfig() execution.Config {
	return execution.Config{
		Delay:              time.Duration(c.Execution.DelayMs) * time.Millisecond,
		MaxSlippagePercent: c.Execution.MaxSlippagePercent,
		TypicalVolume:      c.Execution.TypicalVolume,
		MaxImpactPercent:   c.Execution.MaxImpactPercent,
		PartialFillProb:    c.Execution.PartialFillProb,
		PartialFillMin:     c.Execution.PartialFillMin,
		PartialFillMax:     c.Execution.PartialFillMax,
		TradingFeePercent:  c.Execution.TradingFeePercent,
		FundingFeePercent:  c.Execution.FundingFeePercent,
	}
}

// ExitsConfig builds the exit-manager config.
func (c *Config) ExitsConfig() exits.Config {
	def := exits.DefaultConfig()
	return exits.Config{
		DefaultStopLossPercent:    c.Exits.DefaultStopLossPercent,
		TrailingActivationPercent: c.Exits.TrailingActivationPercent,
		TrailingPercent:           c.Exits.TrailingPercent,
		ReversalDropCount:         c.Exits.ReversalDropCount,
		ReversalMinMovePercent:    c.Exits.ReversalMinMovePercent,
		PartialExitRules:          c.Exits.PartialExitRules,
		MaxHoldDuration:           time.Duration(c.Exits.MaxHoldHours) * time.Hour,
		PriceHistorySize:          def.PriceHistorySize,
	}
}

// BreakerConfig builds the circuit-breaker config.
func (c *Config) BreakerConfig() safety.CircuitBreakerConfig {
	return safety.CircuitBreakerConfig{
		DailyLossPercent:   c.Breaker.DailyLossPercent,
		MaxDrawdownPercent: c.Breaker.MaxDrawdownPercent,
	}
}

// RetryPolicy builds the backoff config.
func (c *Config) RetryPolicy() safety.RetryConfig {
	return safety.RetryConfig{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialDelay:   time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		BackoffFactor:  c.Retry.BackoffFactor,
		JitterFraction: c.Retry.JitterFraction,
	}
}
