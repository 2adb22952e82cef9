// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated configuration for the watchlist/turbo
// process.
type Config struct {
	Categorie string `yaml:"categorie" validate:"required,oneof=linear inverse both"`

	FundingMin float64 `yaml:"funding_min"`
	FundingMax float64 `yaml:"funding_max"`

	VolumeMin         float64 `yaml:"volume_min"`
	VolumeMinMillions float64 `yaml:"volume_min_millions"`

	SpreadMax float64 `yaml:"spread_max"`

	VolatilityMin float64 `yaml:"volatility_min"`
	VolatilityMax float64 `yaml:"volatility_max"`

	FundingTimeMinMinutes float64 `yaml:"funding_time_min_minutes"`
	FundingTimeMaxMinutes float64 `yaml:"funding_time_max_minutes"`

	Limite           int `yaml:"limite"`
	VolatilityTTLSec int `yaml:"volatility_ttl_sec"`

	// StreamTickerTTLSec bounds how long a fused InstantTicker may go
	// without an update before FusionStore treats it as stale and purges
	// it. Zero disables purging.
	StreamTickerTTLSec int `yaml:"stream_ticker_ttl_sec"`

	RefreshWatchlistInterval int `yaml:"refresh_watchlist_interval"`
	RefreshInterval          int `yaml:"refresh_interval"`

	Scoring   ScoringConfig       `yaml:"scoring"`
	Turbo     TurboConfig         `yaml:"turbo"`
	Positions PositionsConfig     `yaml:"positions"`
	Risk      RiskConfig          `yaml:"risk"`
	Exchange  ExchangeCredsConfig `yaml:"exchange"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
	System    SystemConfig        `yaml:"system"`
	Alerting  AlertingConfig      `yaml:"alerting"`

	DebugLogs          bool `yaml:"debug_logs"`
	DebugWS            bool `yaml:"debug_ws"`
	DebugWSInactivityS int  `yaml:"debug_ws_inactivity_s"`
}

// ScoringConfig holds the composite-score coefficients and the final
// active-set size.
type ScoringConfig struct {
	WeightFunding    float64 `yaml:"weight_funding"`
	WeightVolume     float64 `yaml:"weight_volume"`
	WeightSpread     float64 `yaml:"weight_spread"`
	WeightVolatility float64 `yaml:"weight_volatility"`
	TopN             int     `yaml:"top_n" validate:"min=1"`
}

// TurboConfig holds C5's design-level parameters.
type TurboConfig struct {
	Enabled                 bool `yaml:"enabled"`
	TriggerSeconds          int  `yaml:"trigger_seconds"`
	EntrySeconds            int  `yaml:"entry_seconds"`
	RefreshMs               int  `yaml:"refresh_ms"`
	MaxParallelPairs        int  `yaml:"max_parallel_pairs"`
	CooldownS               int  `yaml:"cooldown_s"`
	CancelOnFilterBreak     bool `yaml:"cancel_on_filter_break"`
	MissOrderTimeoutS       int  `yaml:"miss_order_timeout_s"`
	AllowMidcycleTopNSwitch bool `yaml:"allow_midcycle_topn_switch"`
	WSTimeoutSeconds        int  `yaml:"ws_timeout_seconds"`
}

// PositionsConfig controls order sizing and placement.
type PositionsConfig struct {
	Leverage         float64 `yaml:"leverage" validate:"min=1"`
	CapitalFraction  float64 `yaml:"capital_fraction" validate:"min=0,max=1"`
	PostOnly         bool    `yaml:"post_only"`
	CloseAtFunding   bool    `yaml:"close_at_funding"`
	ReduceOnlyOnExit bool    `yaml:"reduce_only_on_exit"`
	ExitOrderType    string  `yaml:"exit_order_type" validate:"oneof=limit_post_only market"`
	PricePolicy      string  `yaml:"price_policy" validate:"oneof=best_bid best_ask mid"`
	MakerOffsetBps   float64 `yaml:"maker_offset_bps"`
	MinNotionalUSD   float64 `yaml:"min_notional_usd" validate:"min=0"`
}

// RiskConfig holds trading caps enforced by internal/risk.
type RiskConfig struct {
	MaxOpenPositions     int     `yaml:"max_open_positions" validate:"min=0"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day" validate:"min=0"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" validate:"min=0"`
	MaxDrawdownAmount    float64 `yaml:"max_drawdown_amount" validate:"min=0"`
	MaxDrawdownPercent   float64 `yaml:"max_drawdown_percent" validate:"min=0"`
	CooldownPeriodS      int     `yaml:"cooldown_period_s" validate:"min=0"`
}

// ExchangeCredsConfig holds the API credentials for the single upstream
// exchange this process trades against.
type ExchangeCredsConfig struct {
	APIKey    Secret `yaml:"api_key" validate:"required"`
	SecretKey Secret `yaml:"secret_key" validate:"required"`
	BaseURL   string `yaml:"base_url"`
	Testnet   bool   `yaml:"testnet"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertingConfig holds the optional out-of-band alert sinks fatal turbo
// errors are routed to. A channel with an empty credential is left
// unregistered.
type AlertingConfig struct {
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
}

// SystemConfig contains process-wide ambient settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
	HealthPort   string `yaml:"health_port"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion, then validates it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateCategorie(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateBounds(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateLimits(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateScoring(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validatePositions(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExchange(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateCategorie() error {
	switch c.Categorie {
	case "linear", "inverse", "both":
		return nil
	default:
		return ValidationError{
			Field:   "categorie",
			Value:   c.Categorie,
			Message: "must be one of: linear, inverse, both",
		}
	}
}

func (c *Config) validateBounds() error {
	if c.FundingMin < 0 || c.FundingMax < 0 {
		return ValidationError{Field: "funding_min/funding_max", Message: "must be non-negative"}
	}
	if c.FundingMin > c.FundingMax {
		return ValidationError{Field: "funding_min/funding_max", Message: "funding_min must be <= funding_max"}
	}
	if c.VolatilityMin < 0 || c.VolatilityMax < 0 {
		return ValidationError{Field: "volatility_min/volatility_max", Message: "must be non-negative"}
	}
	if c.VolatilityMin > c.VolatilityMax {
		return ValidationError{Field: "volatility_min/volatility_max", Message: "volatility_min must be <= volatility_max"}
	}
	if c.FundingTimeMinMinutes < 0 || c.FundingTimeMinMinutes > 1440 {
		return ValidationError{Field: "funding_time_min_minutes", Value: c.FundingTimeMinMinutes, Message: "must be in [0, 1440]"}
	}
	if c.FundingTimeMaxMinutes < 0 || c.FundingTimeMaxMinutes > 1440 {
		return ValidationError{Field: "funding_time_max_minutes", Value: c.FundingTimeMaxMinutes, Message: "must be in [0, 1440]"}
	}
	if c.FundingTimeMinMinutes > c.FundingTimeMaxMinutes {
		return ValidationError{Field: "funding_time_min_minutes/funding_time_max_minutes", Message: "min must be <= max"}
	}
	if c.SpreadMax < 0 || c.SpreadMax > 1 {
		return ValidationError{Field: "spread_max", Value: c.SpreadMax, Message: "must be in [0, 1]"}
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limite <= 0 || c.Limite > 1000 {
		return ValidationError{Field: "limite", Value: c.Limite, Message: "must be in (0, 1000]"}
	}
	if c.VolatilityTTLSec < 10 || c.VolatilityTTLSec > 3600 {
		return ValidationError{Field: "volatility_ttl_sec", Value: c.VolatilityTTLSec, Message: "must be in [10, 3600]"}
	}
	if c.StreamTickerTTLSec != 0 && (c.StreamTickerTTLSec < 10 || c.StreamTickerTTLSec > 3600) {
		return ValidationError{Field: "stream_ticker_ttl_sec", Value: c.StreamTickerTTLSec, Message: "must be 0 (disabled) or in [10, 3600]"}
	}
	if c.RefreshWatchlistInterval != 0 && (c.RefreshWatchlistInterval < 60 || c.RefreshWatchlistInterval > 86400) {
		return ValidationError{Field: "refresh_watchlist_interval", Value: c.RefreshWatchlistInterval, Message: "must be 0 (disabled) or in [60, 86400]"}
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.TopN <= 0 {
		return ValidationError{Field: "scoring.top_n", Value: c.Scoring.TopN, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validatePositions() error {
	switch c.Positions.ExitOrderType {
	case "limit_post_only", "market":
	default:
		return ValidationError{Field: "positions.exit_order_type", Value: c.Positions.ExitOrderType, Message: "must be one of: limit_post_only, market"}
	}
	switch c.Positions.PricePolicy {
	case "best_bid", "best_ask", "mid":
	default:
		return ValidationError{Field: "positions.price_policy", Value: c.Positions.PricePolicy, Message: "must be one of: best_bid, best_ask, mid"}
	}
	if c.Positions.Leverage < 1 {
		return ValidationError{Field: "positions.leverage", Value: c.Positions.Leverage, Message: "must be >= 1"}
	}
	if c.Positions.CapitalFraction < 0 || c.Positions.CapitalFraction > 1 {
		return ValidationError{Field: "positions.capital_fraction", Value: c.Positions.CapitalFraction, Message: "must be in [0, 1]"}
	}
	return nil
}

func (c *Config) validateExchange() error {
	if c.Exchange.APIKey == "" {
		return ValidationError{Field: "exchange.api_key", Message: "API key is required"}
	}
	if c.Exchange.SecretKey == "" {
		return ValidationError{Field: "exchange.secret_key", Message: "secret key is required"}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration with
// sensitive data masked, safe to write to logs.
func (c *Config) String() string {
	configCopy := *c
	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests and local runs.
func DefaultConfig() *Config {
	return &Config{
		Categorie:                "both",
		FundingMin:               0.0001,
		FundingMax:               0.03,
		VolumeMinMillions:        10,
		SpreadMax:                0.002,
		VolatilityMin:            0,
		VolatilityMax:            0.15,
		FundingTimeMinMinutes:    0,
		FundingTimeMaxMinutes:    1440,
		Limite:                   200,
		VolatilityTTLSec:         60,
		StreamTickerTTLSec:       120,
		RefreshWatchlistInterval: 300,
		RefreshInterval:          15,
		Scoring: ScoringConfig{
			WeightFunding:    1.0,
			WeightVolume:     0.1,
			WeightSpread:     1.0,
			WeightVolatility: 0.5,
			TopN:             20,
		},
		Turbo: TurboConfig{
			Enabled:                 true,
			TriggerSeconds:          120,
			EntrySeconds:            30,
			RefreshMs:               500,
			MaxParallelPairs:        5,
			CooldownS:               600,
			CancelOnFilterBreak:     true,
			MissOrderTimeoutS:       20,
			AllowMidcycleTopNSwitch: false,
			WSTimeoutSeconds:        15,
		},
		Positions: PositionsConfig{
			Leverage:         3,
			CapitalFraction:  0.05,
			PostOnly:         true,
			CloseAtFunding:   true,
			ReduceOnlyOnExit: true,
			ExitOrderType:    "limit_post_only",
			PricePolicy:      "mid",
			MakerOffsetBps:   1,
			MinNotionalUSD:   5,
		},
		Risk: RiskConfig{
			MaxOpenPositions:     5,
			MaxTradesPerDay:      50,
			MaxConsecutiveLosses: 3,
			MaxDrawdownAmount:    500,
			MaxDrawdownPercent:   10,
			CooldownPeriodS:      900,
		},
		Exchange: ExchangeCredsConfig{
			APIKey:    Secret("test_api_key"),
			SecretKey: Secret("test_secret_key"),
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
			HealthPort:   "8080",
		},
	}
}
