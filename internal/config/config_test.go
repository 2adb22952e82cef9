package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `categorie: both
funding_min: 0.0001
funding_max: 0.03
volume_min_millions: 10
spread_max: 0.002
volatility_max: 0.15
funding_time_min_minutes: 0
funding_time_max_minutes: 1440
limite: 200
volatility_ttl_sec: 60
refresh_watchlist_interval: 300
refresh_interval: 15

scoring:
  weight_funding: 1.0
  weight_volume: 0.1
  weight_spread: 1.0
  weight_volatility: 0.5
  top_n: 20

turbo:
  enabled: true
  trigger_seconds: 120
  entry_seconds: 30
  refresh_ms: 500
  max_parallel_pairs: 5
  cooldown_s: 600
  miss_order_timeout_s: 20
  ws_timeout_seconds: 15

positions:
  leverage: 3
  capital_fraction: 0.05
  post_only: true
  exit_order_type: limit_post_only
  price_policy: mid
  min_notional_usd: 5

risk:
  max_open_positions: 5
  max_trades_per_day: 50

exchange:
  api_key: "${TEST_BYBIT_API_KEY}"
  secret_key: "${TEST_BYBIT_SECRET_KEY}"

system:
  log_level: "INFO"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_BYBIT_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_BYBIT_SECRET_KEY", "test_secret_key_from_env")
	defer os.Unsetenv("TEST_BYBIT_API_KEY")
	defer os.Unsetenv("TEST_BYBIT_SECRET_KEY")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, Secret("test_api_key_from_env"), config.Exchange.APIKey)
	assert.Equal(t, Secret("test_secret_key_from_env"), config.Exchange.SecretKey)
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "test_api_key")
	assert.NotContains(t, output, "test_secret_key")
}

func TestValidate_RejectsInvertedBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FundingMin = 0.05
	cfg.FundingMax = 0.01

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "funding_min")
}

func TestValidate_RejectsUnknownCategorie(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Categorie = "spot"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "categorie")
}

func TestValidate_RejectsOutOfRangeSpread(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpreadMax = 1.5

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "spread_max")
}

func TestValidate_RejectsRefreshWatchlistIntervalTooLow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshWatchlistInterval = 30

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "refresh_watchlist_interval")
}

func TestValidate_ZeroRefreshWatchlistIntervalDisablesCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshWatchlistInterval = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_AcceptsDefaultConfig(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate_RejectsOutOfRangeStreamTickerTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamTickerTTLSec = 5

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stream_ticker_ttl_sec")
}

func TestValidate_ZeroStreamTickerTTLDisablesCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamTickerTTLSec = 0

	assert.NoError(t, cfg.Validate())
}
