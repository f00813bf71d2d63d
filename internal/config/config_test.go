package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Networks = []NetworkConfig{{
		ID:            "ethereum",
		Name:          "Ethereum",
		BlockInterval: Duration{12 * time.Second},
		GasUnits:      150_000,
		NativeToken:   "ETH",
		NativeUSDRate: 2000,
		Endpoints: []EndpointConfig{
			{URL: "https://eth.example.com", Transport: "http"},
		},
	}}
	cfg.Pairs = []PairConfig{{
		Base: "WETH", Quote: "USDC", BaseDecimals: 18, QuoteDecimals: 6,
	}}
	cfg.Venues = []VenueConfig{{
		Name:    "uniswap",
		Network: "ethereum",
		Kind:    "uniswap_v2",
		FeeBps:  30,
		Active:  true,
		Pools: []PoolConfig{{
			Pair:         "WETH/USDC",
			Address:      "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc",
			BaseIsToken0: true,
		}},
	}}
	return cfg
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "no networks",
			mutate:  func(cfg *Config) { cfg.Networks = nil },
			wantErr: "at least one network",
		},
		{
			name: "duplicate network",
			mutate: func(cfg *Config) {
				cfg.Networks = append(cfg.Networks, cfg.Networks[0])
			},
			wantErr: "duplicate network",
		},
		{
			name:    "no endpoints",
			mutate:  func(cfg *Config) { cfg.Networks[0].Endpoints = nil },
			wantErr: "no endpoints",
		},
		{
			name: "bad transport",
			mutate: func(cfg *Config) {
				cfg.Networks[0].Endpoints[0].Transport = "grpc"
			},
			wantErr: "unknown transport",
		},
		{
			name:    "no pairs",
			mutate:  func(cfg *Config) { cfg.Pairs = nil },
			wantErr: "at least one pair",
		},
		{
			name: "duplicate pair",
			mutate: func(cfg *Config) {
				cfg.Pairs = append(cfg.Pairs, cfg.Pairs[0])
			},
			wantErr: "duplicate pair",
		},
		{
			name: "venue references unknown network",
			mutate: func(cfg *Config) {
				cfg.Venues[0].Network = "base"
			},
			wantErr: "unknown network",
		},
		{
			name: "venue has unknown kind",
			mutate: func(cfg *Config) {
				cfg.Venues[0].Kind = "balancer"
			},
			wantErr: "unknown kind",
		},
		{
			name: "pool references unknown pair",
			mutate: func(cfg *Config) {
				cfg.Venues[0].Pools[0].Pair = "WBTC/USDC"
			},
			wantErr: "unknown pair",
		},
		{
			name: "pool address malformed",
			mutate: func(cfg *Config) {
				cfg.Venues[0].Pools[0].Address = "B4e16d"
			},
			wantErr: "invalid address",
		},
		{
			name: "non-positive update interval",
			mutate: func(cfg *Config) {
				cfg.Monitor.PriceUpdateInterval = Duration{}
			},
			wantErr: "price_update_interval",
		},
		{
			name: "non-positive quote age",
			mutate: func(cfg *Config) {
				cfg.Monitor.MaxQuoteAge = Duration{}
			},
			wantErr: "max_quote_age",
		},
		{
			name:    "unsupported mode",
			mutate:  func(cfg *Config) { cfg.Mode = "replay" },
			wantErr: "unsupported mode",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidate_ModeIsCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "Full"
	assert.NoError(t, cfg.Validate())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("750ms")))
	assert.Equal(t, 750*time.Millisecond, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("fast")))
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "full"
log_level = "debug"

[monitor]
price_update_interval = "2s"

[[networks]]
id = "ethereum"
name = "Ethereum"
block_interval = "12s"
gas_units = 150000
native_token = "ETH"
native_usd_rate = 2000.0

[[networks.endpoints]]
url = "https://eth.example.com"
transport = "http"

[[pairs]]
base = "WETH"
quote = "USDC"
base_decimals = 18
quote_decimals = 6
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PriceUpdateInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Monitor.HealthCheckInterval.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)

	require.Len(t, cfg.Networks, 1)
	require.Len(t, cfg.Networks[0].Endpoints, 1)
	assert.Equal(t, "https://eth.example.com", cfg.Networks[0].Endpoints[0].URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o644))

	t.Setenv("CHAINARB_MODE", "full")
	t.Setenv("CHAINARB_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("CHAINARB_DETECTOR_MAX_GAS_COST_USD", "75.5")
	t.Setenv("CHAINARB_NOTIFY_COOLDOWN", "90s")
	t.Setenv("CHAINARB_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.InDelta(t, 75.5, cfg.Detector.MaxGasCostUSD, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Notify.Cooldown.Duration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("CHAINARB_SERVER_PORT", "not-a-port")
	t.Setenv("CHAINARB_MONITOR_MAX_QUOTE_AGE", "forever")

	applyEnvOverrides(&cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Monitor.MaxQuoteAge.Duration)
}
