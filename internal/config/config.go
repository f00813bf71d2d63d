// Package config defines the top-level configuration for the chainarb
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/calebward/chainarb/internal/domain"
)

// Duration wraps time.Duration so intervals can be written as strings
// ("750ms", "30s") in the TOML file.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CHAINARB_* environment
// variables.
type Config struct {
	Networks []NetworkConfig `toml:"networks"`
	Pairs    []PairConfig    `toml:"pairs"`
	Venues   []VenueConfig   `toml:"venues"`
	Monitor  MonitorConfig   `toml:"monitor"`
	Detector DetectorConfig  `toml:"detector"`
	Chain    ChainConfig     `toml:"chain"`
	Postgres PostgresConfig  `toml:"postgres"`
	Redis    RedisConfig     `toml:"redis"`
	S3       S3Config        `toml:"s3"`
	Archive  ArchiveConfig   `toml:"archive"`
	Server   ServerConfig    `toml:"server"`
	Notify   NotifyConfig    `toml:"notify"`
	Mode     string          `toml:"mode"`
	LogLevel string          `toml:"log_level"`
}

// NetworkConfig describes one monitored chain and its data-source endpoints.
// Endpoint lists have no default and must be supplied.
type NetworkConfig struct {
	ID            string           `toml:"id"`
	Name          string           `toml:"name"`
	BlockInterval Duration         `toml:"block_interval"`
	GasUnits      uint64           `toml:"gas_units"`
	NativeToken   string           `toml:"native_token"`
	NativeUSDRate float64          `toml:"native_usd_rate"`
	Endpoints     []EndpointConfig `toml:"endpoints"`
}

// EndpointConfig describes one candidate RPC endpoint.
type EndpointConfig struct {
	URL       string `toml:"url"`
	Transport string `toml:"transport"` // "http" or "ws"
}

// PairConfig describes one token pair to monitor.
type PairConfig struct {
	Base          string `toml:"base"`
	Quote         string `toml:"quote"`
	BaseAddress   string `toml:"base_address"`
	QuoteAddress  string `toml:"quote_address"`
	BaseDecimals  int    `toml:"base_decimals"`
	QuoteDecimals int    `toml:"quote_decimals"`
}

// VenueConfig describes one exchange deployment on one network.
type VenueConfig struct {
	Name    string       `toml:"name"`
	Network string       `toml:"network"`
	Kind    string       `toml:"kind"` // "uniswap_v2" or "uniswap_v3"
	FeeBps  int          `toml:"fee_bps"`
	Active  bool         `toml:"active"`
	Pools   []PoolConfig `toml:"pools"`
}

// PoolConfig maps a monitored pair to its pool contract on a venue.
type PoolConfig struct {
	Pair         string `toml:"pair"` // "BASE/QUOTE"
	Address      string `toml:"address"`
	BaseIsToken0 bool   `toml:"base_is_token0"`
}

// MonitorConfig holds the polling loop parameters.
type MonitorConfig struct {
	PriceUpdateInterval  Duration `toml:"price_update_interval"`
	HealthCheckInterval  Duration `toml:"health_check_interval"`
	MinRefetchInterval   Duration `toml:"min_refetch_interval"`
	FetchTimeout         Duration `toml:"fetch_timeout"`
	MaxQuoteAge          Duration `toml:"max_quote_age"`
	MaxConcurrentFetches int      `toml:"max_concurrent_fetches"`
	FetchRatePerSec      float64  `toml:"fetch_rate_per_sec"`
}

// DetectorConfig holds the opportunity detection thresholds.
type DetectorConfig struct {
	MinPriceGapPercent float64 `toml:"min_price_gap_percent"`
	MinProfitThreshold float64 `toml:"min_profit_threshold"` // minimum net margin, percent
	MaxGasCostUSD      float64 `toml:"max_gas_cost_usd"`
	MinLiquidity       float64 `toml:"min_liquidity"`
	MaxReferenceSize   float64 `toml:"max_reference_size"` // cap on sizing from liquidity, base units
}

// ChainConfig holds the connection manager parameters.
type ChainConfig struct {
	MaxRetries      int      `toml:"max_retries"` // per-endpoint error budget before deactivation
	ProbeAttempts   int      `toml:"probe_attempts"`
	ProbeTimeout    Duration `toml:"probe_timeout"`
	ProbeBackoff    Duration `toml:"probe_backoff"`
	ReactivateAfter Duration `toml:"reactivate_after"` // cool-down before a dead endpoint is retried
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage retention sweep parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      Duration `toml:"interval"`
}

// ServerConfig holds the status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds alert delivery parameters. Cooldown throttles repeat
// alerts for the same pair.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Cooldown          Duration `toml:"cooldown"`
}

// Defaults returns a Config populated with sane defaults for everything
// except networks, pairs, venues, and endpoint lists, which must be supplied.
func Defaults() Config {
	return Config{
		Monitor: MonitorConfig{
			PriceUpdateInterval:  Duration{time.Second},
			HealthCheckInterval:  Duration{30 * time.Second},
			MinRefetchInterval:   Duration{500 * time.Millisecond},
			FetchTimeout:         Duration{5 * time.Second},
			MaxQuoteAge:          Duration{30 * time.Second},
			MaxConcurrentFetches: 16,
			FetchRatePerSec:      50,
		},
		Detector: DetectorConfig{
			MinPriceGapPercent: 0.5,
			MinProfitThreshold: 1.0,
			MaxGasCostUSD:      100,
			MinLiquidity:       0,
			MaxReferenceSize:   0, // 0 = no cap
		},
		Chain: ChainConfig{
			MaxRetries:      5,
			ProbeAttempts:   2,
			ProbeTimeout:    Duration{4 * time.Second},
			ProbeBackoff:    Duration{250 * time.Millisecond},
			ReactivateAfter: Duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      Duration{6 * time.Hour},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Notify: NotifyConfig{
			Cooldown: Duration{5 * time.Minute},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal errors. The process must not
// begin polling with an invalid configuration.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network is required")
	}

	networks := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if n.ID == "" {
			return fmt.Errorf("config: network with empty id")
		}
		if networks[n.ID] {
			return fmt.Errorf("config: duplicate network %q", n.ID)
		}
		networks[n.ID] = true

		if len(n.Endpoints) == 0 {
			return fmt.Errorf("config: network %q has no endpoints; endpoint lists must be supplied", n.ID)
		}
		for _, e := range n.Endpoints {
			if e.URL == "" {
				return fmt.Errorf("config: network %q has an endpoint with empty url", n.ID)
			}
			switch domain.Transport(e.Transport) {
			case domain.TransportHTTP, domain.TransportWS, "":
			default:
				return fmt.Errorf("config: network %q endpoint %q: unknown transport %q", n.ID, e.URL, e.Transport)
			}
		}
		if n.NativeUSDRate < 0 {
			return fmt.Errorf("config: network %q has negative native_usd_rate", n.ID)
		}
	}

	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: at least one pair is required")
	}
	pairs := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Base == "" || p.Quote == "" {
			return fmt.Errorf("config: pair with empty base or quote symbol")
		}
		id := p.Base + "/" + p.Quote
		if pairs[id] {
			return fmt.Errorf("config: duplicate pair %q", id)
		}
		pairs[id] = true
	}

	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venue with empty name")
		}
		if !networks[v.Network] {
			return fmt.Errorf("config: venue %q references unknown network %q", v.Name, v.Network)
		}
		switch domain.ProtocolKind(v.Kind) {
		case domain.KindConstantProduct, domain.KindConcentrated:
		default:
			return fmt.Errorf("config: venue %q has unknown kind %q", v.Name, v.Kind)
		}
		for _, p := range v.Pools {
			if !pairs[p.Pair] {
				return fmt.Errorf("config: venue %q pool references unknown pair %q", v.Name, p.Pair)
			}
			if !strings.HasPrefix(p.Address, "0x") || len(p.Address) != 42 {
				return fmt.Errorf("config: venue %q pool %q has invalid address %q", v.Name, p.Pair, p.Address)
			}
		}
	}

	if c.Monitor.PriceUpdateInterval.Duration <= 0 {
		return fmt.Errorf("config: price_update_interval must be positive")
	}
	if c.Monitor.HealthCheckInterval.Duration <= 0 {
		return fmt.Errorf("config: health_check_interval must be positive")
	}
	if c.Monitor.MaxQuoteAge.Duration <= 0 {
		return fmt.Errorf("config: max_quote_age must be positive")
	}
	if c.Monitor.MaxConcurrentFetches < 1 {
		return fmt.Errorf("config: max_concurrent_fetches must be at least 1")
	}
	if c.Chain.MaxRetries < 1 {
		return fmt.Errorf("config: chain max_retries must be at least 1")
	}

	switch strings.ToLower(c.Mode) {
	case "monitor", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	return nil
}
