package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHAINARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHAINARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CHAINARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CHAINARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CHAINARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CHAINARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CHAINARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CHAINARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CHAINARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CHAINARB_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "CHAINARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CHAINARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CHAINARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHAINARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHAINARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "CHAINARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CHAINARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CHAINARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CHAINARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CHAINARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CHAINARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CHAINARB_S3_SECRET_KEY")

	// ── Monitor ──
	setDuration(&cfg.Monitor.PriceUpdateInterval, "CHAINARB_MONITOR_PRICE_UPDATE_INTERVAL")
	setDuration(&cfg.Monitor.HealthCheckInterval, "CHAINARB_MONITOR_HEALTH_CHECK_INTERVAL")
	setDuration(&cfg.Monitor.MaxQuoteAge, "CHAINARB_MONITOR_MAX_QUOTE_AGE")
	setInt(&cfg.Monitor.MaxConcurrentFetches, "CHAINARB_MONITOR_MAX_CONCURRENT_FETCHES")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinPriceGapPercent, "CHAINARB_DETECTOR_MIN_PRICE_GAP_PERCENT")
	setFloat64(&cfg.Detector.MinProfitThreshold, "CHAINARB_DETECTOR_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Detector.MaxGasCostUSD, "CHAINARB_DETECTOR_MAX_GAS_COST_USD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CHAINARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CHAINARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CHAINARB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CHAINARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CHAINARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CHAINARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setDuration(&cfg.Notify.Cooldown, "CHAINARB_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "CHAINARB_MODE")
	setStr(&cfg.LogLevel, "CHAINARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
