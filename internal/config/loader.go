package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBWATCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ARBWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── CEX ──
	setStr(&cfg.Cex.WsURL, "ARBWATCH_CEX_WS_URL")
	setStr(&cfg.Cex.Pair, "ARBWATCH_CEX_PAIR")
	setInt(&cfg.Cex.Depth, "ARBWATCH_CEX_DEPTH")
	setDuration(&cfg.Cex.StreamTimeout, "ARBWATCH_CEX_STREAM_TIMEOUT")

	// ── DEX ──
	setStr(&cfg.Dex.WsEndpoint, "ARBWATCH_DEX_WS_ENDPOINT")
	setStr(&cfg.Dex.RpcEndpoint, "ARBWATCH_DEX_RPC_ENDPOINT")
	setStr(&cfg.Dex.WhirlpoolAddress, "ARBWATCH_DEX_WHIRLPOOL_ADDRESS")

	// ── Detector ──
	setInt64(&cfg.Detector.MinGainMarginPPM, "ARBWATCH_DETECTOR_MIN_GAIN_MARGIN_PPM")
	setDecimal(&cfg.Detector.MaxTradeVolume, "ARBWATCH_DETECTOR_MAX_TRADE_VOLUME")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBWATCH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBWATCH_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "ARBWATCH_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBWATCH_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBWATCH_MODE")
	setStr(&cfg.LogLevel, "ARBWATCH_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
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
