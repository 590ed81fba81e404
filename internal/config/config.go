// Package config defines the top-level configuration for the arbitrage
// watcher and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBWATCH_* environment
// variables.
type Config struct {
	Cex      CexConfig      `toml:"cex"`
	Dex      DexConfig      `toml:"dex"`
	Detector DetectorConfig `toml:"detector"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// CexConfig holds the CEX order-book feed parameters.
type CexConfig struct {
	WsURL         string   `toml:"ws_url"`
	Pair          string   `toml:"pair"`
	Depth         int      `toml:"depth"`
	StreamTimeout duration `toml:"stream_timeout"`
}

// DexConfig holds the Solana endpoints and the watched pool.
type DexConfig struct {
	WsEndpoint       string `toml:"ws_endpoint"`
	RpcEndpoint      string `toml:"rpc_endpoint"`
	WhirlpoolAddress string `toml:"whirlpool_address"`
}

// DetectorConfig holds the arbitrage decision parameters.
type DetectorConfig struct {
	// MinGainMarginPPM is the minimum required edge in parts per million of
	// the cost-side price before a direction fires.
	MinGainMarginPPM int64 `toml:"min_gain_margin_ppm"`
	// MaxTradeVolume is the maximum base-asset volume used when walking the
	// book, e.g. "1.5".
	MaxTradeVolume decimal.Decimal `toml:"max_trade_volume"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters for signal archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "10s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Cex: CexConfig{
			WsURL:         "wss://ws.kraken.com/v2",
			Pair:          "SOL/USD",
			Depth:         10,
			StreamTimeout: duration{10 * time.Second},
		},
		Dex: DexConfig{
			WsEndpoint:  "wss://api.mainnet-beta.solana.com",
			RpcEndpoint: "https://api.mainnet-beta.solana.com",
		},
		Detector: DetectorConfig{
			MinGainMarginPPM: 10,
			MaxTradeVolume:   decimal.NewFromInt(1),
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbwatch-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"signal_detected", "feed_error"},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Mode == "watch" {
		if c.Cex.WsURL == "" {
			errs = append(errs, "cex: ws_url must not be empty")
		}
		if c.Cex.Pair == "" {
			errs = append(errs, "cex: pair must not be empty")
		}
		if c.Cex.Depth <= 0 {
			errs = append(errs, fmt.Sprintf("cex: depth must be positive, got %d", c.Cex.Depth))
		}
		if c.Cex.StreamTimeout.Duration <= 0 {
			errs = append(errs, "cex: stream_timeout must be positive")
		}
		if c.Dex.WsEndpoint == "" {
			errs = append(errs, "dex: ws_endpoint must not be empty")
		}
		if c.Dex.RpcEndpoint == "" {
			errs = append(errs, "dex: rpc_endpoint must not be empty")
		}
		if c.Dex.WhirlpoolAddress == "" {
			errs = append(errs, "dex: whirlpool_address must not be empty")
		}
	}

	// Detector parameters are validated up front so a bad volume never
	// reaches the book walk.
	if c.Detector.MinGainMarginPPM < 0 {
		errs = append(errs, fmt.Sprintf("detector: min_gain_margin_ppm must be >= 0, got %d", c.Detector.MinGainMarginPPM))
	}
	if c.Detector.MaxTradeVolume.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("detector: max_trade_volume must be > 0, got %s", c.Detector.MaxTradeVolume))
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
