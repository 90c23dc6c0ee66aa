// Package config defines the top-level configuration for the prediction
// market engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTAMM_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Metadata MetadataConfig `toml:"metadata"`
	Resolver ResolverConfig `toml:"resolver"`
	Journal  JournalConfig  `toml:"journal"`
	Archive  ArchiveConfig  `toml:"archive"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds registry-wide market defaults.
type EngineConfig struct {
	CollateralSymbol   string `toml:"collateral_symbol"`
	CollateralDecimals int    `toml:"collateral_decimals"`
	DefaultFeeBps      int    `toml:"default_fee_bps"`
	// Curve is "reserve_ratio" or "constant_product" (alias "fpmm").
	Curve           string `toml:"curve"`
	RegistryAddress string `toml:"registry_address"`
	ChainID         int64  `toml:"chain_id"`
	// DistributedLock also takes a Redis lock per market mutation. It orders
	// projected writes between processes sharing the backends; engine state
	// and sequence numbers stay per process.
	DistributedLock bool     `toml:"distributed_lock"`
	LockTTL         duration `toml:"lock_ttl"`
	// Faucet lets journals mint collateral to any account.
	Faucet bool `toml:"faucet"`
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
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	CacheTTL     duration `toml:"cache_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	// Namespace prefixes every key, channel and stream name.
	Namespace string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetadataConfig controls how market metadata documents are fetched and
// published.
type MetadataConfig struct {
	IPFSGateway string   `toml:"ipfs_gateway"`
	HTTPTimeout duration `toml:"http_timeout"`
	// Publish stores a metadata document for every created market (in S3
	// when enabled, inline as a data: URI otherwise).
	Publish bool `toml:"publish"`
}

// ResolverConfig holds the key used to sign resolution attestations.
type ResolverConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// JournalConfig locates the command journal replayed in replay mode.
type JournalConfig struct {
	Path     string `toml:"path"`
	Parallel int    `toml:"parallel"`
	// ResultsPath receives one JSON result per command. Empty means stdout.
	ResultsPath string `toml:"results_path"`
}

// ArchiveConfig controls cold-storage export of the event table.
type ArchiveConfig struct {
	RetentionDays int  `toml:"retention_days"`
	Prune         bool `toml:"prune"`
	Snapshots     bool `toml:"snapshots"`
}

// MetricsConfig locates the Prometheus textfile written at exit.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinTrade is the smallest buy, in human collateral units, that is
	// announced. Empty announces every trade.
	MinTrade string `toml:"min_trade"`
}

// Defaults returns a Config populated with reasonable default values. Every
// external service starts disabled so a bare config replays in memory.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			CollateralSymbol:   "USDC",
			CollateralDecimals: 6,
			DefaultFeeBps:      0,
			Curve:              "reserve_ratio",
			RegistryAddress:    "0x0000000000000000000000000000000000001000",
			ChainID:            137,
			LockTTL:            duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictamm",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			CacheTTL:     duration{5 * time.Minute},
			StreamMaxLen: 10_000,
			Namespace:    "predictamm:",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "predictamm",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Metadata: MetadataConfig{
			IPFSGateway: "https://gateway.pinata.cloud/ipfs/",
			HTTPTimeout: duration{10 * time.Second},
		},
		Journal: JournalConfig{
			Parallel: 1,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved"},
		},
		Mode:     "replay",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"replay":  true,
	"archive": true,
	"inspect": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCurves = map[string]bool{
	"reserve_ratio":    true,
	"constant_product": true,
	"fpmm":             true,
}

var validEvents = map[string]bool{
	"market_created":  true,
	"market_resolved": true,
	"trade":           true,
	"claim":           true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: replay, archive, inspect)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if strings.TrimSpace(c.Engine.CollateralSymbol) == "" {
		errs = append(errs, "engine: collateral_symbol must not be empty")
	}
	if c.Engine.CollateralDecimals < 0 || c.Engine.CollateralDecimals > 18 {
		errs = append(errs, fmt.Sprintf("engine: collateral_decimals must be 0-18, got %d", c.Engine.CollateralDecimals))
	}
	if c.Engine.DefaultFeeBps < 0 || c.Engine.DefaultFeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("engine: default_fee_bps must be 0-9999, got %d", c.Engine.DefaultFeeBps))
	}
	if !validCurves[strings.ToLower(c.Engine.Curve)] {
		errs = append(errs, fmt.Sprintf("engine: unknown curve %q (valid: reserve_ratio, constant_product)", c.Engine.Curve))
	}
	if !common.IsHexAddress(c.Engine.RegistryAddress) {
		errs = append(errs, fmt.Sprintf("engine: registry_address %q is not a 20-byte hex address", c.Engine.RegistryAddress))
	}
	if c.Engine.DistributedLock {
		if !c.Redis.Enabled {
			errs = append(errs, "engine: distributed_lock requires redis.enabled")
		}
		if c.Engine.LockTTL.Duration <= 0 {
			errs = append(errs, "engine: lock_ttl must be > 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.StreamMaxLen < 0 {
			errs = append(errs, "redis: stream_max_len must be >= 0")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Metadata
	if c.Metadata.HTTPTimeout.Duration < 0 {
		errs = append(errs, "metadata: http_timeout must not be negative")
	}

	// Resolver
	if c.Resolver.EncryptedKeyPath != "" && c.Resolver.KeyPassword == "" {
		errs = append(errs, "resolver: key_password is required when encrypted_key_path is set")
	}

	// Notify
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}
	if c.Notify.MinTrade != "" {
		if d, err := decimal.NewFromString(c.Notify.MinTrade); err != nil || d.IsNegative() {
			errs = append(errs, fmt.Sprintf("notify: min_trade %q is not a non-negative decimal", c.Notify.MinTrade))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Mode requirements
	switch mode {
	case "replay":
		if c.Journal.Path == "" {
			errs = append(errs, "journal: path is required for mode replay")
		}
		if c.Journal.Parallel < 1 {
			errs = append(errs, "journal: parallel must be >= 1")
		}
	case "archive":
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: mode archive requires postgres.enabled and s3.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	case "inspect":
		if !c.Postgres.Enabled {
			errs = append(errs, "inspect: mode inspect requires postgres.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
