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
// built-in defaults, applies PREDICTAMM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTAMM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.CollateralSymbol, "PREDICTAMM_ENGINE_COLLATERAL_SYMBOL")
	setInt(&cfg.Engine.CollateralDecimals, "PREDICTAMM_ENGINE_COLLATERAL_DECIMALS")
	setInt(&cfg.Engine.DefaultFeeBps, "PREDICTAMM_ENGINE_DEFAULT_FEE_BPS")
	setStr(&cfg.Engine.Curve, "PREDICTAMM_ENGINE_CURVE")
	setStr(&cfg.Engine.RegistryAddress, "PREDICTAMM_ENGINE_REGISTRY_ADDRESS")
	setInt64(&cfg.Engine.ChainID, "PREDICTAMM_ENGINE_CHAIN_ID")
	setBool(&cfg.Engine.DistributedLock, "PREDICTAMM_ENGINE_DISTRIBUTED_LOCK")
	setDuration(&cfg.Engine.LockTTL, "PREDICTAMM_ENGINE_LOCK_TTL")
	setBool(&cfg.Engine.Faucet, "PREDICTAMM_ENGINE_FAUCET")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PREDICTAMM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PREDICTAMM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PREDICTAMM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTAMM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTAMM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTAMM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTAMM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTAMM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTAMM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTAMM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTAMM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PREDICTAMM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTAMM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTAMM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTAMM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTAMM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTAMM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTAMM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "PREDICTAMM_REDIS_CACHE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "PREDICTAMM_REDIS_STREAM_MAX_LEN")
	setStr(&cfg.Redis.Namespace, "PREDICTAMM_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICTAMM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICTAMM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTAMM_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTAMM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTAMM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTAMM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTAMM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTAMM_S3_FORCE_PATH_STYLE")

	// ── Metadata ──
	setStr(&cfg.Metadata.IPFSGateway, "PREDICTAMM_METADATA_IPFS_GATEWAY")
	setDuration(&cfg.Metadata.HTTPTimeout, "PREDICTAMM_METADATA_HTTP_TIMEOUT")
	setBool(&cfg.Metadata.Publish, "PREDICTAMM_METADATA_PUBLISH")

	// ── Resolver ──
	setStr(&cfg.Resolver.PrivateKey, "PREDICTAMM_RESOLVER_PRIVATE_KEY")
	setStr(&cfg.Resolver.EncryptedKeyPath, "PREDICTAMM_RESOLVER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Resolver.KeyPassword, "PREDICTAMM_RESOLVER_KEY_PASSWORD")

	// ── Journal / archive / metrics ──
	setStr(&cfg.Journal.Path, "PREDICTAMM_JOURNAL_PATH")
	setInt(&cfg.Journal.Parallel, "PREDICTAMM_JOURNAL_PARALLEL")
	setStr(&cfg.Journal.ResultsPath, "PREDICTAMM_JOURNAL_RESULTS_PATH")
	setInt(&cfg.Archive.RetentionDays, "PREDICTAMM_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "PREDICTAMM_ARCHIVE_PRUNE")
	setBool(&cfg.Archive.Snapshots, "PREDICTAMM_ARCHIVE_SNAPSHOTS")
	setStr(&cfg.Metrics.TextfilePath, "PREDICTAMM_METRICS_TEXTFILE_PATH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTAMM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTAMM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTAMM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTAMM_NOTIFY_EVENTS")
	setStr(&cfg.Notify.MinTrade, "PREDICTAMM_NOTIFY_MIN_TRADE")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTAMM_MODE")
	setStr(&cfg.LogLevel, "PREDICTAMM_LOG_LEVEL")
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
