package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
mode = "replay"
log_level = "debug"

[engine]
collateral_symbol = "DAI"
collateral_decimals = 18
default_fee_bps = 200
curve = "fpmm"
faucet = true

[postgres]
enabled = true
dsn = "postgres://amm:secret@db/predictamm"

[redis]
enabled = true
cache_ttl = "90s"

[journal]
path = "journal.jsonl"
parallel = 4

[resolver]
private_key = "0xabc"

[notify]
events = ["trade", "claim"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictamm.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "DAI", cfg.Engine.CollateralSymbol)
	assert.Equal(t, 18, cfg.Engine.CollateralDecimals)
	assert.Equal(t, 200, cfg.Engine.DefaultFeeBps)
	assert.Equal(t, "fpmm", cfg.Engine.Curve)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, int64(10_000), cfg.Redis.StreamMaxLen)
	assert.Equal(t, 4, cfg.Journal.Parallel)
	assert.Equal(t, 10, cfg.Postgres.PoolMaxConns)
	assert.Equal(t, []string{"trade", "claim"}, cfg.Notify.Events)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PREDICTAMM_ENGINE_DEFAULT_FEE_BPS", "50")
	t.Setenv("PREDICTAMM_REDIS_CACHE_TTL", "2m")
	t.Setenv("PREDICTAMM_NOTIFY_EVENTS", " trade , ,market_resolved")
	t.Setenv("PREDICTAMM_POSTGRES_PORT", "not-a-number")
	t.Setenv("PREDICTAMM_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Engine.DefaultFeeBps)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, []string{"trade", "market_resolved"}, cfg.Notify.Events)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "replay", cfg.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Engine.DefaultFeeBps = 10_000
	cfg.Engine.Curve = "lmsr"
	cfg.Engine.RegistryAddress = "registry"
	cfg.Engine.DistributedLock = true
	cfg.Resolver.EncryptedKeyPath = "key.json"
	cfg.Notify.Events = []string{"order_filled"}
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.MinTrade = "-5"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"default_fee_bps must be 0-9999",
		`unknown curve "lmsr"`,
		"registry_address",
		"distributed_lock requires redis.enabled",
		"key_password is required",
		`unknown event "order_filled"`,
		"telegram_token and telegram_chat_id",
		`min_trade "-5"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateModeRequirements(t *testing.T) {
	cfg := Defaults()
	assert.ErrorContains(t, cfg.Validate(), "journal: path is required")

	cfg.Mode = "archive"
	assert.ErrorContains(t, cfg.Validate(), "requires postgres.enabled and s3.enabled")

	cfg.Postgres.Enabled, cfg.S3.Enabled = true, true
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "inspect"
	cfg.Postgres.Enabled = false
	assert.ErrorContains(t, cfg.Validate(), "mode inspect requires postgres.enabled")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.S3.SecretKey = "s3cret"

	out := RedactedConfig(cfg)
	assert.Equal(t, "***", out.Resolver.PrivateKey)
	assert.Equal(t, "postgres://amm:xxxxx@db/predictamm", out.Postgres.DSN)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Empty(t, out.Redis.Password)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "trade", cfg.Notify.Events[0])
	assert.Equal(t, "0xabc", cfg.Resolver.PrivateKey)
}

func TestRedactDSN(t *testing.T) {
	assert.Empty(t, redactDSN(""))
	assert.Equal(t, "postgres://amm@db/predictamm", redactDSN("postgres://amm@db/predictamm"))
	assert.Equal(t, "postgres://db/amm?password=xxxxx&sslmode=require",
		redactDSN("postgres://db/amm?sslmode=require&password=hunter2"))
	assert.Equal(t, "***", redactDSN("host=db user=amm password=hunter2"))
}
