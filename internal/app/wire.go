package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/predictamm/internal/blob/s3"
	"github.com/alanyoungcy/predictamm/internal/cache/redis"
	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/config"
	"github.com/alanyoungcy/predictamm/internal/crypto"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
	"github.com/alanyoungcy/predictamm/internal/metadata"
	"github.com/alanyoungcy/predictamm/internal/metrics"
	"github.com/alanyoungcy/predictamm/internal/notify"
	"github.com/alanyoungcy/predictamm/internal/registry"
	"github.com/alanyoungcy/predictamm/internal/sequence"
	"github.com/alanyoungcy/predictamm/internal/service"
	"github.com/alanyoungcy/predictamm/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Every
// store, cache and blob field is nil when its backend is disabled.
type Dependencies struct {
	// Stores
	MarketStore *postgres.MarketStore
	EventStore  *postgres.EventStore
	AuditStore  domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	EventBus    domain.EventBus

	// Blob storage
	BlobWriter *s3blob.Writer
	BlobReader *s3blob.Reader
	Archiver   *s3blob.ArchiveImpl

	// Engine
	Collateral *collateral.Ledger
	Sequencer  *sequence.Counter
	Registry   *registry.Registry
	Engine     *service.EngineService
	Markets    *service.MarketService
	Signer     *crypto.Signer
	Metadata   *metadata.Resolver

	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: %w", err))
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: postgres migrations applied", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.EventBus = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
		if cfg.Engine.DistributedLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		// Archiver: only when we also have Postgres (event and snapshot tables).
		if deps.EventStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.EventStore, deps.MarketStore, deps.AuditStore)
		}
	}

	resolverCfg := metadata.ResolverConfig{
		Gateway: cfg.Metadata.IPFSGateway,
		Timeout: cfg.Metadata.HTTPTimeout.Duration,
	}
	if deps.BlobReader != nil {
		resolverCfg.Documents = deps.BlobReader
		resolverCfg.Bucket = cfg.S3.Bucket
	}
	deps.Metadata = metadata.NewResolver(resolverCfg)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}

	// --- Resolver key (optional) ---
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Resolver.PrivateKey,
		EncryptedKeyPath: cfg.Resolver.EncryptedKeyPath,
		KeyPassword:      cfg.Resolver.KeyPassword,
	})
	switch {
	case errors.Is(err, crypto.ErrNoKey):
	case err != nil:
		return fail(fmt.Errorf("wire: resolver key: %w", err))
	default:
		deps.Signer = signer
		logger.InfoContext(ctx, "wire: resolver key loaded", slog.String("address", signer.Address().Hex()))
	}

	// --- Engine ---
	token, err := collateral.NewLedger(cfg.Engine.CollateralSymbol, uint8(cfg.Engine.CollateralDecimals))
	if err != nil {
		return fail(fmt.Errorf("wire: collateral: %w", err))
	}
	deps.Collateral = token

	notifyOpts := notify.Options{Events: cfg.Notify.Events}
	if cfg.Notify.MinTrade != "" {
		if notifyOpts.MinTrade, err = fixedpoint.ParseUnits(cfg.Notify.MinTrade, token.Decimals()); err != nil {
			return fail(fmt.Errorf("wire: notify min_trade: %w", err))
		}
	}
	deps.Notifier = notify.NewNotifier(senders, notifyOpts, logger)

	// Resume numbering above everything already persisted.
	var start uint64
	if deps.EventStore != nil {
		if start, err = deps.EventStore.LastSequence(ctx); err != nil {
			return fail(fmt.Errorf("wire: last sequence: %w", err))
		}
	}
	deps.Sequencer = sequence.NewCounter(start)

	reg, err := registry.New(registry.Config{
		Address:       common.HexToAddress(cfg.Engine.RegistryAddress),
		Token:         token,
		Sequencer:     deps.Sequencer,
		DefaultFeeBps: uint16(cfg.Engine.DefaultFeeBps),
		DefaultCurve:  strings.ToLower(cfg.Engine.Curve),
	})
	if err != nil {
		return fail(fmt.Errorf("wire: registry: %w", err))
	}
	deps.Registry = reg

	engineDeps := service.Deps{
		Registry: reg,
		Prices:   deps.PriceCache,
		Cache:    deps.MarketCache,
		Bus:      deps.EventBus,
		Locks:    deps.LockManager,
		LockTTL:  cfg.Engine.LockTTL.Duration,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Logger:   logger,
	}
	// Typed nils must not leak into the interface fields.
	if deps.EventStore != nil {
		engineDeps.Events = deps.EventStore
		engineDeps.Markets = deps.MarketStore
		engineDeps.Audit = deps.AuditStore
	}
	if cfg.Metadata.Publish {
		if deps.BlobWriter != nil {
			engineDeps.Publisher = metadata.NewPublisher(deps.BlobWriter)
		} else {
			engineDeps.Publisher = metadata.NewPublisher(nil)
		}
	}
	if cfg.Engine.Faucet {
		engineDeps.Faucet = token
	}
	deps.Engine, err = service.NewEngineService(engineDeps)
	if err != nil {
		return fail(fmt.Errorf("wire: engine: %w", err))
	}

	if deps.MarketStore != nil {
		var events domain.EventStore = deps.EventStore
		deps.Markets = service.NewMarketService(deps.MarketStore, events, deps.MarketCache, deps.PriceCache, logger)
	}

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Uint64("sequence_start", start),
	)
	return deps, cleanup, nil
}
