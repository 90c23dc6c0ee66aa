package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictamm/internal/amm"
	"github.com/alanyoungcy/predictamm/internal/crypto"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
	"github.com/alanyoungcy/predictamm/internal/metadata"
	"github.com/alanyoungcy/predictamm/internal/metrics"
	"github.com/alanyoungcy/predictamm/internal/notify"
	"github.com/alanyoungcy/predictamm/internal/registry"
)

// Operation names used in logs, metrics and audit entries.
const (
	OpCreate       = "create"
	OpAddLiquidity = "add_liquidity"
	OpBuy          = "buy"
	OpRedeem       = "redeem"
	OpResolve      = "resolve"
	OpClaim        = "claim"
	OpFaucet       = "faucet"
)

const (
	defaultLockTTL   = 10 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// EventNotifier is satisfied by *notify.Notifier.
type EventNotifier interface {
	NotifyMarketEvent(ctx context.Context, ev domain.MarketEvent, question string, c notify.Collateral) error
}

// Minter mints collateral to an account. *collateral.Ledger satisfies it.
type Minter interface {
	Mint(to common.Address, amount *uint256.Int) error
}

// Deps are the collaborators of an EngineService. Only Registry is required;
// every nil projection sink is skipped.
type Deps struct {
	Registry *registry.Registry

	Events  domain.EventStore
	Markets domain.MarketStore
	Audit   domain.AuditStore
	Prices  domain.PriceCache
	Cache   domain.MarketCache
	Bus     domain.EventBus

	// Locks, when set, is held around each mutation and its projection so
	// writers sharing the backends see a market's projections in order. It
	// does not make the in-memory registry or the sequencer shared.
	Locks   domain.LockManager
	LockTTL time.Duration

	Publisher *metadata.Publisher
	Notifier  EventNotifier
	Metrics   *metrics.Metrics
	Faucet    Minter

	Clock  func() time.Time
	Logger *slog.Logger
}

// EngineService applies engine operations and projects every committed event
// to the event store, caches, bus, audit log and metrics. The market state in
// the registry is authoritative; projection failures are logged and never
// undo a committed operation.
type EngineService struct {
	deps       Deps
	collateral notify.Collateral
	logger     *slog.Logger
	clock      func() time.Time

	// serialises apply+project per market so projections see events in
	// sequence order.
	mu      sync.Mutex
	markets map[common.Address]*sync.Mutex
}

// NewEngineService creates an EngineService.
func NewEngineService(deps Deps) (*EngineService, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("engine_service: registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	token := deps.Registry.Token()
	return &EngineService{
		deps:       deps,
		collateral: notify.Collateral{Symbol: token.Symbol(), Decimals: token.Decimals()},
		logger:     deps.Logger.With(slog.String("component", "engine_service")),
		clock:      deps.Clock,
		markets:    make(map[common.Address]*sync.Mutex),
	}, nil
}

// CreateRequest describes a new market.
type CreateRequest struct {
	Creator     common.Address
	Question    string
	Description string
	Category    metadata.Category
	EndDate     time.Time
	ImageURL    string
	// MetadataURI, when set, is used as is and nothing is published.
	MetadataURI string
	ChainID     int64
	FeeBps      *uint16
	Curve       string
}

// CreateMarket validates the request, publishes its metadata document when a
// publisher is configured, and registers the market.
func (s *EngineService) CreateMarket(ctx context.Context, req CreateRequest) (domain.MarketSnapshot, error) {
	start := s.clock()
	params := metadata.Params{
		Question:    req.Question,
		Description: req.Description,
		Category:    req.Category,
		EndDate:     req.EndDate,
		ImageURL:    req.ImageURL,
	}
	if err := params.Validate(start); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidQuestion, err)
		return domain.MarketSnapshot{}, s.reject(ctx, OpCreate, common.Address{}, req.Creator, err)
	}

	uri := req.MetadataURI
	if uri == "" && s.deps.Publisher != nil {
		payload := metadata.BuildPayload(params, req.Creator, req.ChainID, start)
		published, err := s.deps.Publisher.Publish(ctx, payload)
		if err != nil {
			return domain.MarketSnapshot{}, s.reject(ctx, OpCreate, common.Address{}, req.Creator, err)
		}
		uri = published
	}
	question := metadata.EncodeQuestion(req.Question, req.Description, uri)

	m, err := s.deps.Registry.CreateMarket(req.Creator, question, uri, registry.Options{
		FeeBps: req.FeeBps,
		Curve:  req.Curve,
	})
	if err != nil {
		return domain.MarketSnapshot{}, s.reject(ctx, OpCreate, common.Address{}, req.Creator, err)
	}

	mu := s.marketMutex(m.ID())
	mu.Lock()
	defer mu.Unlock()

	ev := m.CreationEvent()
	_, snap := s.commit(ctx, OpCreate, m, ev, start)
	if s.deps.Metrics != nil {
		s.deps.Metrics.MarketsTotal.Set(float64(s.deps.Registry.MarketCount()))
	}
	return snap, nil
}

// AddLiquidity deposits amount (native collateral units) into both reserves.
func (s *EngineService) AddLiquidity(ctx context.Context, marketID, provider common.Address, amount *uint256.Int) (domain.MarketEvent, error) {
	return s.apply(ctx, OpAddLiquidity, marketID, provider, func(m *amm.Market) (domain.MarketEvent, error) {
		return m.AddLiquidity(provider, amount)
	})
}

// BuyRequest is a buy of one side for an exact collateral amount.
type BuyRequest struct {
	Market       common.Address
	Trader       common.Address
	Side         domain.Side
	CollateralIn *uint256.Int
	MinSharesOut *uint256.Int
}

// Buy executes req and returns the committed trade event.
func (s *EngineService) Buy(ctx context.Context, req BuyRequest) (domain.MarketEvent, error) {
	return s.apply(ctx, OpBuy, req.Market, req.Trader, func(m *amm.Market) (domain.MarketEvent, error) {
		return m.Buy(req.Trader, req.Side, req.CollateralIn, req.MinSharesOut)
	})
}

// QuoteBuy previews a buy without changing state.
func (s *EngineService) QuoteBuy(_ context.Context, marketID common.Address, side domain.Side, collateralIn *uint256.Int) (amm.BuyQuote, error) {
	m, err := s.deps.Registry.Market(marketID)
	if err != nil {
		return amm.BuyQuote{}, fmt.Errorf("engine_service: quote: %w", err)
	}
	q, err := m.QuoteBuy(side, collateralIn)
	if err != nil {
		return amm.BuyQuote{}, fmt.Errorf("engine_service: quote: %w", err)
	}
	return q, nil
}

// Redeem burns amount of both sides (internal units) for collateral.
func (s *EngineService) Redeem(ctx context.Context, marketID, account common.Address, amount *uint256.Int) (domain.MarketEvent, error) {
	return s.apply(ctx, OpRedeem, marketID, account, func(m *amm.Market) (domain.MarketEvent, error) {
		return m.Redeem(account, amount)
	})
}

// Resolve settles the market on behalf of caller.
func (s *EngineService) Resolve(ctx context.Context, marketID, caller common.Address, outcomeIsYes bool) (domain.MarketEvent, error) {
	return s.apply(ctx, OpResolve, marketID, caller, func(m *amm.Market) (domain.MarketEvent, error) {
		return m.Resolve(caller, outcomeIsYes)
	})
}

// ResolveAttested settles the market with the identity recovered from a
// signed attestation.
func (s *EngineService) ResolveAttested(ctx context.Context, att crypto.Attestation) (domain.MarketEvent, error) {
	caller, err := crypto.RecoverResolver(att)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		return domain.MarketEvent{}, s.reject(ctx, OpResolve, att.MarketID, common.Address{}, err)
	}
	return s.Resolve(ctx, att.MarketID, caller, att.OutcomeIsYes)
}

// Claim pays out the account's winning shares.
func (s *EngineService) Claim(ctx context.Context, marketID, account common.Address) (domain.MarketEvent, error) {
	return s.apply(ctx, OpClaim, marketID, account, func(m *amm.Market) (domain.MarketEvent, error) {
		return m.Claim(account)
	})
}

// Faucet mints collateral to an account. It fails when no faucet is
// configured.
func (s *EngineService) Faucet(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if s.deps.Faucet == nil {
		return s.reject(ctx, OpFaucet, common.Address{}, to, fmt.Errorf("faucet disabled: %w", domain.ErrUnauthorized))
	}
	if err := s.deps.Faucet.Mint(to, amount); err != nil {
		return s.reject(ctx, OpFaucet, common.Address{}, to, err)
	}
	s.logger.DebugContext(ctx, "engine_service: faucet",
		slog.String("account", to.Hex()),
		slog.String("amount", fixedpoint.Format(amount, s.collateral.Decimals)),
	)
	return nil
}

// Price returns the current quote of a market.
func (s *EngineService) Price(_ context.Context, marketID common.Address) (domain.PriceQuote, error) {
	m, err := s.deps.Registry.Market(marketID)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("engine_service: price: %w", err)
	}
	return quoteOf(m.Snapshot(), s.clock()), nil
}

// Snapshot returns the live snapshot of a market.
func (s *EngineService) Snapshot(_ context.Context, marketID common.Address) (domain.MarketSnapshot, error) {
	m, err := s.deps.Registry.Market(marketID)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("engine_service: snapshot: %w", err)
	}
	snap := m.Snapshot()
	snap.UpdatedAt = s.clock()
	return snap, nil
}

// AllMarkets returns every market id in creation order.
func (s *EngineService) AllMarkets() []common.Address {
	return s.deps.Registry.AllMarkets()
}

// Positions returns the outcome balances held in a market.
func (s *EngineService) Positions(_ context.Context, marketID common.Address) ([]domain.Position, error) {
	m, err := s.deps.Registry.Market(marketID)
	if err != nil {
		return nil, fmt.Errorf("engine_service: positions: %w", err)
	}
	return m.Positions(), nil
}

// apply runs fn against the market under the per-market mutex (and the
// distributed lock when configured) and projects the resulting event.
func (s *EngineService) apply(
	ctx context.Context,
	op string,
	marketID, account common.Address,
	fn func(*amm.Market) (domain.MarketEvent, error),
) (domain.MarketEvent, error) {
	start := s.clock()

	m, err := s.deps.Registry.Market(marketID)
	if err != nil {
		return domain.MarketEvent{}, s.reject(ctx, op, marketID, account, err)
	}

	mu := s.marketMutex(marketID)
	mu.Lock()
	defer mu.Unlock()

	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.AcquireWait(ctx, domain.MarketLockKey(marketID), s.deps.LockTTL, lockPollInterval)
		if err != nil {
			return domain.MarketEvent{}, s.reject(ctx, op, marketID, account, err)
		}
		defer unlock()
	}

	ev, err := fn(m)
	if err != nil {
		return domain.MarketEvent{}, s.reject(ctx, op, marketID, account, err)
	}
	ev, _ = s.commit(ctx, op, m, ev, start)
	return ev, nil
}

func (s *EngineService) marketMutex(id common.Address) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.markets[id]
	if !ok {
		mu = new(sync.Mutex)
		s.markets[id] = mu
	}
	return mu
}

// reject records a failed operation and returns the wrapped error.
func (s *EngineService) reject(ctx context.Context, op string, marketID, account common.Address, err error) error {
	kind := domain.ErrorKind(err)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordError(op, kind)
	}
	s.logger.WarnContext(ctx, "engine_service: "+op+" rejected",
		slog.String("market_id", marketID.Hex()),
		slog.String("account", account.Hex()),
		slog.String("error_kind", kind),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("engine_service: %s: %w", op, err)
}

// commit stamps ev and fans it out to every configured sink. It returns the
// stamped event and the snapshot taken right after it.
func (s *EngineService) commit(ctx context.Context, op string, m *amm.Market, ev domain.MarketEvent, start time.Time) (domain.MarketEvent, domain.MarketSnapshot) {
	now := s.clock()
	ev.Timestamp = now
	snap := m.Snapshot()
	snap.UpdatedAt = now

	s.project(ctx, ev, snap)

	if op == OpCreate || op == OpResolve {
		s.audit(ctx, op, ev)
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyMarketEvent(ctx, ev, snap.Question, s.collateral); err != nil {
			s.projectionFailed(ctx, "notify", ev, err)
		}
	}
	if mt := s.deps.Metrics; mt != nil {
		mt.RecordOperation(op, now.Sub(start))
		mt.SetMarketState(strings.ToLower(snap.ID.Hex()),
			m.PriceBps(domain.SideYes), m.PriceBps(domain.SideNo),
			toFloat(snap.TotalCollateralHeld, snap.CollateralDecimals))
		mt.LastSequence.Set(float64(ev.Sequence))
		if ev.Trade != nil {
			mt.RecordTrade(toFloat(ev.Trade.CollateralIn, snap.CollateralDecimals),
				toFloat(ev.Trade.Fee, snap.CollateralDecimals))
		}
	}

	attrs := []any{
		slog.String("market_id", ev.MarketID.Hex()),
		slog.String("account", ev.Account.Hex()),
		slog.Uint64("sequence", ev.Sequence),
		slog.Uint64("price_yes", snap.PriceYesCents),
		slog.Uint64("price_no", snap.PriceNoCents),
	}
	if ev.Trade != nil {
		attrs = append(attrs,
			slog.String("side", ev.Trade.Side.String()),
			slog.String("collateral_in", fixedpoint.Format(ev.Trade.CollateralIn, snap.CollateralDecimals)),
			slog.String("shares_out", fixedpoint.Format(ev.Trade.SharesOut, fixedpoint.InternalDecimals)),
		)
	}
	if ev.Payout != nil {
		attrs = append(attrs, slog.String("payout", fixedpoint.Format(ev.Payout, snap.CollateralDecimals)))
	}
	s.logger.InfoContext(ctx, "engine_service: "+op, attrs...)
	return ev, snap
}

func (s *EngineService) project(ctx context.Context, ev domain.MarketEvent, snap domain.MarketSnapshot) {
	if s.deps.Events != nil {
		if err := s.deps.Events.InsertBatch(ctx, []domain.MarketEvent{ev}); err != nil {
			s.projectionFailed(ctx, "postgres_events", ev, err)
		}
	}
	if s.deps.Markets != nil {
		if err := s.deps.Markets.Upsert(ctx, snap); err != nil {
			s.projectionFailed(ctx, "postgres_markets", ev, err)
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, snap); err != nil {
			s.projectionFailed(ctx, "redis_market_cache", ev, err)
		}
	}
	if s.deps.Prices != nil {
		if err := s.deps.Prices.SetQuote(ctx, quoteOf(snap, ev.Timestamp)); err != nil {
			s.projectionFailed(ctx, "redis_price_cache", ev, err)
		}
	}
	if s.deps.Bus != nil {
		if err := s.deps.Bus.AppendEvent(ctx, ev); err != nil {
			s.projectionFailed(ctx, "redis_stream", ev, err)
		}
		if err := s.deps.Bus.PublishTrade(ctx, ev); err != nil {
			s.projectionFailed(ctx, "redis_pubsub", ev, err)
		}
	}
}

func (s *EngineService) audit(ctx context.Context, op string, ev domain.MarketEvent) {
	if s.deps.Audit == nil {
		return
	}
	detail := map[string]any{
		"market_id": ev.MarketID.Hex(),
		"account":   ev.Account.Hex(),
		"sequence":  ev.Sequence,
	}
	for k, v := range ev.Detail {
		detail[k] = v
	}
	if err := s.deps.Audit.Log(ctx, "market."+op, detail); err != nil {
		s.projectionFailed(ctx, "audit", ev, err)
	}
}

func (s *EngineService) projectionFailed(ctx context.Context, sink string, ev domain.MarketEvent, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordProjectionError(sink)
	}
	s.logger.WarnContext(ctx, "engine_service: projection failed",
		slog.String("sink", sink),
		slog.String("market_id", ev.MarketID.Hex()),
		slog.Uint64("sequence", ev.Sequence),
		slog.String("error", err.Error()),
	)
}

func quoteOf(snap domain.MarketSnapshot, at time.Time) domain.PriceQuote {
	r := amm.NewReserves(snap.YesReserves, snap.NoReserves)
	return domain.PriceQuote{
		MarketID:  snap.ID,
		YesCents:  snap.PriceYesCents,
		NoCents:   snap.PriceNoCents,
		YesBps:    r.PriceBps(domain.SideYes),
		NoBps:     r.PriceBps(domain.SideNo),
		Sequence:  snap.LastSequence,
		UpdatedAt: at,
	}
}

// toFloat converts a scaled amount to whole units for metrics.
func toFloat(v *uint256.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).InexactFloat64()
}
