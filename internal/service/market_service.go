package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// MarketService serves the read side: persisted snapshots, cached quotes and
// event history.
type MarketService struct {
	markets domain.MarketStore
	events  domain.EventStore
	cache   domain.MarketCache
	prices  domain.PriceCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache and prices may be nil.
func NewMarketService(
	markets domain.MarketStore,
	events domain.EventStore,
	cache domain.MarketCache,
	prices domain.PriceCache,
	logger *slog.Logger,
) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketService{
		markets: markets,
		events:  events,
		cache:   cache,
		prices:  prices,
		logger:  logger,
	}
}

// WarmCache copies every persisted snapshot into the market cache.
func (s *MarketService) WarmCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	const page = 200
	warmed := 0
	for offset := 0; ; offset += page {
		snaps, err := s.markets.List(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return warmed, fmt.Errorf("market_service: warm cache: %w", err)
		}
		for _, m := range snaps {
			if err := s.cache.Set(ctx, m); err != nil {
				s.logger.WarnContext(ctx, "market_service: cache set failed",
					slog.String("market_id", m.ID.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			warmed++
		}
		if len(snaps) < page {
			break
		}
	}
	s.logger.InfoContext(ctx, "market_service: cache warmed", slog.Int("count", warmed))
	return warmed, nil
}

// GetMarket retrieves a market snapshot, checking the cache first and falling
// back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id common.Address) (domain.MarketSnapshot, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: get by id %s: %w", id.Hex(), err)
	}

	// Back-fill; the cache refuses to overwrite a newer snapshot.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns persisted snapshots in creation order.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSnapshot, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the number of persisted markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// Quotes returns the cached quote of every listed market. Markets without a
// cached quote fall back to the prices of their persisted snapshot.
func (s *MarketService) Quotes(ctx context.Context, ids []common.Address) (map[common.Address]domain.PriceQuote, error) {
	out := make(map[common.Address]domain.PriceQuote, len(ids))
	if s.prices != nil {
		cached, err := s.prices.GetQuotes(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "market_service: quote cache read failed",
				slog.String("error", err.Error()),
			)
		}
		for id, q := range cached {
			out[id] = q
		}
	}
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		m, err := s.GetMarket(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("market_service: quotes: %w", err)
		}
		out[id] = quoteOf(m, m.UpdatedAt)
	}
	return out, nil
}

// History returns the events of one market in sequence order.
func (s *MarketService) History(ctx context.Context, id common.Address, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	if s.events == nil {
		return nil, fmt.Errorf("market_service: history: event store %w", domain.ErrNotFound)
	}
	evs, err := s.events.ListByMarket(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: history %s: %w", id.Hex(), err)
	}
	return evs, nil
}

// AccountHistory returns the events an account initiated across markets.
func (s *MarketService) AccountHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	if s.events == nil {
		return nil, fmt.Errorf("market_service: account history: event store %w", domain.ErrNotFound)
	}
	evs, err := s.events.ListByAccount(ctx, account, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: account history %s: %w", account.Hex(), err)
	}
	return evs, nil
}
