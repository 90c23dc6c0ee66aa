package domain

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCache provides fast access to the latest spot prices.
type PriceCache interface {
	SetQuote(ctx context.Context, q PriceQuote) error
	GetQuote(ctx context.Context, marketID common.Address) (PriceQuote, error)
	GetQuotes(ctx context.Context, marketIDs []common.Address) (map[common.Address]PriceQuote, error)
}

// MarketCache provides fast market snapshot lookups.
type MarketCache interface {
	Set(ctx context.Context, market MarketSnapshot) error
	Get(ctx context.Context, id common.Address) (MarketSnapshot, error)
	Invalidate(ctx context.Context, id common.Address) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	AcquireWait(ctx context.Context, key string, ttl, interval time.Duration) (unlock func(), err error)
}

// TradesChannel is the pub/sub channel carrying every committed trade.
const TradesChannel = "trades"

// EventStream names the durable stream holding one market's events.
func EventStream(marketID common.Address) string {
	return "events:" + strings.ToLower(marketID.Hex())
}

// MarketLockKey is the lock key serialising mutations of one market across
// engine processes.
func MarketLockKey(marketID common.Address) string {
	return "market:" + strings.ToLower(marketID.Hex())
}

// EventBus fans committed market events out to other processes.
type EventBus interface {
	// AppendEvent adds ev to the durable stream of its market.
	AppendEvent(ctx context.Context, ev MarketEvent) error
	// PublishTrade broadcasts ev on TradesChannel when it is a trade.
	PublishTrade(ctx context.Context, ev MarketEvent) error
}
