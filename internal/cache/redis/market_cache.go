package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// DefaultMarketTTL is used when NewMarketCache is given no TTL.
const DefaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache with JSON snapshots in Redis
// hashes.
//
// Key schema:
//
//	market:{id} - hash with fields "data" (JSON snapshot) and "seq"
type MarketCache struct {
	client *Client
	ttl    time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{client: c, ttl: ttl}
}

func marketKey(id common.Address) string { return "market:" + strings.ToLower(id.Hex()) }

// setIfNewerLua writes the snapshot only when its sequence is not older than
// the cached one.
const setIfNewerLua = `
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
    return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'seq', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

var setIfNewer = redis.NewScript(setIfNewerLua)

// Set caches a snapshot. A snapshot older than the cached one is dropped.
func (mc *MarketCache) Set(ctx context.Context, market domain.MarketSnapshot) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID.Hex(), err)
	}

	err = setIfNewer.Run(ctx, mc.client.rdb, []string{mc.client.key(marketKey(market.ID))},
		data, market.LastSequence, mc.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID.Hex(), err)
	}
	return nil
}

// Get retrieves a snapshot by market id.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id common.Address) (domain.MarketSnapshot, error) {
	data, err := mc.client.rdb.HGet(ctx, mc.client.key(marketKey(id)), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get market %s: %w", id.Hex(), err)
	}

	var market domain.MarketSnapshot
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal market %s: %w", id.Hex(), err)
	}
	return market, nil
}

// Invalidate removes a cached snapshot.
func (mc *MarketCache) Invalidate(ctx context.Context, id common.Address) error {
	if err := mc.client.rdb.Del(ctx, mc.client.key(marketKey(id))).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
