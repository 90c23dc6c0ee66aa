package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each market's quote is stored as a hash at key "price:{marketID}" with
// fields yes, no, yes_bps, no_bps, seq and ts (Unix nanoseconds).
type PriceCache struct {
	client *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{client: c}
}

func priceKey(marketID common.Address) string {
	return "price:" + strings.ToLower(marketID.Hex())
}

func quoteFields(q domain.PriceQuote) map[string]interface{} {
	return map[string]interface{}{
		"yes":     strconv.FormatUint(q.YesCents, 10),
		"no":      strconv.FormatUint(q.NoCents, 10),
		"yes_bps": strconv.FormatUint(q.YesBps, 10),
		"no_bps":  strconv.FormatUint(q.NoBps, 10),
		"seq":     strconv.FormatUint(q.Sequence, 10),
		"ts":      strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}
}

func parseQuote(marketID common.Address, vals map[string]string) (domain.PriceQuote, error) {
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	q := domain.PriceQuote{MarketID: marketID}
	for field, dst := range map[string]*uint64{
		"yes": &q.YesCents, "no": &q.NoCents,
		"yes_bps": &q.YesBps, "no_bps": &q.NoBps,
		"seq": &q.Sequence,
	} {
		raw, ok := vals[field]
		if !ok {
			return domain.PriceQuote{}, domain.ErrNotFound
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("parse %s: %w", field, err)
		}
		*dst = v
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("parse ts: %w", err)
	}
	q.UpdatedAt = time.Unix(0, tsNano).UTC()
	return q, nil
}

// SetQuote stores the latest quote of a market.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	if err := pc.client.rdb.HSet(ctx, pc.client.key(priceKey(q.MarketID)), quoteFields(q)).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.MarketID.Hex(), err)
	}
	return nil
}

// GetQuote retrieves the latest quote of a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetQuote(ctx context.Context, marketID common.Address) (domain.PriceQuote, error) {
	vals, err := pc.client.rdb.HGetAll(ctx, pc.client.key(priceKey(marketID))).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", marketID.Hex(), err)
	}
	q, err := parseQuote(marketID, vals)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", marketID.Hex(), err)
	}
	return q, nil
}

// GetQuotes retrieves the quotes of several markets using a pipeline.
// Markets without a cached quote are omitted from the result map.
func (pc *PriceCache) GetQuotes(ctx context.Context, marketIDs []common.Address) (map[common.Address]domain.PriceQuote, error) {
	if len(marketIDs) == 0 {
		return map[common.Address]domain.PriceQuote{}, nil
	}

	pipe := pc.client.rdb.Pipeline()
	cmds := make(map[common.Address]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, pc.client.key(priceKey(id)))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[common.Address]domain.PriceQuote, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		q, err := parseQuote(id, vals)
		if err != nil {
			continue
		}
		result[id] = q
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
