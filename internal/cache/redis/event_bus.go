package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// DefaultStreamMaxLen is the approximate maximum length of each market's
// event stream, enforced via XADD MAXLEN ~.
const DefaultStreamMaxLen int64 = 10000

// EventBus implements domain.EventBus. Every event lands on its market's
// stream; trades are also published on the trades channel for live readers.
//
// Stream entries carry the fields kind, seq and payload (JSON event).
type EventBus struct {
	client *Client
	maxLen int64
}

var _ domain.EventBus = (*EventBus)(nil)

// NewEventBus creates an EventBus. A maxLen of zero or less selects
// DefaultStreamMaxLen.
func NewEventBus(c *Client, maxLen int64) *EventBus {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &EventBus{client: c, maxLen: maxLen}
}

// AppendEvent adds ev to the market's stream.
func (b *EventBus) AppendEvent(ctx context.Context, ev domain.MarketEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: encode event %d: %w", ev.Sequence, err)
	}
	stream := b.client.key(domain.EventStream(ev.MarketID))
	err = b.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: streamValues(ev, payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append event %d to %s: %w", ev.Sequence, stream, err)
	}
	return nil
}

// PublishTrade publishes a trade event. Events of any other kind are ignored.
func (b *EventBus) PublishTrade(ctx context.Context, ev domain.MarketEvent) error {
	if ev.Kind != domain.EventTrade {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: encode trade %d: %w", ev.Sequence, err)
	}
	channel := b.client.key(domain.TradesChannel)
	if err := b.client.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish trade %d: %w", ev.Sequence, err)
	}
	return nil
}

func streamValues(ev domain.MarketEvent, payload []byte) map[string]any {
	return map[string]any{
		"kind":    string(ev.Kind),
		"seq":     ev.Sequence,
		"payload": payload,
	}
}
