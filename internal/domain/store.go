package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market snapshots.
type MarketStore interface {
	Upsert(ctx context.Context, market MarketSnapshot) error
	GetByID(ctx context.Context, id common.Address) (MarketSnapshot, error)
	List(ctx context.Context, opts ListOpts) ([]MarketSnapshot, error)
	Count(ctx context.Context) (int64, error)
}

// EventStore persists the append-only market event stream.
type EventStore interface {
	InsertBatch(ctx context.Context, events []MarketEvent) error
	LastSequence(ctx context.Context) (uint64, error)
	ListByMarket(ctx context.Context, marketID common.Address, opts ListOpts) ([]MarketEvent, error)
	ListByAccount(ctx context.Context, account common.Address, opts ListOpts) ([]MarketEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListForMarket(ctx context.Context, id common.Address, opts ListOpts) ([]AuditEntry, error)
}
