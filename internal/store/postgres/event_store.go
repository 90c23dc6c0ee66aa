package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventStore = (*EventStore)(nil)

const eventSelectCols = `sequence, kind, market_id, account,
	amount::text, payout::text, trade, detail, timestamp`

func scanEventRows(rows pgx.Rows) ([]domain.MarketEvent, error) {
	var events []domain.MarketEvent
	for rows.Next() {
		var (
			e               domain.MarketEvent
			seq             int64
			kind            string
			market, account string
			amount, payout  *string
			trade, detail   []byte
		)
		if err := rows.Scan(&seq, &kind, &market, &account,
			&amount, &payout, &trade, &detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Sequence = uint64(seq)
		e.Kind = domain.EventKind(kind)

		var err error
		if e.MarketID, err = parseAddress(market); err != nil {
			return nil, err
		}
		if e.Account, err = parseAddress(account); err != nil {
			return nil, err
		}
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if e.Payout, err = parseNumeric(payout); err != nil {
			return nil, err
		}
		if trade != nil {
			e.Trade = new(domain.TradeEvent)
			if err := json.Unmarshal(trade, e.Trade); err != nil {
				return nil, fmt.Errorf("unmarshal trade: %w", err)
			}
		}
		if detail != nil {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch appends events using a pgx Batch. Events already stored
// (same sequence) are skipped, so replaying a projection is idempotent.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.MarketEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_events (
			sequence, kind, market_id, account,
			amount, payout, trade, detail, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7, $8, $9
		) ON CONFLICT (sequence) DO NOTHING`

	for _, e := range events {
		var tradeJSON, detailJSON []byte
		var err error
		if e.Trade != nil {
			if tradeJSON, err = json.Marshal(e.Trade); err != nil {
				return fmt.Errorf("postgres: marshal trade %d: %w", e.Sequence, err)
			}
		}
		if len(e.Detail) > 0 {
			if detailJSON, err = json.Marshal(e.Detail); err != nil {
				return fmt.Errorf("postgres: marshal detail %d: %w", e.Sequence, err)
			}
		}
		batch.Queue(query,
			int64(e.Sequence), string(e.Kind), e.MarketID.Hex(), e.Account.Hex(),
			numericArg(e.Amount), numericArg(e.Payout), tradeJSON, detailJSON, e.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event batch item %d: %w", i, err)
		}
	}
	return nil
}

// LastSequence returns the highest stored sequence number, or 0 when the
// table is empty. The sequencer resumes from it.
func (s *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq *int64
	if err := s.pool.QueryRow(ctx, "SELECT MAX(sequence) FROM market_events").Scan(&seq); err != nil {
		return 0, fmt.Errorf("postgres: get last sequence: %w", err)
	}
	if seq == nil {
		return 0, nil
	}
	return uint64(*seq), nil
}

// ListByMarket returns the events of one market in sequence order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID common.Address, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	events, err := s.list(ctx, "market_id = $1", marketID.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by market: %w", err)
	}
	return events, nil
}

// ListByAccount returns the events initiated by one account in sequence order.
func (s *EventStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	events, err := s.list(ctx, "account = $1", account.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by account: %w", err)
	}
	return events, nil
}

// ListBefore returns every event stamped strictly before the cutoff.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM market_events WHERE timestamp < $1 ORDER BY sequence ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events stamped before the cutoff whose sequence is at
// most maxSeq, and returns how many were removed. maxSeq bounds the delete
// to what an archive run actually uploaded.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time, maxSeq uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM market_events WHERE timestamp < $1 AND sequence <= $2", before, int64(maxSeq))
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *EventStore) list(ctx context.Context, where string, arg any, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	query := `SELECT ` + eventSelectCols + ` FROM market_events WHERE ` + where
	args := []any{arg}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY sequence ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEventRows(rows)
}
