package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketSelectCols = `id, idx, question, metadata_uri, creator, resolver,
	collateral_symbol, collateral_decimals, fee_bps, curve,
	yes_reserves::text, no_reserves::text, price_yes_cents, price_no_cents,
	state, outcome, total_collateral_held::text, accumulated_fees::text,
	last_sequence, updated_at`

// Upsert inserts or replaces the snapshot of one market. A snapshot older
// than the stored one (lower last_sequence) is ignored, so projections
// written out of order never move a market backwards.
func (s *MarketStore) Upsert(ctx context.Context, m domain.MarketSnapshot) error {
	const query = `
		INSERT INTO markets (
			id, idx, question, metadata_uri, creator, resolver,
			collateral_symbol, collateral_decimals, fee_bps, curve,
			yes_reserves, no_reserves, price_yes_cents, price_no_cents,
			state, outcome, total_collateral_held, accumulated_fees,
			last_sequence, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11::numeric, $12::numeric, $13, $14,
			$15, $16, $17::numeric, $18::numeric,
			$19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			yes_reserves          = EXCLUDED.yes_reserves,
			no_reserves           = EXCLUDED.no_reserves,
			price_yes_cents       = EXCLUDED.price_yes_cents,
			price_no_cents        = EXCLUDED.price_no_cents,
			state                 = EXCLUDED.state,
			outcome               = EXCLUDED.outcome,
			total_collateral_held = EXCLUDED.total_collateral_held,
			accumulated_fees      = EXCLUDED.accumulated_fees,
			last_sequence         = EXCLUDED.last_sequence,
			updated_at            = EXCLUDED.updated_at
		WHERE markets.last_sequence <= EXCLUDED.last_sequence`

	_, err := s.pool.Exec(ctx, query,
		m.ID.Hex(), m.Index, m.Question, m.MetadataURI, m.Creator.Hex(), m.Resolver.Hex(),
		m.CollateralSymbol, int16(m.CollateralDecimals), int32(m.FeeBps), m.Curve,
		numericArg(m.YesReserves), numericArg(m.NoReserves),
		int64(m.PriceYesCents), int64(m.PriceNoCents),
		string(m.State), string(m.Outcome),
		numericArg(m.TotalCollateralHeld), numericArg(m.AccumulatedFees),
		int64(m.LastSequence), m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID.Hex(), err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.MarketSnapshot, error) {
	var (
		m                          domain.MarketSnapshot
		id, creator, resolver      string
		decimals                   int16
		feeBps                     int32
		yes, no, held, fees        *string
		priceYes, priceNo, lastSeq int64
		state, outcome             string
	)
	if err := row.Scan(
		&id, &m.Index, &m.Question, &m.MetadataURI, &creator, &resolver,
		&m.CollateralSymbol, &decimals, &feeBps, &m.Curve,
		&yes, &no, &priceYes, &priceNo,
		&state, &outcome, &held, &fees,
		&lastSeq, &m.UpdatedAt,
	); err != nil {
		return domain.MarketSnapshot{}, err
	}

	var err error
	if m.ID, err = parseAddress(id); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.Creator, err = parseAddress(creator); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.Resolver, err = parseAddress(resolver); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.YesReserves, err = parseNumeric(yes); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.NoReserves, err = parseNumeric(no); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.TotalCollateralHeld, err = parseNumeric(held); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if m.AccumulatedFees, err = parseNumeric(fees); err != nil {
		return domain.MarketSnapshot{}, err
	}
	m.CollateralDecimals = uint8(decimals)
	m.FeeBps = uint16(feeBps)
	m.PriceYesCents = uint64(priceYes)
	m.PriceNoCents = uint64(priceNo)
	m.LastSequence = uint64(lastSeq)
	m.State = domain.MarketState(state)
	m.Outcome = domain.Outcome(outcome)
	return m, nil
}

// GetByID returns the stored snapshot of a market.
func (s *MarketStore) GetByID(ctx context.Context, id common.Address) (domain.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id.Hex())
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketSnapshot{}, fmt.Errorf("postgres: market %s: %w", id.Hex(), domain.ErrMarketNotFound)
		}
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: get market %s: %w", id.Hex(), err)
	}
	return m, nil
}

// List returns snapshots in creation order. Since and Until filter on
// updated_at.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSnapshot, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY idx ASC"

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.MarketSnapshot
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}
