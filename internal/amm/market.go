// Package amm implements the binary prediction-market pool: liquidity,
// pricing, buys, paired redemption, resolution, and winner claims.
//
// Every mutating operation holds the market's write lock from validation to
// commit and either applies completely or returns an error with no state
// change. Reads take the read lock and always observe a committed state.
package amm

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/ledger"
)

// MaxFeeBps is the exclusive upper bound on a market's fee.
const MaxFeeBps = 10_000

// Sequencer hands out the monotonic sequence numbers stamped on events.
type Sequencer interface {
	Next() uint64
}

// Config describes a market at creation. Resolver defaults to Creator.
type Config struct {
	ID          common.Address
	Index       int
	Question    string
	MetadataURI string
	Creator     common.Address
	Resolver    common.Address
	FeeBps      uint16
	Curve       Curve
	Token       collateral.Token
	Sequencer   Sequencer
}

// Market is one binary prediction market.
type Market struct {
	id          common.Address
	index       int
	question    string
	metadataURI string
	creator     common.Address
	resolver    common.Address
	feeBps      uint16
	curve       Curve
	token       collateral.Token
	decimals    uint8
	seq         Sequencer
	createdSeq  uint64

	mu           sync.RWMutex
	yes          uint256.Int
	no           uint256.Int
	resolved     bool
	outcomeIsYes bool
	custody      uint256.Int
	fees         uint256.Int
	book         *ledger.Book
	lastSeq      uint64
}

// New validates cfg and returns an open market with empty reserves. The
// creation itself consumes one sequence number.
func New(cfg Config) (*Market, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("amm: new market: collateral token is required")
	}
	if cfg.Sequencer == nil {
		return nil, fmt.Errorf("amm: new market: sequencer is required")
	}
	if cfg.FeeBps >= MaxFeeBps {
		return nil, fmt.Errorf("amm: new market: fee %d bps: %w", cfg.FeeBps, domain.ErrInvalidFee)
	}
	if cfg.Token.Decimals() > 18 {
		return nil, fmt.Errorf("amm: new market: %w", domain.ErrInvalidDecimals)
	}
	curve := cfg.Curve
	if curve == nil {
		curve = ReserveRatio{}
	}
	resolver := cfg.Resolver
	if resolver == (common.Address{}) {
		resolver = cfg.Creator
	}

	m := &Market{
		id:          cfg.ID,
		index:       cfg.Index,
		question:    cfg.Question,
		metadataURI: cfg.MetadataURI,
		creator:     cfg.Creator,
		resolver:    resolver,
		feeBps:      cfg.FeeBps,
		curve:       curve,
		token:       cfg.Token,
		decimals:    cfg.Token.Decimals(),
		seq:         cfg.Sequencer,
		book:        ledger.NewBook(),
	}
	m.createdSeq = m.seq.Next()
	m.lastSeq = m.createdSeq
	return m, nil
}

// ID returns the market's address.
func (m *Market) ID() common.Address { return m.id }

// Index returns the market's position in creation order.
func (m *Market) Index() int { return m.index }

// Question returns the question text as created.
func (m *Market) Question() string { return m.question }

// MetadataURI returns the pointer to the off-engine metadata document.
func (m *Market) MetadataURI() string { return m.metadataURI }

// Creator returns the account that created the market.
func (m *Market) Creator() common.Address { return m.creator }

// Resolver returns the only account allowed to resolve the market.
func (m *Market) Resolver() common.Address { return m.resolver }

// FeeBps returns the buy fee in basis points.
func (m *Market) FeeBps() uint16 { return m.feeBps }

// CurveName returns the name of the pricing curve.
func (m *Market) CurveName() string { return m.curve.Name() }

// Decimals returns the collateral's native precision.
func (m *Market) Decimals() uint8 { return m.decimals }

// CreationEvent returns the event recorded when the market was created.
func (m *Market) CreationEvent() domain.MarketEvent {
	return domain.MarketEvent{
		Sequence: m.createdSeq,
		Kind:     domain.EventMarketCreated,
		MarketID: m.id,
		Account:  m.creator,
		Detail: map[string]string{
			"question":    m.question,
			"metadataUri": m.metadataURI,
			"feeBps":      fmt.Sprint(m.feeBps),
			"curve":       m.curve.Name(),
		},
	}
}

// YesReserves returns the pool's YES inventory.
func (m *Market) YesReserves() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(&m.yes)
}

// NoReserves returns the pool's NO inventory.
func (m *Market) NoReserves() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(&m.no)
}

// Reserves returns both inventories from the same committed state.
func (m *Market) Reserves() Reserves {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reservesLocked()
}

func (m *Market) reservesLocked() Reserves {
	return NewReserves(&m.yes, &m.no)
}

// Price returns the truncated price of side in cents. An empty pool reports
// 50 for both sides.
func (m *Market) Price(side domain.Side) uint64 {
	return m.Reserves().PriceCents(side)
}

// PriceBps returns the price of side in basis points.
func (m *Market) PriceBps(side domain.Side) uint64 {
	return m.Reserves().PriceBps(side)
}

// Resolved reports whether the market has been resolved.
func (m *Market) Resolved() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolved
}

// OutcomeWasYes reports the resolved outcome. It is meaningful only when
// Resolved returns true.
func (m *Market) OutcomeWasYes() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outcomeIsYes
}

// BalanceOf returns account's outcome balance on side.
func (m *Market) BalanceOf(account common.Address, side domain.Side) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.BalanceOf(account, side)
}

// TotalCollateralHeld returns custodied collateral in native units.
func (m *Market) TotalCollateralHeld() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(&m.custody)
}

// AccumulatedFees returns the fees collected, in native units. Fees are part
// of TotalCollateralHeld.
func (m *Market) AccumulatedFees() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(&m.fees)
}

// LastSequence returns the sequence number of the latest committed event.
func (m *Market) LastSequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeq
}

// Positions returns every account's balances, ordered by address.
func (m *Market) Positions() []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	holders := m.book.Holders()
	out := make([]domain.Position, 0, len(holders))
	for _, a := range holders {
		out = append(out, domain.Position{
			MarketID: m.id,
			Account:  a,
			Yes:      m.book.BalanceOf(a, domain.SideYes),
			No:       m.book.BalanceOf(a, domain.SideNo),
		})
	}
	return out
}

// Snapshot returns a consistent copy of the market. UpdatedAt is left zero;
// callers stamp it.
func (m *Market) Snapshot() domain.MarketSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.reservesLocked()
	state, outcome := domain.StateOpen, domain.OutcomePending
	if m.resolved {
		state, outcome = domain.StateResolved, domain.OutcomeNo
		if m.outcomeIsYes {
			outcome = domain.OutcomeYes
		}
	}
	return domain.MarketSnapshot{
		ID:                  m.id,
		Index:               m.index,
		Question:            m.question,
		MetadataURI:         m.metadataURI,
		Creator:             m.creator,
		Resolver:            m.resolver,
		CollateralSymbol:    m.token.Symbol(),
		CollateralDecimals:  m.decimals,
		FeeBps:              m.feeBps,
		Curve:               m.curve.Name(),
		YesReserves:         r.Yes,
		NoReserves:          r.No,
		PriceYesCents:       r.PriceCents(domain.SideYes),
		PriceNoCents:        r.PriceCents(domain.SideNo),
		State:               state,
		Outcome:             outcome,
		TotalCollateralHeld: new(uint256.Int).Set(&m.custody),
		AccumulatedFees:     new(uint256.Int).Set(&m.fees),
		LastSequence:        m.lastSeq,
	}
}

// event stamps the next sequence number. Callers hold the write lock.
func (m *Market) event(kind domain.EventKind, account common.Address) domain.MarketEvent {
	m.lastSeq = m.seq.Next()
	return domain.MarketEvent{
		Sequence: m.lastSeq,
		Kind:     kind,
		MarketID: m.id,
		Account:  account,
	}
}
