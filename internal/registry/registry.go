// Package registry creates markets and indexes them in creation order. It
// holds no market economics; every operation on a market goes to its
// *amm.Market.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictamm/internal/amm"
	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/domain"
)

// Config holds the registry-wide defaults.
type Config struct {
	// Address seeds market ids: market n gets CreateAddress(Address, n).
	Address       common.Address
	Token         collateral.Token
	Sequencer     amm.Sequencer
	DefaultFeeBps uint16
	DefaultCurve  string
}

// Options override the defaults for one market.
type Options struct {
	FeeBps *uint16
	Curve  string
}

// Fee is a helper for building Options.FeeBps.
func Fee(bps uint16) *uint16 { return &bps }

// Registry is an append-only arena of markets. It is safe for concurrent use.
type Registry struct {
	address      common.Address
	token        collateral.Token
	seq          amm.Sequencer
	defaultFee   uint16
	defaultCurve amm.Curve

	mu      sync.RWMutex
	markets []*amm.Market
	byID    map[common.Address]*amm.Market
}

// New validates cfg and returns an empty registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("registry: collateral token is required")
	}
	if cfg.Sequencer == nil {
		return nil, fmt.Errorf("registry: sequencer is required")
	}
	if cfg.DefaultFeeBps >= amm.MaxFeeBps {
		return nil, fmt.Errorf("registry: default fee %d bps: %w", cfg.DefaultFeeBps, domain.ErrInvalidFee)
	}
	curve, err := amm.CurveByName(cfg.DefaultCurve)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return &Registry{
		address:      cfg.Address,
		token:        cfg.Token,
		seq:          cfg.Sequencer,
		defaultFee:   cfg.DefaultFeeBps,
		defaultCurve: curve,
		byID:         make(map[common.Address]*amm.Market),
	}, nil
}

// Token returns the collateral every market in this registry custodies.
func (r *Registry) Token() collateral.Token { return r.token }

// CreateMarket allocates a market with empty reserves whose resolver is
// creator.
func (r *Registry) CreateMarket(creator common.Address, question, metadataURI string, opts Options) (*amm.Market, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("registry: create market: %w", domain.ErrInvalidQuestion)
	}
	fee := r.defaultFee
	if opts.FeeBps != nil {
		fee = *opts.FeeBps
	}
	curve := r.defaultCurve
	if opts.Curve != "" {
		c, err := amm.CurveByName(opts.Curve)
		if err != nil {
			return nil, fmt.Errorf("registry: create market: %w", err)
		}
		curve = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	index := len(r.markets)
	m, err := amm.New(amm.Config{
		ID:          ethcrypto.CreateAddress(r.address, uint64(index)),
		Index:       index,
		Question:    question,
		MetadataURI: metadataURI,
		Creator:     creator,
		FeeBps:      fee,
		Curve:       curve,
		Token:       r.token,
		Sequencer:   r.seq,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: create market: %w", err)
	}
	r.markets = append(r.markets, m)
	r.byID[m.ID()] = m
	return m, nil
}

// Market looks up a market by id.
func (r *Registry) Market(id common.Address) (*amm.Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("registry: %s: %w", id.Hex(), domain.ErrMarketNotFound)
	}
	return m, nil
}

// AllMarkets returns every market id in creation order.
func (r *Registry) AllMarkets() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]common.Address, len(r.markets))
	for i, m := range r.markets {
		ids[i] = m.ID()
	}
	return ids
}

// Markets returns every market in creation order.
func (r *Registry) Markets() []*amm.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*amm.Market, len(r.markets))
	copy(out, r.markets)
	return out
}

// MarketCount returns the number of markets created.
func (r *Registry) MarketCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
