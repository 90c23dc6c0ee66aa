// Package collateral models the external unit-of-account asset that markets
// custody. Ledger is an in-process ERC-20-like token; production deployments
// can supply any Token implementation.
package collateral

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Token is the collateral interface a market consumes. Amounts are in the
// token's native precision.
type Token interface {
	// TransferIn moves amount from a holder into custodian (the market).
	TransferIn(from, custodian common.Address, amount *uint256.Int) error
	// TransferOut moves amount from custodian to a holder.
	TransferOut(custodian, to common.Address, amount *uint256.Int) error
	BalanceOf(holder common.Address) *uint256.Int
	Decimals() uint8
	Symbol() string
}

// Ledger is a mutex-guarded balance table.
type Ledger struct {
	mu       sync.Mutex
	symbol   string
	decimals uint8
	balances map[common.Address]*uint256.Int
	supply   uint256.Int
}

// NewLedger creates a token. decimals above 18 are rejected because markets
// could not rescale them.
func NewLedger(symbol string, decimals uint8) (*Ledger, error) {
	if decimals > fixedpoint.InternalDecimals {
		return nil, fmt.Errorf("collateral: %s with %d decimals: %w", symbol, decimals, domain.ErrInvalidDecimals)
	}
	return &Ledger{
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[common.Address]*uint256.Int),
	}, nil
}

// Decimals returns the token's native precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// Symbol returns the token's ticker.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns a copy of holder's balance.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(holder)
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(&l.supply)
}

// Mint creates amount out of thin air for to. It backs journal faucets and
// tests the way a mock stablecoin would.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(&l.supply, amount)
	if overflow {
		return fmt.Errorf("collateral: mint: %w", domain.ErrArithmeticOverflow)
	}
	bal, overflow := new(uint256.Int).AddOverflow(l.balanceLocked(to), amount)
	if overflow {
		return fmt.Errorf("collateral: mint: %w", domain.ErrArithmeticOverflow)
	}
	l.supply.Set(supply)
	l.balances[to] = bal
	return nil
}

// TransferIn implements Token.
func (l *Ledger) TransferIn(from, custodian common.Address, amount *uint256.Int) error {
	if err := l.transfer(from, custodian, amount); err != nil {
		return fmt.Errorf("collateral: transfer in: %w", err)
	}
	return nil
}

// TransferOut implements Token.
func (l *Ledger) TransferOut(custodian, to common.Address, amount *uint256.Int) error {
	if err := l.transfer(custodian, to, amount); err != nil {
		return fmt.Errorf("collateral: transfer out: %w", err)
	}
	return nil
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balanceLocked(from)
	if src.Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	if from == to || amount.IsZero() {
		return nil
	}
	dst, overflow := new(uint256.Int).AddOverflow(l.balanceLocked(to), amount)
	if overflow {
		return domain.ErrArithmeticOverflow
	}
	l.balances[from] = src.Sub(src, amount)
	l.balances[to] = dst
	return nil
}

func (l *Ledger) balanceLocked(holder common.Address) *uint256.Int {
	if b, ok := l.balances[holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Compile-time interface check.
var _ Token = (*Ledger)(nil)
