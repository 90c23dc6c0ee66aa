// Package ledger tracks YES and NO outcome-share balances per account for a
// single market.
//
// A Book is not safe for concurrent use; the owning market serialises access.
package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

type balances [2]uint256.Int

// Book holds share balances and per-side supply.
type Book struct {
	accounts map[common.Address]*balances
	supply   [2]uint256.Int
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{accounts: make(map[common.Address]*balances)}
}

// BalanceOf returns a copy of account's balance on side.
func (b *Book) BalanceOf(account common.Address, side domain.Side) *uint256.Int {
	if !side.Valid() {
		return new(uint256.Int)
	}
	bal, ok := b.accounts[account]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&bal[side])
}

// TotalSupply returns the circulating supply of side.
func (b *Book) TotalSupply(side domain.Side) *uint256.Int {
	if !side.Valid() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&b.supply[side])
}

// Mint credits amount shares of side to account. Minting zero is a no-op.
func (b *Book) Mint(account common.Address, side domain.Side, amount *uint256.Int) error {
	if !side.Valid() {
		return fmt.Errorf("ledger: mint: %w", domain.ErrInvalidSide)
	}
	if amount.IsZero() {
		return nil
	}
	bal := b.accounts[account]
	var cur uint256.Int
	if bal != nil {
		cur.Set(&bal[side])
	}
	next, overflow := new(uint256.Int).AddOverflow(&cur, amount)
	if overflow {
		return fmt.Errorf("ledger: mint: %w", domain.ErrArithmeticOverflow)
	}
	supply, overflow := new(uint256.Int).AddOverflow(&b.supply[side], amount)
	if overflow {
		return fmt.Errorf("ledger: mint supply: %w", domain.ErrArithmeticOverflow)
	}
	if bal == nil {
		bal = new(balances)
		b.accounts[account] = bal
	}
	bal[side].Set(next)
	b.supply[side].Set(supply)
	return nil
}

// CanMint reports whether minting amount of side would succeed. Every
// balance is bounded by the supply, so checking the supply suffices.
func (b *Book) CanMint(side domain.Side, amount *uint256.Int) bool {
	if !side.Valid() {
		return false
	}
	_, overflow := new(uint256.Int).AddOverflow(&b.supply[side], amount)
	return !overflow
}

// CanBurn reports whether account holds at least amount of side.
func (b *Book) CanBurn(account common.Address, side domain.Side, amount *uint256.Int) bool {
	if !side.Valid() {
		return false
	}
	bal, ok := b.accounts[account]
	if !ok {
		return amount.IsZero()
	}
	return !bal[side].Lt(amount)
}

// Burn debits amount shares of side from account. On ErrInsufficientBalance
// the book is unchanged.
func (b *Book) Burn(account common.Address, side domain.Side, amount *uint256.Int) error {
	if !side.Valid() {
		return fmt.Errorf("ledger: burn: %w", domain.ErrInvalidSide)
	}
	if !b.CanBurn(account, side, amount) {
		return fmt.Errorf("ledger: burn %s: %w", side, domain.ErrInsufficientBalance)
	}
	if amount.IsZero() {
		return nil
	}
	bal := b.accounts[account]
	bal[side].Sub(&bal[side], amount)
	b.supply[side].Sub(&b.supply[side], amount)
	if bal[0].IsZero() && bal[1].IsZero() {
		delete(b.accounts, account)
	}
	return nil
}

// BurnPair burns amount of both YES and NO from account, or nothing.
func (b *Book) BurnPair(account common.Address, amount *uint256.Int) error {
	if !b.CanBurn(account, domain.SideYes, amount) || !b.CanBurn(account, domain.SideNo, amount) {
		return fmt.Errorf("ledger: burn pair: %w", domain.ErrInsufficientBalance)
	}
	if err := b.Burn(account, domain.SideYes, amount); err != nil {
		return err
	}
	return b.Burn(account, domain.SideNo, amount)
}

// Holders returns every account with a nonzero balance, sorted by address.
func (b *Book) Holders() []common.Address {
	out := make([]common.Address, 0, len(b.accounts))
	for a := range b.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
