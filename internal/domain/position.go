package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is one account's outcome-share holdings in one market, in
// 18-decimal internal units.
type Position struct {
	MarketID common.Address `json:"marketId"`
	Account  common.Address `json:"account"`
	Yes      *uint256.Int   `json:"yes"`
	No       *uint256.Int   `json:"no"`
}

// Hedged returns the amount redeemable at par: min(Yes, No).
func (p Position) Hedged() *uint256.Int {
	if p.Yes == nil || p.No == nil {
		return new(uint256.Int)
	}
	if p.Yes.Lt(p.No) {
		return new(uint256.Int).Set(p.Yes)
	}
	return new(uint256.Int).Set(p.No)
}
