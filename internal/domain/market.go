package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MarketSnapshot is a consistent, read-only copy of one market's state. It is
// the unit persisted by MarketStore and cached by MarketCache.
type MarketSnapshot struct {
	ID                  common.Address `json:"id"`
	Index               int            `json:"index"`
	Question            string         `json:"question"`
	MetadataURI         string         `json:"metadataUri,omitempty"`
	Creator             common.Address `json:"creator"`
	Resolver            common.Address `json:"resolver"`
	CollateralSymbol    string         `json:"collateralSymbol"`
	CollateralDecimals  uint8          `json:"collateralDecimals"`
	FeeBps              uint16         `json:"feeBps"`
	Curve               string         `json:"curve"`
	YesReserves         *uint256.Int   `json:"yesReserves"`
	NoReserves          *uint256.Int   `json:"noReserves"`
	PriceYesCents       uint64         `json:"priceYesCents"`
	PriceNoCents        uint64         `json:"priceNoCents"`
	State               MarketState    `json:"state"`
	Outcome             Outcome        `json:"outcome"`
	TotalCollateralHeld *uint256.Int   `json:"totalCollateralHeld"`
	AccumulatedFees     *uint256.Int   `json:"accumulatedFees"`
	LastSequence        uint64         `json:"lastSequence"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Resolved reports whether the snapshot was taken after resolution.
func (m MarketSnapshot) Resolved() bool {
	return m.State == StateResolved
}

// PriceQuote is the cached spot price of a market.
type PriceQuote struct {
	MarketID  common.Address `json:"marketId"`
	YesCents  uint64         `json:"yesCents"`
	NoCents   uint64         `json:"noCents"`
	YesBps    uint64         `json:"yesBps"`
	NoBps     uint64         `json:"noBps"`
	Sequence  uint64         `json:"sequence"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
