package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a committed state transition.
type EventKind string

const (
	EventMarketCreated  EventKind = "market_created"
	EventLiquidityAdded EventKind = "liquidity_added"
	EventTrade          EventKind = "trade"
	EventRedeemed       EventKind = "redeemed"
	EventResolved       EventKind = "resolved"
	EventClaimed        EventKind = "claimed"
)

// TradeEvent records one executed buy. CollateralIn and Fee are in the
// collateral's native units, SharesOut in 18-decimal internal units.
type TradeEvent struct {
	Account             common.Address `json:"account"`
	Side                Side           `json:"side"`
	CollateralIn        *uint256.Int   `json:"collateralIn"`
	Fee                 *uint256.Int   `json:"fee"`
	SharesOut           *uint256.Int   `json:"sharesOut"`
	ResultingPriceCents uint64         `json:"resultingPriceCents"`
	Sequence            uint64         `json:"sequenceNumber"`
}

// MarketEvent is the envelope appended to the event stream for every
// committed operation. Trade is set only for EventTrade. Amount carries the
// operation's principal quantity for the other kinds (collateral deposited,
// shares redeemed or claimed).
type MarketEvent struct {
	Sequence  uint64            `json:"sequence"`
	Kind      EventKind         `json:"kind"`
	MarketID  common.Address    `json:"marketId"`
	Account   common.Address    `json:"account"`
	Amount    *uint256.Int      `json:"amount,omitempty"`
	Payout    *uint256.Int      `json:"payout,omitempty"`
	Trade     *TradeEvent       `json:"trade,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
