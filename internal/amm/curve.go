package amm

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Curve names accepted by CurveByName and the engine.curve config key.
const (
	CurveReserveRatio    = "reserve_ratio"
	CurveConstantProduct = "constant_product"
)

// Quote is the outcome of pricing a buy: the shares paid out and the pool
// reserves after the trade.
type Quote struct {
	SharesOut *uint256.Int
	After     Reserves
}

// Curve prices a buy of side with netIn (internal units, fee already
// removed). Implementations must not mutate r and must leave the bought
// side's reserve strictly positive.
type Curve interface {
	Name() string
	Quote(side domain.Side, r Reserves, netIn *uint256.Int) (Quote, error)
}

// CurveByName returns the curve registered under name. An empty name selects
// the reserve-ratio curve.
func CurveByName(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CurveReserveRatio:
		return ReserveRatio{}, nil
	case CurveConstantProduct, "fpmm":
		return ConstantProduct{}, nil
	default:
		return nil, fmt.Errorf("amm: unknown curve %q", name)
	}
}

// ReserveRatio values netIn at the pre-trade price of side:
//
//	sharesOut = netIn * (yes + no) / opposite
//
// then drains sharesOut from side and adds netIn to the opposite reserve.
type ReserveRatio struct{}

// Name implements Curve.
func (ReserveRatio) Name() string { return CurveReserveRatio }

// Quote implements Curve.
func (ReserveRatio) Quote(side domain.Side, r Reserves, netIn *uint256.Int) (Quote, error) {
	total, err := r.Total()
	if err != nil {
		return Quote{}, err
	}
	if total.IsZero() {
		return Quote{}, domain.ErrPoolEmpty
	}
	have := r.Of(side)
	opp := r.Of(side.Opposite())
	if opp.IsZero() {
		return Quote{}, domain.ErrInsufficientReserves
	}

	shares, err := fixedpoint.MulDiv(netIn, total, opp)
	if err != nil {
		return Quote{}, err
	}
	if !shares.Lt(have) {
		return Quote{}, domain.ErrInsufficientReserves
	}

	oppAfter, err := fixedpoint.Add(opp, netIn)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		SharesOut: shares,
		After:     r.with(side, new(uint256.Int).Sub(have, shares)).with(side.Opposite(), oppAfter),
	}, nil
}

// ConstantProduct is a fixed-product market maker. netIn mints netIn of both
// sides into the pool, then enough of side is withdrawn to restore
// yes * no to its pre-trade value. The remaining side reserve is rounded up
// so the product never decreases.
type ConstantProduct struct{}

// Name implements Curve.
func (ConstantProduct) Name() string { return CurveConstantProduct }

// Quote implements Curve.
func (ConstantProduct) Quote(side domain.Side, r Reserves, netIn *uint256.Int) (Quote, error) {
	have := r.Of(side)
	opp := r.Of(side.Opposite())
	if have.IsZero() && opp.IsZero() {
		return Quote{}, domain.ErrPoolEmpty
	}
	if have.IsZero() || opp.IsZero() {
		return Quote{}, domain.ErrInsufficientReserves
	}

	oppAfter, err := fixedpoint.Add(opp, netIn)
	if err != nil {
		return Quote{}, err
	}
	haveAfter, err := fixedpoint.MulDivUp(have, opp, oppAfter)
	if err != nil {
		return Quote{}, err
	}
	if haveAfter.IsZero() {
		return Quote{}, domain.ErrInsufficientReserves
	}

	gross, err := fixedpoint.Add(have, netIn)
	if err != nil {
		return Quote{}, err
	}
	shares, err := fixedpoint.Sub(gross, haveAfter)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		SharesOut: shares,
		After:     r.with(side, haveAfter).with(side.Opposite(), oppAfter),
	}, nil
}
