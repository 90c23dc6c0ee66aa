package amm

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Reserves is an immutable pair of pool-held outcome inventories in internal
// units.
type Reserves struct {
	Yes *uint256.Int
	No  *uint256.Int
}

// NewReserves copies yes and no into a Reserves value.
func NewReserves(yes, no *uint256.Int) Reserves {
	return Reserves{Yes: new(uint256.Int).Set(yes), No: new(uint256.Int).Set(no)}
}

// Of returns the reserve of side.
func (r Reserves) Of(side domain.Side) *uint256.Int {
	if side == domain.SideYes {
		return r.Yes
	}
	return r.No
}

func (r Reserves) with(side domain.Side, v *uint256.Int) Reserves {
	if side == domain.SideYes {
		r.Yes = v
	} else {
		r.No = v
	}
	return r
}

// Total returns yes + no.
func (r Reserves) Total() (*uint256.Int, error) {
	return fixedpoint.Add(r.Yes, r.No)
}

var (
	hundred     = uint256.NewInt(100)
	tenThousand = uint256.NewInt(10_000)
)

// PriceCents is the truncated price of side in cents: the opposite reserve's
// share of total reserves. An empty pool prices both sides at 50.
func (r Reserves) PriceCents(side domain.Side) uint64 {
	return r.price(side, hundred)
}

// PriceBps is PriceCents at basis-point resolution.
func (r Reserves) PriceBps(side domain.Side) uint64 {
	return r.price(side, tenThousand)
}

func (r Reserves) price(side domain.Side, scale *uint256.Int) uint64 {
	if !side.Valid() {
		return 0
	}
	total, err := r.Total()
	if err != nil {
		// Reserves near 2^256 only; fall back to halving both sides.
		half := Reserves{
			Yes: new(uint256.Int).Rsh(r.Yes, 1),
			No:  new(uint256.Int).Rsh(r.No, 1),
		}
		return half.price(side, scale)
	}
	if total.IsZero() {
		return scale.Uint64() / 2
	}
	p, err := fixedpoint.MulDiv(r.Of(side.Opposite()), scale, total)
	if err != nil {
		return 0
	}
	return p.Uint64()
}

// roundedCents converts basis points to cents, rounding half up.
func roundedCents(bps uint64) uint64 {
	return (bps + 50) / 100
}
