package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

func TestCurveByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", CurveReserveRatio},
		{"reserve_ratio", CurveReserveRatio},
		{"Constant_Product", CurveConstantProduct},
		{"fpmm", CurveConstantProduct},
	}
	for _, tt := range tests {
		c, err := CurveByName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, c.Name())
	}

	_, err := CurveByName("lmsr")
	assert.Error(t, err)
}

func TestReserveRatioQuote(t *testing.T) {
	r := NewReserves(uint256.NewInt(1000), uint256.NewInt(1000))
	q, err := ReserveRatio{}.Quote(domain.SideYes, r, uint256.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, uint64(198), q.SharesOut.Uint64())
	assert.Equal(t, uint64(802), q.After.Yes.Uint64())
	assert.Equal(t, uint64(1099), q.After.No.Uint64())
	// input untouched
	assert.Equal(t, uint64(1000), r.Yes.Uint64())
	assert.Equal(t, uint64(1000), r.No.Uint64())
}

func TestReserveRatioRejectsDrain(t *testing.T) {
	r := NewReserves(uint256.NewInt(1000), uint256.NewInt(1000))
	_, err := ReserveRatio{}.Quote(domain.SideNo, r, uint256.NewInt(500))
	assert.ErrorIs(t, err, domain.ErrInsufficientReserves)

	_, err = ReserveRatio{}.Quote(domain.SideNo, NewReserves(uint256.NewInt(0), uint256.NewInt(0)), uint256.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrPoolEmpty)
}

func TestConstantProductQuote(t *testing.T) {
	r := NewReserves(uint256.NewInt(1000), uint256.NewInt(1000))
	q, err := ConstantProduct{}.Quote(domain.SideYes, r, uint256.NewInt(100))
	require.NoError(t, err)

	// k = 1_000_000; no' = 1100; yes' = ceil(1e6/1100) = 910; out = 1000+100-910
	assert.Equal(t, uint64(910), q.After.Yes.Uint64())
	assert.Equal(t, uint64(1100), q.After.No.Uint64())
	assert.Equal(t, uint64(190), q.SharesOut.Uint64())

	k := new(uint256.Int).Mul(q.After.Yes, q.After.No)
	assert.False(t, k.Lt(uint256.NewInt(1_000_000)), "product must not decrease")
}

func TestConstantProductNeverDrains(t *testing.T) {
	r := NewReserves(uint256.NewInt(10), uint256.NewInt(10))
	q, err := ConstantProduct{}.Quote(domain.SideNo, r, uint256.NewInt(1_000_000))
	require.NoError(t, err)
	assert.False(t, q.After.No.IsZero())
}

func TestReservesPrice(t *testing.T) {
	r := NewReserves(uint256.NewInt(802), uint256.NewInt(1099))
	assert.Equal(t, uint64(57), r.PriceCents(domain.SideYes))
	assert.Equal(t, uint64(42), r.PriceCents(domain.SideNo))
	assert.Equal(t, uint64(5781), r.PriceBps(domain.SideYes))
	assert.Equal(t, uint64(58), roundedCents(r.PriceBps(domain.SideYes)))

	empty := NewReserves(uint256.NewInt(0), uint256.NewInt(0))
	assert.Equal(t, uint64(50), empty.PriceCents(domain.SideYes))
	assert.Equal(t, uint64(5000), empty.PriceBps(domain.SideNo))
	assert.Equal(t, uint64(0), r.PriceCents(domain.Side(5)))
}
