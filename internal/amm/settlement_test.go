package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

func TestRedeemNeverGains(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	start := f.token.BalanceOf(alice)

	_, err := f.m.Buy(alice, domain.SideYes, usdc(100), nil)
	require.NoError(t, err)
	_, err = f.m.Buy(alice, domain.SideNo, usdc(100), nil)
	require.NoError(t, err)

	pos := f.m.Positions()
	require.Len(t, pos, 1)
	hedged := pos[0].Hedged()

	ev, err := f.m.Redeem(alice, hedged)
	require.NoError(t, err)
	assert.Equal(t, domain.EventRedeemed, ev.Kind)

	end := f.token.BalanceOf(alice)
	assert.True(t, end.Lt(start) || end.Eq(start), "redeeming a hedged position must not return more than was spent")
	assert.Equal(t, uint64(198_000_000), ev.Payout.Uint64())
	f.assertCustody(t)
}

func TestRedeemExactPar(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(50), nil)
	require.NoError(t, err)
	_, err = f.m.Buy(alice, domain.SideNo, usdc(50), nil)
	require.NoError(t, err)

	before := f.token.BalanceOf(alice)
	ev, err := f.m.Redeem(alice, shares(100))
	require.NoError(t, err)
	assert.Equal(t, usdc(100).Dec(), ev.Payout.Dec())
	assert.Equal(t, new(uint256.Int).Add(before, usdc(100)).Dec(), f.token.BalanceOf(alice).Dec())
	assert.Equal(t, shares(100).Dec(), ev.Amount.Dec())
	f.assertCustody(t)
}

func TestRedeemErrorsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(10), nil)
	require.NoError(t, err)
	before := f.capture()

	_, err = f.m.Redeem(alice, uint256.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// alice holds YES only
	_, err = f.m.Redeem(alice, shares(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, before, f.capture())
}

func TestRedeemDustRejected(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(1), nil)
	require.NoError(t, err)
	_, err = f.m.Buy(alice, domain.SideNo, usdc(1), nil)
	require.NoError(t, err)

	_, err = f.m.Redeem(alice, uint256.NewInt(999_999_999_999))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRedeemAfterResolution(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(5), nil)
	require.NoError(t, err)
	_, err = f.m.Buy(alice, domain.SideNo, usdc(5), nil)
	require.NoError(t, err)
	_, err = f.m.Resolve(creator, false)
	require.NoError(t, err)

	_, err = f.m.Redeem(alice, shares(10))
	require.NoError(t, err)
	f.assertCustody(t)
}

func TestResolveAuthorization(t *testing.T) {
	f := newFixture(t, 100, nil)
	before := f.capture()

	_, err := f.m.Resolve(stranger, true)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, before, f.capture())

	ev, err := f.m.Resolve(creator, true)
	require.NoError(t, err)
	assert.Equal(t, "YES", ev.Detail["outcome"])
	assert.True(t, f.m.Resolved())
	assert.True(t, f.m.OutcomeWasYes())

	_, err = f.m.Resolve(creator, false)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.True(t, f.m.OutcomeWasYes())
}

func TestResolutionIsOneWay(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	_, err := f.m.Resolve(creator, false)
	require.NoError(t, err)
	before := f.capture()

	for i := 0; i < 3; i++ {
		_, err = f.m.AddLiquidity(lp, usdc(1))
		assert.ErrorIs(t, err, domain.ErrMarketResolved)
		_, err = f.m.Buy(alice, domain.SideYes, usdc(1), nil)
		assert.ErrorIs(t, err, domain.ErrMarketResolved)
		_, err = f.m.QuoteBuy(domain.SideYes, usdc(1))
		assert.ErrorIs(t, err, domain.ErrMarketResolved)
	}
	assert.Equal(t, before, f.capture())

	snap := f.m.Snapshot()
	assert.Equal(t, domain.StateResolved, snap.State)
	assert.Equal(t, domain.OutcomeNo, snap.Outcome)
}

func TestClaimScenario(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.seed(t, 1000)

	// 75 at 50c buys exactly 150 YES
	_, err := f.m.Buy(alice, domain.SideYes, usdc(75), nil)
	require.NoError(t, err)
	require.Equal(t, shares(150).Dec(), f.m.BalanceOf(alice, domain.SideYes).Dec())
	_, err = f.m.Buy(bob, domain.SideNo, usdc(20), nil)
	require.NoError(t, err)

	_, err = f.m.Claim(alice)
	require.ErrorIs(t, err, domain.ErrMarketNotResolved)

	_, err = f.m.Resolve(creator, true)
	require.NoError(t, err)
	assert.Equal(t, usdc(150).Dec(), f.m.ClaimableOf(alice).Dec())

	before := f.token.BalanceOf(alice)
	ev, err := f.m.Claim(alice)
	require.NoError(t, err)
	assert.Equal(t, usdc(150).Dec(), ev.Payout.Dec())
	assert.Equal(t, new(uint256.Int).Add(before, usdc(150)).Dec(), f.token.BalanceOf(alice).Dec())
	assert.True(t, f.m.BalanceOf(alice, domain.SideYes).IsZero())

	_, err = f.m.Claim(alice)
	require.ErrorIs(t, err, domain.ErrNoWinnings)

	stateBefore := f.capture()
	_, err = f.m.Claim(bob)
	require.ErrorIs(t, err, domain.ErrNoWinnings)
	assert.Equal(t, stateBefore, f.capture())
	// losing shares are left in place
	assert.False(t, f.m.BalanceOf(bob, domain.SideNo).IsZero())
	f.assertCustody(t)
}

func TestClaimLeavesLosingSide(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(10), nil)
	require.NoError(t, err)
	_, err = f.m.Buy(alice, domain.SideNo, usdc(30), nil)
	require.NoError(t, err)
	noBefore := f.m.BalanceOf(alice, domain.SideNo)

	_, err = f.m.Resolve(creator, false)
	require.NoError(t, err)
	ev, err := f.m.Claim(alice)
	require.NoError(t, err)
	assert.Equal(t, noBefore.Dec(), ev.Amount.Dec())
	assert.True(t, f.m.BalanceOf(alice, domain.SideNo).IsZero())
	assert.False(t, f.m.BalanceOf(alice, domain.SideYes).IsZero())
	f.assertCustody(t)
}

func TestEveryWinnerCanBePaid(t *testing.T) {
	for _, curve := range []Curve{ReserveRatio{}, ConstantProduct{}} {
		t.Run(curve.Name(), func(t *testing.T) {
			f := newFixture(t, 200, curve)
			f.seed(t, 500)
			for i := 0; i < 10; i++ {
				_, err := f.m.Buy(alice, domain.SideYes, usdc(20), nil)
				require.NoError(t, err)
				_, err = f.m.Buy(bob, domain.SideNo, usdc(7), nil)
				require.NoError(t, err)
			}
			_, err := f.m.Resolve(creator, true)
			require.NoError(t, err)
			_, err = f.m.Claim(alice)
			require.NoError(t, err)
			f.assertCustody(t)
			assert.False(t, f.m.TotalCollateralHeld().IsZero())
		})
	}
}
