package amm

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
	"github.com/alanyoungcy/predictamm/internal/sequence"
)

var (
	creator  = common.HexToAddress("0xc0ffee")
	lp       = common.HexToAddress("0x11")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	stranger = common.HexToAddress("0xbad")
	marketID = common.HexToAddress("0x4d4b54")
)

func usdc(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000))
}

func shares(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	token *collateral.Ledger
	seq   *sequence.Counter
	m     *Market
}

func newFixture(t *testing.T, feeBps uint16, curve Curve) *fixture {
	t.Helper()
	token, err := collateral.NewLedger("USDC", 6)
	require.NoError(t, err)
	for _, a := range []common.Address{lp, alice, bob, stranger} {
		require.NoError(t, token.Mint(a, usdc(100_000)))
	}
	seq := sequence.NewCounter(0)
	m, err := New(Config{
		ID:        marketID,
		Question:  "Will it rain tomorrow?",
		Creator:   creator,
		FeeBps:    feeBps,
		Curve:     curve,
		Token:     token,
		Sequencer: seq,
	})
	require.NoError(t, err)
	return &fixture{token: token, seq: seq, m: m}
}

func (f *fixture) seed(t *testing.T, amount uint64) {
	t.Helper()
	_, err := f.m.AddLiquidity(lp, usdc(amount))
	require.NoError(t, err)
}

func (f *fixture) assertCustody(t *testing.T) {
	t.Helper()
	assert.Equal(t, f.token.BalanceOf(f.m.ID()).Dec(), f.m.TotalCollateralHeld().Dec(),
		"custody must equal the collateral actually held")
}

// state captures everything a failed operation must leave untouched.
type state struct {
	snap     domain.MarketSnapshot
	pos      []domain.Position
	balances map[common.Address]string
}

func (f *fixture) capture() state {
	s := state{snap: f.m.Snapshot(), pos: f.m.Positions(), balances: map[common.Address]string{}}
	for _, a := range []common.Address{lp, alice, bob, stranger, f.m.ID()} {
		s.balances[a] = f.token.BalanceOf(a).Dec()
	}
	return s
}

func TestNewMarketDefaults(t *testing.T) {
	f := newFixture(t, 100, nil)
	assert.Equal(t, creator, f.m.Resolver())
	assert.Equal(t, CurveReserveRatio, f.m.CurveName())
	assert.True(t, f.m.YesReserves().IsZero())
	assert.True(t, f.m.NoReserves().IsZero())
	assert.False(t, f.m.Resolved())

	ev := f.m.CreationEvent()
	assert.Equal(t, domain.EventMarketCreated, ev.Kind)
	assert.Equal(t, uint64(1), ev.Sequence)
}

func TestNewMarketRejectsFee(t *testing.T) {
	token, err := collateral.NewLedger("USDC", 6)
	require.NoError(t, err)
	_, err = New(Config{Token: token, Sequencer: sequence.NewCounter(0), FeeBps: MaxFeeBps})
	require.ErrorIs(t, err, domain.ErrInvalidFee)
}

func TestEmptyPoolPricesAtFifty(t *testing.T) {
	f := newFixture(t, 100, nil)
	assert.Equal(t, uint64(50), f.m.Price(domain.SideYes))
	assert.Equal(t, uint64(50), f.m.Price(domain.SideNo))
}

func TestAddLiquidity(t *testing.T) {
	f := newFixture(t, 100, nil)
	ev, err := f.m.AddLiquidity(lp, usdc(1000))
	require.NoError(t, err)

	assert.Equal(t, domain.EventLiquidityAdded, ev.Kind)
	assert.Equal(t, usdc(1000).Dec(), ev.Amount.Dec())
	assert.Equal(t, shares(1000).Dec(), f.m.YesReserves().Dec())
	assert.Equal(t, shares(1000).Dec(), f.m.NoReserves().Dec())
	assert.Equal(t, uint64(50), f.m.Price(domain.SideYes))
	assert.Equal(t, uint64(50), f.m.Price(domain.SideNo))
	// the provider receives no position
	assert.Empty(t, f.m.Positions())
	f.assertCustody(t)
}

func TestAddLiquidityErrors(t *testing.T) {
	f := newFixture(t, 100, nil)
	before := f.capture()

	_, err := f.m.AddLiquidity(lp, uint256.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.m.AddLiquidity(common.HexToAddress("0xdead"), usdc(1))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, before, f.capture())
}

func TestBuyScenario(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)

	ev, err := f.m.Buy(alice, domain.SideYes, usdc(100), nil)
	require.NoError(t, err)
	require.NotNil(t, ev.Trade)

	assert.Equal(t, shares(198).Dec(), ev.Trade.SharesOut.Dec())
	assert.Equal(t, usdc(1).Dec(), ev.Trade.Fee.Dec())
	assert.Equal(t, usdc(100).Dec(), ev.Trade.CollateralIn.Dec())
	assert.Equal(t, shares(802).Dec(), f.m.YesReserves().Dec())
	assert.Equal(t, shares(1099).Dec(), f.m.NoReserves().Dec())
	assert.Equal(t, uint64(57), f.m.Price(domain.SideYes))
	assert.Equal(t, uint64(42), f.m.Price(domain.SideNo))
	assert.Equal(t, uint64(5781), f.m.PriceBps(domain.SideYes))
	assert.Equal(t, uint64(58), ev.Trade.ResultingPriceCents)
	assert.Equal(t, ev.Sequence, ev.Trade.Sequence)

	assert.Equal(t, shares(198).Dec(), f.m.BalanceOf(alice, domain.SideYes).Dec())
	assert.Equal(t, usdc(1100).Dec(), f.m.TotalCollateralHeld().Dec())
	assert.Equal(t, usdc(1).Dec(), f.m.AccumulatedFees().Dec())
	f.assertCustody(t)
}

func TestQuoteMatchesBuy(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)

	q, err := f.m.QuoteBuy(domain.SideNo, usdc(40))
	require.NoError(t, err)
	before := f.m.Snapshot()
	assert.Equal(t, before, f.m.Snapshot(), "quoting must not mutate")

	ev, err := f.m.Buy(bob, domain.SideNo, usdc(40), q.SharesOut)
	require.NoError(t, err)
	assert.Equal(t, q.SharesOut.Dec(), ev.Trade.SharesOut.Dec())
	assert.Equal(t, q.ResultingPriceCents(), ev.Trade.ResultingPriceCents)
	assert.Equal(t, uint64(5000), q.AvgPriceBps)
}

func TestPriceSumInvariant(t *testing.T) {
	for _, curve := range []Curve{ReserveRatio{}, ConstantProduct{}} {
		t.Run(curve.Name(), func(t *testing.T) {
			f := newFixture(t, 100, curve)
			f.seed(t, 1000)

			trades := []struct {
				who  common.Address
				side domain.Side
				amt  uint64
			}{
				{alice, domain.SideYes, 100},
				{bob, domain.SideNo, 37},
				{alice, domain.SideYes, 5},
				{bob, domain.SideNo, 250},
				{alice, domain.SideNo, 1},
			}
			for _, tr := range trades {
				_, err := f.m.Buy(tr.who, tr.side, usdc(tr.amt), nil)
				require.NoError(t, err)
				sum := f.m.Price(domain.SideYes) + f.m.Price(domain.SideNo)
				assert.Contains(t, []uint64{99, 100}, sum)
				f.assertCustody(t)
			}
		})
	}
}

func TestBuyMovesPrices(t *testing.T) {
	for _, curve := range []Curve{ReserveRatio{}, ConstantProduct{}} {
		for _, side := range domain.Sides {
			t.Run(curve.Name()+"/"+side.String(), func(t *testing.T) {
				f := newFixture(t, 100, curve)
				f.seed(t, 1000)

				for _, amt := range []uint64{1, 10, 60} {
					mine, other := f.m.PriceBps(side), f.m.PriceBps(side.Opposite())
					_, err := f.m.Buy(alice, side, usdc(amt), nil)
					require.NoError(t, err)
					assert.Greater(t, f.m.PriceBps(side), mine)
					assert.Less(t, f.m.PriceBps(side.Opposite()), other)
				}
			})
		}
	}
}

func TestBuyErrorsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(10), nil)
	require.NoError(t, err)
	before := f.capture()

	_, err = f.m.Buy(bob, domain.SideYes, uint256.NewInt(0), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.m.Buy(bob, domain.Side(9), usdc(1), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = f.m.Buy(bob, domain.SideYes, usdc(10), shares(1000))
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// 600 net at ~51c would need more YES than the pool holds
	_, err = f.m.Buy(bob, domain.SideYes, usdc(600), nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientReserves)

	_, err = f.m.Buy(common.HexToAddress("0xdead"), domain.SideNo, usdc(1), nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, before, f.capture())
}

func TestBuyOnEmptyPool(t *testing.T) {
	f := newFixture(t, 100, nil)
	_, err := f.m.Buy(alice, domain.SideYes, usdc(1), nil)
	require.ErrorIs(t, err, domain.ErrPoolEmpty)
}

func TestFeeRoundsInPoolFavour(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)
	// 150 native units at 1% is 1.5: the trader invests 148.5, the fee books 2
	ev, err := f.m.Buy(alice, domain.SideYes, uint256.NewInt(150), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev.Trade.Fee.Uint64())
	assert.Equal(t, uint64(2), f.m.AccumulatedFees().Uint64())
	f.assertCustody(t)
}

func TestSmallBuysStillPayFee(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 1000)

	for _, in := range []uint64{1, 50, 99} {
		q, err := f.m.QuoteBuy(domain.SideYes, uint256.NewInt(in))
		require.NoError(t, err)
		gross, err := fixedpoint.ToInternal(uint256.NewInt(in), 6)
		require.NoError(t, err)
		// 1% of in, expressed at 18 decimals
		fee := new(uint256.Int).Mul(uint256.NewInt(in), uint256.NewInt(10_000_000_000))
		assert.Equal(t, new(uint256.Int).Sub(gross, fee).Dec(), q.NetInvestment.Dec(), "in=%d", in)
		assert.Equal(t, uint64(1), q.Fee.Uint64(), "in=%d", in)
	}

	// At the opening 50 cent price, 99 units net 98.01 units of shares at 2 each.
	ev, err := f.m.Buy(alice, domain.SideYes, uint256.NewInt(99), nil)
	require.NoError(t, err)
	assert.Equal(t, "196020000000000", ev.Trade.SharesOut.Dec())
	assert.Equal(t, uint64(1), f.m.AccumulatedFees().Uint64())
	f.assertCustody(t)
}

func TestSequenceIsMonotonic(t *testing.T) {
	f := newFixture(t, 100, nil)
	last := f.m.CreationEvent().Sequence

	ev, err := f.m.AddLiquidity(lp, usdc(100))
	require.NoError(t, err)
	assert.Greater(t, ev.Sequence, last)
	last = ev.Sequence

	ev, err = f.m.Buy(alice, domain.SideNo, usdc(1), nil)
	require.NoError(t, err)
	assert.Greater(t, ev.Sequence, last)
	assert.Equal(t, ev.Sequence, f.m.LastSequence())
}

func TestConcurrentBuysKeepInvariants(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.seed(t, 10_000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who, side := alice, domain.SideYes
			if i%2 == 1 {
				who, side = bob, domain.SideNo
			}
			for j := 0; j < 25; j++ {
				_, _ = f.m.Buy(who, side, usdc(3), nil)
				_ = f.m.Price(side)
			}
		}(i)
	}
	wg.Wait()

	f.assertCustody(t)
	sum := f.m.Price(domain.SideYes) + f.m.Price(domain.SideNo)
	assert.Contains(t, []uint64{99, 100}, sum)
	assert.Equal(t, uint64(1+1+200), f.m.LastSequence())
}
