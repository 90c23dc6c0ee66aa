package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

var bpsDenominator = uint256.NewInt(MaxFeeBps)

// BuyQuote previews a buy without executing it.
type BuyQuote struct {
	Side          domain.Side
	CollateralIn  *uint256.Int // native
	Fee           *uint256.Int // native, rounded up
	NetInvestment *uint256.Int // internal
	SharesOut     *uint256.Int // internal
	After         Reserves
	// PriceAfterBps is the post-trade spot price of Side.
	PriceAfterBps uint64
	// AvgPriceBps is what the trader pays per share, net of fee.
	AvgPriceBps uint64
}

// ResultingPriceCents is the post-trade spot price of the bought side,
// rounded to the nearest cent.
func (q BuyQuote) ResultingPriceCents() uint64 {
	return roundedCents(q.PriceAfterBps)
}

// AddLiquidity deposits amount of collateral from provider and mints the
// rescaled amount into both reserves. The provider receives no shares.
func (m *Market) AddLiquidity(provider common.Address, amount *uint256.Int) (domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", domain.ErrMarketResolved)
	}
	if amount == nil || amount.IsZero() {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", domain.ErrInvalidAmount)
	}

	internal, err := fixedpoint.ToInternal(amount, m.decimals)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", err)
	}
	yes, err := fixedpoint.Add(&m.yes, internal)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", err)
	}
	no, err := fixedpoint.Add(&m.no, internal)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", err)
	}
	custody, err := fixedpoint.Add(&m.custody, amount)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", err)
	}

	if err := m.token.TransferIn(provider, m.id, amount); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: add liquidity: %w", err)
	}

	m.yes.Set(yes)
	m.no.Set(no)
	m.custody.Set(custody)

	ev := m.event(domain.EventLiquidityAdded, provider)
	ev.Amount = new(uint256.Int).Set(amount)
	return ev, nil
}

// QuoteBuy prices a buy of side for collateralIn against the current state.
func (m *Market) QuoteBuy(side domain.Side, collateralIn *uint256.Int) (BuyQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.resolved {
		return BuyQuote{}, fmt.Errorf("amm: quote: %w", domain.ErrMarketResolved)
	}
	q, err := m.quoteLocked(side, collateralIn)
	if err != nil {
		return BuyQuote{}, fmt.Errorf("amm: quote: %w", err)
	}
	return q, nil
}

func (m *Market) quoteLocked(side domain.Side, collateralIn *uint256.Int) (BuyQuote, error) {
	if !side.Valid() {
		return BuyQuote{}, domain.ErrInvalidSide
	}
	if collateralIn == nil || collateralIn.IsZero() {
		return BuyQuote{}, domain.ErrInvalidAmount
	}

	// The fee is taken at internal precision.
	in, err := fixedpoint.ToInternal(collateralIn, m.decimals)
	if err != nil {
		return BuyQuote{}, err
	}
	feeInternal, err := fixedpoint.MulDiv(in, uint256.NewInt(uint64(m.feeBps)), bpsDenominator)
	if err != nil {
		return BuyQuote{}, err
	}
	net := new(uint256.Int).Sub(in, feeInternal)
	if net.IsZero() {
		return BuyQuote{}, domain.ErrInvalidAmount
	}
	// The native fee is whatever of collateralIn the net investment does not
	// cover, so the sub-unit residue is booked as fee and stays in the pool.
	netNative, _, err := fixedpoint.ToNative(net, m.decimals)
	if err != nil {
		return BuyQuote{}, err
	}
	fee := new(uint256.Int).Sub(collateralIn, netNative)

	cq, err := m.curve.Quote(side, m.reservesLocked(), net)
	if err != nil {
		return BuyQuote{}, err
	}
	if cq.SharesOut.IsZero() {
		return BuyQuote{}, domain.ErrInvalidAmount
	}

	avg, err := fixedpoint.MulDiv(net, bpsDenominator, cq.SharesOut)
	if err != nil {
		return BuyQuote{}, err
	}
	return BuyQuote{
		Side:          side,
		CollateralIn:  new(uint256.Int).Set(collateralIn),
		Fee:           fee,
		NetInvestment: net,
		SharesOut:     cq.SharesOut,
		After:         cq.After,
		PriceAfterBps: cq.After.PriceBps(side),
		AvgPriceBps:   avg.Uint64(),
	}, nil
}

// Buy spends collateralIn from trader on side. The fee stays in custody and
// is tracked in AccumulatedFees. It fails with ErrSlippageExceeded when fewer
// than minSharesOut shares would be paid out.
func (m *Market) Buy(trader common.Address, side domain.Side, collateralIn, minSharesOut *uint256.Int) (domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", domain.ErrMarketResolved)
	}
	q, err := m.quoteLocked(side, collateralIn)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", err)
	}
	if minSharesOut != nil && q.SharesOut.Lt(minSharesOut) {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: got %s want >= %s: %w",
			q.SharesOut.Dec(), minSharesOut.Dec(), domain.ErrSlippageExceeded)
	}
	if !m.book.CanMint(side, q.SharesOut) {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", domain.ErrArithmeticOverflow)
	}
	custody, err := fixedpoint.Add(&m.custody, collateralIn)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", err)
	}
	fees, err := fixedpoint.Add(&m.fees, q.Fee)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", err)
	}

	if err := m.token.TransferIn(trader, m.id, collateralIn); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", err)
	}
	if err := m.book.Mint(trader, side, q.SharesOut); err != nil {
		// CanMint passed, so this is unreachable; refund to keep custody exact.
		_ = m.token.TransferOut(m.id, trader, collateralIn)
		return domain.MarketEvent{}, fmt.Errorf("amm: buy: %w", err)
	}

	m.yes.Set(q.After.Yes)
	m.no.Set(q.After.No)
	m.custody.Set(custody)
	m.fees.Set(fees)

	ev := m.event(domain.EventTrade, trader)
	ev.Amount = new(uint256.Int).Set(collateralIn)
	ev.Trade = &domain.TradeEvent{
		Account:             trader,
		Side:                side,
		CollateralIn:        q.CollateralIn,
		Fee:                 q.Fee,
		SharesOut:           q.SharesOut,
		ResultingPriceCents: q.ResultingPriceCents(),
		Sequence:            ev.Sequence,
	}
	return ev, nil
}
