package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Redeem burns amount (internal units) of both YES and NO from account and
// pays the rescaled amount of collateral at par. It is available before and
// after resolution. Sub-native dust in amount stays in the pool; an amount
// that would pay out nothing is rejected.
func (m *Market) Redeem(account common.Address, amount *uint256.Int) (domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", domain.ErrInvalidAmount)
	}
	if !m.book.CanBurn(account, domain.SideYes, amount) || !m.book.CanBurn(account, domain.SideNo, amount) {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", domain.ErrInsufficientBalance)
	}
	payout, _, err := fixedpoint.ToNative(amount, m.decimals)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", err)
	}
	if payout.IsZero() {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: below collateral precision: %w", domain.ErrInvalidAmount)
	}
	if payout.Gt(&m.custody) {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", domain.ErrInsufficientCustody)
	}

	if err := m.token.TransferOut(m.id, account, payout); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", err)
	}
	if err := m.book.BurnPair(account, amount); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: redeem: %w", err)
	}
	m.custody.Sub(&m.custody, payout)

	ev := m.event(domain.EventRedeemed, account)
	ev.Amount = new(uint256.Int).Set(amount)
	ev.Payout = payout
	return ev, nil
}
