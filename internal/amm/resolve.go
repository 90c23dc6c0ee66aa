package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Resolve settles the market. Only the resolver may call it, and only once.
// Afterwards AddLiquidity and Buy fail with ErrMarketResolved.
func (m *Market) Resolve(caller common.Address, outcomeIsYes bool) (domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.resolver {
		return domain.MarketEvent{}, fmt.Errorf("amm: resolve: %w", domain.ErrUnauthorized)
	}
	if m.resolved {
		return domain.MarketEvent{}, fmt.Errorf("amm: resolve: %w", domain.ErrAlreadyResolved)
	}

	m.resolved = true
	m.outcomeIsYes = outcomeIsYes

	outcome := domain.OutcomeNo
	if outcomeIsYes {
		outcome = domain.OutcomeYes
	}
	ev := m.event(domain.EventResolved, caller)
	ev.Detail = map[string]string{"outcome": string(outcome)}
	return ev, nil
}

// Claim burns account's entire winning-side balance and pays it out 1:1 in
// collateral. Losing-side shares are left in place.
func (m *Market) Claim(account common.Address) (domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.resolved {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", domain.ErrMarketNotResolved)
	}
	winning := domain.SideNo
	if m.outcomeIsYes {
		winning = domain.SideYes
	}
	shares := m.book.BalanceOf(account, winning)
	if shares.IsZero() {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", domain.ErrNoWinnings)
	}
	payout, _, err := fixedpoint.ToNative(shares, m.decimals)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", err)
	}
	if payout.Gt(&m.custody) {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", domain.ErrInsufficientCustody)
	}

	if err := m.token.TransferOut(m.id, account, payout); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", err)
	}
	if err := m.book.Burn(account, winning, shares); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("amm: claim: %w", err)
	}
	m.custody.Sub(&m.custody, payout)

	ev := m.event(domain.EventClaimed, account)
	ev.Amount = shares
	ev.Payout = payout
	ev.Detail = map[string]string{"side": winning.String()}
	return ev, nil
}

// ClaimableOf returns the collateral account could claim right now, in
// native units. It is zero before resolution.
func (m *Market) ClaimableOf(account common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.resolved {
		return new(uint256.Int)
	}
	winning := domain.SideNo
	if m.outcomeIsYes {
		winning = domain.SideYes
	}
	payout, _, err := fixedpoint.ToNative(m.book.BalanceOf(account, winning), m.decimals)
	if err != nil {
		return new(uint256.Int)
	}
	return payout
}
