package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
)

// Event names accepted in the notify.events config list.
const (
	EventMarketCreated  = "market_created"
	EventMarketResolved = "market_resolved"
	EventTrade          = "trade"
	EventClaim          = "claim"
)

// Collateral describes the asset amounts are rendered in.
type Collateral struct {
	Symbol   string
	Decimals uint8
}

// NotifyMarketEvent formats a committed engine event and sends it through
// Notify. Kinds without a notification (liquidity, redeem) and trades below
// the MinTrade option are ignored.
func (n *Notifier) NotifyMarketEvent(ctx context.Context, ev domain.MarketEvent, question string, c Collateral) error {
	if ev.Kind == domain.EventTrade && ev.Trade != nil && n.minTrade != nil &&
		ev.Trade.CollateralIn.Lt(n.minTrade) {
		return nil
	}
	name, title, msg, ok := Describe(ev, question, c)
	if !ok || !n.Enabled(name) {
		return nil
	}
	return n.Notify(ctx, name, title, msg)
}

// Describe renders ev as a notification. ok is false for event kinds that
// are not notified.
func Describe(ev domain.MarketEvent, question string, c Collateral) (name, title, message string, ok bool) {
	market := shortHex(ev.MarketID.Hex())
	switch ev.Kind {
	case domain.EventMarketCreated:
		return EventMarketCreated,
			"Market created " + market,
			fmt.Sprintf("%s\nfee %s bps, curve %s", question, ev.Detail["feeBps"], ev.Detail["curve"]),
			true
	case domain.EventResolved:
		return EventMarketResolved,
			"Market resolved " + ev.Detail["outcome"],
			fmt.Sprintf("%s\nmarket %s, resolver %s", question, market, shortHex(ev.Account.Hex())),
			true
	case domain.EventTrade:
		if ev.Trade == nil {
			return "", "", "", false
		}
		t := ev.Trade
		return EventTrade,
			fmt.Sprintf("Buy %s on %s", t.Side, market),
			fmt.Sprintf("%s %s in, %s shares out, price now %d¢",
				fixedpoint.Format(t.CollateralIn, c.Decimals), c.Symbol,
				fixedpoint.Format(t.SharesOut, fixedpoint.InternalDecimals),
				t.ResultingPriceCents),
			true
	case domain.EventClaimed:
		return EventClaim,
			"Winnings claimed on " + market,
			fmt.Sprintf("%s paid %s %s", shortHex(ev.Account.Hex()),
				fixedpoint.Format(ev.Payout, c.Decimals), c.Symbol),
			true
	}
	return "", "", "", false
}

func shortHex(h string) string {
	if len(h) <= 12 {
		return h
	}
	return strings.ToLower(h[:6] + "…" + h[len(h)-4:])
}
