package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

var usdc = Collateral{Symbol: "USDC", Decimals: 6}

type recorder struct {
	name string
	fail bool
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Send(_ context.Context, title, message string) error {
	if r.fail {
		return errors.New("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, title+"|"+message)
	return nil
}

func (r *recorder) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFilters(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := NewNotifier([]Sender{rec}, Options{Events: []string{EventMarketResolved, " "}}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventTrade, "t", "m"))
	assert.Empty(t, rec.sent)
	require.NoError(t, n.Notify(context.Background(), EventMarketResolved, "t", "m"))
	assert.Len(t, rec.sent, 1)
	assert.False(t, n.Enabled(""))

	assert.False(t, NewNotifier(nil, Options{}, discardLogger()).Enabled(EventTrade))
}

func TestNotifierMinTrade(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := NewNotifier([]Sender{rec}, Options{MinTrade: uint256.NewInt(1_000_000_000)}, discardLogger())
	trade := func(in uint64) domain.MarketEvent {
		return domain.MarketEvent{
			Kind:     domain.EventTrade,
			MarketID: common.HexToAddress("0x4d4b54"),
			Trade: &domain.TradeEvent{
				Side:                domain.SideYes,
				CollateralIn:        uint256.NewInt(in),
				SharesOut:           uint256.NewInt(in),
				ResultingPriceCents: 60,
			},
		}
	}

	require.NoError(t, n.NotifyMarketEvent(context.Background(), trade(999_999_999), "q", usdc))
	assert.Empty(t, rec.sent)
	require.NoError(t, n.NotifyMarketEvent(context.Background(), trade(1_000_000_000), "q", usdc))
	assert.Len(t, rec.sent, 1)
}

func TestNotifierCollectsFailures(t *testing.T) {
	ok := &recorder{name: "ok"}
	bad := &recorder{name: "bad", fail: true}
	n := NewNotifier([]Sender{bad, ok}, Options{}, discardLogger())

	err := n.Notify(context.Background(), EventTrade, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.NotContains(t, err.Error(), "ok:")
	assert.Len(t, ok.sent, 1)
}

func TestDescribe(t *testing.T) {
	market := common.HexToAddress("0x4d4b54")
	trade := domain.MarketEvent{
		Kind:     domain.EventTrade,
		MarketID: market,
		Trade: &domain.TradeEvent{
			Side:                domain.SideYes,
			CollateralIn:        uint256.NewInt(100_000_000),
			SharesOut:           new(uint256.Int).Mul(uint256.NewInt(198), uint256.NewInt(1e18)),
			ResultingPriceCents: 58,
		},
	}
	name, title, msg, ok := Describe(trade, "Will it rain?", usdc)
	require.True(t, ok)
	assert.Equal(t, EventTrade, name)
	assert.Equal(t, "Buy YES on 0x0000…4b54", title)
	assert.Equal(t, "100 USDC in, 198 shares out, price now 58¢", msg)

	resolved := domain.MarketEvent{Kind: domain.EventResolved, MarketID: market, Detail: map[string]string{"outcome": "NO"}}
	name, title, _, ok = Describe(resolved, "q", usdc)
	require.True(t, ok)
	assert.Equal(t, EventMarketResolved, name)
	assert.Equal(t, "Market resolved NO", title)

	claim := domain.MarketEvent{Kind: domain.EventClaimed, MarketID: market, Payout: uint256.NewInt(1_500_000)}
	_, _, msg, ok = Describe(claim, "q", usdc)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(msg, "paid 1.5 USDC"))

	_, _, _, ok = Describe(domain.MarketEvent{Kind: domain.EventRedeemed}, "q", usdc)
	assert.False(t, ok)
}

func TestSendersPostJSON(t *testing.T) {
	var got []map[string]string
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = append(got, body)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))

	dc := NewDiscordSender(srv.URL + "/hook")
	require.NoError(t, dc.Send(context.Background(), "Title", "body"))

	require.Len(t, got, 2)
	assert.Equal(t, "/bottok/sendMessage", paths[0])
	assert.Equal(t, "42", got[0]["chat_id"])
	assert.Equal(t, "*Title*\nbody", got[0]["text"])
	assert.Equal(t, "**Title**\nbody", got[1]["content"])
}

func TestSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 403")
}
