package journal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/crypto"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/registry"
	"github.com/alanyoungcy/predictamm/internal/sequence"
	"github.com/alanyoungcy/predictamm/internal/service"
)

const (
	resolverKey  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	resolverAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

const lifecycle = `
# two markets, one resolved by attestation
{"op":"faucet","account":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","amount":"5000"}
{"op":"faucet","account":"0x00000000000000000000000000000000000a11ce","amount":"1000"}
{"op":"create","ref":"rain","account":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","question":"Will it rain?","category":"weather"}
{"op":"create","ref":"btc","account":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","question":"BTC above 100k?","fee_bps":100}
{"op":"add_liquidity","market":"rain","account":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","amount":"1000"}
{"op":"add_liquidity","market":"btc","account":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","amount":"1000"}
{"op":"quote","market":"rain","side":"YES","amount":"100"}
{"op":"buy","market":"rain","account":"0x00000000000000000000000000000000000a11ce","side":"YES","amount":"100"}
{"op":"buy","market":"btc","account":"0x00000000000000000000000000000000000a11ce","side":"NO","amount":"50"}
{"op":"buy","market":"rain","account":"0x00000000000000000000000000000000000a11ce","side":"NO","amount":"10","min_out":"1000000"}
{"op":"resolve","market":"rain","attest":true,"outcome":"YES"}
{"op":"claim","market":"rain","account":"0x00000000000000000000000000000000000a11ce"}
{"op":"claim","market":"btc","account":"0x00000000000000000000000000000000000a11ce"}
`

func newRunner(t *testing.T, parallel int) (*Runner, *service.EngineService) {
	t.Helper()
	token, err := collateral.NewLedger("USDC", 6)
	require.NoError(t, err)
	reg, err := registry.New(registry.Config{
		Address:   common.HexToAddress("0x5e"),
		Token:     token,
		Sequencer: sequence.NewCounter(0),
	})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewEngineService(service.Deps{Registry: reg, Faucet: token, Logger: logger})
	require.NoError(t, err)
	signer, err := crypto.NewSigner(resolverKey)
	require.NoError(t, err)
	return NewRunner(RunnerConfig{
		Engine:   svc,
		Decimals: 6,
		Parallel: parallel,
		Signer:   signer,
		Logger:   logger,
	}), svc
}

func TestReadSkipsCommentsAndAssignsIDs(t *testing.T) {
	cmds, err := Read(strings.NewReader(lifecycle))
	require.NoError(t, err)
	require.Len(t, cmds, 13)
	assert.Equal(t, OpFaucet, cmds[0].Op)
	assert.Equal(t, 3, cmds[0].Line)
	assert.NotEmpty(t, cmds[0].ID)
	assert.NotEqual(t, cmds[0].ID, cmds[1].ID)
	require.NotNil(t, cmds[3].FeeBps)
	assert.Equal(t, uint16(100), *cmds[3].FeeBps)
}

func TestReadRejectsBadLines(t *testing.T) {
	cases := map[string]string{
		"unknown op":      `{"op":"sell","market":"x","account":"0x01"}`,
		"unknown field":   `{"op":"claim","market":"x","account":"0x01","extra":1}`,
		"bad account":     `{"op":"claim","market":"x","account":"alice"}`,
		"missing market":  `{"op":"claim","account":"0x0000000000000000000000000000000000000001"}`,
		"missing side":    `{"op":"buy","market":"x","account":"0x0000000000000000000000000000000000000001","amount":"1"}`,
		"missing outcome": `{"op":"resolve","market":"x","attest":true}`,
		"not json":        `op=buy`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(line))
			assert.Error(t, err)
		})
	}
}

func TestReplaySequential(t *testing.T) {
	r, svc := newRunner(t, 1)
	cmds, err := Read(strings.NewReader(lifecycle))
	require.NoError(t, err)

	results, err := r.Run(context.Background(), cmds)
	require.NoError(t, err)
	require.Len(t, results, len(cmds))

	byLine := map[int]Result{}
	for _, res := range results {
		byLine[res.Line] = res
	}
	for _, line := range []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 14} {
		assert.True(t, byLine[line].OK, "line %d: %s", line, byLine[line].Error)
	}

	quote, buy := byLine[9], byLine[10]
	assert.Equal(t, quote.SharesOut, buy.SharesOut)
	assert.Greater(t, buy.PriceYes, uint64(50))

	slip := byLine[12]
	assert.False(t, slip.OK)
	assert.Equal(t, "SlippageExceeded", slip.ErrorKind)

	lost := byLine[15]
	assert.False(t, lost.OK)
	assert.Equal(t, "MarketNotResolved", lost.ErrorKind)

	claim := byLine[14]
	assert.NotEmpty(t, claim.Payout)

	markets := r.Markets()
	snap, err := svc.Snapshot(context.Background(), markets["rain"])
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, snap.Outcome)
	assert.Equal(t, common.HexToAddress(resolverAddr), snap.Resolver)
}

func TestReplayParallelMatchesSequential(t *testing.T) {
	seq, seqSvc := newRunner(t, 1)
	par, parSvc := newRunner(t, 4)
	ctx := context.Background()

	cmds, err := Read(strings.NewReader(lifecycle))
	require.NoError(t, err)
	_, err = seq.Run(ctx, cmds)
	require.NoError(t, err)
	results, err := par.Run(ctx, cmds)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results))
	assert.Equal(t, len(cmds), strings.Count(buf.String(), "\n"))

	for _, ref := range []string{"rain", "btc"} {
		a, err := seqSvc.Snapshot(ctx, seq.Markets()[ref])
		require.NoError(t, err)
		b, err := parSvc.Snapshot(ctx, par.Markets()[ref])
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)
		assert.True(t, a.YesReserves.Eq(b.YesReserves), ref)
		assert.True(t, a.NoReserves.Eq(b.NoReserves), ref)
		assert.True(t, a.TotalCollateralHeld.Eq(b.TotalCollateralHeld), ref)
	}
}

func TestPartitionLinksSharedAccounts(t *testing.T) {
	r, _ := newRunner(t, 4)
	const (
		m1    = "0x00000000000000000000000000000000000000a1"
		m2    = "0x00000000000000000000000000000000000000a2"
		m3    = "0x00000000000000000000000000000000000000a3"
		alice = "0x0000000000000000000000000000000000000001"
		bob   = "0x0000000000000000000000000000000000000002"
		carol = "0x0000000000000000000000000000000000000003"
	)
	cmds := []Command{
		{Op: OpClaim, Market: m1, Account: alice},
		{Op: OpBuy, Market: m2, Account: bob},
		{Op: OpFaucet, Account: carol},
		{Op: OpBuy, Market: m3, Account: carol},
		// alice spends her m1 winnings in m2, which ties m1 and m2 together
		{Op: OpBuy, Market: m2, Account: alice},
		{Op: OpResolve, Market: m3, Attest: true},
	}
	groups := r.partition(cmds, []int{0, 1, 2, 3, 4, 5})
	assert.Equal(t, [][]int{{0, 1, 4}, {2, 3, 5}}, groups)
}

func TestReplayParallelCarriesWinningsAcrossMarkets(t *testing.T) {
	journal := `{"op":"faucet","account":"0x0000000000000000000000000000000000000001","amount":"2000"}
{"op":"faucet","account":"0x0000000000000000000000000000000000000002","amount":"10"}
{"op":"create","ref":"a","account":"0x0000000000000000000000000000000000000001","question":"A?"}
{"op":"create","ref":"b","account":"0x0000000000000000000000000000000000000001","question":"B?"}
{"op":"add_liquidity","market":"a","account":"0x0000000000000000000000000000000000000001","amount":"1000"}
{"op":"add_liquidity","market":"b","account":"0x0000000000000000000000000000000000000001","amount":"1000"}
{"op":"buy","market":"a","account":"0x0000000000000000000000000000000000000002","side":"yes","amount":"10"}
{"op":"resolve","market":"a","account":"0x0000000000000000000000000000000000000001","outcome":"yes"}
{"op":"claim","market":"a","account":"0x0000000000000000000000000000000000000002"}
{"op":"buy","market":"b","account":"0x0000000000000000000000000000000000000002","side":"no","amount":"15"}
`
	cmds, err := Read(strings.NewReader(journal))
	require.NoError(t, err)

	seq, _ := newRunner(t, 1)
	want, err := seq.Run(context.Background(), cmds)
	require.NoError(t, err)
	par, _ := newRunner(t, 4)
	got, err := par.Run(context.Background(), cmds)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].OK, got[i].OK, "line %d", want[i].Line)
	}
	assert.True(t, got[len(got)-1].OK, "the buy in b is funded by the claim in a")
}

func TestReplayUnknownMarket(t *testing.T) {
	r, _ := newRunner(t, 1)
	cmds, err := Read(strings.NewReader(
		`{"op":"claim","market":"nowhere","account":"0x0000000000000000000000000000000000000001"}`))
	require.NoError(t, err)

	results, err := r.Run(context.Background(), cmds)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, "MarketNotFound", results[0].ErrorKind)
}

func TestReplayCancelled(t *testing.T) {
	r, _ := newRunner(t, 1)
	cmds, err := Read(strings.NewReader(lifecycle))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, cmds)
	assert.ErrorIs(t, err, context.Canceled)
}
