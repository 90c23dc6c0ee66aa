package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/config"
	"github.com/alanyoungcy/predictamm/internal/domain"
)

const journalBody = `{"op":"faucet","account":"0x0000000000000000000000000000000000000c0f","amount":"2000"}
{"op":"faucet","account":"0x00000000000000000000000000000000000a11ce","amount":"500"}
{"op":"create","ref":"rain","account":"0x0000000000000000000000000000000000000c0f","question":"Will it rain?"}
{"op":"add_liquidity","market":"rain","account":"0x0000000000000000000000000000000000000c0f","amount":"1000"}
{"op":"buy","market":"rain","account":"0x00000000000000000000000000000000000a11ce","side":"YES","amount":"100"}
{"op":"resolve","market":"rain","account":"0x00000000000000000000000000000000000a11ce","outcome":"YES"}
{"op":"resolve","market":"rain","account":"0x0000000000000000000000000000000000000c0f","outcome":"YES"}
{"op":"claim","market":"rain","account":"0x00000000000000000000000000000000000a11ce"}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(journalBody), 0o600))

	cfg := config.Defaults()
	cfg.Journal.Path = path
	cfg.Engine.Faucet = true
	cfg.Metadata.Publish = true
	cfg.Metrics.TextfilePath = filepath.Join(dir, "predictamm.prom")
	require.NoError(t, cfg.Validate())
	return &cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReplayModeInMemory(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	a := New(cfg, discard())
	a.SetOutput(&out)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	dec := json.NewDecoder(&out)
	var results []map[string]any
	for i := 0; i < 8; i++ {
		var r map[string]any
		require.NoError(t, dec.Decode(&r))
		results = append(results, r)
	}
	assert.Equal(t, false, results[5]["ok"])
	assert.Equal(t, "Unauthorized", results[5]["error_kind"])
	assert.Equal(t, true, results[7]["ok"])

	var summary ReplaySummary
	require.NoError(t, dec.Decode(&summary))
	assert.Equal(t, 8, summary.Commands)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, summary.Markets, 1)
	m := summary.Markets[0]
	assert.Equal(t, domain.StateResolved, m.State)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)
	assert.True(t, strings.HasPrefix(m.MetadataURI, "data:"))

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `predictamm_engine_operations_total{op="buy"} 1`)
	assert.Contains(t, string(prom), `predictamm_engine_errors_total{kind="Unauthorized",op="resolve"} 1`)
}

func TestReplayModeResultsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.ResultsPath = filepath.Join(t.TempDir(), "results.jsonl")
	cfg.Journal.Parallel = 3
	var out bytes.Buffer
	a := New(cfg, discard())
	a.SetOutput(&out)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	raw, err := os.ReadFile(cfg.Journal.ResultsPath)
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(string(raw), "\n"))

	var summary ReplaySummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 1, summary.Rejected)
}

func TestReplayModeMissingJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "missing.jsonl")
	a := New(cfg, discard())
	a.SetOutput(io.Discard)
	defer a.Close()

	assert.ErrorContains(t, a.Run(context.Background()), "open journal")
}

func TestModesRequireBackends(t *testing.T) {
	cfg := testConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, deps.EventStore)
	assert.Nil(t, deps.Signer)

	a := New(cfg, discard())
	assert.ErrorContains(t, a.ArchiveMode(context.Background(), deps), "requires postgres and s3")
	assert.ErrorContains(t, a.InspectMode(context.Background(), deps), "requires postgres")

	cfg.Mode = "trade"
	assert.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}

func TestWireLoadsResolverKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resolver.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, deps.Signer)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), deps.Signer.Address())

	cfg.Resolver.PrivateKey = "not-hex"
	_, _, err = Wire(context.Background(), cfg, discard())
	assert.ErrorContains(t, err, "resolver key")
}
