package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictamm/internal/amm"
	"github.com/alanyoungcy/predictamm/internal/collateral"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/sequence"
)

var (
	factory = common.HexToAddress("0xfac7")
	creator = common.HexToAddress("0xc0ffee")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	token, err := collateral.NewLedger("USDC", 6)
	require.NoError(t, err)
	r, err := New(Config{
		Address:       factory,
		Token:         token,
		Sequencer:     sequence.NewCounter(0),
		DefaultFeeBps: 100,
	})
	require.NoError(t, err)
	return r
}

func TestCreateMarket(t *testing.T) {
	r := newRegistry(t)
	m, err := r.CreateMarket(creator, "Will BTC close above 100k?", "ipfs://bafy", Options{})
	require.NoError(t, err)

	assert.Equal(t, ethcrypto.CreateAddress(factory, 0), m.ID())
	assert.Equal(t, creator, m.Resolver())
	assert.Equal(t, uint16(100), m.FeeBps())
	assert.Equal(t, amm.CurveReserveRatio, m.CurveName())
	assert.Equal(t, "ipfs://bafy", m.MetadataURI())
	assert.True(t, m.YesReserves().IsZero())

	got, err := r.Market(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)
}

func TestCreateMarketOptions(t *testing.T) {
	r := newRegistry(t)
	m, err := r.CreateMarket(creator, "q", "", Options{FeeBps: Fee(0), Curve: amm.CurveConstantProduct})
	require.NoError(t, err)
	assert.Equal(t, uint16(0), m.FeeBps())
	assert.Equal(t, amm.CurveConstantProduct, m.CurveName())

	_, err = r.CreateMarket(creator, "q", "", Options{FeeBps: Fee(10_000)})
	assert.ErrorIs(t, err, domain.ErrInvalidFee)
	_, err = r.CreateMarket(creator, "q", "", Options{Curve: "nope"})
	assert.Error(t, err)
	_, err = r.CreateMarket(creator, "  ", "", Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	assert.Equal(t, 1, r.MarketCount())
}

func TestAllMarketsCreationOrder(t *testing.T) {
	r := newRegistry(t)
	var want []common.Address
	for i := 0; i < 5; i++ {
		m, err := r.CreateMarket(creator, fmt.Sprintf("question %d", i), "", Options{})
		require.NoError(t, err)
		assert.Equal(t, i, m.Index())
		want = append(want, m.ID())
	}
	assert.Equal(t, want, r.AllMarkets())

	// returned slice is a copy
	ids := r.AllMarkets()
	ids[0] = common.Address{}
	assert.Equal(t, want, r.AllMarkets())
}

func TestMarketNotFound(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Market(common.HexToAddress("0x1234"))
	require.ErrorIs(t, err, domain.ErrMarketNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCreateUniqueIDs(t *testing.T) {
	r := newRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.CreateMarket(creator, fmt.Sprintf("q%d", i), "", Options{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := map[common.Address]bool{}
	for _, id := range r.AllMarkets() {
		seen[id] = true
	}
	assert.Len(t, seen, 16)
}

func TestNewRejectsBadDefaults(t *testing.T) {
	token, err := collateral.NewLedger("USDC", 6)
	require.NoError(t, err)
	_, err = New(Config{Token: token, Sequencer: sequence.NewCounter(0), DefaultFeeBps: 10_000})
	assert.ErrorIs(t, err, domain.ErrInvalidFee)
	_, err = New(Config{Token: token, Sequencer: sequence.NewCounter(0), DefaultCurve: "lmsr"})
	assert.Error(t, err)
}
