package postgres

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"postgres://amm:secret@db:5432/predictamm?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "predictamm", User: "amm", Password: "secret"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestNumericHelpers(t *testing.T) {
	assert.Nil(t, numericArg(nil))

	big := new(uint256.Int).SetAllOne()
	s := numericArg(big).(string)
	got, err := parseNumeric(&s)
	require.NoError(t, err)
	assert.True(t, got.Eq(big))

	got, err = parseNumeric(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	bad := "-1"
	_, err = parseNumeric(&bad)
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	a, err := parseAddress("0x00000000000000000000000000000000004d4b54")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x4d4b54"), a)

	_, err = parseAddress("market-1")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "001_init.sql", entries[0].Name())
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_quotes.sql": {Data: []byte("SELECT 2")},
		"migrations/001_init.sql":   {Data: []byte("SELECT 1")},
		"migrations/README":         {Data: []byte("notes")},
		"migrations/003_index.sql":  {Data: []byte("SELECT 3")},
	}
	pending, err := pendingMigrations(fsys, []string{"002_quotes.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "003_index.sql"}, pending)

	pending, err = pendingMigrations(migrationsFS, nil)
	require.NoError(t, err)
	assert.Contains(t, pending, "001_init.sql")

	_, err = pendingMigrations(fstest.MapFS{}, nil)
	assert.Error(t, err)
}

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Port: 6432, Database: "amm", User: "amm", Password: "p@ss/word", SSLMode: "require"})
	assert.Equal(t, "postgres://amm:p%40ss%2Fword@db:6432/amm?sslmode=require", got)
}
