package postgres

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJournalRepository_NilPool(t *testing.T) {
	_, err := NewJournalRepository(nil, nil)
	assert.Error(t, err)
}

func TestAddressKey_Lowercase(t *testing.T) {
	a := common.HexToAddress("0x45804880De22913dAFE09f4980848ECE6EcbAf78")
	assert.Equal(t, "0x45804880de22913dafe09f4980848ece6ecbaf78", addressKey(a))
}

func TestDefaultDBConfig(t *testing.T) {
	cfg := DefaultDBConfig("postgres://localhost/db")
	assert.Equal(t, "postgres://localhost/db", cfg.URL)
	assert.Positive(t, cfg.MaxConns)
	assert.LessOrEqual(t, cfg.MinConns, cfg.MaxConns)
}

func TestPoolConfig(t *testing.T) {
	pc, err := poolConfig(DefaultDBConfig("postgres://u:p@localhost:5432/vaults?sslmode=disable"))
	require.NoError(t, err)
	assert.Equal(t, int32(5), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, "vault-engine", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "10000", pc.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestPoolConfig_Invalid(t *testing.T) {
	t.Run("bad url", func(t *testing.T) {
		_, err := poolConfig(DBConfig{URL: "postgres://localhost:notaport/db"})
		assert.Error(t, err)
	})

	t.Run("min above max", func(t *testing.T) {
		_, err := poolConfig(DBConfig{URL: "postgres://localhost/db", MaxConns: 2, MinConns: 3})
		assert.Error(t, err)
	})
}
