package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresProviderRequiresDSNAndTables(t *testing.T) {
	_, err := newPostgresProvider(nil)
	assert.Error(t, err)

	_, err = newPostgresProvider(map[string]any{"dsn": "postgres://localhost/db"})
	assert.Error(t, err)

	p, err := newPostgresProvider(map[string]any{
		"dsn": "postgres://localhost/db", "bootstrap_tables": []any{"Product:products"},
	})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestSplitTableSpec(t *testing.T) {
	label, table, ok := splitTableSpec("Product:products")
	require.True(t, ok)
	assert.Equal(t, "Product", label)
	assert.Equal(t, "products", table)

	_, _, ok = splitTableSpec("malformed")
	assert.False(t, ok)
}

func TestParseLSN(t *testing.T) {
	assert.EqualValues(t, int64(0x16)<<32|0xB374D848, parseLSN("16/B374D848"))
	assert.Equal(t, int64(0), parseLSN("not-an-lsn"))
}
