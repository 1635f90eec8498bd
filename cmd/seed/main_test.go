package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menu = `{"id":"6f1c2a52-3f7e-4a8e-9c1a-0a4b7d1e2f10","name":"Thali","price":"100","available":true}

{"id":"0b6b0f33-7d1c-4c0e-8b8f-3a2e5d9c1b22","name":"Lassi","price":"45.50","available":false}
`

func TestDecodeMenu(t *testing.T) {
	items, err := decodeMenu(strings.NewReader(menu))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Thali", items[0].Name)
	assert.True(t, decimal.RequireFromString("45.50").Equal(items[1].Price))
	assert.False(t, items[1].Available)
}

func TestDecodeMenuRejects(t *testing.T) {
	for _, in := range []string{
		`{"name":`,
		`{"name":"Thali","price":"1"}`,
		`{"id":"6f1c2a52-3f7e-4a8e-9c1a-0a4b7d1e2f10","price":"1"}`,
		`{"id":"6f1c2a52-3f7e-4a8e-9c1a-0a4b7d1e2f10","name":"Thali","price":"-1"}`,
	} {
		_, err := decodeMenu(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestReadGzippedMenu(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(menu))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	items, err := readMenu(path)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
