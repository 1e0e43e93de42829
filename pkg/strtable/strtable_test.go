package strtable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternOrGetIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strtable.db")
	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	n1, err := tbl.InternOrGet(KindString, "hello")
	require.NoError(t, err)
	n2, err := tbl.InternOrGet(KindString, "hello")
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	n3, err := tbl.InternOrGet(KindString, "world")
	require.NoError(t, err)
	require.NotEqual(t, n1, n3)
}

func TestTextOfReverseLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strtable.db")
	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	num, err := tbl.InternOrGet(KindDomain, "example.com")
	require.NoError(t, err)

	text, ok, err := tbl.TextOf(KindDomain, num)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "example.com", text)

	_, ok, err = tbl.TextOf(KindEmail, num)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKindsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strtable.db")
	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	sNum, err := tbl.InternOrGet(KindString, "shared-text")
	require.NoError(t, err)
	dNum, err := tbl.InternOrGet(KindDomain, "shared-text")
	require.NoError(t, err)
	require.Equal(t, sNum, dNum) // independent per-bucket sequences, both start at 1
}
