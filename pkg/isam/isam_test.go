package isam

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T) *File {
	t.Helper()
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "t.dat"), filepath.Join(dir, "t.idx"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestInsertFetchExists(t *testing.T) {
	f := openTestFile(t)
	require.NoError(t, f.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, f.Insert([]byte("beta"), []byte("2")))
	require.NoError(t, f.Insert([]byte("gamma"), []byte("3")))

	ok, err := f.Exists([]byte("beta"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Exists([]byte("delta"))
	require.NoError(t, err)
	require.False(t, ok)

	out, err := f.Fetch([]byte("alpha"), []byte("gamma"))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, []byte("2"), out["beta"])
}

func TestInsertOverwritesSameKey(t *testing.T) {
	f := openTestFile(t)
	require.NoError(t, f.Insert([]byte("k"), []byte("v1")))
	require.NoError(t, f.Insert([]byte("k"), []byte("v2")))

	out, err := f.Fetch([]byte("k"), []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), out["k"])
}

func TestFetchRangeExcludesOutOfBounds(t *testing.T) {
	f := openTestFile(t)
	require.NoError(t, f.Insert([]byte("a"), []byte("1")))
	require.NoError(t, f.Insert([]byte("m"), []byte("2")))
	require.NoError(t, f.Insert([]byte("z"), []byte("3")))

	out, err := f.Fetch([]byte("b"), []byte("y"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []byte("2"), out["m"])
}

func TestDeleteTombstonesKey(t *testing.T) {
	f := openTestFile(t)
	require.NoError(t, f.Insert([]byte("k"), []byte("v")))
	require.NoError(t, f.Delete([]byte("k")))

	ok, err := f.Exists([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	out, err := f.Fetch([]byte("k"), []byte("k"))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRejectsOversizedKeyOrValue(t *testing.T) {
	f := openTestFile(t)
	big := make([]byte, 300)
	require.Error(t, f.Insert(big, []byte("v")))
	require.Error(t, f.Insert([]byte("k"), big))
}
