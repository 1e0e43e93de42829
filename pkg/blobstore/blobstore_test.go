package blobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "blobs.dat"), filepath.Join(dir, "blobs.idx"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertFetchRoundTrip(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Insert([]byte("hello"), 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	got, err := s.Fetch(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestMultipleInsertsAppend(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.Insert([]byte("aaa"), 1000)
	require.NoError(t, err)
	id2, err := s.Insert([]byte("bb"), 1001)
	require.NoError(t, err)
	require.Equal(t, uint32(2), id2)

	got1, err := s.Fetch(id1)
	require.NoError(t, err)
	require.Equal(t, []byte("aaa"), got1)

	got2, err := s.Fetch(id2)
	require.NoError(t, err)
	require.Equal(t, []byte("bb"), got2)
}

func TestUpdateSetsPrevAndKeepsOldBytes(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.Insert([]byte("v1"), 1000)
	require.NoError(t, err)

	id2, err := s.Update(id1, []byte("v2"), 1001)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	got1, err := s.Fetch(id1)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got1)

	got2, err := s.Fetch(id2)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got2)
}

func TestFetchOutOfRange(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Fetch(1)
	require.Error(t, err)

	_, err = s.Insert([]byte("x"), 1000)
	require.NoError(t, err)
	_, err = s.Fetch(0)
	require.Error(t, err)
	_, err = s.Fetch(2)
	require.Error(t, err)
}

func TestInsertRejectsEmptyChain(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(nil, 1000)
	require.Error(t, err)
}

func TestDeleteIsNoOpWithinRange(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Insert([]byte("x"), 1000)
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))
	require.Error(t, s.Delete(id+1))
}

func TestIntegrityPassesOnMonotonicStamps(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert([]byte("a"), 1000)
	require.NoError(t, err)
	_, err = s.Insert([]byte("bb"), 1001)
	require.NoError(t, err)
	require.NoError(t, s.Integrity())
}

func TestIntegrityFailsOnNonMonotonicStamps(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert([]byte("a"), 2000)
	require.NoError(t, err)
	_, err = s.Insert([]byte("bb"), 1000)
	require.NoError(t, err)
	require.Error(t, s.Integrity())
}
