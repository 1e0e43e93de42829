package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniqueKeyIndexRejectsDuplicate(t *testing.T) {
	u := NewUniqueKeyIndex()
	require.NoError(t, u.Insert(42, 1))
	require.Error(t, u.Insert(42, 2))

	id, ok := u.Lookup(42)
	require.True(t, ok)
	require.Equal(t, uint32(1), id)

	u.Delete(42)
	_, ok = u.Lookup(42)
	require.False(t, ok)
}

func TestEnumIndex(t *testing.T) {
	e := NewEnumIndex(0)
	e.Insert(1, 10)
	e.Insert(1, 11)
	e.Insert(2, 12)

	s, ok := e.Lookup(1)
	require.True(t, ok)
	require.Equal(t, 2, s.Count())
	require.Equal(t, 2, e.Size())

	e.Delete(1, 10)
	s, _ = e.Lookup(1)
	require.Equal(t, 1, s.Count())
}

func TestEnumIndexBitmapRepresentation(t *testing.T) {
	e := NewEnumIndex(3) // <= enumBitmapSlots selects the direct-addressed array
	require.NotNil(t, e.bitmap)
	require.Nil(t, e.byCode)

	e.Insert(0, 1)
	e.Insert(2, 2)
	require.Equal(t, 2, e.Size())

	s, ok := e.Lookup(0)
	require.True(t, ok)
	require.True(t, s.Contains(1))

	e.Delete(0, 1)
	s, _ = e.Lookup(0)
	require.Equal(t, 0, s.Count())
}

func TestEnumIndexListRepresentation(t *testing.T) {
	e := NewEnumIndex(128) // above enumBitmapSlots falls back to the sparse map
	require.Nil(t, e.bitmap)
	require.NotNil(t, e.byCode)

	e.Insert(100, 1)
	s, ok := e.Lookup(100)
	require.True(t, ok)
	require.True(t, s.Contains(1))
}

func TestTextIndexTokenizeAndEval(t *testing.T) {
	x := NewTextIndex()
	x.Insert(1, "the quick brown fox")
	x.Insert(2, "the lazy dog")
	x.Insert(3, "quick brown dog")

	and := x.Eval(OpAnd, "quick", "brown")
	require.Equal(t, 2, and.Count())
	require.True(t, and.Contains(1))
	require.True(t, and.Contains(3))

	or := x.Eval(OpOr, "fox", "lazy")
	require.Equal(t, 2, or.Count())

	none := x.Eval(OpAnd, "quick", "nonexistent")
	require.Equal(t, 0, none.Count())
}

func TestTextIndexDelete(t *testing.T) {
	x := NewTextIndex()
	x.Insert(1, "hello world")
	x.Delete(1, "hello world")
	s := x.Eval(OpOr, "hello")
	require.Equal(t, 0, s.Count())
}
