package idset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertRemove(t *testing.T) {
	s := New()
	require.Equal(t, 1, s.Insert(3))
	require.Equal(t, 0, s.Insert(3))
	require.Equal(t, 1, s.Count())
	require.True(t, s.Contains(3))

	require.True(t, s.Remove(3))
	require.False(t, s.Remove(3))
	require.Equal(t, 0, s.Count())
}

func TestSegmentBoundaries(t *testing.T) {
	s := New()
	s.Insert(3)
	s.Insert(260)
	s.Insert(261)
	s.Insert(70000)

	require.Equal(t, 4, s.Count())
	require.Equal(t, 3, s.SegmentCount())
}

func TestUnionIntersection(t *testing.T) {
	a := New()
	b := New()
	for _, id := range []uint32{1, 2, 3, 100} {
		a.Insert(id)
	}
	for _, id := range []uint32{3, 4, 5} {
		b.Insert(id)
	}

	union := a.Copy()
	union.Or(b)
	require.Equal(t, a.Count()+b.Count()-1, union.Count()) // overlap of {3}

	inter := a.Copy()
	inter.And(b)
	require.Equal(t, 1, inter.Count())
	require.True(t, inter.Contains(3))
}

func TestSelfUnionIntersectionIdempotent(t *testing.T) {
	a := New()
	for _, id := range []uint32{1, 5, 9} {
		a.Insert(id)
	}

	selfUnion := a.Copy()
	selfUnion.Or(a)
	require.True(t, selfUnion.Equal(a))

	selfInter := a.Copy()
	selfInter.And(a)
	require.True(t, selfInter.Equal(a))
}

func TestFetchAscending(t *testing.T) {
	s := New()
	for _, id := range []uint32{500, 10, 99, 3, 1000} {
		s.Insert(id)
	}

	var out []uint32
	n := s.Fetch(1, 2, &out)
	require.Equal(t, 2, n)
	require.Equal(t, []uint32{10, 99}, out)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := New()
	for _, id := range []uint32{3, 260, 261, 70000} {
		s.Insert(id)
	}

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))

	fresh := New()
	require.NoError(t, fresh.Import(&buf))

	require.True(t, s.Equal(fresh))
	require.Equal(t, 4, fresh.Count())
	require.Equal(t, 3, fresh.SegmentCount())
}

func TestCloneOnWrite(t *testing.T) {
	a := New()
	a.Insert(1)
	a.Insert(2)

	b := a.Copy()
	b.Insert(3)

	require.Equal(t, 2, a.Count())
	require.Equal(t, 3, b.Count())
	require.False(t, a.Contains(3))
	require.True(t, b.Contains(3))
}
