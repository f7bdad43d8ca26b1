package gval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualStrictTypeAndValue(t *testing.T) {
	assert.True(t, Equal(Int(1), Int(1)))
	assert.False(t, Equal(Int(1), Double(1)), "Int and Double must never compare equal under strict equality")
	assert.True(t, Equal(Null, Null))
	assert.False(t, Equal(Null, Int(0)))
}

func TestCompareNullSortsLast(t *testing.T) {
	c, ok := Compare(Null, Int(5))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(Int(5), Null)
	require.True(t, ok)
	assert.Equal(t, -1, c)
}

func TestComparePromotesIntDouble(t *testing.T) {
	c, ok := Compare(Int(2), Double(2.5))
	require.True(t, ok)
	assert.Equal(t, -1, c)
}

func TestAddPromotion(t *testing.T) {
	v, err := Add(Int(2), Double(3))
	require.NoError(t, err)
	f, ok := v.AsDouble()
	require.True(t, ok)
	assert.Equal(t, 5.0, f)

	v, err = Add(Int(2), Int(3))
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(5), i)
}

func TestAddNullPropagates(t *testing.T) {
	v, err := Add(Null, Int(1))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFrameCloneDeepCopiesLists(t *testing.T) {
	f := NewFrame(1)
	f.SetAt(0, List([]TypedValue{Int(1), Int(2)}))

	clone := f.Clone()
	l, _ := clone.GetAt(0).AsList()
	l[0] = Int(99)

	orig, _ := f.GetAt(0).AsList()
	assert.Equal(t, int64(1), mustInt(orig[0]))
}

func mustInt(v TypedValue) int64 {
	i, _ := v.AsInt()
	return i
}

func TestFrameSnapshotRestore(t *testing.T) {
	f := NewFrame(2)
	f.SetAt(0, Int(1))
	f.SetAt(1, String("a"))

	saved := f.Snapshot(nil)

	f.SetAt(0, Int(2))
	f.SetAt(1, String("b"))

	f.CopyFrom(saved)
	assert.Equal(t, int64(1), mustInt(f.GetAt(0)))
	s, _ := f.GetAt(1).AsString()
	assert.Equal(t, "a", s)
}
