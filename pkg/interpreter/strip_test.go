package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripReplacesLiteralsWithPlaceholders(t *testing.T) {
	s := Strip(`MATCH (n:Person {name: "Ada", age: 30}) RETURN n`)
	require.NotContains(t, s.Text, "Ada")
	require.NotContains(t, s.Text, "30")
	require.Contains(t, s.Text, "$__p0")
	require.Contains(t, s.Text, "$__p1")

	v0, ok := s.Params.ByPosition(0)
	require.True(t, ok)
	name, ok := v0.AsString()
	require.True(t, ok)
	require.Equal(t, "Ada", name)

	v1, ok := s.Params.ByPosition(1)
	require.True(t, ok)
	age, ok := v1.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(30), age)
}

func TestStripIsStableAcrossLiteralValues(t *testing.T) {
	a := Strip(`MATCH (n:Person) WHERE n.age > 30 RETURN n`)
	b := Strip(`MATCH (n:Person) WHERE n.age > 99 RETURN n`)
	require.Equal(t, a.Text, b.Text)
	require.Equal(t, a.Hash, b.Hash)
}

func TestStripIsIdempotent(t *testing.T) {
	once := Strip(`MATCH (n:Person {name: "Ada"}) RETURN n`)
	twice := Strip(once.Text)
	require.Equal(t, once.Text, twice.Text)
	require.Equal(t, 0, len(twiceParams(twice)))
}

func twiceParams(s Stripped) []struct{} {
	// Strip never re-numbers an already-placeholder'd query since $__pN
	// isn't a quoted string, a bare number, or true/false/null.
	var out []struct{}
	for i := 0; ; i++ {
		if _, ok := s.Params.ByPosition(i); !ok {
			break
		}
		out = append(out, struct{}{})
	}
	return out
}

func TestIsCacheableReadQuery(t *testing.T) {
	require.True(t, isCacheableReadQuery("MATCH (n) RETURN n"))
	require.False(t, isCacheableReadQuery("RETURN rand()"))
	require.False(t, isCacheableReadQuery("RETURN datetime()"))
}
