package interpreter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nornic-labs/graphcore/pkg/planpb"
)

func TestPlanCacheHitsAndMisses(t *testing.T) {
	c := NewPlanCache(4, time.Minute)
	plan := &planpb.Plan{Width: 1}

	_, ok := c.Get(42)
	require.False(t, ok)

	c.Put(42, plan)
	got, ok := c.Get(42)
	require.True(t, ok)
	require.Same(t, plan, got)

	hits, misses, size := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
	require.Equal(t, 1, size)
}

func TestPlanCacheEvictsByTTL(t *testing.T) {
	c := NewPlanCache(4, 10*time.Millisecond)
	c.Put(1, &planpb.Plan{})
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestPlanCacheEvictsBySize(t *testing.T) {
	c := NewPlanCache(2, time.Minute)
	c.Put(1, &planpb.Plan{})
	c.Put(2, &planpb.Plan{})
	c.Put(3, &planpb.Plan{})
	_, _, size := c.Stats()
	require.Equal(t, 2, size)
}
