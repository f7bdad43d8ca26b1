package interpreter

import (
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// isCacheableReadQuery excludes builtins whose result varies without a
// write happening in between, mirroring cache_policy.go: the list is
// intentionally small and conservative rather than exhaustive.
func isCacheableReadQuery(query string) bool {
	upper := strings.ToUpper(query)
	nonDeterministic := []string{"RAND(", "RANDOMUUID(", "DATETIME(", "DATE(", "TIME(", "TIMESTAMP("}
	for _, fn := range nonDeterministic {
		if strings.Contains(upper, fn) {
			return false
		}
	}
	return true
}

// planEntry is one plan cache row: the plan for one stripped query text.
// It holds no parameter values; each run builds its ParameterSet from
// Strip's output merged with the caller's own parameters.
type planEntry struct {
	plan *planpb.Plan
}

// PlanCache is a bounded, TTL-evicted cache from a stripped query's FNV-1a
// hash to its parsed plan. Grounded on QueryPlanCache (cache.go) for the
// Get/Put/Stats surface, but backed by golang-lru/v2/expirable rather than
// a hand-rolled container/list LRU + map, since that library is already
// part of the dependency graph (an indirect dependency of go.mod) and the
// stdlib list-based approach it replaces buys nothing a maintained library
// doesn't already do more carefully (concurrent-safe eviction, exact TTL
// accounting).
type PlanCache struct {
	entries *lru.LRU[uint64, planEntry]

	hits, misses int64
}

// NewPlanCache builds a cache holding up to size entries, each evicted
// after ttl regardless of use, matching cache_test.go's TTL-expiry
// expectations for the plan cache.
func NewPlanCache(size int, ttl time.Duration) *PlanCache {
	return &PlanCache{entries: lru.NewLRU[uint64, planEntry](size, nil, ttl)}
}

func (c *PlanCache) Get(hash uint64) (*planpb.Plan, bool) {
	e, ok := c.entries.Get(hash)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.plan, true
}

func (c *PlanCache) Put(hash uint64, plan *planpb.Plan) {
	c.entries.Add(hash, planEntry{plan: plan})
}

// Stats reports hit/miss/size counters in the shape cache_test.go asserts
// against SmartQueryCache.Stats().
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), c.entries.Len()
}

func (c *PlanCache) Purge() {
	c.entries.Purge()
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}
