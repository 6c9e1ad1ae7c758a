package arbitrage

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// OpportunityCache holds the currently-live opportunity set. Writers are the
// deep scanner and the realtime evaluator; sweep eviction removes anything a
// full scan cycle failed to re-find, so no entry outlives one scan.
type OpportunityCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	logger  *zap.Logger
}

type cacheEntry struct {
	opp  *Opportunity
	gen  uint64
	seen time.Time
}

// NewOpportunityCache creates an empty cache.
func NewOpportunityCache(logger *zap.Logger) *OpportunityCache {
	return &OpportunityCache{
		entries: make(map[string]*cacheEntry),
		logger:  logger,
	}
}

// Upsert stores or refreshes an opportunity under the given scan generation.
// An existing entry keeps its original DetectedAt so consumers can see how
// long the inefficiency has persisted.
func (c *OpportunityCache) Upsert(opp *Opportunity, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := opp.Key()
	if prev, ok := c.entries[key]; ok {
		opp.ID = prev.opp.ID
		opp.DetectedAt = prev.opp.DetectedAt
	}
	c.entries[key] = &cacheEntry{opp: opp, gen: gen, seen: time.Now()}
	OpportunitiesCached.Set(float64(len(c.entries)))
}

// Refresh replaces an entry's opportunity while keeping its scan
// generation, so a realtime update cannot shield an entry from (or expose
// it to) the next sweep. New entries start at generation zero and survive
// only if the next scan re-finds them.
func (c *OpportunityCache) Refresh(opp *Opportunity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := opp.Key()
	gen := uint64(0)
	if prev, ok := c.entries[key]; ok {
		opp.ID = prev.opp.ID
		opp.DetectedAt = prev.opp.DetectedAt
		gen = prev.gen
	}
	c.entries[key] = &cacheEntry{opp: opp, gen: gen, seen: time.Now()}
	OpportunitiesCached.Set(float64(len(c.entries)))
}

// Touch refreshes the generation of an existing entry without replacing it.
func (c *OpportunityCache) Touch(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.gen = gen
		e.seen = time.Now()
	}
}

// Get returns the cached opportunity for a key.
func (c *OpportunityCache) Get(key string) (*Opportunity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.opp, true
}

// Remove drops one entry.
func (c *OpportunityCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	OpportunitiesCached.Set(float64(len(c.entries)))
}

// Snapshot returns the live opportunities.
func (c *OpportunityCache) Snapshot() []*Opportunity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Opportunity, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.opp)
	}
	return out
}

// Sweep evicts every entry not marked with the given generation: the scan
// cycle that just completed did not re-find them.
func (c *OpportunityCache) Sweep(gen uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if e.gen != gen {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Info("opportunities-swept",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(c.entries)))
		OpportunitiesEvictedTotal.Add(float64(evicted))
	}
	OpportunitiesCached.Set(float64(len(c.entries)))
	return evicted
}
