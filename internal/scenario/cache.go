package scenario

import (
	"sync"

	"github.com/fozzylabs/fozzy/internal/decision"
)

// Cache is the parsed-scenario cache used by multi-run commands and the
// shrinker's trial loop. Entries are keyed by the source-bytes hash and
// immutable after insert, so parallel engines may share one Cache.
type Cache struct {
	mu sync.RWMutex
	m  map[string]*Scenario
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]*Scenario)}
}

// Load returns the parsed scenario for src, parsing and inserting on the
// first request. Parse failures are not cached: a broken scenario file
// may be fixed between runs.
func (c *Cache) Load(src []byte) (*Scenario, error) {
	key := decision.HashWithDomain(decision.DomainScenario, src)

	c.mu.RLock()
	sc, ok := c.m[key]
	c.mu.RUnlock()
	if ok {
		return sc, nil
	}

	sc, err := Parse(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.m[key]; ok {
		sc = existing
	} else {
		c.m[key] = sc
	}
	c.mu.Unlock()
	return sc, nil
}

// Len returns the number of cached scenarios.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
