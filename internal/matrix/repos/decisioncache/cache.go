// Package decisioncache memoizes request decisions between rule mutations.
// Every write to either matrix layer must Purge it.
package decisioncache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// Cache is the decision cache consulted by request filtering.
type Cache interface {
	Get(k domain.CellKey) (domain.Decision, bool)
	Put(k domain.CellKey, d domain.Decision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// decisionCache is an LRU-backed Cache. It tracks hits, misses and evictions.
type decisionCache struct {
	lru       *lru.Cache[domain.CellKey, domain.Decision]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache always misses.
type disabledCache struct{}

// New creates a Cache with the given capacity. If size <= 0, a disabled cache
// is returned that always misses and tracks no metrics.
func New(size int) (Cache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var dc decisionCache
	// NewWithEvict also observes Purge-induced evictions.
	cache, err := lru.NewWithEvict(size, func(_ domain.CellKey, _ domain.Decision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return &dc, nil
}

func (c *decisionCache) Get(k domain.CellKey) (domain.Decision, bool) {
	if val, ok := c.lru.Get(k); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.Decision{}, false
}

func (c *decisionCache) Put(k domain.CellKey, d domain.Decision) {
	c.lru.Add(k, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (d *disabledCache) Get(domain.CellKey) (domain.Decision, bool) { return domain.Decision{}, false }

func (d *disabledCache) Put(domain.CellKey, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ Cache = (*decisionCache)(nil)
var _ Cache = (*disabledCache)(nil)
