package graph

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Source supplies the raw edges for a graph rebuild (typically
// LocalStore.AllLinks in production).
type Source func() ([]Link, error)

// Snapshot is the immutable result of one graph rebuild: the adjacency model
// plus its derived centrality scores, computed together so a reader never
// sees a graph paired with stale scores.
type Snapshot struct {
	Graph       *Graph
	PageRank    map[string]float64
	Degree      map[string]float64
	Betweenness map[string]float64
}

// Cache holds the current Snapshot, rebuilding it at most once per TTL.
// Concurrent readers during a stale window share a single rebuild via
// singleflight, so no reader ever observes a half-built graph and no rebuild
// is ever done twice for the same staleness window.
type Cache struct {
	source    Source
	ttl       time.Duration
	damping   float64
	tolerance float64
	maxIter   int

	mu      sync.RWMutex
	snap    Snapshot
	builtAt time.Time

	group singleflight.Group
}

// NewCache constructs a Cache. damping/tolerance/maxIter are passed straight
// through to Graph.PageRank on every rebuild.
func NewCache(source Source, ttl time.Duration, damping, tolerance float64, maxIter int) *Cache {
	return &Cache{source: source, ttl: ttl, damping: damping, tolerance: tolerance, maxIter: maxIter}
}

// Get returns the current snapshot, rebuilding first if the TTL has elapsed
// or no graph has been built yet.
func (c *Cache) Get() (Snapshot, error) {
	c.mu.RLock()
	fresh := !c.builtAt.IsZero() && time.Since(c.builtAt) < c.ttl
	snap := c.snap
	c.mu.RUnlock()
	if fresh {
		return snap, nil
	}

	v, err, _ := c.group.Do("rebuild", func() (interface{}, error) {
		c.mu.RLock()
		stillFresh := !c.builtAt.IsZero() && time.Since(c.builtAt) < c.ttl
		cur := c.snap
		c.mu.RUnlock()
		if stillFresh {
			return cur, nil
		}
		return c.rebuild()
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (c *Cache) rebuild() (Snapshot, error) {
	links, err := c.source()
	if err != nil {
		return Snapshot{}, err
	}

	g := Build(links)
	snap := Snapshot{
		Graph:       g,
		PageRank:    g.PageRank(c.damping, c.tolerance, c.maxIter),
		Degree:      g.DegreeCentrality(),
		Betweenness: g.Betweenness(),
	}

	c.mu.Lock()
	c.snap = snap
	c.builtAt = time.Now()
	c.mu.Unlock()

	return snap, nil
}

// Invalidate forces the next Get to rebuild, used after pruning or bulk
// ingestion changes the underlying link set.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.builtAt = time.Time{}
	c.mu.Unlock()
}
