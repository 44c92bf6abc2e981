// Package cache memoizes evaluated geometry by canonical subtree identity.
// It keeps two cost-bounded LRU stores, one for approximate results
// (meshes, polygons, lists) and one for exact backend solids, so a lookup
// can prefer whichever representation the caller needs.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"github.com/chazu/solidcsg/pkg/geom"
)

// Store identifies one of the two stores.
type Store int

const (
	Approximate Store = iota
	Exact
)

func (s Store) String() string {
	if s == Exact {
		return "exact"
	}
	return "approximate"
}

// StoreFor returns the store a geometry belongs in.
func StoreFor(g geom.Geometry) Store {
	if g != nil && g.Kind() == geom.KindExact {
		return Exact
	}
	return Approximate
}

// Default store sizes in bytes.
const (
	DefaultApproxMaxBytes = 100 << 20
	DefaultExactMaxBytes  = 100 << 20
)

// Options configures a Cache.
type Options struct {
	ApproxMaxBytes int64
	ExactMaxBytes  int64
	Logger         *slog.Logger
}

// DefaultOptions returns the default cache options.
func DefaultOptions() Options {
	return Options{
		ApproxMaxBytes: DefaultApproxMaxBytes,
		ExactMaxBytes:  DefaultExactMaxBytes,
	}
}

// Option modifies Options.
type Option func(*Options)

// WithApproxMaxBytes bounds the approximate store.
func WithApproxMaxBytes(n int64) Option {
	return func(o *Options) { o.ApproxMaxBytes = n }
}

// WithExactMaxBytes bounds the exact store.
func WithExactMaxBytes(n int64) Option {
	return func(o *Options) { o.ExactMaxBytes = n }
}

// WithLogger sets the logger used for eviction and rejection messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      int
	Misses    int
	Inserts   int
	Rejected  int
	Evictions int

	ApproxEntries int
	ExactEntries  int
	ApproxBytes   int64
	ExactBytes    int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the dual geometry cache. Entries are inserted once and never
// mutated; it is safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	stores [2]*lru
	stats  Stats
	log    *slog.Logger
}

// New creates a cache.
func New(opts ...Option) *Cache {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Cache{
		stores: [2]*lru{newLRU(o.ApproxMaxBytes), newLRU(o.ExactMaxBytes)},
		log:    o.Logger,
	}
}

// Contains reports whether either store holds key. It does not count as a
// lookup and does not refresh recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores[Approximate].has(key) || c.stores[Exact].has(key)
}

// ContainsIn reports whether store s holds key.
func (c *Cache) ContainsIn(s Store, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores[s].has(key)
}

// Get returns the cached geometry for key. The exact entry is returned when
// it exists and either preferExact is set or there is no approximate entry.
func (c *Cache) Get(key string, preferExact bool) (geom.Geometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hasApprox := c.stores[Approximate].has(key)
	hasExact := c.stores[Exact].has(key)
	var (
		g  geom.Geometry
		ok bool
		s  Store
	)
	switch {
	case hasExact && (preferExact || !hasApprox):
		s = Exact
		g, ok = c.stores[Exact].get(key)
	case hasApprox:
		s = Approximate
		g, ok = c.stores[Approximate].get(key)
	}
	c.count(ok, s)
	return g, ok
}

// GetFrom returns the entry for key from store s only.
func (c *Cache) GetFrom(s Store, key string) (geom.Geometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.stores[s].get(key)
	c.count(ok, s)
	return g, ok
}

func (c *Cache) count(hit bool, s Store) {
	if hit {
		c.stats.Hits++
		recordHit(context.Background(), s)
	} else {
		c.stats.Misses++
		recordMiss(context.Background())
	}
}

// Insert stores g under key in the store matching its representation. An
// existing entry is kept unchanged. It reports false when g alone exceeds
// the store's size bound.
func (c *Cache) Insert(key string, g geom.Geometry) bool {
	g = geom.OrEmpty(g)
	s := StoreFor(g)

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stores[s]
	if st.has(key) {
		return true
	}
	evicted, ok := st.put(key, g)
	c.stats.Evictions += evicted
	if evicted > 0 {
		recordEvictions(context.Background(), s, evicted)
	}
	if !ok {
		c.stats.Rejected++
		recordReject(context.Background(), s)
		c.log.Warn("geometry too large for cache",
			slog.String("store", s.String()),
			slog.Int64("cost", g.Cost()),
			slog.Int64("max", st.maxCost),
		)
		return false
	}
	c.stats.Inserts++
	recordInsert(context.Background(), s)
	return true
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.ApproxEntries = c.stores[Approximate].order.Len()
	s.ExactEntries = c.stores[Exact].order.Len()
	s.ApproxBytes = c.stores[Approximate].total
	s.ExactBytes = c.stores[Exact].total
	return s
}

// Clear drops every entry and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, st := range c.stores {
		c.stores[i] = newLRU(st.maxCost)
	}
	c.stats = Stats{}
}

// ---------------------------------------------------------------------------
// LRU store
// ---------------------------------------------------------------------------

type entry struct {
	key  string
	geom geom.Geometry
	cost int64
}

// lru is a cost-bounded least-recently-used map. Not safe for concurrent
// use on its own.
type lru struct {
	maxCost int64
	total   int64
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

func newLRU(maxCost int64) *lru {
	return &lru{
		maxCost: maxCost,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (l *lru) has(key string) bool {
	_, ok := l.entries[key]
	return ok
}

func (l *lru) get(key string) (geom.Geometry, bool) {
	el, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*entry).geom, true
}

// put inserts a new entry, evicting least recently used entries to make
// room. It returns the number of evictions and false when the entry can
// never fit.
func (l *lru) put(key string, g geom.Geometry) (int, bool) {
	cost := g.Cost()
	if cost > l.maxCost {
		return 0, false
	}
	evicted := 0
	for l.total+cost > l.maxCost {
		back := l.order.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry)
		l.order.Remove(back)
		delete(l.entries, e.key)
		l.total -= e.cost
		evicted++
	}
	l.entries[key] = l.order.PushFront(&entry{key: key, geom: g, cost: cost})
	l.total += cost
	return evicted, true
}
