// Package cachemap implements a two-tier hybrid object cache: a
// set-associative cache backed by two generational stash maps, with a
// scoped undo log that lets the storage engine atomically persist or
// revert a batch of mutations.
//
// Lookup precedence is cache, then stash generation 1, then generation 2.
// At most one scope may be open at a time; compact requires the scope to
// be closed and the undo log empty.
package cachemap

import (
	"errors"

	"github.com/vsrkv/vsrkv/pkg/metrics"
	"github.com/vsrkv/vsrkv/pkg/setassoc"
)

// ErrScopeAlreadyOpen is returned by ScopeOpen when a scope is already
// active.
var ErrScopeAlreadyOpen = errors.New("cachemap: scope already open")

// ErrNoScopeOpen is returned by ScopeClose when no scope is active.
var ErrNoScopeOpen = errors.New("cachemap: no scope open")

// ErrScopeCapacityExceeded is returned when a mutation under an open scope
// would grow the undo log past its configured capacity; exceeding it is a
// programming error on the caller's part.
var ErrScopeCapacityExceeded = errors.New("cachemap: scope undo log capacity exceeded")

// ErrCompactWithScopeOpen is returned by Compact when a scope is active or
// the undo log is non-empty.
var ErrCompactWithScopeOpen = errors.New("cachemap: compact requires no open scope")

// Entry is one cache value, or a tombstone marking a deleted key.
type Entry[V any] struct {
	Value     V
	Tombstone bool
}

type undoRecord[K comparable, V any] struct {
	key   K
	entry Entry[V]
}

// CacheMap is the two-tier cache: a set-associative hot tier plus two
// generational stash maps and a scope undo log.
type CacheMap[K comparable, V any] struct {
	keyOf func(V) K

	cache *setassoc.Cache[K, Entry[V]]
	gen1  map[K]Entry[V]
	gen2  map[K]Entry[V]

	scopeOpen        bool
	scopeCapacityMax int
	scopeOrder       []K
	scope            map[K]undoRecord[K, V]

	metrics *metrics.Collector
}

// evictionSink forwards set-associative capacity evictions (not same-key
// updates) to the CacheMap's metrics collector, if one is attached.
type evictionSink[K comparable, V any] struct {
	m *CacheMap[K, V]
}

func (s evictionSink[K, V]) OnEvict(_ Entry[V], updated bool) {
	if updated || s.m.metrics == nil {
		return
	}
	s.m.metrics.CacheEvictions.Inc()
}

// New returns a CacheMap whose hot tier holds cacheCapacity entries across
// cacheWays ways per set, hashed by hash. keyOf derives a value's key.
// scopeMax is the capacity of the scope undo log.
func New[K comparable, V any](cacheCapacity, cacheWays int, hash func(K) uint64, keyOf func(V) K, scopeMax int) *CacheMap[K, V] {
	cm := &CacheMap[K, V]{
		keyOf:            keyOf,
		cache:            setassoc.New[K, Entry[V]](cacheCapacity, cacheWays, hash),
		gen1:             make(map[K]Entry[V]),
		gen2:             make(map[K]Entry[V]),
		scopeCapacityMax: scopeMax,
		scope:            make(map[K]undoRecord[K, V]),
	}
	cm.cache.SetSink(evictionSink[K, V]{m: cm})
	return cm
}

// SetMetrics attaches a metrics collector. Get, the set-associative
// eviction sink, and ScopeClose all start reporting through it; a CacheMap
// with no collector attached runs uninstrumented.
func (c *CacheMap[K, V]) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

// Get returns the entry stored for key, checking the cache then both stash
// generations in order.
func (c *CacheMap[K, V]) Get(key K) (Entry[V], bool) {
	if e, ok := c.cache.Get(key); ok {
		c.recordHit()
		return e, true
	}
	if e, ok := c.gen1[key]; ok {
		c.recordHit()
		return e, true
	}
	if e, ok := c.gen2[key]; ok {
		c.recordHit()
		return e, true
	}
	c.recordMiss()
	return Entry[V]{}, false
}

func (c *CacheMap[K, V]) recordHit() {
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
}

func (c *CacheMap[K, V]) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}

// Has reports whether key is present anywhere in the map. Tombstones count
// as present.
func (c *CacheMap[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Upsert inserts or updates value's entry, keyed by keyOf(value). Undo
// bookkeeping for an open scope follows one of three cases:
//  1. update-with-eviction: the prior value of the same key is recorded.
//  2. capacity eviction of a different key: that key's prior value moves to
//     stash generation 1, and is also recorded so discard reinserts it; the
//     inserted key is then recorded as in case 3.
//  3. no eviction: if the key already existed in the stash, its value is
//     recorded; otherwise a tombstone undo record is recorded.
func (c *CacheMap[K, V]) Upsert(value V) error {
	return c.upsert(c.keyOf(value), Entry[V]{Value: value})
}

// upsert performs the bookkeeping above for an arbitrary entry (value or
// tombstone), used by both the public Upsert and scope-discard replay.
func (c *CacheMap[K, V]) upsert(key K, e Entry[V]) error {
	evictedKey, evicted, hadEviction, updated := c.cache.Upsert(key, e)

	if !c.scopeOpen {
		if hadEviction && !updated {
			c.gen1[evictedKey] = evicted
		}
		return nil
	}

	switch {
	case hadEviction && updated:
		if err := c.recordUndo(key, evicted); err != nil {
			return err
		}
	case hadEviction && !updated:
		c.gen1[evictedKey] = evicted
		if err := c.recordUndo(evictedKey, evicted); err != nil {
			return err
		}
		fallthrough
	default:
		if stashed, ok := c.gen1[key]; ok {
			if err := c.recordUndo(key, stashed); err != nil {
				return err
			}
		} else if stashed, ok := c.gen2[key]; ok {
			if err := c.recordUndo(key, stashed); err != nil {
				return err
			}
		} else {
			if err := c.recordUndo(key, Entry[V]{Tombstone: true}); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordUndo writes the first-seen undo value for key into the scope log.
// Subsequent touches of the same key within one scope must not overwrite
// it, since the undo log must restore the state as of scope_open, not an
// intermediate state.
func (c *CacheMap[K, V]) recordUndo(key K, undo Entry[V]) error {
	if _, seen := c.scope[key]; seen {
		return nil
	}
	if len(c.scope) >= c.scopeCapacityMax {
		return ErrScopeCapacityExceeded
	}
	c.scope[key] = undoRecord[K, V]{key: key, entry: undo}
	c.scopeOrder = append(c.scopeOrder, key)
	return nil
}

// Remove deletes key from the cache and both stash generations. The
// captured prior value (from whichever tier held it) is recorded in the
// scope undo log if a scope is open; removal is always attempted from both
// stash generations regardless of which one (if any) held the key.
func (c *CacheMap[K, V]) Remove(key K) error {
	var captured Entry[V]
	found := false

	if e, ok := c.cache.Remove(key); ok {
		captured, found = e, true
	}
	g1, g1ok := c.gen1[key]
	delete(c.gen1, key)
	g2, g2ok := c.gen2[key]
	delete(c.gen2, key)

	if !found {
		if g1ok {
			captured, found = g1, true
		} else if g2ok {
			captured, found = g2, true
		}
	}

	if found && c.scopeOpen {
		return c.recordUndo(key, captured)
	}
	return nil
}

// ScopeOpen begins a scope. The undo log must be empty.
func (c *CacheMap[K, V]) ScopeOpen() error {
	if c.scopeOpen {
		return ErrScopeAlreadyOpen
	}
	if len(c.scope) != 0 {
		return errors.New("cachemap: scope undo log not empty at scope_open")
	}
	c.scopeOpen = true
	return nil
}

// ScopeMode selects how ScopeClose disposes of the scope's undo log.
type ScopeMode int

const (
	// ScopePersist drops the undo log, keeping all mutations made during
	// the scope.
	ScopePersist ScopeMode = iota
	// ScopeDiscard replays the undo log, reverting every mutation made
	// during the scope.
	ScopeDiscard
)

// ScopeClose ends the active scope per mode.
func (c *CacheMap[K, V]) ScopeClose(mode ScopeMode) error {
	if !c.scopeOpen {
		return ErrNoScopeOpen
	}
	switch mode {
	case ScopePersist:
		c.clearScope()
		if c.metrics != nil {
			c.metrics.ScopeCommits.Inc()
		}
	case ScopeDiscard:
		if err := c.discard(); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.ScopeDiscards.Inc()
		}
	}
	c.scopeOpen = false
	return nil
}

// discard replays the undo log in order, then clears it.
func (c *CacheMap[K, V]) discard() error {
	for _, key := range c.scopeOrder {
		rec := c.scope[key]
		if rec.entry.Tombstone {
			c.cache.Remove(rec.key)
			delete(c.gen1, rec.key) // never touch gen2
			continue
		}
		if err := c.upsert(rec.key, rec.entry); err != nil {
			return err
		}
	}
	c.clearScope()
	return nil
}

func (c *CacheMap[K, V]) clearScope() {
	c.scope = make(map[K]undoRecord[K, V])
	c.scopeOrder = nil
}

// Compact clears stash generation 2 and promotes generation 1 into its
// place. Requires no open scope and an empty undo log.
func (c *CacheMap[K, V]) Compact() error {
	if c.scopeOpen || len(c.scope) != 0 {
		return ErrCompactWithScopeOpen
	}
	c.gen2 = c.gen1
	c.gen1 = make(map[K]Entry[V])
	return nil
}
