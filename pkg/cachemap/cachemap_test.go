package cachemap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	key   int
	value string
}

func keyOf(r record) int { return r.key }

func identityHash(k int) uint64 { return uint64(k) }

func newMap(t *testing.T, cacheCap, ways, scopeMax int) *CacheMap[int, record] {
	t.Helper()
	return New[int, record](cacheCap, ways, identityHash, keyOf, scopeMax)
}

// Nested upserts of the same key under a discarded scope must restore the
// pre-scope value, not an intermediate one.
func TestScopeDiscardRestoresPreScopeValue(t *testing.T) {
	m := newMap(t, 4, 2, 8)
	require.NoError(t, m.Upsert(record{5, "V5"}))

	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Upsert(record{5, "V5'"}))
	require.NoError(t, m.Upsert(record{5, "V5''"}))
	require.NoError(t, m.ScopeClose(ScopeDiscard))

	e, ok := m.Get(5)
	require.True(t, ok)
	require.Equal(t, "V5", e.Value.value)
}

// A key inserted and discarded within the same scope must behave as if it
// never existed.
func TestScopeDiscardOfFreshKeyLeavesNoTrace(t *testing.T) {
	m := newMap(t, 4, 2, 8)

	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Upsert(record{3, "V3"}))
	require.NoError(t, m.ScopeClose(ScopeDiscard))

	require.False(t, m.Has(3))
	_, ok := m.Get(3)
	require.False(t, ok)
}

func TestScopePersistKeepsMutations(t *testing.T) {
	m := newMap(t, 4, 2, 8)

	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Upsert(record{1, "a"}))
	require.NoError(t, m.ScopeClose(ScopePersist))

	e, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", e.Value.value)
}

func TestCapacityEvictionMovesToGen1AndIsRestoredOnDiscard(t *testing.T) {
	// Force every key into the same single-way set so a second insert evicts.
	m := New[int, record](1, 1, func(int) uint64 { return 0 }, keyOf, 8)
	require.NoError(t, m.Upsert(record{1, "a"}))

	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Upsert(record{2, "b"})) // evicts key 1 into gen1
	e, ok := m.Get(1)
	require.True(t, ok, "evicted entry must still be reachable via gen1")
	require.Equal(t, "a", e.Value.value)

	require.NoError(t, m.ScopeClose(ScopeDiscard))
	e, ok = m.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", e.Value.value)
	_, ok = m.Get(2)
	require.False(t, ok)
}

func TestRemoveCapturesAndScopeDiscardRestores(t *testing.T) {
	m := newMap(t, 4, 2, 8)
	require.NoError(t, m.Upsert(record{7, "v7"}))

	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Remove(7))
	require.False(t, m.Has(7))
	require.NoError(t, m.ScopeClose(ScopeDiscard))

	e, ok := m.Get(7)
	require.True(t, ok)
	require.Equal(t, "v7", e.Value.value)
}

func TestCompactPromotesGen1ToGen2(t *testing.T) {
	m := New[int, record](1, 1, func(int) uint64 { return 0 }, keyOf, 8)
	m.Upsert(record{1, "a"})
	m.Upsert(record{2, "b"}) // evicts key 1 into gen1

	require.NoError(t, m.Compact())
	// key 1 now lives in gen2; still reachable via Get.
	e, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", e.Value.value)
}

func TestCompactRejectsOpenScope(t *testing.T) {
	m := newMap(t, 4, 2, 8)
	require.NoError(t, m.ScopeOpen())
	require.ErrorIs(t, m.Compact(), ErrCompactWithScopeOpen)
}

func TestScopeOpenTwiceFails(t *testing.T) {
	m := newMap(t, 4, 2, 8)
	require.NoError(t, m.ScopeOpen())
	require.ErrorIs(t, m.ScopeOpen(), ErrScopeAlreadyOpen)
}

func TestScopeCapacityExceeded(t *testing.T) {
	m := newMap(t, 4, 2, 1)
	require.NoError(t, m.ScopeOpen())
	require.NoError(t, m.Upsert(record{1, "a"}))
	require.ErrorIs(t, m.Upsert(record{2, "b"}), ErrScopeCapacityExceeded)
}

func TestHasReturnsTrueForTombstone(t *testing.T) {
	m := newMap(t, 4, 2, 8)
	m.cache.Upsert(9, Entry[record]{Tombstone: true})
	require.True(t, m.Has(9))
}
