package setassoc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func identityHash(k int) uint64 { return uint64(k) }

func TestUpsertNoEvictionOnFreeSlot(t *testing.T) {
	c := New[int, string](4, 2, identityHash)
	_, _, hadEviction, updated := c.Upsert(1, "a")
	require.False(t, hadEviction)
	require.False(t, updated)

	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestUpsertUpdateSameKey(t *testing.T) {
	c := New[int, string](4, 2, identityHash)
	c.Upsert(1, "a")
	evictedKey, evicted, hadEviction, updated := c.Upsert(1, "b")
	require.True(t, hadEviction)
	require.True(t, updated)
	require.Equal(t, 1, evictedKey)
	require.Equal(t, "a", evicted)

	v, _ := c.Get(1)
	require.Equal(t, "b", v)
}

func TestUpsertCapacityEvictionDisplacesLRU(t *testing.T) {
	// All keys hash to set 0 (via %1) with ways=2: third insert must evict.
	hashAllSame := func(int) uint64 { return 0 }
	c := New[int, string](2, 2, hashAllSame)

	c.Upsert(1, "a")
	c.Upsert(2, "b")
	c.Get(2) // touch 2 so 1 becomes LRU

	evictedKey, evicted, hadEviction, updated := c.Upsert(3, "c")
	require.True(t, hadEviction)
	require.False(t, updated)
	require.Equal(t, 1, evictedKey)
	require.Equal(t, "a", evicted)

	_, ok := c.Get(1)
	require.False(t, ok)
	v, ok := c.Get(2)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestUpsertInvokesEvictionSink(t *testing.T) {
	hashAllSame := func(int) uint64 { return 0 }
	c := New[int, string](1, 1, hashAllSame)

	var gotUpdated []bool
	c.SetSink(sinkFunc[string](func(_ string, updated bool) {
		gotUpdated = append(gotUpdated, updated)
	}))

	c.Upsert(1, "a")
	c.Upsert(1, "b") // update-with-eviction
	c.Upsert(2, "c") // capacity eviction of key 1

	require.Equal(t, []bool{true, false}, gotUpdated)
}

type sinkFunc[V any] func(evicted V, updated bool)

func (f sinkFunc[V]) OnEvict(evicted V, updated bool) { f(evicted, updated) }

func TestRemove(t *testing.T) {
	c := New[int, string](4, 2, identityHash)
	c.Upsert(5, "x")
	v, ok := c.Remove(5)
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = c.Remove(5)
	require.False(t, ok)
}
