// Package tablememory implements the append-only in-memory sorted table
// that feeds the LSM tree. A TableMemory accumulates values in arrival
// order while Mutable, then sorts and freezes into Immutable once a write
// batch is complete; the storage engine flushes the frozen contents and,
// once flushed, resets it to Mutable for the next batch.
package tablememory

import (
	"errors"
	"sort"
)

// ErrNotFlushed is returned by MakeMutable when the table has not yet been
// marked flushed.
var ErrNotFlushed = errors.New("tablememory: make_mutable requires a flushed immutable table")

// ErrFull is returned by Put when the table already holds value_count_max
// values.
var ErrFull = errors.New("tablememory: at capacity")

type state int

const (
	stateMutable state = iota
	stateImmutable
)

// TableMemory holds up to capacity values of type V, keyed by keyOf for
// ordering and key_min/key_max reporting.
type TableMemory[V any] struct {
	keyOf    func(V) uint64
	capacity int
	values   []V

	state       state
	sorted      bool
	flushed     bool
	snapshotMin uint64
}

// New returns an empty, Mutable TableMemory that holds at most capacity
// values.
func New[V any](capacity int, keyOf func(V) uint64) *TableMemory[V] {
	if capacity <= 0 {
		panic("tablememory: capacity must be positive")
	}
	return &TableMemory[V]{
		keyOf:    keyOf,
		capacity: capacity,
		sorted:   true,
	}
}

// Put appends v. It fails with ErrFull once the table holds capacity
// values, and is only valid while Mutable.
func (t *TableMemory[V]) Put(v V) error {
	if t.state != stateMutable {
		return errors.New("tablememory: put requires a mutable table")
	}
	if len(t.values) >= t.capacity {
		return ErrFull
	}
	if t.sorted && len(t.values) > 0 {
		t.sorted = t.keyOf(t.values[len(t.values)-1]) <= t.keyOf(v)
	}
	t.values = append(t.values, v)
	return nil
}

// Count reports how many values are currently stored.
func (t *TableMemory[V]) Count() int { return len(t.values) }

// Sorted reports whether the stored values are currently in non-decreasing
// key order.
func (t *TableMemory[V]) Sorted() bool { return t.sorted }

// IsMutable reports whether the table is accepting new values.
func (t *TableMemory[V]) IsMutable() bool { return t.state == stateMutable }

// IsImmutable reports whether the table has been frozen.
func (t *TableMemory[V]) IsImmutable() bool { return t.state == stateImmutable }

// Flushed reports whether an immutable table's contents have been written
// to the LSM tree.
func (t *TableMemory[V]) Flushed() bool { return t.flushed }

// SnapshotMin returns the snapshot_min recorded at MakeImmutable.
func (t *TableMemory[V]) SnapshotMin() uint64 { return t.snapshotMin }

// MakeImmutable sorts the values by key if not already sorted, and
// transitions the table to Immutable with the given snapshot_min.
func (t *TableMemory[V]) MakeImmutable(snapshotMin uint64) {
	if !t.sorted {
		sort.SliceStable(t.values, func(i, j int) bool {
			return t.keyOf(t.values[i]) < t.keyOf(t.values[j])
		})
		t.sorted = true
	}
	t.state = stateImmutable
	t.snapshotMin = snapshotMin
	t.flushed = false
}

// MarkFlushed records that an immutable table's contents have been written
// out, allowing a subsequent MakeMutable.
func (t *TableMemory[V]) MarkFlushed() {
	t.flushed = true
}

// MakeMutable resets the table to empty and Mutable. It requires the table
// to currently be Immutable, sorted, and flushed.
func (t *TableMemory[V]) MakeMutable() error {
	if t.state != stateImmutable || !t.flushed || !t.sorted {
		return ErrNotFlushed
	}
	t.values = t.values[:0]
	t.state = stateMutable
	t.snapshotMin = 0
	return nil
}

// KeyMin returns the smallest key present. Valid only when Immutable with
// at least one value.
func (t *TableMemory[V]) KeyMin() (uint64, bool) {
	if t.state != stateImmutable || len(t.values) == 0 {
		return 0, false
	}
	return t.keyOf(t.values[0]), true
}

// KeyMax returns the largest key present. Valid only when Immutable with at
// least one value.
func (t *TableMemory[V]) KeyMax() (uint64, bool) {
	if t.state != stateImmutable || len(t.values) == 0 {
		return 0, false
	}
	return t.keyOf(t.values[len(t.values)-1]), true
}

// Values returns the table's current contents in their stored order.
func (t *TableMemory[V]) Values() []V {
	out := make([]V, len(t.values))
	copy(out, t.values)
	return out
}
