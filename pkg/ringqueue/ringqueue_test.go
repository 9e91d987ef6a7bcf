package ringqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int](3)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.True(t, q.Push(3))
	require.False(t, q.Push(4))
	require.True(t, q.Full())

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, q.Push(4))

	for _, want := range []int{2, 3, 4} {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	require.True(t, q.Empty())
	_, ok = q.Pop()
	require.False(t, ok)
}

func TestHeadDoesNotRemove(t *testing.T) {
	q := New[string](2)
	q.Push("a")
	v, ok := q.Head()
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 1, q.Len())
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
}
