package msgpool

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

func TestAcquireExhaustsAndFreeCallbackReplenishes(t *testing.T) {
	freed := 0
	p := New(2, wire.HeaderSize+8, func(m *Message) { freed++ })

	m1, err := p.Acquire()
	require.NoError(t, err)
	m2, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, p.Available())

	_, err = p.Acquire()
	require.ErrorIs(t, err, ErrExhausted)

	p.Unref(m1)
	require.Equal(t, 1, freed)
	require.Equal(t, 1, p.Available())

	m3, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, p.Available())

	p.Unref(m2)
	p.Unref(m3)
	require.Equal(t, 3, freed)
	require.Equal(t, 2, p.Available())
}

func TestRefDelaysFree(t *testing.T) {
	freed := 0
	p := New(1, wire.HeaderSize, func(m *Message) { freed++ })

	m, err := p.Acquire()
	require.NoError(t, err)
	p.Ref(m)

	p.Unref(m)
	require.Equal(t, 0, freed, "still one outstanding reference")

	p.Unref(m)
	require.Equal(t, 1, freed)
}

func TestBodyReflectsHeaderSize(t *testing.T) {
	p := New(1, wire.HeaderSize+16, nil)
	m, err := p.Acquire()
	require.NoError(t, err)
	m.Header.Size = wire.HeaderSize + 4
	require.Len(t, m.Body(), 4)
}
