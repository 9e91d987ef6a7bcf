// Package msgpool implements a fixed-capacity, reference-counted pool of
// message buffers. Unlike a sync.Pool, which grows and shrinks under GC
// pressure with no deterministic accounting, this pool holds exactly
// capacity buffers: the session client relies on that fixed budget to
// bound how many requests it can have outstanding at once.
//
// A Message's buffer is returned to the pool only when its last reference
// is released; the pool's free-callback then fires synchronously inside
// Unref, which is how SessionClient replenishes its per-client message
// budget without a separate notification channel.
package msgpool

import (
	"errors"
	"sync/atomic"

	"github.com/vsrkv/vsrkv/pkg/wire"
)

// ErrExhausted is returned by Acquire when every slot in the pool is
// currently referenced.
var ErrExhausted = errors.New("msgpool: exhausted")

// Message is a fixed-capacity buffer owned by a Pool. It carries the raw
// bytes of one wire message (header followed by body) plus a decoded view
// of the header, refreshed on demand by the owner.
type Message struct {
	Header wire.Header
	buf    []byte
	refs   int32
	slot   int
}

// Buffer returns the full backing buffer, sized to MessageSize. Callers
// write the header with wire.Header.Encode into buf[:wire.HeaderSize] and
// the body into the remainder.
func (m *Message) Buffer() []byte { return m.buf }

// Body returns the portion of the buffer after the header, truncated to the
// size recorded in m.Header.Size.
func (m *Message) Body() []byte {
	bodyLen := int(m.Header.Size) - wire.HeaderSize
	if bodyLen < 0 {
		bodyLen = 0
	}
	return m.buf[wire.HeaderSize : wire.HeaderSize+bodyLen]
}

// Pool hands out fixed-size Message buffers under a hard capacity limit.
// The zero value is not usable; construct one with New.
type Pool struct {
	messageSize int
	slots       []Message
	free        []int32 // stack of free slot indices
	onFree      func(*Message)
}

// New returns a Pool with room for capacity messages, each messageSize
// bytes, including the 128-byte header. onFree is invoked synchronously
// from Unref whenever a message's last reference is released; it must not
// call back into Acquire or Unref on the same pool (non-reentrant).
func New(capacity, messageSize int, onFree func(*Message)) *Pool {
	if capacity <= 0 {
		panic("msgpool: capacity must be positive")
	}
	if messageSize < wire.HeaderSize {
		panic("msgpool: messageSize smaller than header")
	}
	p := &Pool{
		messageSize: messageSize,
		slots:       make([]Message, capacity),
		free:        make([]int32, capacity),
		onFree:      onFree,
	}
	for i := range p.slots {
		p.slots[i].buf = make([]byte, messageSize)
		p.slots[i].slot = i
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

// Capacity reports the total number of message slots the pool manages.
func (p *Pool) Capacity() int { return len(p.slots) }

// Available reports how many slots are currently unreferenced.
func (p *Pool) Available() int { return len(p.free) }

// Acquire reserves a slot and returns a Message with one reference held by
// the caller. It reports ErrExhausted if no slot is free.
func (p *Pool) Acquire() (*Message, error) {
	if len(p.free) == 0 {
		return nil, ErrExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	m := &p.slots[idx]
	m.refs = 1
	m.Header = wire.Header{}
	return m, nil
}

// Ref adds one reference to m. Callers hold a reference for as long as they
// retain a pointer obtained from Acquire or a prior Ref.
func (p *Pool) Ref(m *Message) {
	atomic.AddInt32(&m.refs, 1)
}

// Unref drops one reference to m. When the last reference is released, the
// slot is returned to the free list and the pool's free-callback fires
// synchronously, before Unref returns.
func (p *Pool) Unref(m *Message) {
	if atomic.AddInt32(&m.refs, -1) > 0 {
		return
	}
	p.free = append(p.free, int32(m.slot))
	if p.onFree != nil {
		p.onFree(m)
	}
}
