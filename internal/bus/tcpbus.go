package bus

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vsrkv/vsrkv/pkg/msgpool"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

// TCPBus is a MessageBus backed by one persistent TCP connection per
// replica. Each wire message is framed with a 4-byte big-endian length
// prefix ahead of the 128-byte header and body, matching the length-prefix
// convention the rest of the pack uses for its binary protocols.
type TCPBus struct {
	mu       sync.Mutex
	conns    []net.Conn
	pool     *msgpool.Pool
	received func(*msgpool.Message)
	freed    func(*msgpool.Message)
	logger   *slog.Logger

	inbox  []*msgpool.Message
	toFree []*msgpool.Message
}

// DialTCPBus connects to every replica address in order; the resulting
// bus addresses replicas by their index into addrs.
func DialTCPBus(addrs []string, messageSize, poolCapacity int, logger *slog.Logger) (*TCPBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &TCPBus{logger: logger}
	b.pool = msgpool.New(poolCapacity, messageSize, func(m *msgpool.Message) {
		b.mu.Lock()
		freed := b.freed
		b.mu.Unlock()
		if freed != nil {
			freed(m)
		}
	})

	for i, addr := range addrs {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			b.closeConns()
			return nil, fmt.Errorf("bus: dial replica %d (%s): %w", i, addr, err)
		}
		b.conns = append(b.conns, conn)
		go b.readLoop(conn)
	}
	return b, nil
}

func (b *TCPBus) closeConns() {
	for _, c := range b.conns {
		c.Close()
	}
}

// Tick drains every message the read goroutines have decoded since the
// last call and dispatches each to the received callback synchronously,
// on the caller's own goroutine. The read goroutines only decode and
// buffer; they never invoke the callback themselves, since the
// MessageBus contract requires it run on the caller's goroutine.
func (b *TCPBus) Tick() {
	b.mu.Lock()
	pending := b.inbox
	b.inbox = nil
	toFree := b.toFree
	b.toFree = nil
	received := b.received
	b.mu.Unlock()

	for _, m := range toFree {
		b.pool.Unref(m)
	}
	for _, m := range pending {
		if received != nil {
			received(m)
		} else {
			b.pool.Unref(m)
		}
	}
}

func (b *TCPBus) GetMessage() (*msgpool.Message, error) { return b.pool.Acquire() }

func (b *TCPBus) Unref(m *msgpool.Message) { b.pool.Unref(m) }

func (b *TCPBus) SendMessageToReplica(replicaIdx uint8, m *msgpool.Message) error {
	if int(replicaIdx) >= len(b.conns) {
		return fmt.Errorf("bus: no connection for replica %d", replicaIdx)
	}
	conn := b.conns[replicaIdx]
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], m.Header.Size)
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(m.Buffer()[:m.Header.Size])
	return err
}

func (b *TCPBus) SetOnMessageReceived(f func(*msgpool.Message)) {
	b.mu.Lock()
	b.received = f
	b.mu.Unlock()
}

func (b *TCPBus) SetOnMessageFreed(f func(*msgpool.Message)) {
	b.mu.Lock()
	b.freed = f
	b.mu.Unlock()
}

func (b *TCPBus) Close() error {
	var firstErr error
	for _, c := range b.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *TCPBus) readLoop(conn net.Conn) {
	var lenPrefix [4]byte
	for {
		if _, err := readFull(conn, lenPrefix[:]); err != nil {
			b.logger.Info("bus: connection closed", "remote", conn.RemoteAddr(), "error", err)
			return
		}
		size := binary.BigEndian.Uint32(lenPrefix[:])
		if size < wire.HeaderSize {
			b.logger.Warn("bus: undersized frame", "size", size)
			return
		}

		m, err := b.pool.Acquire()
		if err != nil {
			b.logger.Warn("bus: dropping inbound message, pool exhausted", "error", err)
			if _, err := readFull(conn, make([]byte, size)); err != nil {
				return
			}
			continue
		}
		if int(size) > len(m.Buffer()) {
			b.logger.Warn("bus: frame exceeds message buffer", "size", size)
			b.deferFree(m)
			return
		}
		if _, err := readFull(conn, m.Buffer()[:size]); err != nil {
			b.deferFree(m)
			return
		}
		hdr, err := wire.DecodeHeader(m.Buffer())
		if err != nil {
			b.deferFree(m)
			continue
		}
		m.Header = hdr

		b.mu.Lock()
		b.inbox = append(b.inbox, m)
		b.mu.Unlock()
	}
}

// deferFree queues m to be released via Unref from Tick, so the pool's
// free callback never fires on a read goroutine.
func (b *TCPBus) deferFree(m *msgpool.Message) {
	b.mu.Lock()
	b.toFree = append(b.toFree, m)
	b.mu.Unlock()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
