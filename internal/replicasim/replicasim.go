// Package replicasim is an in-process test double for a Viewstamped
// Replication-style replica group, implementing the bus.MessageBus
// contract directly (no sockets) so pkg/session's tests can drive the
// SessionClient FSM deterministically. It models a reduced form of the
// replica group's ack semantics: one view shared by all replicas, a
// non-zero commit value (the session number) on a successful register, and
// that session number echoed as the commit of every later reply. It answers
// every request it processes, so a retransmitted request that reaches it
// twice is answered twice; it does not model primaries.
package replicasim

import (
	"github.com/vsrkv/vsrkv/pkg/msgpool"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

// Fault lets a test inject a specific failure for the next matching send.
type Fault int

const (
	// FaultNone delivers a normal reply.
	FaultNone Fault = iota
	// FaultDrop silently drops the request (no reply), to exercise
	// request_timeout retransmission.
	FaultDrop
	// FaultWrongParent replies with a corrupted parent field, to exercise
	// reply-validation drops.
	FaultWrongParent
	// FaultEvict answers the request with an eviction for its client
	// instead of a reply.
	FaultEvict
)

type pendingSend struct {
	hdr  wire.Header
	body []byte
}

// Group simulates a cluster of replicaCount replicas sharing one view and
// one session table.
type Group struct {
	pool     *msgpool.Pool
	received func(*msgpool.Message)
	freed    func(*msgpool.Message)

	clusterID    uint32
	replicaCount uint8
	view         uint32
	nextSession  uint64
	sessions     map[wire.Digest]uint64

	queue   []pendingSend
	fault   Fault
	evicted map[wire.Digest]bool
}

// New returns a Group ready to be bound to a SessionClient as its
// bus.MessageBus.
func New(clusterID uint32, replicaCount uint8, poolCapacity, messageSize int) *Group {
	g := &Group{
		clusterID:    clusterID,
		replicaCount: replicaCount,
		nextSession:  100, // arbitrary non-zero starting session number
		sessions:     make(map[wire.Digest]uint64),
		evicted:      make(map[wire.Digest]bool),
	}
	g.pool = msgpool.New(poolCapacity, messageSize, func(m *msgpool.Message) {
		if g.freed != nil {
			g.freed(m)
		}
	})
	return g
}

// InjectFault arms a one-shot fault applied to the next queued request that
// Tick processes, including one already sent before the fault was armed.
func (g *Group) InjectFault(f Fault) { g.fault = f }

// SetView forces the simulated cluster's view, used to exercise view-bump
// and round-robin-on-retry behavior.
func (g *Group) SetView(v uint32) { g.view = v }

// Tick processes every request queued since the last Tick and delivers
// replies synchronously, matching the single-threaded model the real bus
// also upholds.
func (g *Group) Tick() {
	pending := g.queue
	g.queue = nil
	for _, p := range pending {
		g.process(p)
	}
}

func (g *Group) process(p pendingSend) {
	switch g.fault {
	case FaultDrop:
		g.fault = FaultNone
		return
	case FaultEvict:
		g.fault = FaultNone
		g.deliverEviction(p.hdr)
		return
	}

	var commit wire.Digest
	if p.hdr.Operation == wire.OperationRegister {
		g.sessions[p.hdr.Client] = g.nextSession
		putUint64(&commit, g.nextSession)
		g.nextSession++
	} else {
		putUint64(&commit, g.sessions[p.hdr.Client])
	}

	reply := wire.Header{
		Command:   wire.CommandReply,
		Cluster:   g.clusterID,
		Client:    p.hdr.Client,
		Request:   p.hdr.Request,
		View:      g.view,
		Operation: p.hdr.Operation,
		Context:   commit,
		Parent:    p.hdr.Checksum,
		Size:      wire.HeaderSize,
	}
	if g.fault == FaultWrongParent {
		g.fault = FaultNone
		reply.Parent[0] ^= 0xFF
	}
	reply.ChecksumBody = wire.Checksum(nil)
	reply.Sign()
	g.deliver(reply)
}

// Evict injects an eviction message for client at the simulated view,
// independent of any in-flight request.
func (g *Group) Evict(client wire.Digest) {
	g.deliverEviction(wire.Header{Client: client})
}

func (g *Group) deliverEviction(hdr wire.Header) {
	reply := wire.Header{
		Command: wire.CommandEviction,
		Cluster: g.clusterID,
		Client:  hdr.Client,
		View:    g.view,
		Size:    wire.HeaderSize,
	}
	reply.ChecksumBody = wire.Checksum(nil)
	reply.Sign()
	g.deliver(reply)
}

func (g *Group) deliver(hdr wire.Header) {
	if g.received == nil {
		return
	}
	m, err := g.pool.Acquire()
	if err != nil {
		return
	}
	enc := hdr.Encode()
	copy(m.Buffer(), enc[:])
	m.Header = hdr
	g.received(m)
}

func (g *Group) GetMessage() (*msgpool.Message, error) { return g.pool.Acquire() }

func (g *Group) Unref(m *msgpool.Message) { g.pool.Unref(m) }

func (g *Group) SendMessageToReplica(_ uint8, m *msgpool.Message) error {
	bodyLen := int(m.Header.Size) - wire.HeaderSize
	if bodyLen < 0 {
		bodyLen = 0
	}
	body := make([]byte, bodyLen)
	copy(body, m.Body())
	if m.Header.Command == wire.CommandRequest {
		g.queue = append(g.queue, pendingSend{hdr: m.Header, body: body})
	}
	return nil
}

func (g *Group) SetOnMessageReceived(f func(*msgpool.Message)) { g.received = f }

func (g *Group) SetOnMessageFreed(f func(*msgpool.Message)) { g.freed = f }

func (g *Group) Close() error { return nil }

func putUint64(d *wire.Digest, v uint64) {
	for i := 0; i < 8; i++ {
		d[i] = byte(v >> (8 * i))
	}
}
