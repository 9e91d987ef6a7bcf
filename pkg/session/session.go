// Package session implements SessionClient, a single-connection,
// single-inflight-request client that talks to a Viewstamped-Replication-
// style replica group and provides linearizable operation semantics per
// session.
//
// A SessionClient is driven entirely by its owner: Tick advances timers at
// a fixed rate, and the bound MessageBus delivers inbound messages via a
// callback invoked synchronously from within Tick or another SessionClient
// method. Nothing inside the client blocks or spawns goroutines, matching
// a single-threaded cooperative scheduling model.
package session

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vsrkv/vsrkv/internal/bus"
	"github.com/vsrkv/vsrkv/pkg/backoff"
	"github.com/vsrkv/vsrkv/pkg/metrics"
	"github.com/vsrkv/vsrkv/pkg/msgpool"
	"github.com/vsrkv/vsrkv/pkg/ringqueue"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

// Errors surfaced to the caller. Protocol violations (bad checksums, stale
// or misdirected replies) are silently dropped and never surfaced; only
// resource exhaustion, programming errors and session eviction reach the
// application.
var (
	ErrBudgetExceeded      = errors.New("session: message budget exceeded")
	ErrQueueFull           = errors.New("session: request queue full")
	ErrReservedOperation   = errors.New("session: operation is in the reserved range")
	ErrSessionEvicted      = errors.New("session: client session evicted by cluster")
	ErrInvalidReplicaCount = errors.New("session: replica_count must be positive")
)

// State is one of the four states a SessionClient moves through:
// Unregistered -> Registering -> Active -> Evicted(terminal).
type State int

const (
	StateUnregistered State = iota
	StateRegistering
	StateActive
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Callback receives the reply to a submitted request, whether it was
// submitted via Submit or SubmitRaw. reply is the message delivered from
// the bus, owned by the client for the duration of the callback only.
type Callback func(userData [16]byte, reply *msgpool.Message)

type request struct {
	userData      [16]byte
	callback      Callback
	message       *msgpool.Message
	operation     wire.Operation
	requestNumber uint32
	bodySize      int
	sent          bool
	sentAt        time.Time
}

// Config holds the static parameters of a SessionClient, fixed for its
// lifetime.
type Config struct {
	ClientID        wire.Digest
	ClusterID       uint32
	ReplicaCount    uint8
	RequestQueueMax int

	// PingTicks is ping_timeout expressed in ticks, e.g. a 30s period
	// expressed as 30s/tick_ms.
	PingTicks uint64
	// RTTTicks and RTTMultiple seed the dynamic request_timeout
	// (rtt_ticks * rtt_multiple).
	RTTTicks      uint64
	RTTMultiple   uint64
	MaxBackoffLog uint32

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// SessionClient is the client-side protocol FSM.
type SessionClient struct {
	cfg Config
	bus bus.MessageBus

	state         State
	sessionNumber uint64
	requestNumber uint32
	viewNumber    uint32
	parentAnchor  wire.Digest

	queue         *ringqueue.RingQueue[*request]
	messageBudget int
	budgeted      map[*msgpool.Message]struct{}
	awaitingReply bool

	pingTimeout    *backoff.Timeout
	requestTimeout *backoff.Timeout
	rng            *rand.Rand

	fatal error

	logger  *slog.Logger
	metrics *metrics.Collector
}

// New constructs a SessionClient bound to the given bus. The bus's
// message-received and message-freed callbacks are claimed by the client;
// callers must not register their own.
func New(cfg Config, b bus.MessageBus) (*SessionClient, error) {
	if cfg.ReplicaCount == 0 {
		return nil, ErrInvalidReplicaCount
	}
	if cfg.RequestQueueMax <= 0 {
		return nil, errors.New("session: request_queue_max must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := int64(binary.LittleEndian.Uint64(cfg.ClientID[:8]))

	c := &SessionClient{
		cfg:            cfg,
		bus:            b,
		queue:          ringqueue.New[*request](cfg.RequestQueueMax),
		messageBudget:  cfg.RequestQueueMax,
		budgeted:       make(map[*msgpool.Message]struct{}, cfg.RequestQueueMax),
		pingTimeout:    backoff.New(maxUint64(cfg.PingTicks, 1), 1, 0),
		requestTimeout: backoff.New(maxUint64(cfg.RTTTicks, 1), maxUint64(cfg.RTTMultiple, 1), cfg.MaxBackoffLog),
		rng:            rand.New(rand.NewSource(seed)),
		logger:         logger,
		metrics:        cfg.Metrics,
	}
	b.SetOnMessageReceived(c.onMessageReceived)
	b.SetOnMessageFreed(c.onMessageFreed)
	c.pingTimeout.Start()
	return c, nil
}

func maxUint64(v, floor uint64) uint64 {
	if v < floor {
		return floor
	}
	return v
}

// State reports the client's current wire state.
func (c *SessionClient) State() State { return c.state }

// FatalError returns the error that made this session unusable, if any.
// Once non-nil, the host is expected to terminate the process — the
// linearizability guarantee has been voided by the cluster's eviction.
func (c *SessionClient) FatalError() error { return c.fatal }

// AcquireMessage obtains a send buffer under the client's message budget.
// The budget is charged here and only here; onMessageFreed credits it back
// solely for messages that passed through AcquireMessage, so buffers the
// bus hands the client directly (inbound replies, ping probes) never touch
// the budget.
func (c *SessionClient) AcquireMessage() (*msgpool.Message, error) {
	if c.messageBudget <= 0 {
		return nil, ErrBudgetExceeded
	}
	m, err := c.bus.GetMessage()
	if err != nil {
		return nil, err
	}
	c.messageBudget--
	c.budgeted[m] = struct{}{}
	return m, nil
}

// ReleaseMessage drops the caller's reference to m without submitting it.
func (c *SessionClient) ReleaseMessage(m *msgpool.Message) {
	c.bus.Unref(m)
}

// Submit enqueues a typed application request. operation must be at or
// above wire.OperationsReservedThreshold.
func (c *SessionClient) Submit(userData [16]byte, cb Callback, operation wire.Operation, msg *msgpool.Message, bodySize int) error {
	if operation < wire.OperationsReservedThreshold {
		return ErrReservedOperation
	}
	return c.submit(userData, cb, operation, msg, bodySize)
}

// SubmitRaw enqueues a pre-formatted request, used for replay. operation
// must not be in the reserved range.
func (c *SessionClient) SubmitRaw(userData [16]byte, cb Callback, operation wire.Operation, msg *msgpool.Message, bodySize int) error {
	if operation < wire.OperationsReservedThreshold {
		return ErrReservedOperation
	}
	return c.submit(userData, cb, operation, msg, bodySize)
}

func (c *SessionClient) submit(userData [16]byte, cb Callback, operation wire.Operation, msg *msgpool.Message, bodySize int) error {
	if c.fatal != nil {
		return c.fatal
	}
	if c.queue.Full() {
		return ErrQueueFull
	}
	if c.state == StateUnregistered {
		if err := c.enqueueRegister(); err != nil {
			return err
		}
	}
	if c.queue.Full() {
		return ErrQueueFull
	}

	req := &request{
		userData:      userData,
		callback:      cb,
		message:       msg,
		operation:     operation,
		requestNumber: c.nextRequestNumber(),
		bodySize:      bodySize,
	}
	c.queue.Push(req)
	c.dispatchHead()
	return nil
}

// enqueueRegister prepends the internal register request that opens a
// session (Unregistered -> Registering).
func (c *SessionClient) enqueueRegister() error {
	msg, err := c.AcquireMessage()
	if err != nil {
		return err
	}
	req := &request{
		operation:     wire.OperationRegister,
		message:       msg,
		requestNumber: c.nextRequestNumber(),
		bodySize:      0,
	}
	if !c.queue.Push(req) {
		c.ReleaseMessage(msg)
		return ErrQueueFull
	}
	c.state = StateRegistering
	c.dispatchHead()
	return nil
}

func (c *SessionClient) nextRequestNumber() uint32 {
	c.requestNumber++
	return c.requestNumber
}

// dispatchHead sends the queue head for the first time if nothing is
// currently awaiting a reply.
func (c *SessionClient) dispatchHead() {
	if c.awaitingReply {
		return
	}
	head, ok := c.queue.Head()
	if !ok {
		return
	}
	if head.sent {
		return
	}
	c.firstSend(head)
}

func (c *SessionClient) firstSend(req *request) {
	hdr := wire.Header{
		Command:   wire.CommandRequest,
		Cluster:   c.cfg.ClusterID,
		Client:    c.cfg.ClientID,
		Request:   req.requestNumber,
		View:      c.viewNumber,
		Operation: req.operation,
		Context:   contextFromSessionNumber(c.sessionNumber),
		Parent:    c.parentAnchor,
		Size:      uint32(wire.HeaderSize + req.bodySize),
	}
	body := req.message.Buffer()[wire.HeaderSize : wire.HeaderSize+req.bodySize]
	hdr.ChecksumBody = wire.Checksum(body)
	hdr.Sign()
	req.message.Header = hdr
	encoded := hdr.Encode()
	copy(req.message.Buffer(), encoded[:])

	c.parentAnchor = hdr.Checksum
	req.sent = true
	req.sentAt = time.Now()
	c.awaitingReply = true
	c.requestTimeout.Start()

	replica := c.viewNumber % uint32(c.cfg.ReplicaCount)
	if err := c.bus.SendMessageToReplica(uint8(replica), req.message); err != nil {
		c.logger.Warn("session: send failed", "error", err, "replica", replica)
	}
}

// Tick advances internal timers by one tick.
func (c *SessionClient) Tick() error {
	if c.fatal != nil {
		return c.fatal
	}
	c.bus.Tick()

	if c.pingTimeout.Tick() {
		c.broadcastPing()
		c.pingTimeout.Start()
	}

	if c.awaitingReply && c.requestTimeout.Tick() {
		c.retransmit()
	}
	return c.fatal
}

func (c *SessionClient) broadcastPing() {
	for i := uint8(0); i < c.cfg.ReplicaCount; i++ {
		m, err := c.bus.GetMessage()
		if err != nil {
			continue
		}
		hdr := wire.Header{
			Command: wire.CommandPingClient,
			Cluster: c.cfg.ClusterID,
			Client:  c.cfg.ClientID,
			View:    c.viewNumber,
			Size:    wire.HeaderSize,
		}
		hdr.ChecksumBody = wire.Checksum(nil)
		hdr.Sign()
		enc := hdr.Encode()
		copy(m.Buffer(), enc[:])
		m.Header = hdr
		if err := c.bus.SendMessageToReplica(i, m); err != nil {
			c.logger.Warn("session: ping send failed", "replica", i, "error", err)
		}
		c.bus.Unref(m)
	}
}

// retransmit resends the inflight request after an exponential backoff with
// jitter, round-robining to replica (view + attempts) mod replica_count.
func (c *SessionClient) retransmit() {
	head, ok := c.queue.Head()
	if !ok {
		c.awaitingReply = false
		return
	}
	c.requestTimeout.Backoff(c.rng)
	replica := (c.viewNumber + c.requestTimeout.Attempts()) % uint32(c.cfg.ReplicaCount)
	if err := c.bus.SendMessageToReplica(uint8(replica), head.message); err != nil {
		c.logger.Warn("session: retransmit failed", "replica", replica, "error", err)
	}
	if c.metrics != nil {
		c.metrics.SessionRetries.Inc()
	}
}

// onMessageFreed credits the message budget back only for messages that
// were charged against it in AcquireMessage. Inbound replies and ping
// buffers, acquired directly from the bus, are never in c.budgeted and so
// free without touching the budget.
func (c *SessionClient) onMessageFreed(m *msgpool.Message) {
	if _, ok := c.budgeted[m]; !ok {
		return
	}
	delete(c.budgeted, m)
	c.messageBudget++
}

func (c *SessionClient) onMessageReceived(m *msgpool.Message) {
	switch m.Header.Command {
	case wire.CommandPongClient:
		c.handlePong(m)
	case wire.CommandReply:
		c.handleReply(m)
	case wire.CommandEviction:
		c.handleEviction(m)
	default:
		c.logger.Info("session: misdirected message dropped", "command", m.Header.Command)
	}
	c.bus.Unref(m)
}

func (c *SessionClient) handlePong(m *msgpool.Message) {
	if !m.Header.VerifyChecksum() {
		c.logger.Info("session: dropping pong with bad checksum")
		return
	}
	if m.Header.View > c.viewNumber {
		c.viewNumber = m.Header.View
	}
	if c.state == StateUnregistered {
		if err := c.enqueueRegister(); err != nil {
			c.logger.Warn("session: registration retrigger failed", "error", err)
		}
	}
}

func (c *SessionClient) handleEviction(m *msgpool.Message) {
	if !m.Header.VerifyChecksum() {
		return
	}
	if m.Header.Client != c.cfg.ClientID {
		return
	}
	if m.Header.View < c.viewNumber {
		return // stale eviction
	}
	c.state = StateEvicted
	c.fatal = ErrSessionEvicted
	c.logger.Error("session: evicted by cluster", "view", m.Header.View)
	if c.metrics != nil {
		c.metrics.SessionEvictions.Inc()
	}
}

// handleReply validates and applies an inbound reply. Any failed check
// drops the reply silently; the client simply waits for the next
// retransmission or timeout instead of surfacing a transport-level error.
func (c *SessionClient) handleReply(m *msgpool.Message) {
	hdr := m.Header
	if !hdr.VerifyChecksum() || !hdr.VerifyBody(m.Body()) {
		c.logger.Info("session: dropping reply with bad checksum")
		return
	}
	if hdr.Cluster != c.cfg.ClusterID || hdr.Client != c.cfg.ClientID {
		return
	}
	head, ok := c.queue.Head()
	if !ok {
		return
	}
	if hdr.Request < head.requestNumber {
		return // stale reply, no-op
	}
	if hdr.Request != head.requestNumber {
		return
	}
	if hdr.Parent != c.parentAnchor {
		return
	}
	if hdr.Operation != head.operation {
		return
	}

	commit := hdr.Context
	if head.operation == wire.OperationRegister {
		if commit.IsZero() {
			c.logger.Warn("session: register reply carried zero commit, protocol violation")
			return
		}
		c.sessionNumber = sessionNumberFromContext(commit)
		c.state = StateActive
		if c.metrics != nil {
			c.metrics.SessionRegisters.Inc()
		}
	} else if commit != contextFromSessionNumber(c.sessionNumber) {
		return
	}

	c.requestTimeout.Stop()
	c.awaitingReply = false
	c.parentAnchor = hdr.Checksum
	if hdr.View > c.viewNumber {
		c.viewNumber = hdr.View
	}

	if c.metrics != nil && !head.sentAt.IsZero() {
		c.metrics.SessionRequestLatency.Observe(time.Since(head.sentAt).Seconds())
	}

	c.queue.Pop()
	c.bus.Unref(head.message)

	if c.queue.Len() > 0 {
		// Dispatch the next request before the user callback fires, so
		// re-entrant submission from inside the callback can never cause
		// a double first-send.
		c.dispatchHead()
	}

	if head.callback != nil {
		head.callback(head.userData, m)
	}
}

// Stats holds the fields reported by the Stats method.
type Stats struct {
	State           State
	SessionNumber   uint64
	ViewNumber      uint32
	MessageBudget   int
	QueueLen        int
	RequestAttempts uint32
	AwaitingReply   bool
}

// Stats returns a point-in-time snapshot of the client's internal state.
func (c *SessionClient) Stats() Stats {
	return Stats{
		State:           c.state,
		SessionNumber:   c.sessionNumber,
		ViewNumber:      c.viewNumber,
		MessageBudget:   c.messageBudget,
		QueueLen:        c.queue.Len(),
		RequestAttempts: c.requestTimeout.Attempts(),
		AwaitingReply:   c.awaitingReply,
	}
}

func contextFromSessionNumber(n uint64) wire.Digest {
	var d wire.Digest
	binary.LittleEndian.PutUint64(d[:8], n)
	return d
}

func sessionNumberFromContext(d wire.Digest) uint64 {
	return binary.LittleEndian.Uint64(d[:8])
}
