// Package bus defines the collaborator contract the SessionClient uses to
// talk to the replica group, and a TCP implementation of it.
//
// MessageBus owns the message pool; SessionClient never allocates buffers
// directly. Both callbacks run synchronously on the caller's goroutine, in
// keeping with a single-threaded cooperative scheduling model — a
// MessageBus instance, like the SessionClient it serves, is pinned to one
// executor.
package bus

import "github.com/vsrkv/vsrkv/pkg/msgpool"

// MessageBus is the transport the SessionClient drives. Implementations
// must invoke the callbacks registered via SetOnMessageReceived and
// SetOnMessageFreed synchronously from within Tick or another bus method —
// never from a separate goroutine, since the client's state is
// non-reentrant.
type MessageBus interface {
	// Tick advances the bus's internal I/O polling by one step, in lockstep
	// with the client's own Tick.
	Tick()

	// GetMessage acquires a send buffer from the bus's pool, or an error if
	// the pool is exhausted.
	GetMessage() (*msgpool.Message, error)

	// Unref releases the caller's reference to m.
	Unref(m *msgpool.Message)

	// SendMessageToReplica transmits m to the replica at replicaIdx. The
	// bus does not take ownership of the caller's reference.
	SendMessageToReplica(replicaIdx uint8, m *msgpool.Message) error

	// SetOnMessageReceived registers the handler invoked for every inbound
	// message addressed to this client.
	SetOnMessageReceived(func(*msgpool.Message))

	// SetOnMessageFreed registers the handler invoked when the pool's last
	// reference to a message is released.
	SetOnMessageFreed(func(*msgpool.Message))

	// Close releases the bus's resources (connections, pool).
	Close() error
}
