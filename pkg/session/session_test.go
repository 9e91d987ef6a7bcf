package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsrkv/vsrkv/internal/replicasim"
	"github.com/vsrkv/vsrkv/pkg/msgpool"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

const messageSize = wire.HeaderSize + 256

func clientID(n byte) wire.Digest {
	var d wire.Digest
	d[0] = n
	return d
}

func newTestClient(t *testing.T, clusterID uint32, replicaCount uint8, queueMax int) (*SessionClient, *replicasim.Group) {
	t.Helper()
	group := replicasim.New(clusterID, replicaCount, 64, messageSize)
	cfg := Config{
		ClientID:        clientID(42),
		ClusterID:       clusterID,
		ReplicaCount:    replicaCount,
		RequestQueueMax: queueMax,
		PingTicks:       1000,
		RTTTicks:        5,
		RTTMultiple:     2,
		MaxBackoffLog:   8,
	}
	c, err := New(cfg, group)
	require.NoError(t, err)
	return c, group
}

// A fresh client registers before its first application request, and the
// application request is then sent and answered, draining the queue.
func TestFreshClientRegistersThenSendsFirstRequest(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 8)

	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg, 0))

	require.Equal(t, StateRegistering, c.State())
	group.Tick()
	require.NoError(t, c.Tick())

	require.Equal(t, StateActive, c.State())
	require.Equal(t, uint32(2), c.requestNumber)

	group.Tick()
	require.NoError(t, c.Tick())
	require.Equal(t, 0, c.queue.Len())
}

func TestSubmitFiresCallbackWithUserData(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 8)

	var fired bool
	var seen [16]byte
	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	var ud [16]byte
	ud[0] = 9
	require.NoError(t, c.Submit(ud, func(u [16]byte, reply *msgpool.Message) {
		fired = true
		seen = u
	}, wire.Operation(20), msg, 0))

	group.Tick()
	require.NoError(t, c.Tick()) // register completes
	group.Tick()
	require.NoError(t, c.Tick()) // application request completes

	require.True(t, fired)
	require.Equal(t, byte(9), seen[0])
	require.Equal(t, StateActive, c.State())
}

// Registration consumes a queue slot (and a message budget unit) the same
// as any application request, so a queue_max of 2 is exhausted by the
// register plus a single Submit. The message budget reaches zero in
// lockstep with the queue filling, so the very next AcquireMessage fails
// before Submit's own queue-full check would ever run.
func TestQueueFullExhaustsMessageBudgetInLockstep(t *testing.T) {
	c, _ := newTestClient(t, 7, 3, 2)

	msg1, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg1, 0))
	require.True(t, c.queue.Full())
	require.Equal(t, 0, c.Stats().MessageBudget)

	_, err = c.AcquireMessage()
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestReservedOperationRejected(t *testing.T) {
	c, _ := newTestClient(t, 7, 3, 4)
	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	err = c.Submit([16]byte{}, nil, wire.Operation(1), msg, 0)
	require.ErrorIs(t, err, ErrReservedOperation)
}

func TestDroppedReplyTriggersRetransmission(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 4)

	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg, 0))

	group.InjectFault(replicasim.FaultDrop)
	group.Tick() // register reply dropped
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Tick())
	}
	require.True(t, c.Stats().RequestAttempts > 0)
	require.Equal(t, StateRegistering, c.State())

	group.Tick() // retransmitted register now succeeds
	require.NoError(t, c.Tick())
	require.Equal(t, StateActive, c.State())
}

func TestWrongParentReplyIsDropped(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 4)
	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg, 0))

	group.InjectFault(replicasim.FaultWrongParent)
	group.Tick()
	require.NoError(t, c.Tick())
	require.Equal(t, StateRegistering, c.State())
}

func TestEvictionIsTerminal(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 4)
	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg, 0))
	group.Tick()
	require.NoError(t, c.Tick())
	require.Equal(t, StateActive, c.State())

	group.Evict(c.cfg.ClientID)
	require.ErrorIs(t, c.Tick(), ErrSessionEvicted)
	require.Equal(t, StateEvicted, c.State())

	msg2, err := c.AcquireMessage()
	require.NoError(t, err)
	err = c.Submit([16]byte{}, nil, wire.Operation(20), msg2, 0)
	require.ErrorIs(t, err, ErrSessionEvicted)
}

func TestStaleEvictionIsIgnored(t *testing.T) {
	c, group := newTestClient(t, 7, 3, 4)
	msg, err := c.AcquireMessage()
	require.NoError(t, err)
	require.NoError(t, c.Submit([16]byte{}, nil, wire.Operation(20), msg, 0))
	group.Tick()
	require.NoError(t, c.Tick())
	c.viewNumber = 5

	group.SetView(1) // older than c.viewNumber
	group.Evict(c.cfg.ClientID)
	require.NoError(t, c.Tick())
	require.Equal(t, StateActive, c.State())
}

func TestInvalidReplicaCountRejected(t *testing.T) {
	group := replicasim.New(1, 0, 4, messageSize)
	_, err := New(Config{ClientID: clientID(1), ClusterID: 1, ReplicaCount: 0, RequestQueueMax: 4}, group)
	require.ErrorIs(t, err, ErrInvalidReplicaCount)
}
