// Package main documents vsrkv, a client-side session protocol and hybrid
// cache for a replicated financial-ledger storage engine.
//
// vsrkv is the client half of a Viewstamped-Replication-style storage
// system: a single-connection, single-inflight-request protocol machine
// (SessionClient) that provides linearizable operation semantics per
// session against a replica group, and a two-tier object cache (CacheMap)
// that sits in front of the storage engine's write/prefetch pipeline.
//
// # Architecture Overview
//
// vsrkv consists of several layered components:
//
//   - SessionClient: the protocol FSM driving register/request/reply over
//     a replica group, with tick-driven pings and exponential backoff retry
//   - CacheMap: a set-associative cache backed by two generational stash
//     maps, supporting transactional open/close scopes
//   - TableMemory: an append-only in-memory table that tracks a sorted key
//     range once frozen, feeding an external LSM tree
//   - MessageBus: the collaborator contract SessionClient drives, with a
//     TCP implementation
//   - RingQueue / MessagePool / Timeout: the bounded, allocation-free
//     primitives the above are built from
//
// # Quick Start
//
//	import "github.com/vsrkv/vsrkv/internal/bus"
//	import "github.com/vsrkv/vsrkv/pkg/session"
//
//	b, _ := bus.DialTCPBus([]string{"127.0.0.1:3001"}, wire.HeaderSize+4096, 64, nil)
//	sc, _ := session.New(session.Config{
//		ClientID:        clientID,
//		ClusterID:       7,
//		ReplicaCount:    3,
//		RequestQueueMax: 32,
//		PingTicks:       3000,
//		RTTTicks:        20,
//		RTTMultiple:     2,
//	}, b)
//
//	msg, _ := sc.AcquireMessage()
//	sc.Submit(userData, onReply, opPut, msg, bodyLen)
//
//	for range time.Tick(10 * time.Millisecond) {
//		if err := sc.Tick(); err != nil {
//			break
//		}
//	}
//
// # Linearizability Model
//
// Every request/reply pair is hash-chained: a request's parent field must
// equal the checksum of the most recently accepted reply, and a reply is
// only accepted if its parent field matches the checksum of the request it
// answers. This single-inflight chain is what lets a session survive
// replica failover and retransmission without ever double-applying a
// request or losing ordering within the session.
//
// # Package Structure
//
//   - pkg/session: the SessionClient protocol FSM
//   - pkg/cachemap: the scoped two-tier object cache
//   - pkg/setassoc: the N-way set-associative cache CacheMap is built on
//   - pkg/tablememory: the append-only sorted in-memory table
//   - pkg/wire: the 128-byte message header and checksum
//   - pkg/ringqueue, pkg/msgpool, pkg/backoff: bounded, allocation-free
//     primitives
//   - pkg/metrics: Prometheus instrumentation
//   - pkg/config: configuration loading and validation
//   - internal/bus: the MessageBus contract and its TCP implementation
//   - cmd/sessionclient-example: a runnable client demonstrating the FSM
//
// For detailed documentation of individual packages, see their respective
// godoc pages.
package main
