// Package vsrkv documents the core components of the vsrkv client-side
// session protocol and hybrid cache.
//
// This file serves only as a documentation anchor; the actual types live
// in the subpackages listed below. vsrkv brings together a protocol state
// machine and a memory layer that together implement the client-visible
// half of a replicated financial-ledger storage engine.
//
// # Overview
//
// vsrkv provides linearizable session semantics against a Viewstamped
// Replication-style replica group, and a scoped, set-associative object
// cache for the storage engine's write and prefetch pipeline. Both are
// driven by an external Tick loop rather than goroutines or timers,
// matching a single-threaded, cooperative scheduling model: SessionClient
// and CacheMap never block or spawn. The TCP transport (internal/bus) is
// the exception: dialing blocks, and it runs one read goroutine per
// connection that only buffers inbound frames until the next Tick.
//
// # Key Features
//
//   - Single-inflight-request protocol FSM with hash-chained
//     request/reply checksums
//   - Implicit registration on first submit (or on a pong while still
//     unregistered), terminal eviction, and round-robin retransmission
//     with exponential backoff plus jitter
//   - A two-generation stash cache with transactional scopes: mutations
//     made inside an open scope can be atomically persisted or reverted
//   - Fixed-capacity, allocation-free message pooling and ring-buffered
//     request queuing, with deterministic free-callback accounting
//   - Prometheus instrumentation and structured logging throughout
//
// # Architecture Components
//
// Session Client (pkg/session):
//   - Unregistered -> Registering -> Active -> Evicted(terminal) FSM
//   - Per-session request_number and hash-chained parent/context fields
//   - Tick-driven ping and request_timeout with exponential backoff
//
// Cache Map (pkg/cachemap):
//   - Set-associative cache (pkg/setassoc) backed by two generational
//     stash maps
//   - First-write-wins scope undo log with ordered discard replay
//   - Tombstone entries in the scope log mark keys that did not exist
//     before the scope; Remove deletes a key outright and stores no
//     tombstone
//
// Table Memory (pkg/tablememory):
//   - Append-only Mutable state, frozen into a sorted Immutable snapshot
//   - Flushed-before-reuse invariant feeding an external LSM tree
//
// Message Bus (internal/bus):
//   - MessageBus is the collaborator contract SessionClient drives
//   - TCPBus frames messages with a 4-byte length prefix per connection
//
// Bounded Primitives (pkg/ringqueue, pkg/msgpool, pkg/backoff):
//   - Fixed-capacity queue and pool with synchronous free callbacks
//   - No dynamic growth, no GC-driven reclamation timing
//
// Configuration (pkg/config):
//   - Session and cache configuration via flags and VSRKV_-prefixed
//     environment variables
//   - Validation with clear, actionable errors
//
// # Usage Example
//
//	import "github.com/vsrkv/vsrkv/pkg/session"
//	import "github.com/vsrkv/vsrkv/internal/bus"
//
//	b, err := bus.DialTCPBus(replicas, messageSize, poolCapacity, logger)
//	sc, err := session.New(session.Config{
//		ClientID:        clientID,
//		ClusterID:       clusterID,
//		ReplicaCount:    uint8(len(replicas)),
//		RequestQueueMax: 32,
//		PingTicks:       3000,
//		RTTTicks:        20,
//		RTTMultiple:     2,
//	}, b)
//
//	msg, err := sc.AcquireMessage()
//	err = sc.Submit(userData, onReply, opPut, msg, bodyLen)
//
// # Linearizability Model
//
// A session has at most one request in flight at a time. The client only
// advances past a request once it has verified the reply's parent field
// matches the checksum of the request just sent; it then uses the reply's
// own checksum as the parent for the next request. This chain is what
// makes retransmission and replica failover safe: a stale or misdirected
// reply simply fails the parent check and is dropped.
//
// # Thread Safety
//
// SessionClient and CacheMap are not safe for concurrent use from multiple
// goroutines; each instance is owned by a single caller that drives Tick
// and Submit/Upsert serially, matching the single-threaded model described
// above. Callers needing concurrent access must serialize their own calls.
//
// For detailed documentation of specific components, refer to their
// individual package documentation.
package vsrkv
