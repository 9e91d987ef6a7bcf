// Package wire implements the fixed-size binary message header shared by the
// session client and the replica group it talks to.
//
// Wire Format:
//   - Every message on the wire begins with a 128-byte header, little-endian,
//     bit-exact across platforms.
//   - The header is followed immediately by a variable-length body whose size
//     is carried in the header's Size field.
//   - checksum covers the remaining 112 bytes of the header; checksum_body
//     covers the body. Both are 128-bit BLAKE2b digests.
//
// Example usage:
//
//	h := wire.Header{Command: wire.CommandRequest, Client: clientID, Cluster: 7}
//	h.Size = wire.HeaderSize + uint32(len(body))
//	h.ChecksumBody = wire.Checksum(body)
//	h.Sign() // checksum over the encoded header after the checksum field
//	buf := h.Encode()
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed byte length of every message header.
const HeaderSize = 128

// Command identifies the purpose of a message on the wire.
type Command uint16

// Command constants understood by the session client. Values directed at
// the client that are not in this set are logged and dropped.
const (
	CommandReserved   Command = iota // unused; zero value never appears on the wire
	CommandPingClient                // client -> replica: liveness probe
	CommandPongClient                // replica -> client: liveness reply
	CommandRequest                   // client -> replica: a queued operation
	CommandReply                     // replica -> client: single-commit reply to a request
	CommandEviction                  // replica -> client: this session has been dropped
)

func (c Command) String() string {
	switch c {
	case CommandReserved:
		return "reserved"
	case CommandPingClient:
		return "ping_client"
	case CommandPongClient:
		return "pong_client"
	case CommandRequest:
		return "request"
	case CommandReply:
		return "reply"
	case CommandEviction:
		return "eviction"
	default:
		return fmt.Sprintf("command(%d)", uint16(c))
	}
}

// Operation identifies the application-level (or protocol-level) operation a
// request/reply carries. Values below OperationsReservedThreshold are
// reserved for the protocol itself; OperationRegister is the only one
// currently defined.
type Operation uint8

// OperationRegister is the internal operation the client prepends to open a
// session. It is never issued by application code.
const OperationRegister Operation = 0

// OperationsReservedThreshold is the first operation value available to
// application code.
const OperationsReservedThreshold Operation = 16

// Digest is a 128-bit cryptographic hash, used both as a checksum and as the
// hash-chain anchor (parent/context) linking requests to replies.
type Digest [16]byte

// IsZero reports whether d is the all-zero digest, the designated value for
// "no parent yet" (before any reply has been received).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Header is the 128-byte message header. Field offsets below are
// load-bearing: Encode/DecodeHeader must match the exact byte layout
// regardless of struct field order.
type Header struct {
	Checksum     Digest
	ChecksumBody Digest
	Parent       Digest
	Client       Digest
	Context      Digest
	Request      uint32
	Cluster      uint32
	View         uint32
	Size         uint32
	Reserved     uint16
	Command      Command
	Replica      uint8
	Operation    Operation
}

const (
	offChecksum     = 0
	offChecksumBody = 16
	offParent       = 32
	offClient       = 48
	offContext      = 64
	offRequest      = 80
	offCluster      = 84
	offView         = 88
	offSize         = 92
	offReserved     = 96
	offCommand      = 98
	offReplica      = 100
	offOperation    = 101
	// offPadding = 102, 26 bytes, always zero.
)

// Encode serializes h into its bit-exact 128-byte wire representation.
func (h *Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[offChecksum:], h.Checksum[:])
	copy(buf[offChecksumBody:], h.ChecksumBody[:])
	copy(buf[offParent:], h.Parent[:])
	copy(buf[offClient:], h.Client[:])
	copy(buf[offContext:], h.Context[:])
	binary.LittleEndian.PutUint32(buf[offRequest:], h.Request)
	binary.LittleEndian.PutUint32(buf[offCluster:], h.Cluster)
	binary.LittleEndian.PutUint32(buf[offView:], h.View)
	binary.LittleEndian.PutUint32(buf[offSize:], h.Size)
	binary.LittleEndian.PutUint16(buf[offReserved:], h.Reserved)
	binary.LittleEndian.PutUint16(buf[offCommand:], uint16(h.Command))
	buf[offReplica] = h.Replica
	buf[offOperation] = uint8(h.Operation)
	return buf
}

// signedBytes returns the header bytes covered by Checksum: everything
// after the checksum field itself.
func (h *Header) signedBytes() []byte {
	enc := h.Encode()
	return enc[offChecksumBody:]
}

// SignedBytes returns the portion of the encoded header over which Checksum
// is computed.
func (h *Header) SignedBytes() []byte {
	b := h.signedBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// DecodeHeader parses a 128-byte buffer into a Header. It does not validate
// checksums; callers verify those separately against the body they receive.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: %d bytes", len(buf))
	}
	var h Header
	copy(h.Checksum[:], buf[offChecksum:offChecksum+16])
	copy(h.ChecksumBody[:], buf[offChecksumBody:offChecksumBody+16])
	copy(h.Parent[:], buf[offParent:offParent+16])
	copy(h.Client[:], buf[offClient:offClient+16])
	copy(h.Context[:], buf[offContext:offContext+16])
	h.Request = binary.LittleEndian.Uint32(buf[offRequest:])
	h.Cluster = binary.LittleEndian.Uint32(buf[offCluster:])
	h.View = binary.LittleEndian.Uint32(buf[offView:])
	h.Size = binary.LittleEndian.Uint32(buf[offSize:])
	h.Reserved = binary.LittleEndian.Uint16(buf[offReserved:])
	h.Command = Command(binary.LittleEndian.Uint16(buf[offCommand:]))
	h.Replica = buf[offReplica]
	h.Operation = Operation(buf[offOperation])
	return h, nil
}

// Sign recomputes Checksum over the header's signed bytes. Callers must set
// ChecksumBody first, since it is part of the signed region.
func (h *Header) Sign() {
	h.Checksum = Checksum(h.signedBytes())
}

// VerifyChecksum reports whether h.Checksum matches the header's own signed
// bytes.
func (h *Header) VerifyChecksum() bool {
	return h.Checksum == Checksum(h.signedBytes())
}

// VerifyBody reports whether h.ChecksumBody matches the given body bytes.
func (h *Header) VerifyBody(body []byte) bool {
	return h.ChecksumBody == Checksum(body)
}
