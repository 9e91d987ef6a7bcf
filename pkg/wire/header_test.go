package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0xCC}

	h := Header{
		Client:    Digest{42},
		Cluster:   7,
		View:      3,
		Request:   2,
		Command:   CommandRequest,
		Operation: 10,
		Replica:   1,
		Size:      HeaderSize + uint32(len(body)),
	}
	h.ChecksumBody = Checksum(body)
	h.Sign()

	encoded := h.Encode()
	decoded, err := DecodeHeader(encoded[:])
	require.NoError(t, err)

	require.Equal(t, h.Client, decoded.Client)
	require.Equal(t, h.Cluster, decoded.Cluster)
	require.Equal(t, h.View, decoded.View)
	require.Equal(t, h.Request, decoded.Request)
	require.Equal(t, h.Command, decoded.Command)
	require.Equal(t, h.Operation, decoded.Operation)
	require.Equal(t, h.Replica, decoded.Replica)
	require.Equal(t, h.Size, decoded.Size)
	require.True(t, decoded.VerifyChecksum())
	require.True(t, decoded.VerifyBody(body))
}

func TestHeaderVerifyChecksumDetectsCorruption(t *testing.T) {
	h := Header{Cluster: 1}
	h.ChecksumBody = Checksum(nil)
	h.Sign()

	encoded := h.Encode()
	encoded[offCluster] ^= 0xFF // corrupt a signed field after signing

	decoded, err := DecodeHeader(encoded[:])
	require.NoError(t, err)
	require.False(t, decoded.VerifyChecksum())
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
}

func TestDigestIsZero(t *testing.T) {
	var d Digest
	require.True(t, d.IsZero())
	d[0] = 1
	require.False(t, d.IsZero())
}
