package wire

import "golang.org/x/crypto/blake2b"

// Checksum computes the 128-bit cryptographic digest used throughout the
// wire format. BLAKE2b supports a native 16-byte output size, so no
// truncation of a wider digest is needed.
func Checksum(data []byte) Digest {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// blake2b.New only errors on an invalid key or out-of-range size;
		// size=16, key=nil are always valid.
		panic(err)
	}
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
