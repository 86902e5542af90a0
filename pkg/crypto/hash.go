// Package crypto provides the key derivation primitives used by service node
// registrations and reward outputs: BLAKE3 hashing plus secp256k1 scalar and
// point arithmetic.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-snode/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// HashToScalar hashes data and reduces the digest modulo the group order (Hs).
func HashToScalar(data []byte) types.SecretKey {
	s := hashToModN(data)
	return s.Bytes()
}

func hashToModN(data []byte) *secp256k1.ModNScalar {
	h := blake3.Sum256(data)
	var s secp256k1.ModNScalar
	s.SetByteSlice(h[:])
	return &s
}

// HashToPoint maps data to a curve point with no known discrete log relative
// to G, by try-and-increment on the x coordinate.
func HashToPoint(data []byte) types.PublicKey {
	buf := make([]byte, len(data)+4)
	copy(buf, data)
	var candidate [types.PublicKeySize]byte
	candidate[0] = 0x02
	for ctr := uint32(0); ; ctr++ {
		binary.LittleEndian.PutUint32(buf[len(data):], ctr)
		h := blake3.Sum256(buf)
		copy(candidate[1:], h[:])
		if _, err := secp256k1.ParsePubKey(candidate[:]); err == nil {
			return types.PublicKey(candidate)
		}
	}
}
