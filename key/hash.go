// Package key implements the execution core's shared data model: the
// 32-byte Hash type, the tagged-sum Key and StoredValue types, the
// commutative Transform monoid, Account, and ProtocolData/ProtocolVersion.
// None of the types here perform I/O; they only know how to canonically
// encode themselves via bytesrepr and how to combine with each other.
package key

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash is a Blake2b-256 digest. Equality is byte equality.
type Hash [32]byte

// Blake2b256 hashes data with Blake2b configured for a 32-byte digest.
func Blake2b256(data []byte) Hash {
	return blake2b.Sum256(data)
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns the hash as a freshly-allocated slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

// IsZero reports whether every byte of h is zero.
func (h Hash) IsZero() bool { return h == Hash{} }
