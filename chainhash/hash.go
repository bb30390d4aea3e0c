// Package chainhash defines the fixed-size hash type shared by every
// content-addressed structure in the chain engine: block headers, accounts
// trie nodes, Merkle roots, and the PoW digest.
package chainhash

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// Size is the number of bytes in a Blake2b-256 digest or a PoW digest.
const Size = 32

// Hash is a content digest. The zero Hash is not the digest of any content
// (the digest of empty input is Blake2b-256 of nil); it is used as a
// sentinel "unset" value by callers that need one (e.g. a genesis block's
// prev_hash).
type Hash [Size]byte

// String returns the hex encoding of the hash, most-significant byte first
// (i.e. the natural byte order, not reversed).
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// IsEqual reports whether h and other represent the same hash. A nil other
// is never equal to a non-nil receiver's contents.
func (h *Hash) IsEqual(other *Hash) bool {
	if h == nil || other == nil {
		return h == other
	}
	return bytes.Equal(h[:], other[:])
}

// SetBytes sets the hash to the contents of b, which must be exactly Size
// bytes long.
func (h *Hash) SetBytes(b []byte) error {
	if len(b) != Size {
		return errors.New("chainhash: invalid hash length")
	}
	copy(h[:], b)
	return nil
}

// NewFromString decodes a hex string into a Hash.
func NewFromString(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if err := h.SetBytes(b); err != nil {
		return h, err
	}
	return h, nil
}

// Less reports whether a sorts before b in byte order.
func Less(a, b Hash) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
