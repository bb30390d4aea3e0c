package accounts

import (
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chaincrypto"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/primitives"
)

// Node is the sum type of the accounts radix trie: a Terminal node carries
// an account at its full 40-nibble prefix, a Branch node carries up to 16
// children keyed by the nibble immediately following its own prefix
// (spec.md §3). Account == nil distinguishes a Branch from a Terminal.
type Node struct {
	Prefix   address.Nibbles
	Account  primitives.Account
	Children [16]*chainhash.Hash
}

// NewTerminal constructs a leaf node for account at its full address
// prefix.
func NewTerminal(prefix address.Nibbles, account primitives.Account) Node {
	return Node{Prefix: prefix, Account: account}
}

// NewBranch constructs an empty branch node at prefix.
func NewBranch(prefix address.Nibbles) Node {
	return Node{Prefix: prefix}
}

// IsTerminal reports whether n is a leaf carrying an account.
func (n Node) IsTerminal() bool { return n.Account != nil }

// IsBranch reports whether n is an internal node.
func (n Node) IsBranch() bool { return n.Account == nil }

// ChildCount returns the number of populated child slots.
func (n Node) ChildCount() int {
	c := 0
	for _, h := range n.Children {
		if h != nil {
			c++
		}
	}
	return c
}

// SoleChildNibble returns the single populated child's nibble, valid only
// when ChildCount() == 1.
func (n Node) SoleChildNibble() byte {
	for i, h := range n.Children {
		if h != nil {
			return byte(i)
		}
	}
	return 0
}

// Hash returns the node's content hash: for a Terminal it binds the
// prefix to the account's own hash; for a Branch it binds the prefix to
// the concatenation of all 16 child slots (a zero hash standing in for an
// empty slot), so the root hash authenticates both the trie's shape and
// its contents.
func (n Node) Hash() chainhash.Hash {
	if n.IsTerminal() {
		acctHash := n.Account.Hash()
		return chaincrypto.Blake2b256Concat([]byte(n.Prefix), acctHash[:])
	}
	buf := make([]byte, 0, len(n.Prefix)+16*chainhash.Size)
	buf = append(buf, n.Prefix...)
	var zero chainhash.Hash
	for _, h := range n.Children {
		if h != nil {
			buf = append(buf, h[:]...)
		} else {
			buf = append(buf, zero[:]...)
		}
	}
	return chaincrypto.Blake2b256(buf)
}

// WithChild returns a copy of a branch node with child hash set at the
// nibble position immediately following n.Prefix.
func (n Node) WithChild(nibble byte, hash *chainhash.Hash) Node {
	out := n
	out.Children[nibble] = hash
	return out
}
