package accounts

import (
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/primitives"
)

// Proof is an accounts-trie Merkle proof: the path nodes from one or more
// terminal accounts up to the root, ordered bottom-up (every node appears
// after all of its children), matching the verification algorithm ported
// from original_source/accounts/src/accounts_proof.rs.
type Proof struct {
	Nodes []Node
}

// Verify reconstructs the root hash from Nodes using a stack, ported from
// original_source/accounts/src/accounts_proof.rs: terminal nodes are
// pushed directly; a branch node pops every node currently on top of the
// stack whose prefix it is a prefix of, checking each one's hash and
// nibble position against its own declared children, before pushing
// itself. A proof need not include every child of a branch it proves
// through — only the ones relevant to the accounts being proven. Proof is
// valid iff exactly one node remains afterward and its hash equals
// rootHash.
func (p Proof) Verify(rootHash chainhash.Hash) error {
	var stack []Node

	for _, n := range p.Nodes {
		if n.IsBranch() {
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if !n.Prefix.IsPrefixOf(top.Prefix) || top.Prefix.Len() <= n.Prefix.Len() {
					break
				}
				stack = stack[:len(stack)-1]

				nibble := top.Prefix.At(n.Prefix.Len())
				want := n.Children[nibble]
				if want == nil || *want != top.Hash() {
					return ErrInvalidProof
				}
			}
		}
		stack = append(stack, n)
	}

	if len(stack) != 1 {
		return ErrProofIncomplete
	}
	if stack[0].Hash() != rootHash {
		return ErrInvalidProof
	}
	return nil
}

// GetAccount returns the account at addr if Nodes (already Verify'd
// against a trusted root) contains a matching terminal node.
func (p Proof) GetAccount(addr address.Address) (primitives.Account, bool) {
	prefix := addr.Nibbles()
	for _, n := range p.Nodes {
		if n.IsTerminal() && n.Prefix == prefix {
			return n.Account, true
		}
	}
	return nil, false
}
