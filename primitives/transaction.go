package primitives

import (
	"bytes"

	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/policy"
)

// Transaction is reduced to the identity surface the chain engine actually
// touches: an identifier for the replay cache, a validity-window check,
// and a total order for the BlockBody ordering invariant. Full transaction
// content (sender, recipient, value, signature scheme) is out of scope
// per spec.md §1 Non-goals.
type Transaction struct {
	id                  chainhash.Hash
	ValidityStartHeight uint32
}

// NewTransaction constructs a Transaction with an explicit identifier,
// used by tests and by callers that already have a transaction's wire
// encoding hashed elsewhere.
func NewTransaction(id chainhash.Hash, validityStartHeight uint32) Transaction {
	return Transaction{id: id, ValidityStartHeight: validityStartHeight}
}

// ID returns the transaction's content identifier.
func (t Transaction) ID() chainhash.Hash { return t.id }

// IsValidAt reports whether the transaction may still appear in a block at
// blockHeight, i.e. it has not fallen outside TRANSACTION_VALIDITY_WINDOW.
func (t Transaction) IsValidAt(blockHeight uint32) bool {
	if blockHeight < t.ValidityStartHeight {
		return false
	}
	return blockHeight-t.ValidityStartHeight < policy.TransactionValidityWindow
}

// CompareBlockOrder gives transactions within a block body a total,
// deterministic order (by identifier), matching
// original_source/primitives/src/block/body.rs's ordering/uniqueness
// check.
func (t Transaction) CompareBlockOrder(other Transaction) int {
	return bytes.Compare(t.id[:], other.id[:])
}
