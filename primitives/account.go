package primitives

import (
	"encoding/binary"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chaincrypto"
	"github.com/nimbusledger/corechain/chainhash"
)

// Account is the sum type spec.md §3 describes; today BasicAccount is the
// only variant, leaving room for staking/vesting/etc. variants later
// without breaking the accounts trie's node format.
type Account interface {
	// IsToBePruned reports whether this account's state indicates it may
	// safely be removed from the trie once its balance reaches zero.
	IsToBePruned() bool
	// Serialize appends the account's wire encoding to buf.
	Serialize(buf []byte) []byte
	// Hash returns the account's content hash, used by terminal nodes.
	Hash() chainhash.Hash
}

// BasicAccount is a plain balance-holding account.
type BasicAccount struct {
	Balance uint64
}

// IsToBePruned reports true once a BasicAccount's balance has reached
// zero: such accounts carry no further state and can be dropped from the
// trie, recorded as a PrunedAccount in the block that removes them.
func (a BasicAccount) IsToBePruned() bool { return a.Balance == 0 }

func (a BasicAccount) Serialize(buf []byte) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], a.Balance)
	return append(buf, tmp[:]...)
}

func (a BasicAccount) Hash() chainhash.Hash {
	return chaincrypto.Blake2b256(a.Serialize(nil))
}

// DeserializeBasicAccount reads a BasicAccount from its wire encoding.
func DeserializeBasicAccount(b []byte) (BasicAccount, error) {
	if len(b) < 8 {
		return BasicAccount{}, ErrMalformedAccount
	}
	return BasicAccount{Balance: binary.BigEndian.Uint64(b[:8])}, nil
}

// PrunedAccount records that account at Address was removed by a block,
// recorded so the state transition remains deterministic on replay
// (spec.md §3, BlockBody.pruned_accounts). Not independently specified by
// spec.md; supplemented from original_source's block body handling.
type PrunedAccount struct {
	Address address.Address
	Account Account
}

// Hash returns the content hash of the pruned-account record, used when
// computing a block's body hash.
func (p PrunedAccount) Hash() chainhash.Hash {
	buf := append([]byte{}, p.Address[:]...)
	buf = p.Account.Serialize(buf)
	return chaincrypto.Blake2b256(buf)
}

// Less gives PrunedAccount records a total order by address, for the
// ordering/uniqueness invariant on BlockBody.pruned_accounts.
func (p PrunedAccount) Less(other PrunedAccount) bool {
	return p.Address.String() < other.Address.String()
}
