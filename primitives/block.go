package primitives

import (
	"encoding/binary"
	"sort"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chaincrypto"
	"github.com/nimbusledger/corechain/chainhash"
)

// BlockHeader is the fixed-size, content-addressed header every block
// carries, per spec.md §3.
type BlockHeader struct {
	Version       uint16
	PrevHash      chainhash.Hash
	InterlinkHash chainhash.Hash
	BodyHash      chainhash.Hash
	AccountsHash  chainhash.Hash
	NBits         TargetCompact
	Height        uint32
	Timestamp     uint32
	Nonce         uint32
}

// Serialize returns the header's canonical byte encoding, the input to
// both its content Hash and its PoW digest.
func (h BlockHeader) Serialize() []byte {
	buf := make([]byte, 0, 2+chainhash.Size*4+4+4+4+4)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], h.Version)
	buf = append(buf, tmp2[:]...)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.InterlinkHash[:]...)
	buf = append(buf, h.BodyHash[:]...)
	buf = append(buf, h.AccountsHash[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], uint32(h.NBits))
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint32(tmp4[:], h.Height)
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint32(tmp4[:], h.Timestamp)
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint32(tmp4[:], h.Nonce)
	buf = append(buf, tmp4[:]...)
	return buf
}

// Hash returns the header's content hash, i.e. the block hash.
func (h BlockHeader) Hash() chainhash.Hash {
	return chaincrypto.Blake2b256(h.Serialize())
}

// PoW computes the header's proof-of-work digest via chaincrypto.PoW,
// which uses Argon2id (argon2.IDKey), not Argon2d.
func (h BlockHeader) PoW() chainhash.Hash {
	return chaincrypto.PoW(h.Serialize())
}

// VerifyProofOfWork reports whether the header's PoW digest satisfies its
// own declared target.
func (h BlockHeader) VerifyProofOfWork() bool {
	target := h.NBits.ToTarget()
	pow := h.PoW()
	return target.IsMetBy(pow[:])
}

// IsImmediateSuccessorOf reports whether h is a valid direct child of
// prev: height+1, timestamp monotone, and correct prev-hash linkage
// (spec.md §4.3 step 3).
func (h BlockHeader) IsImmediateSuccessorOf(prev BlockHeader) bool {
	if h.Height != prev.Height+1 {
		return false
	}
	if h.Timestamp < prev.Timestamp {
		return false
	}
	return h.PrevHash == prev.Hash()
}

// MaxExtraDataLen is the maximum length of BlockBody.ExtraData.
const MaxExtraDataLen = 255

// BlockBody carries the miner payout address, arbitrary miner-chosen extra
// data, and the ordered/unique transaction and pruned-account lists
// spec.md §3 describes.
type BlockBody struct {
	Miner          address.Address
	ExtraData      []byte
	Transactions   []Transaction
	PrunedAccounts []PrunedAccount
}

// Hash returns the Merkle root over miner || extra_data || transactions ||
// pruned_accounts, i.e. the block's body_hash.
func (b BlockBody) Hash() chainhash.Hash {
	leaves := make([]chainhash.Hash, 0, 2+len(b.Transactions)+len(b.PrunedAccounts))
	leaves = append(leaves, chaincrypto.Blake2b256(b.Miner[:]))
	leaves = append(leaves, chaincrypto.Blake2b256(b.ExtraData))
	for _, tx := range b.Transactions {
		leaves = append(leaves, tx.ID())
	}
	for _, p := range b.PrunedAccounts {
		leaves = append(leaves, p.Hash())
	}
	return chaincrypto.MerkleRoot(leaves)
}

// Verify checks the intrinsic invariants of a body at the given block
// height: transactions ordered/unique and within their validity window,
// pruned accounts ordered/unique and actually prunable, and extra data
// within its size limit. Ported from
// original_source/primitives/src/block/body.rs.
func (b BlockBody) Verify(blockHeight uint32) error {
	if len(b.ExtraData) > MaxExtraDataLen {
		return ErrExtraDataTooLarge
	}

	for i := 1; i < len(b.Transactions); i++ {
		switch c := b.Transactions[i-1].CompareBlockOrder(b.Transactions[i]); {
		case c == 0:
			return ErrDuplicateTransaction
		case c > 0:
			return ErrTransactionsNotOrdered
		}
	}
	for _, tx := range b.Transactions {
		if !tx.IsValidAt(blockHeight) {
			return ErrExpiredTransaction
		}
	}

	if !sort.SliceIsSorted(b.PrunedAccounts, func(i, j int) bool {
		return b.PrunedAccounts[i].Less(b.PrunedAccounts[j])
	}) {
		return ErrPrunedAccountsNotOrdered
	}
	for i := 1; i < len(b.PrunedAccounts); i++ {
		if b.PrunedAccounts[i-1].Address == b.PrunedAccounts[i].Address {
			return ErrDuplicatePrunedAccount
		}
	}
	for _, p := range b.PrunedAccounts {
		if !p.Account.IsToBePruned() {
			return ErrInvalidPrunedAccount
		}
	}
	return nil
}

// Interlink is the per-block list of ancestor hashes at various
// super-block depths, enabling the NIPoPoW prover's super-chain queries
// (spec.md glossary).
type Interlink struct {
	Hashes []chainhash.Hash
}

// Hash returns the content hash of the interlink, referenced by
// BlockHeader.InterlinkHash.
func (il Interlink) Hash() chainhash.Hash {
	return chaincrypto.MerkleRoot(il.Hashes)
}

// Block is a header paired with its interlink and an optional body. The
// chain engine expects full blocks (header+interlink+body); a nil Body
// models a header-only block as used by light clients and the NIPoPoW
// suffix.
type Block struct {
	Header    BlockHeader
	Interlink Interlink
	Body      *BlockBody
}

// Hash returns the block's identity hash (its header hash).
func (b Block) Hash() chainhash.Hash { return b.Header.Hash() }

// PoW computes the block's proof-of-work digest (its header's
// chaincrypto.PoW, an Argon2id digest).
func (b Block) PoW() chainhash.Hash { return b.Header.PoW() }

// IsImmediateSuccessorOf reports whether b directly extends prev.
func (b Block) IsImmediateSuccessorOf(prev Block) bool {
	return b.Header.IsImmediateSuccessorOf(prev.Header)
}

// Verify checks the block's intrinsic invariants: proof of work, body
// presence and hash match, and body-internal ordering constraints
// (spec.md §4.3 step 1).
func (b Block) Verify() error {
	if !b.Header.VerifyProofOfWork() {
		return ErrInvalidProofOfWork
	}
	if b.Body == nil {
		return ErrMissingBody
	}
	if b.Body.Hash() != b.Header.BodyHash {
		return ErrBodyHashMismatch
	}
	return b.Body.Verify(b.Header.Height)
}

// WithoutBody returns a copy of b with its body stripped, keeping the
// header and interlink.
func (b Block) WithoutBody() Block {
	return Block{Header: b.Header, Interlink: b.Interlink}
}
