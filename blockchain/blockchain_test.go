package blockchain

import (
	"testing"

	"github.com/nimbusledger/corechain/accounts"
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/policy"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/stretchr/testify/require"
)

// buildGenesis seeds a throwaway accounts trie the same way nodeconfig.Genesis
// does, so the genesis header's AccountsHash is real rather than guessed.
// Genesis never runs through Push (BlockChain.New bootstraps it directly), so
// it does not need a mined nonce.
func buildGenesis(t *testing.T) (primitives.Block, chainhash.Hash) {
	t.Helper()

	db := accounts.OpenMemory()
	defer db.Close()
	scratch := accounts.Open(db)
	require.NoError(t, scratch.Init(db, nil))

	body := &primitives.BlockBody{ExtraData: []byte("test genesis")}
	header := primitives.BlockHeader{
		Version:      1,
		BodyHash:     body.Hash(),
		AccountsHash: scratch.Hash(nil),
		NBits:        primitives.NewTarget(policy.BlockTargetMax).ToCompact(),
	}
	return primitives.Block{Header: header, Body: body}, scratch.Hash(nil)
}

// mine brute-forces a nonce satisfying h's own NBits target. At
// BlockTargetMax (the easiest possible target every test block here uses,
// since none of them prune accounts or otherwise move the difficulty), a
// random nonce satisfies proof of work roughly once every 65536 tries.
func mine(t *testing.T, h primitives.BlockHeader) primitives.BlockHeader {
	t.Helper()
	for nonce := uint32(0); nonce < 5_000_000; nonce++ {
		h.Nonce = nonce
		if h.VerifyProofOfWork() {
			return h
		}
	}
	t.Fatal("mine: exhausted nonce budget without finding valid proof of work")
	return h
}

// buildChild mines and returns a block directly extending prev, carrying
// txs and prunedAccounts, with a target taken from bc's own retargeting so
// pushes that are meant to succeed actually clear the difficulty check.
func buildChild(t *testing.T, bc *BlockChain, prev primitives.Block, accountsHash chainhash.Hash, miner address.Address, txs []primitives.Transaction, pruned []primitives.PrunedAccount) primitives.Block {
	t.Helper()

	prevHash := prev.Hash()
	target, err := bc.GetNextTarget(&prevHash)
	require.NoError(t, err)

	body := &primitives.BlockBody{Miner: miner, Transactions: txs, PrunedAccounts: pruned}
	header := primitives.BlockHeader{
		Version:      1,
		PrevHash:     prevHash,
		BodyHash:     body.Hash(),
		AccountsHash: accountsHash,
		NBits:        target.ToCompact(),
		Height:       prev.Header.Height + 1,
		Timestamp:    prev.Header.Timestamp + policy.BlockTime,
	}
	header = mine(t, header)
	return primitives.Block{Header: header, Body: body}
}

func newTestChain(t *testing.T) (*BlockChain, primitives.Block, chainhash.Hash) {
	t.Helper()

	store, err := chainstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	genesis, accountsHash := buildGenesis(t)
	bc, err := New(store, genesis, nil)
	require.NoError(t, err)

	return bc, genesis, accountsHash
}

func txWithID(b byte, validFrom uint32) primitives.Transaction {
	var id chainhash.Hash
	id[31] = b
	return primitives.NewTransaction(id, validFrom)
}

func TestExtend(t *testing.T) {
	bc, genesis, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x01

	blockA := buildChild(t, bc, genesis, accountsHash, miner, nil, nil)

	var events []Event
	bc.Subscribe(func(e Event) { events = append(events, e) })

	result := bc.Push(blockA)
	require.Equal(t, ResultExtended, result.Kind)
	require.Nil(t, result.Err)

	require.Equal(t, blockA.Hash(), bc.HeadHash())
	require.Equal(t, uint32(1), bc.Height())

	require.Len(t, events, 1)
	extended, ok := events[0].(Extended)
	require.True(t, ok)
	require.Equal(t, blockA.Hash(), extended.Hash)
}

func TestPushRejectsUnknownPredecessor(t *testing.T) {
	bc, _, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x02
	body := &primitives.BlockBody{Miner: miner}

	var bogusPrev chainhash.Hash
	bogusPrev[0] = 0xff

	header := primitives.BlockHeader{
		Version:      1,
		PrevHash:     bogusPrev,
		BodyHash:     body.Hash(),
		AccountsHash: accountsHash,
		NBits:        primitives.NewTarget(policy.BlockTargetMax).ToCompact(),
		Height:       1,
		Timestamp:    policy.BlockTime,
	}
	header = mine(t, header)
	block := primitives.Block{Header: header, Body: body}

	result := bc.Push(block)
	require.Equal(t, ResultOrphan, result.Kind)
	require.Nil(t, result.Err)
	require.Equal(t, uint32(0), bc.Height())
}

func TestPushRejectsDuplicateTransaction(t *testing.T) {
	bc, genesis, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x03
	tx := txWithID(0x01, 0)

	blockA := buildChild(t, bc, genesis, accountsHash, miner, []primitives.Transaction{tx}, nil)
	result := bc.Push(blockA)
	require.Equal(t, ResultExtended, result.Kind)

	blockB := buildChild(t, bc, blockA, accountsHash, miner, []primitives.Transaction{tx}, nil)
	result = bc.Push(blockB)
	require.Equal(t, ResultInvalid, result.Kind)
	require.NotNil(t, result.Err)
	require.Equal(t, ErrDuplicateTransaction, result.Err.Kind)

	require.Equal(t, blockA.Hash(), bc.HeadHash())
	require.Equal(t, uint32(1), bc.Height())
}

func TestRebranch(t *testing.T) {
	bc, genesis, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x04

	blockA := buildChild(t, bc, genesis, accountsHash, miner, nil, nil)
	require.Equal(t, ResultExtended, bc.Push(blockA).Kind)

	blockB := buildChild(t, bc, blockA, accountsHash, miner, nil, nil)
	require.Equal(t, ResultExtended, bc.Push(blockB).Kind)

	blockA2 := buildChild(t, bc, genesis, accountsHash, miner, nil, nil)
	require.Equal(t, ResultForked, bc.Push(blockA2).Kind)
	require.Equal(t, blockB.Hash(), bc.HeadHash(), "a shorter fork must not overtake the head")

	blockB2 := buildChild(t, bc, blockA2, accountsHash, miner, nil, nil)
	require.Equal(t, ResultForked, bc.Push(blockB2).Kind, "a fork of equal total difficulty must not overtake the head")
	require.Equal(t, blockB.Hash(), bc.HeadHash())

	var events []Event
	bc.Subscribe(func(e Event) { events = append(events, e) })

	blockC2 := buildChild(t, bc, blockB2, accountsHash, miner, nil, nil)
	result := bc.Push(blockC2)
	require.Equal(t, ResultRebranched, result.Kind)

	require.Equal(t, blockC2.Hash(), bc.HeadHash())
	require.Equal(t, uint32(3), bc.Height())

	require.Len(t, events, 1)
	rebranched, ok := events[0].(Rebranched)
	require.True(t, ok)

	require.Len(t, rebranched.Reverted, 2)
	require.Equal(t, blockA.Hash(), rebranched.Reverted[0].Hash())
	require.Equal(t, blockB.Hash(), rebranched.Reverted[1].Hash())

	require.Len(t, rebranched.Adopted, 3)
	require.Equal(t, blockA2.Hash(), rebranched.Adopted[0].Hash())
	require.Equal(t, blockB2.Hash(), rebranched.Adopted[1].Hash())
	require.Equal(t, blockC2.Hash(), rebranched.Adopted[2].Hash())

	infoA, ok := bc.store.GetChainInfo(blockA.Hash(), false, nil)
	require.True(t, ok)
	require.False(t, infoA.OnMainChain)

	infoA2, ok := bc.store.GetChainInfo(blockA2.Hash(), false, nil)
	require.True(t, ok)
	require.True(t, infoA2.OnMainChain)
}

func TestPushKnownBlockIsIdempotent(t *testing.T) {
	bc, genesis, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x05

	blockA := buildChild(t, bc, genesis, accountsHash, miner, nil, nil)
	require.Equal(t, ResultExtended, bc.Push(blockA).Kind)

	result := bc.Push(blockA)
	require.Equal(t, ResultKnown, result.Kind)
	require.Equal(t, blockA.Hash(), bc.HeadHash())
}
