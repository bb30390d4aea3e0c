// Package blockchain implements the fork-choice engine described in
// spec.md §4.3–§4.6: a single-entry-point push pipeline over a
// goleveldb-backed chain store and accounts trie, with dynamic
// retargeting, block locators, and NIPoPoW chain proofs.
package blockchain

import (
	"fmt"
	"sync"

	"github.com/nimbusledger/corechain/accounts"
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/log"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/nimbusledger/corechain/txcache"
)

var logger log.Logger = log.Disabled

// UseLogger wires a Logger for the blockchain package.
func UseLogger(l log.Logger) { logger = l }

// BlockChain is the fork-choice engine: a push_lock serializing all
// mutations, a state RW-lock guarding the in-memory snapshot readers use,
// and the shared goleveldb-backed store and accounts trie every push
// commits against in a single atomic transaction (spec.md §5).
type BlockChain struct {
	pushLock sync.Mutex
	stateMu  sync.RWMutex
	state    state

	store    *chainstore.Store
	accounts *accounts.Accounts
	notifier Notifier
}

// New opens a BlockChain over store. If the store has no head yet, it is
// bootstrapped from genesis and genesisAccounts; otherwise the existing
// head and accounts trie are reused as-is.
func New(store *chainstore.Store, genesis primitives.Block, genesisAccounts map[address.Address]primitives.Account) (*BlockChain, error) {
	bc := &BlockChain{
		store:    store,
		accounts: accounts.Open(store.DB()),
	}

	if head, ok := store.GetHead(nil); ok {
		bc.state = state{
			txCache:  txcache.New(),
			headHash: head,
		}
		bc.backfillTxCache()
		return bc, nil
	}

	tx, err := store.Begin()
	if err != nil {
		return nil, err
	}

	if err := bc.accounts.Init(tx.Raw(), genesisAccounts); err != nil {
		tx.Abort()
		return nil, err
	}

	genesisHash := genesis.Hash()
	info := chainstore.Initial(genesis)
	store.PutChainInfo(tx, genesisHash, info, true)
	store.SetHead(tx, genesisHash)

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	cache := txcache.New()
	cache.PushBlock(genesisHash, nil)

	bc.state = state{
		txCache:  cache,
		headHash: genesisHash,
	}
	return bc, nil
}

// Subscribe registers fn to be invoked for every future Extended or
// Rebranched event.
func (bc *BlockChain) Subscribe(fn func(Event)) { bc.notifier.Subscribe(fn) }

// HeadHash returns the current main-chain head hash.
func (bc *BlockChain) HeadHash() chainhash.Hash {
	bc.stateMu.RLock()
	defer bc.stateMu.RUnlock()
	return bc.state.headHash
}

// Height returns the current main-chain height.
func (bc *BlockChain) Height() uint32 {
	head, ok := bc.store.GetChainInfo(bc.HeadHash(), false, nil)
	if !ok {
		return 0
	}
	return head.Head.Header.Height
}

// Accounts exposes the accounts trie for read-only queries (snapshot
// reads are safe without push_lock; the trie only mutates inside a
// committed push).
func (bc *BlockChain) Accounts() *accounts.Accounts { return bc.accounts }

func (bc *BlockChain) backfillTxCache() {
	head := bc.HeadHash()
	blocks := bc.store.GetBlocksBackward(head, txcache.Window(), true, nil)
	for i := 0; i < len(blocks); i++ {
		if blocks[i].Body != nil {
			bc.state.txCache.PrependBlock(blocks[i].Hash(), blocks[i].Body.Transactions)
		}
	}
	if h, ok := bc.store.GetBlock(head, true, nil); ok && h.Body != nil {
		bc.state.txCache.PushBlock(head, h.Body.Transactions)
	}
}

// Push validates and applies block against the current chain state, per
// the ordered steps and classification rules of spec.md §4.3.
func (bc *BlockChain) Push(block primitives.Block) PushResult {
	bc.pushLock.Lock()
	defer bc.pushLock.Unlock()

	if err := block.Verify(); err != nil {
		return invalid(ErrInvalidBlock, err)
	}

	hash := block.Hash()
	if _, ok := bc.store.GetChainInfo(hash, false, nil); ok {
		return known()
	}

	prevInfo, ok := bc.store.GetChainInfo(block.Header.PrevHash, true, nil)
	if !ok {
		return orphan()
	}

	if !block.IsImmediateSuccessorOf(prevInfo.Head) {
		return invalid(ErrInvalidSuccessor, nil)
	}

	nextTarget, err := bc.GetNextTarget(&block.Header.PrevHash)
	if err != nil {
		return invalid(ErrDifficultyMismatch, err)
	}
	if block.Header.NBits != nextTarget.ToCompact() {
		return invalid(ErrDifficultyMismatch, nil)
	}

	newInfo := prevInfo.Next(block)

	headHash := bc.HeadHash()

	switch {
	case block.Header.PrevHash == headHash:
		return bc.extend(hash, block, prevInfo, newInfo)
	default:
		head, ok := bc.store.GetChainInfo(headHash, false, nil)
		if ok && newInfo.TotalDifficulty.Cmp(head.TotalDifficulty) > 0 {
			return bc.rebranch(hash, block, newInfo)
		}
		bc.persistFork(hash, newInfo)
		return forked()
	}
}

func (bc *BlockChain) persistFork(hash chainhash.Hash, info chainstore.ChainInfo) {
	tx, err := bc.store.Begin()
	if err != nil {
		panic("blockchain: storage failure persisting fork: " + err.Error())
	}
	bc.store.PutChainInfo(tx, hash, info, true)
	if err := tx.Commit(); err != nil {
		panic("blockchain: storage failure committing fork: " + err.Error())
	}
}

// extend applies block directly on top of the current head.
func (bc *BlockChain) extend(hash chainhash.Hash, block primitives.Block, prevInfo, newInfo chainstore.ChainInfo) PushResult {
	bc.stateMu.RLock()
	dup := bc.state.txCache.ContainsAny(block.Body.Transactions)
	bc.stateMu.RUnlock()
	if dup {
		return invalid(ErrDuplicateTransaction, nil)
	}

	tx, err := bc.store.Begin()
	if err != nil {
		panic("blockchain: storage failure beginning extend: " + err.Error())
	}

	if err := bc.accounts.CommitBlock(tx.Raw(), block.Body); err != nil {
		tx.Abort()
		return invalid(ErrAccountsError, err)
	}
	if got := bc.accounts.Hash(tx.Raw()); got != block.Header.AccountsHash {
		tx.Abort()
		return invalid(ErrAccountsError, fmt.Errorf("committed accounts root %s does not match declared header root %s", got, block.Header.AccountsHash))
	}

	successor := hash
	prevInfo.MainChainSuccessor = &successor
	newInfo.OnMainChain = true

	bc.store.PutChainInfo(tx, block.Header.PrevHash, prevInfo, false)
	bc.store.PutChainInfo(tx, hash, newInfo, true)
	bc.store.SetHead(tx, hash)

	if err := tx.Commit(); err != nil {
		panic("blockchain: storage failure committing extend: " + err.Error())
	}

	bc.stateMu.Lock()
	bc.state.txCache.PushBlock(hash, block.Body.Transactions)
	bc.state.headHash = hash
	bc.state.chainProof = nil
	bc.stateMu.Unlock()

	bc.notifier.notify(Extended{Hash: hash, Block: block})
	return extended()
}

// rebranch walks the new tip back to its common ancestor with the
// current main chain, reverts the abandoned path, and commits the
// adopted path in ancestor-to-tip order, per spec.md §4.3's rebranch
// algorithm.
func (bc *BlockChain) rebranch(tipHash chainhash.Hash, tipBlock primitives.Block, tipInfo chainstore.ChainInfo) PushResult {
	forkPath, ancestorHash, ok := bc.collectForkPath(tipHash, tipBlock, tipInfo)
	if !ok {
		return invalid(ErrInvalidFork, nil)
	}

	bc.stateMu.RLock()
	head := bc.state.headHash
	bc.stateMu.RUnlock()

	revertPath, ok := bc.collectRevertPath(head, ancestorHash)
	if !ok {
		return invalid(ErrInvalidFork, nil)
	}

	tx, err := bc.store.Begin()
	if err != nil {
		panic("blockchain: storage failure beginning rebranch: " + err.Error())
	}

	newTxCache := bc.cloneTxCache()

	var reverted []primitives.Block
	for _, entry := range revertPath {
		if err := bc.accounts.RevertBlock(tx.Raw(), entry.info.Head.Body); err != nil {
			tx.Abort()
			panic("blockchain: accounts revert failed mid-rebranch: " + err.Error())
		}
		if bc.accounts.Hash(tx.Raw()) != entry.parentAccountsHash {
			tx.Abort()
			panic("blockchain: accounts root mismatch after revert")
		}
		newTxCache.RevertBlock(entry.hash)

		info := entry.info
		info.OnMainChain = false
		info.MainChainSuccessor = nil
		bc.store.PutChainInfo(tx, entry.hash, info, false)
		reverted = append(reverted, entry.info.Head)
	}

	missing := newTxCache.MissingBlocks()
	if missing > 0 {
		start := ancestorHash
		if tail, ok := newTxCache.TailHash(); ok {
			start = tail
		}
		backfill := bc.store.GetBlocksBackward(start, uint32(missing), true, tx)
		for i := 0; i < len(backfill); i++ {
			if backfill[i].Body != nil {
				newTxCache.PrependBlock(backfill[i].Hash(), backfill[i].Body.Transactions)
			}
		}
	}

	var adopted []primitives.Block
	for _, entry := range forkPath {
		if newTxCache.ContainsAny(entry.block.Body.Transactions) {
			tx.Abort()
			return invalid(ErrInvalidFork, nil)
		}
		if err := bc.accounts.CommitBlock(tx.Raw(), entry.block.Body); err != nil {
			tx.Abort()
			return invalid(ErrAccountsError, err)
		}
		if got := bc.accounts.Hash(tx.Raw()); got != entry.block.Header.AccountsHash {
			tx.Abort()
			return invalid(ErrAccountsError, fmt.Errorf("committed accounts root %s does not match declared header root %s", got, entry.block.Header.AccountsHash))
		}
		newTxCache.PushBlock(entry.hash, entry.block.Body.Transactions)

		info := entry.info
		info.OnMainChain = true
		if entry.hash != tipHash {
			info.Head.Body = entry.block.Body
		}
		bc.store.PutChainInfo(tx, entry.hash, info, true)
		adopted = append(adopted, info.Head)
	}

	// Link the common ancestor to the first adopted block.
	if len(forkPath) > 0 {
		ancestorInfo, ok := bc.store.GetChainInfo(ancestorHash, false, tx)
		if ok {
			successor := forkPath[0].hash
			ancestorInfo.MainChainSuccessor = &successor
			bc.store.PutChainInfo(tx, ancestorHash, ancestorInfo, false)
		}
	}

	bc.store.SetHead(tx, tipHash)

	if err := tx.Commit(); err != nil {
		panic("blockchain: storage failure committing rebranch: " + err.Error())
	}

	bc.stateMu.Lock()
	bc.state.txCache = newTxCache
	bc.state.headHash = tipHash
	bc.state.chainProof = nil
	bc.stateMu.Unlock()

	// reverted was collected walking down from the old head; report it
	// ancestor to tip like adopted.
	for i, j := 0, len(reverted)-1; i < j; i, j = i+1, j-1 {
		reverted[i], reverted[j] = reverted[j], reverted[i]
	}
	bc.notifier.notify(Rebranched{Reverted: reverted, Adopted: adopted})
	return rebranched()
}

type forkEntry struct {
	hash  chainhash.Hash
	block primitives.Block
	info  chainstore.ChainInfo
}

// collectForkPath walks tipHash back via prev_hash to the nearest
// main-chain ancestor, returning the path in ancestor-to-tip order.
func (bc *BlockChain) collectForkPath(tipHash chainhash.Hash, tipBlock primitives.Block, tipInfo chainstore.ChainInfo) ([]forkEntry, chainhash.Hash, bool) {
	path := []forkEntry{{hash: tipHash, block: tipBlock, info: tipInfo}}
	cur := tipBlock.Header.PrevHash

	for {
		info, ok := bc.store.GetChainInfo(cur, true, nil)
		if !ok {
			return nil, chainhash.Hash{}, false
		}
		if info.OnMainChain {
			reversed := make([]forkEntry, len(path))
			for i, e := range path {
				reversed[len(path)-1-i] = e
			}
			return reversed, cur, true
		}
		if info.Head.Body == nil {
			return nil, chainhash.Hash{}, false
		}
		path = append(path, forkEntry{hash: cur, block: info.Head, info: info})
		cur = info.Head.Header.PrevHash
	}
}

type revertEntry struct {
	hash               chainhash.Hash
	info               chainstore.ChainInfo
	parentAccountsHash chainhash.Hash
}

// collectRevertPath walks the current main chain from head down to (but
// excluding) ancestorHash, returning entries in tip-to-ancestor order
// (the order they must be reverted in).
func (bc *BlockChain) collectRevertPath(head, ancestorHash chainhash.Hash) ([]revertEntry, bool) {
	var path []revertEntry
	cur := head
	for cur != ancestorHash {
		info, ok := bc.store.GetChainInfo(cur, true, nil)
		if !ok || info.Head.Body == nil {
			return nil, false
		}
		parent, ok := bc.store.GetChainInfo(info.Head.Header.PrevHash, false, nil)
		if !ok {
			return nil, false
		}
		path = append(path, revertEntry{
			hash:               cur,
			info:               info,
			parentAccountsHash: parent.Head.Header.AccountsHash,
		})
		cur = info.Head.Header.PrevHash
	}
	return path, true
}

// cloneTxCache copies the current transaction cache so speculative
// rebranch mutations can be discarded on failure (spec.md §5).
func (bc *BlockChain) cloneTxCache() *txcache.TransactionCache {
	bc.stateMu.RLock()
	defer bc.stateMu.RUnlock()
	return bc.state.txCache.Clone()
}
