// Package txcache tracks the set of transaction identifiers seen in the
// last TRANSACTION_VALIDITY_WINDOW blocks of the main chain, so the chain
// engine can reject replayed transactions in O(1) per spec.md §4.3 step 2.
package txcache

import (
	"container/list"

	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/policy"
	"github.com/nimbusledger/corechain/primitives"
)

type blockEntry struct {
	hash chainhash.Hash
	txs  []chainhash.Hash
}

// TransactionCache is a sliding window of the last
// policy.TransactionValidityWindow blocks' transaction sets, kept as a
// doubly linked list (container/list) so both ends can be mutated in O(1)
// as the window slides forward or a reorg walks it backward.
type TransactionCache struct {
	window int
	blocks *list.List // front = oldest, back = newest
	byHash map[chainhash.Hash]*list.Element
	ids    map[chainhash.Hash]int // transaction id -> reference count across blocks
}

// New constructs an empty cache sized to policy.TransactionValidityWindow.
func New() *TransactionCache {
	return &TransactionCache{
		window: int(policy.TransactionValidityWindow),
		blocks: list.New(),
		byHash: make(map[chainhash.Hash]*list.Element),
		ids:    make(map[chainhash.Hash]int),
	}
}

// IsEmpty reports whether the cache holds no blocks.
func (c *TransactionCache) IsEmpty() bool { return c.blocks.Len() == 0 }

// HeadHash returns the hash of the most recently pushed block.
func (c *TransactionCache) HeadHash() (chainhash.Hash, bool) {
	if c.blocks.Len() == 0 {
		return chainhash.Hash{}, false
	}
	return c.blocks.Back().Value.(*blockEntry).hash, true
}

// TailHash returns the hash of the oldest block still tracked.
func (c *TransactionCache) TailHash() (chainhash.Hash, bool) {
	if c.blocks.Len() == 0 {
		return chainhash.Hash{}, false
	}
	return c.blocks.Front().Value.(*blockEntry).hash, true
}

func (c *TransactionCache) txIDs(txs []primitives.Transaction) []chainhash.Hash {
	out := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID()
	}
	return out
}

// PushBlock adds a new block's transactions at the head of the window,
// evicting the oldest block if the window is now over capacity.
func (c *TransactionCache) PushBlock(hash chainhash.Hash, txs []primitives.Transaction) {
	entry := &blockEntry{hash: hash, txs: c.txIDs(txs)}
	el := c.blocks.PushBack(entry)
	c.byHash[hash] = el
	for _, id := range entry.txs {
		c.ids[id]++
	}

	for c.blocks.Len() > c.window {
		c.popFront()
	}
}

// PrependBlock adds a block at the tail of the window (extending coverage
// backward), used when the cache must be grown to check a deep reorg's
// replay safety.
func (c *TransactionCache) PrependBlock(hash chainhash.Hash, txs []primitives.Transaction) {
	entry := &blockEntry{hash: hash, txs: c.txIDs(txs)}
	el := c.blocks.PushFront(entry)
	c.byHash[hash] = el
	for _, id := range entry.txs {
		c.ids[id]++
	}
}

// RevertBlock removes the most recently pushed block from the window, used
// when a rebranch walks back down the abandoned chain tip.
func (c *TransactionCache) RevertBlock(hash chainhash.Hash) {
	el, ok := c.byHash[hash]
	if !ok {
		return
	}
	c.removeElement(el)
}

func (c *TransactionCache) popFront() {
	el := c.blocks.Front()
	if el == nil {
		return
	}
	c.removeElement(el)
}

func (c *TransactionCache) removeElement(el *list.Element) {
	entry := el.Value.(*blockEntry)
	delete(c.byHash, entry.hash)
	c.blocks.Remove(el)
	for _, id := range entry.txs {
		c.ids[id]--
		if c.ids[id] <= 0 {
			delete(c.ids, id)
		}
	}
}

// ContainsAny reports whether any of txs already appears in a block
// currently within the window, i.e. would be a replay.
func (c *TransactionCache) ContainsAny(txs []primitives.Transaction) bool {
	for _, tx := range txs {
		if _, ok := c.ids[tx.ID()]; ok {
			return true
		}
	}
	return false
}

// MissingBlocks returns how many more blocks must be prepended for the
// window to reach full capacity, used to decide how far to back-fill from
// storage after a restart or a chain switch.
func (c *TransactionCache) MissingBlocks() int {
	missing := c.window - c.blocks.Len()
	if missing < 0 {
		return 0
	}
	return missing
}

// Window returns the configured replay window size in blocks.
func Window() uint32 { return policy.TransactionValidityWindow }

// Clone returns an independent deep copy of the cache, used so a rebranch
// attempt can be rolled back on failure without disturbing the window
// readers see.
func (c *TransactionCache) Clone() *TransactionCache {
	out := New()
	out.window = c.window
	for el := c.blocks.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*blockEntry)
		txsCopy := make([]chainhash.Hash, len(entry.txs))
		copy(txsCopy, entry.txs)
		newEl := out.blocks.PushBack(&blockEntry{hash: entry.hash, txs: txsCopy})
		out.byHash[entry.hash] = newEl
	}
	for id, n := range c.ids {
		out.ids[id] = n
	}
	return out
}
