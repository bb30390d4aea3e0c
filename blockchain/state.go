package blockchain

import (
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/txcache"
)

// state is the in-memory snapshot the engine reads without touching
// storage: the transaction replay window, the current head hash, and a
// lazily (re)computed NIPoPoW chain proof. Guarded by BlockChain.stateMu;
// mutated only inside Push, after the KV write transaction has committed
// (spec.md §5).
type state struct {
	txCache    *txcache.TransactionCache
	headHash   chainhash.Hash
	chainProof *ChainProof
}
