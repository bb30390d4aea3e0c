package blockchain

import (
	"errors"

	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/policy"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/shopspring/decimal"
)

// ErrUnknownBlock is returned when a retarget or locator query names a
// hash that is not present in the store.
var ErrUnknownBlock = errors.New("blockchain: unknown block")

// GetNextTarget computes the required Target for the block that would
// extend prevHash (or the current head, if prevHash is nil), per spec.md
// §4.4. All arithmetic runs in arbitrary-precision decimal except the
// bounded adjustment factor, which is clamped before it is multiplied
// into the big-decimal average target.
func (bc *BlockChain) GetNextTarget(prevHash *chainhash.Hash) (primitives.Target, error) {
	var headHash chainhash.Hash
	if prevHash != nil {
		headHash = *prevHash
	} else {
		bc.stateMu.RLock()
		headHash = bc.state.headHash
		bc.stateMu.RUnlock()
	}

	head, ok := bc.store.GetChainInfo(headHash, false, nil)
	if !ok {
		return primitives.Target{}, ErrUnknownBlock
	}

	window := policy.DifficultyBlockWindow
	headHeight := head.Head.Header.Height

	tailHeight := uint32(0)
	if headHeight > window {
		tailHeight = headHeight - window
	}

	tail, err := bc.findTail(head, tailHeight)
	if err != nil {
		return primitives.Target{}, err
	}

	actualTime := decimal.NewFromInt(int64(head.Head.Header.Timestamp) - int64(tail.Head.Header.Timestamp))
	deltaDiff := head.TotalDifficulty.Sub(tail.TotalDifficulty)

	if headHeight <= window {
		missing := int64(window) - int64(headHeight)
		if missing < 0 {
			missing = 0
		}
		actualTime = actualTime.Add(decimal.NewFromInt(missing * int64(policy.BlockTime)))
		deltaDiff = deltaDiff.Add(primitives.Difficulty{Value: decimal.NewFromInt(missing)})
	}

	expectedTime := decimal.NewFromInt(int64(window) * int64(policy.BlockTime))
	ratio, _ := actualTime.DivRound(expectedTime, 20).Float64()

	maxAdj := policy.DifficultyMaxAdjustmentFactor
	adjustment := ratio
	if adjustment > maxAdj {
		adjustment = maxAdj
	}
	if adjustment < 1/maxAdj {
		adjustment = 1 / maxAdj
	}

	avgDiffPerBlock := deltaDiff.Value.DivRound(decimal.NewFromInt(int64(window)), 40)

	maxD := decimal.NewFromBigInt(policy.BlockTargetMax, 0)
	avgTargetDec := maxD.DivRound(avgDiffPerBlock, 40)
	nextDec := avgTargetDec.Mul(decimal.NewFromFloat(adjustment))

	next := primitives.NewTarget(nextDec.BigInt())
	return next.ToCompact().ToTarget(), nil
}

// findTail locates the block at tailHeight used as the retarget window's
// starting point: directly by height when head sits on the main chain,
// otherwise by walking the fork backward until either a main-chain
// ancestor is reached or DifficultyBlockWindow steps have been taken,
// matching spec.md §4.4 step 1.
func (bc *BlockChain) findTail(head chainstore.ChainInfo, tailHeight uint32) (chainstore.ChainInfo, error) {
	if head.OnMainChain {
		tail, ok := bc.store.GetChainInfoAt(tailHeight, false, nil)
		if !ok {
			return chainstore.ChainInfo{}, ErrUnknownBlock
		}
		return tail, nil
	}

	cur := head
	for steps := uint32(0); !cur.OnMainChain && steps < policy.DifficultyBlockWindow; steps++ {
		parent, ok := bc.store.GetChainInfo(cur.Head.Header.PrevHash, false, nil)
		if !ok {
			return cur, nil
		}
		cur = parent
	}

	if cur.OnMainChain && cur.Head.Header.Height > tailHeight {
		if tail, ok := bc.store.GetChainInfoAt(tailHeight, false, nil); ok {
			return tail, nil
		}
	}
	return cur, nil
}
