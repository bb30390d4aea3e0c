package blockchain

import (
	"math"
	"math/big"
	"sort"

	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/primitives"
)

// NIPoPoW tuning parameters from spec.md §4.6.
const (
	nipopowM     = 240
	nipopowK     = 120
	nipopowDelta = 0.15
)

// ChainProof is a succinct proof of chain work: a multi-depth prefix of
// full super-blocks and a suffix of recent headers, letting a light
// client verify accumulated work without downloading every block.
type ChainProof struct {
	Prefix []primitives.Block
	Suffix []primitives.BlockHeader
}

// GetChainProof returns the current NIPoPoW proof, computing and caching
// it on first access; the cache is invalidated by every Extended or
// Rebranched state transition (spec.md §4.6, §5).
func (bc *BlockChain) GetChainProof() (*ChainProof, error) {
	bc.stateMu.RLock()
	if bc.state.chainProof != nil {
		p := bc.state.chainProof
		bc.stateMu.RUnlock()
		return p, nil
	}
	headHash := bc.state.headHash
	bc.stateMu.RUnlock()

	headInfo, ok := bc.store.GetChainInfo(headHash, false, nil)
	if !ok {
		return nil, ErrUnknownBlock
	}
	headHeight := headInfo.Head.Header.Height

	suffixStartHeight := uint32(1)
	if headHeight > nipopowK {
		suffixStartHeight = headHeight - nipopowK
	}
	anchor, ok := bc.store.GetChainInfoAt(suffixStartHeight, false, nil)
	if !ok {
		anchor = headInfo
	}

	maxDepth := anchor.SuperBlockCounts.CandidateDepth(nipopowM)

	prefixByHeight := make(map[uint32]primitives.Block)
	startHeight := uint32(1)

	for d := int(maxDepth); d >= 0; d-- {
		depth := uint8(d)
		chain := bc.getSuperChain(depth, anchor)
		if len(chain) == 0 {
			continue
		}
		depths := make([]uint8, len(chain))
		for i, ci := range chain {
			depths[i] = powDepth(ci)
		}

		if len(chain) >= nipopowM && isGoodSuperChain(chain, depths, depth) {
			mth := chain[len(chain)-nipopowM]
			if mth.Head.Header.Height > startHeight {
				startHeight = mth.Head.Header.Height
			}
		}

		for _, ci := range chain {
			if ci.Head.Header.Height >= startHeight {
				prefixByHeight[ci.Head.Header.Height] = ci.Head
			}
		}
	}

	heights := make([]uint32, 0, len(prefixByHeight))
	for h := range prefixByHeight {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	prefix := make([]primitives.Block, 0, len(heights))
	for _, h := range heights {
		prefix = append(prefix, prefixByHeight[h])
	}

	suffix := make([]primitives.BlockHeader, 0, headHeight-anchor.Head.Header.Height+1)
	for h := anchor.Head.Header.Height; h <= headHeight; h++ {
		ci, ok := bc.store.GetChainInfoAt(h, false, nil)
		if !ok {
			break
		}
		suffix = append(suffix, ci.Head.Header)
	}

	proof := &ChainProof{Prefix: prefix, Suffix: suffix}

	bc.stateMu.Lock()
	if bc.state.headHash == headHash {
		bc.state.chainProof = proof
	}
	bc.stateMu.Unlock()

	return proof, nil
}

// powDepth returns the actual super-block depth a block's PoW digest
// satisfies (as opposed to the depth its declared target merely
// requires), used to classify entries within a super-chain.
func powDepth(ci chainstore.ChainInfo) uint8 {
	pow := ci.Head.PoW()
	return primitives.NewTarget(new(big.Int).SetBytes(pow[:])).Depth()
}

// getSuperChain walks interlink references from anchor back to genesis,
// collecting the super-chain of the given depth, per spec.md §4.6's index
// formula: max(depth - depth(header.n_bits), -1), where -1 means follow
// prev_hash directly.
func (bc *BlockChain) getSuperChain(depth uint8, anchor chainstore.ChainInfo) []chainstore.ChainInfo {
	chain := []chainstore.ChainInfo{anchor}
	cur := anchor

	for cur.Head.Header.Height > 0 {
		targetDepth := cur.Head.Header.NBits.ToTarget().Depth()
		idx := int(depth) - int(targetDepth)

		var nextHash = cur.Head.Header.PrevHash
		if idx >= 0 && idx < len(cur.Head.Interlink.Hashes) {
			nextHash = cur.Head.Interlink.Hashes[idx]
		}

		next, ok := bc.store.GetChainInfo(nextHash, false, nil)
		if !ok {
			break
		}
		chain = append(chain, next)
		cur = next
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// isGoodSuperChain reports whether chain (ascending by height, every
// entry a super-block of at least depth) satisfies both the
// super-quality and multi-level-quality predicates of spec.md §4.6.
func isGoodSuperChain(chain []chainstore.ChainInfo, depths []uint8, depth uint8) bool {
	return hasSuperQuality(chain, depth) && hasMultiLevelQuality(chain, depths, depth)
}

// hasSuperQuality requires every suffix window of length i >= M to span
// no more than (1/(1-delta)) * 2^depth block-heights per entry.
func hasSuperQuality(chain []chainstore.ChainInfo, depth uint8) bool {
	n := len(chain)
	for i := nipopowM; i <= n; i++ {
		window := chain[n-i:]
		spanned := window[len(window)-1].Head.Header.Height - window[0].Head.Header.Height + 1
		threshold := (1 - nipopowDelta) * math.Pow(2, -float64(depth)) * float64(spanned)
		if float64(i) <= threshold {
			return false
		}
	}
	return true
}

// hasMultiLevelQuality requires that within every window of M consecutive
// entries, for every pair of levels mu > j (both >= the chain's own
// depth), the count of entries reaching level mu exceeds
// (1-delta) * 2^(j-mu) times the count reaching level j.
func hasMultiLevelQuality(chain []chainstore.ChainInfo, depths []uint8, baseDepth uint8) bool {
	n := len(chain)
	if n < nipopowM {
		return true
	}

	var maxLevel uint8 = baseDepth
	for _, d := range depths {
		if d > maxLevel {
			maxLevel = d
		}
	}

	for start := 0; start+nipopowM <= n; start++ {
		window := depths[start : start+nipopowM]
		countAt := func(level uint8) int {
			c := 0
			for _, d := range window {
				if d >= level {
					c++
				}
			}
			return c
		}
		for mu := baseDepth; mu <= maxLevel; mu++ {
			for j := baseDepth; j < mu; j++ {
				cm := countAt(mu)
				cj := countAt(j)
				threshold := (1 - nipopowDelta) * math.Pow(2, float64(int(j)-int(mu))) * float64(cj)
				if float64(cm) <= threshold {
					return false
				}
			}
			if mu == 255 {
				break
			}
		}
	}
	return true
}
