// Package chainstore persists ChainInfo records (a block plus its
// accumulated chain metadata) by hash and by main-chain height, and tracks
// the current head pointer, per spec.md §3 and §4.2.
package chainstore

import (
	"math/big"

	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/primitives"
)

// SuperBlockCounts maps super-block depth to the number of super-blocks of
// at least that depth seen so far on the chain leading to this block
// (spec.md §3).
type SuperBlockCounts struct {
	counts map[uint8]uint32
}

// Get returns the count at depth, or 0 if no super-block has reached it.
func (s SuperBlockCounts) Get(depth uint8) uint32 {
	if s.counts == nil {
		return 0
	}
	return s.counts[depth]
}

// next returns the counts for a child block whose PoW satisfies depth
// powDepth: every depth from 0 up to and including powDepth is
// incremented by one relative to s, per spec.md §3's ChainInfo invariant.
func (s SuperBlockCounts) next(powDepth uint8) SuperBlockCounts {
	out := make(map[uint8]uint32, len(s.counts)+int(powDepth)+1)
	for d, c := range s.counts {
		out[d] = c
	}
	for d := uint8(0); ; d++ {
		out[d] = out[d] + 1
		if d == powDepth {
			break
		}
		if d == 255 {
			break
		}
	}
	return SuperBlockCounts{counts: out}
}

// CandidateDepth returns the greatest depth whose count is at least m,
// used to bound the NIPoPoW prover's search (spec.md §4.6).
func (s SuperBlockCounts) CandidateDepth(m uint32) uint8 {
	var maxDepth uint8
	for d, c := range s.counts {
		if c >= m && d >= maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// ChainInfo bundles a block with the chain metadata accumulated up to and
// including it: total difficulty/work, whether it currently sits on the
// main chain, its main-chain successor if any, and its super-block depth
// counts (spec.md §3).
type ChainInfo struct {
	Head               primitives.Block
	TotalDifficulty    primitives.Difficulty
	TotalWork          primitives.Difficulty
	OnMainChain        bool
	MainChainSuccessor *chainhash.Hash
	SuperBlockCounts   SuperBlockCounts
}

// Initial constructs the ChainInfo for a genesis block: on the main chain,
// with difficulty/work seeded from its own target and a single super-block
// count entry per depth its PoW satisfies.
func Initial(genesis primitives.Block) ChainInfo {
	diff := primitives.DifficultyFromTarget(genesis.Header.NBits.ToTarget())
	depth := targetOf(genesis).Depth()
	return ChainInfo{
		Head:             genesis,
		TotalDifficulty:  diff,
		TotalWork:        diff,
		OnMainChain:      true,
		SuperBlockCounts: SuperBlockCounts{}.next(depth),
	}
}

// Next constructs the ChainInfo for block, a direct child of the block
// this ChainInfo describes: accumulated difficulty/work plus one block's
// worth, and super_block_counts incremented at every depth the child's PoW
// satisfies (spec.md §3).
func (c ChainInfo) Next(block primitives.Block) ChainInfo {
	diff := primitives.DifficultyFromTarget(block.Header.NBits.ToTarget())
	depth := targetOf(block).Depth()
	return ChainInfo{
		Head:             block,
		TotalDifficulty:  c.TotalDifficulty.Add(diff),
		TotalWork:        c.TotalWork.Add(diff),
		OnMainChain:      false,
		SuperBlockCounts: c.SuperBlockCounts.next(depth),
	}
}

// targetOf treats a block's PoW hash as a Target for depth comparisons,
// per spec.md glossary ("a block whose PoW hash is below Target/2^d").
func targetOf(block primitives.Block) primitives.Target {
	pow := block.PoW()
	return primitives.NewTarget(new(big.Int).SetBytes(pow[:]))
}
