// Package primitives holds the block, account, and difficulty types shared
// by the accounts trie and the blockchain engine, per spec.md §3.
package primitives

import (
	"math/big"

	"github.com/nimbusledger/corechain/policy"
	"github.com/shopspring/decimal"
)

// TargetCompact is the on-wire compact encoding of a PoW target, using the
// same IEEE754-like 8-bit-exponent/23-bit-mantissa layout the teacher's
// blockchain/difficulty.go CompactToBig/BigToCompact implement for Bitcoin
// "nBits", reused verbatim since spec.md §3 calls for "compact PoW target
// encoding" with no different on-wire layout specified.
type TargetCompact uint32

// Target is the arbitrary-precision PoW target a block's hash must not
// exceed to satisfy proof of work.
type Target struct {
	Value *big.Int
}

// Difficulty is the arbitrary-precision inverse of a Target, expressed as a
// decimal so that retargeting arithmetic (spec.md §4.4/§9) never collapses
// to float64.
type Difficulty struct {
	Value decimal.Decimal
}

// NewTarget wraps v as a Target, clamped to [1, BlockTargetMax].
func NewTarget(v *big.Int) Target {
	clamped := new(big.Int).Set(v)
	if clamped.Sign() < 1 {
		clamped.SetInt64(1)
	}
	if clamped.Cmp(policy.BlockTargetMax) > 0 {
		clamped.Set(policy.BlockTargetMax)
	}
	return Target{Value: clamped}
}

// ToCompact truncates t to its on-wire compact representation.
func (t Target) ToCompact() TargetCompact {
	return TargetCompact(bigToCompact(t.Value))
}

// ToTarget expands a compact target back to full precision. Round-
// tripping Target -> TargetCompact -> Target is how spec.md §4.4 step 5
// truncates retarget precision to on-wire precision.
func (c TargetCompact) ToTarget() Target {
	return NewTarget(compactToBig(uint32(c)))
}

// IsMetBy reports whether hash (interpreted as a big-endian unsigned
// integer) satisfies the target, i.e. hash <= target.
func (t Target) IsMetBy(hash []byte) bool {
	hv := new(big.Int).SetBytes(hash)
	return hv.Cmp(t.Value) <= 0
}

// Depth returns the number of leading zero bits t has relative to
// BlockTargetMax's bit length. A super-block of depth d satisfies
// hash < target / 2^d; comparing the depth of a PoW hash (treated as a
// Target) against the depth of its required target yields exactly the
// super-block depth the NIPoPoW prover needs (spec.md glossary).
func (t Target) Depth() uint8 {
	maxBits := policy.BlockTargetMax.BitLen()
	bits := t.Value.BitLen()
	if bits >= maxBits {
		return 0
	}
	return uint8(maxBits - bits)
}

// DifficultyFromTarget computes BLOCK_TARGET_MAX / target as an
// arbitrary-precision Difficulty.
func DifficultyFromTarget(t Target) Difficulty {
	maxD := decimal.NewFromBigInt(policy.BlockTargetMax, 0)
	targetD := decimal.NewFromBigInt(t.Value, 0)
	return Difficulty{Value: maxD.DivRound(targetD, 40)}
}

// ToTarget converts a Difficulty back into a (rounded) Target.
func (d Difficulty) ToTarget() Target {
	maxD := decimal.NewFromBigInt(policy.BlockTargetMax, 0)
	avg := maxD.DivRound(d.Value, 40)
	return NewTarget(avg.BigInt())
}

// Add returns d + other.
func (d Difficulty) Add(other Difficulty) Difficulty {
	return Difficulty{Value: d.Value.Add(other.Value)}
}

// Sub returns d - other.
func (d Difficulty) Sub(other Difficulty) Difficulty {
	return Difficulty{Value: d.Value.Sub(other.Value)}
}

// Cmp compares d and other per decimal.Decimal.Cmp semantics.
func (d Difficulty) Cmp(other Difficulty) int {
	return d.Value.Cmp(other.Value)
}

// One is the difficulty of the easiest possible target (BlockTargetMax).
var One = Difficulty{Value: decimal.NewFromInt(1)}

// bigToCompact and compactToBig implement the compact float encoding
// described in the teacher's blockchain/difficulty.go doc comment,
// reproduced here since that package was not retrieved into the pack.
func bigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(new(big.Int).Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

func compactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := compact >> 24

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}
