package primitives

import (
	"math/big"
	"testing"

	"github.com/nimbusledger/corechain/policy"
)

func TestCompactRoundTrip(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(1),
		big.NewInt(0x1234),
		new(big.Int).Rsh(policy.BlockTargetMax, 4),
		new(big.Int).Set(policy.BlockTargetMax),
	}
	for _, v := range cases {
		target := NewTarget(v)
		compact := target.ToCompact()
		back := compact.ToTarget()

		// Compact encoding is lossy (23-bit mantissa); round-tripping must
		// reproduce the same compact value, not necessarily the same
		// full-precision target.
		if back.ToCompact() != compact {
			t.Fatalf("compact round trip unstable for %s: %08x -> %08x", v, compact, back.ToCompact())
		}
	}
}

func TestTargetIsMetBy(t *testing.T) {
	target := NewTarget(big.NewInt(1000))
	if !target.IsMetBy(big.NewInt(500).Bytes()) {
		t.Fatal("500 should satisfy target 1000")
	}
	if target.IsMetBy(big.NewInt(1500).Bytes()) {
		t.Fatal("1500 should not satisfy target 1000")
	}
}

func TestTargetDepthIncreasesAsTargetShrinks(t *testing.T) {
	full := NewTarget(new(big.Int).Set(policy.BlockTargetMax))
	if full.Depth() != 0 {
		t.Fatalf("max target should have depth 0, got %d", full.Depth())
	}
	halved := NewTarget(new(big.Int).Rsh(policy.BlockTargetMax, 1))
	if halved.Depth() != 1 {
		t.Fatalf("halved target should have depth 1, got %d", halved.Depth())
	}
}

func TestDifficultyRoundTrip(t *testing.T) {
	target := NewTarget(new(big.Int).Rsh(policy.BlockTargetMax, 8))
	diff := DifficultyFromTarget(target)
	back := diff.ToTarget()
	// Full-precision decimal division then back loses at most a handful of
	// low bits to rounding.
	delta := new(big.Int).Sub(target.Value, back.Value)
	delta.Abs(delta)
	if delta.BitLen() > 8 {
		t.Fatalf("difficulty round trip drifted too far: target=%s back=%s", target.Value, back.Value)
	}
}

func TestDifficultyAddSub(t *testing.T) {
	a := Difficulty{Value: One.Value}
	b := a.Add(a)
	if b.Cmp(a) <= 0 {
		t.Fatal("a+a should exceed a")
	}
	c := b.Sub(a)
	if c.Cmp(a) != 0 {
		t.Fatalf("(a+a)-a should equal a, got %s vs %s", c.Value, a.Value)
	}
}
