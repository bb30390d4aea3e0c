// Package policy holds the consensus-critical constants that must match
// exactly across every node on the network, per spec.md §6.
package policy

import "math/big"

const (
	// BlockTime is the target spacing between blocks, in seconds.
	BlockTime uint32 = 60

	// DifficultyBlockWindow is the number of blocks over which difficulty
	// is averaged for retargeting.
	DifficultyBlockWindow uint32 = 120

	// DifficultyMaxAdjustmentFactor bounds how much the retarget can move
	// the next target relative to the running average in a single step.
	DifficultyMaxAdjustmentFactor float64 = 2.0

	// TransactionValidityWindow is the number of most-recent blocks whose
	// transaction identifiers are tracked for replay prevention.
	TransactionValidityWindow uint32 = 120

	// PeerCountMax is the maximum number of established peer connections.
	PeerCountMax = 4000

	// PeerCountPerIPMax is the maximum number of connections to a single
	// IP address.
	PeerCountPerIPMax = 20

	// InboundPeerCountPerSubnetMax is the maximum number of inbound
	// connections accepted from a single subnet.
	InboundPeerCountPerSubnetMax = 100

	// OutboundPeerCountPerSubnetMax is the maximum number of outbound
	// connections made into a single subnet.
	OutboundPeerCountPerSubnetMax = 2

	// PeerCountDumbMax is the maximum number of "dumb" (non-WS/WSS)
	// protocol peers accepted.
	PeerCountDumbMax = 0

	// IPv4SubnetMask is the CIDR prefix length used to bucket IPv4 peers
	// into subnets.
	IPv4SubnetMask = 24

	// IPv6SubnetMask is the CIDR prefix length used to bucket IPv6 peers
	// into subnets.
	IPv6SubnetMask = 64
)

// BlockTargetMax is the maximum (easiest) PoW target, corresponding to
// difficulty 1: 2^240 - 1, a 256-bit value whose top two bytes are zero
// and whose remaining 240 bits are all set.
var BlockTargetMax = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 240)
	return n.Sub(n, big.NewInt(1))
}()
