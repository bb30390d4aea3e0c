package blockchain

import (
	"testing"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/stretchr/testify/require"
)

// TestGetBlockLocatorsEndsAtGenesis guards against the genesis sentinel
// regressing to the wrong height: the last entry must always be the
// genesis hash (spec.md §4.5), never the height-1 block above it.
func TestGetBlockLocatorsEndsAtGenesis(t *testing.T) {
	bc, genesis, accountsHash := newTestChain(t)

	var miner address.Address
	miner[0] = 0x09

	prev := genesis
	for i := 0; i < 15; i++ {
		next := buildChild(t, bc, prev, accountsHash, miner, nil, nil)
		require.Equal(t, ResultExtended, bc.Push(next).Kind)
		prev = next
	}

	locators := bc.GetBlockLocators(100)
	require.NotEmpty(t, locators)
	require.Equal(t, genesis.Hash(), locators[len(locators)-1], "last locator must be the genesis hash")
}

// TestGetBlockLocatorsGenesisOnly covers the chain-of-one-block case, where
// the head itself is genesis.
func TestGetBlockLocatorsGenesisOnly(t *testing.T) {
	bc, genesis, _ := newTestChain(t)

	locators := bc.GetBlockLocators(100)
	require.Equal(t, []chainhash.Hash{genesis.Hash()}, locators)
}
