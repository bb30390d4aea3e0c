package nodeconfig

import (
	"fmt"

	"github.com/nimbusledger/corechain/accounts"
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chaincrypto"
	"github.com/nimbusledger/corechain/policy"
	"github.com/nimbusledger/corechain/primitives"
)

// Network identifies which genesis block and accounts a node bootstraps
// from, mirroring the teacher's per-net params grouping in params.go.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
	Simnet  Network = "simnet"
)

// Genesis returns the genesis block and initial account balances for net.
func Genesis(net Network) (primitives.Block, map[address.Address]primitives.Account, error) {
	switch net {
	case Mainnet:
		return genesisFor("corechain mainnet genesis", nil)
	case Testnet:
		return genesisFor("corechain testnet genesis", nil)
	case Regtest, Simnet:
		faucet := address.FromHash(chaincrypto.Blake2b256([]byte("corechain regtest faucet")))
		return genesisFor("corechain regtest genesis", map[address.Address]primitives.Account{
			faucet: primitives.BasicAccount{Balance: 100_000_000_000},
		})
	default:
		return primitives.Block{}, nil, fmt.Errorf("nodeconfig: unknown network %q", net)
	}
}

// genesisFor builds a genesis block whose AccountsHash is the real root
// hash of initial once seeded into a throwaway trie, so BlockChain.New's
// bootstrap and every subsequent push agree on the starting accounts hash.
func genesisFor(extra string, initial map[address.Address]primitives.Account) (primitives.Block, map[address.Address]primitives.Account, error) {
	db := accounts.OpenMemory()
	defer db.Close()

	scratch := accounts.Open(db)
	if err := scratch.Init(db, initial); err != nil {
		return primitives.Block{}, nil, fmt.Errorf("nodeconfig: seeding genesis accounts: %w", err)
	}

	body := &primitives.BlockBody{ExtraData: []byte(extra)}
	header := primitives.BlockHeader{
		Version:      1,
		BodyHash:     body.Hash(),
		AccountsHash: scratch.Hash(nil),
		NBits:        primitives.NewTarget(policy.BlockTargetMax).ToCompact(),
		Height:       0,
		Timestamp:    0,
		Nonce:        0,
	}
	return primitives.Block{Header: header, Body: body}, initial, nil
}
