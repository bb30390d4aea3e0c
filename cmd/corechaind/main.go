// Command corechaind runs the chain engine: it opens (or bootstraps) the
// chain store and accounts trie, starts the fork-choice engine, and hosts
// a connection pool for peers to push blocks through. It is deliberately
// thin — CLI/configuration and transport wiring sit outside the chain
// engine's own scope, so this binary exists only to give the ambient
// stack (config, logging) a concrete runnable consumer.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbusledger/corechain/blockchain"
	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/connpool"
	"github.com/nimbusledger/corechain/nodeconfig"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "corechaind:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := nodeconfig.Load("corechaind")
	if err != nil {
		return err
	}

	logs, err := initLogging(cfg.LogFilePath(), cfg.LevelOrDefault())
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logs.Close()

	store, err := chainstore.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening chain store: %w", err)
	}
	defer store.Close()

	genesis, genesisAccounts, err := nodeconfig.Genesis(nodeconfig.Network(cfg.Network))
	if err != nil {
		return err
	}

	chain, err := blockchain.New(store, genesis, genesisAccounts)
	if err != nil {
		return fmt.Errorf("opening blockchain: %w", err)
	}

	pool := connpool.New(!cfg.DisableListen, cfg.AllowInboundSwap)
	defer pool.Close()

	chain.Subscribe(func(ev blockchain.Event) {
		switch e := ev.(type) {
		case blockchain.Extended:
			fmt.Fprintf(os.Stdout, "extended to height %d (%s)\n", e.Block.Header.Height, e.Hash)
		case blockchain.Rebranched:
			tip := e.Adopted[len(e.Adopted)-1]
			fmt.Fprintf(os.Stdout, "rebranched to height %d (%s)\n", tip.Header.Height, tip.Hash())
		}
	})

	fmt.Fprintf(os.Stdout, "corechaind: network=%s height=%d peers=%d/%d\n",
		cfg.Network, chain.Height(), pool.PeerCount(), cfg.MaxPeers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
