package blockchain

import "github.com/nimbusledger/corechain/chainhash"

// GetBlockLocators returns up to maxCount hashes for gossiping to peers:
// the head hash, then its 10 immediate predecessors, then exponential
// back-off sampling by height along the main chain, always ending with
// genesis (spec.md §4.5).
func (bc *BlockChain) GetBlockLocators(maxCount int) []chainhash.Hash {
	bc.stateMu.RLock()
	headHash := bc.state.headHash
	bc.stateMu.RUnlock()

	head, ok := bc.store.GetChainInfo(headHash, false, nil)
	if !ok {
		return nil
	}

	locators := []chainhash.Hash{headHash}
	if head.Head.Header.Height == 0 {
		return locators
	}

	height := head.Head.Header.Height

	appendAt := func(h uint32) (chainhash.Hash, bool) {
		ci, ok := bc.store.GetChainInfoAt(h, false, nil)
		if !ok {
			return chainhash.Hash{}, false
		}
		return ci.Head.Hash(), true
	}

	for i := 0; i < 10 && len(locators) < maxCount && height > 0; i++ {
		height--
		hash, ok := appendAt(height)
		if !ok {
			return locators
		}
		locators = append(locators, hash)
		if height == 0 {
			return locators
		}
	}

	step := uint32(1)
	for len(locators) < maxCount && height > 0 {
		step *= 2
		if step >= height {
			hash, ok := appendAt(0)
			if ok {
				locators = append(locators, hash)
			}
			return locators
		}
		height -= step
		hash, ok := appendAt(height)
		if !ok {
			return locators
		}
		locators = append(locators, hash)
	}

	// maxCount was reached before the walk got to genesis: make genesis
	// the last entry, dropping the final sample if there is no room.
	if genesis, ok := appendAt(0); ok && locators[len(locators)-1] != genesis {
		if len(locators) >= maxCount {
			locators = locators[:len(locators)-1]
		}
		locators = append(locators, genesis)
	}
	return locators
}
