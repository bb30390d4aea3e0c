package blockchain

import (
	"sync"

	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/primitives"
)

// Event is the sum type delivered to subscribers after a successful push,
// adapted from original_source's utils::observer::Notifier contract to an
// idiomatic Go callback list (spec.md §5, §6).
type Event interface{ isEvent() }

// Extended is emitted when a block extends the current head directly.
type Extended struct {
	Hash  chainhash.Hash
	Block primitives.Block
}

func (Extended) isEvent() {}

// Rebranched is emitted when a fork of greater total difficulty replaces
// the main chain; both lists are ordered ancestor to tip.
type Rebranched struct {
	Reverted []primitives.Block
	Adopted  []primitives.Block
}

func (Rebranched) isEvent() {}

// Notifier is a synchronous observer list: Subscribe registers a
// callback, and notify invokes every registered callback in turn. Event
// delivery happens with the state write lock released but push_lock still
// held (spec.md §5); observers must not call back into Push synchronously.
type Notifier struct {
	mu   sync.Mutex
	subs []func(Event)
}

// Subscribe registers fn to be called for every future event.
func (n *Notifier) Subscribe(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) notify(e Event) {
	n.mu.Lock()
	subs := make([]func(Event), len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
