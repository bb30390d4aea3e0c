package accounts

import (
	"sort"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chaincrypto"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/syndtr/goleveldb/leveldb"
)

// Accounts is the radix trie of account state, keyed by AddressNibbles,
// backed directly by goleveldb so its mutations can ride the same atomic
// write transaction as chain metadata (spec.md §3, §6).
type Accounts struct {
	db *leveldb.DB
}

// Open wraps an existing goleveldb database as an accounts trie.
func Open(db *leveldb.DB) *Accounts { return &Accounts{db: db} }

// Get looks up the account stored at addr.
func (a *Accounts) Get(addr address.Address) (primitives.Account, error) {
	n, ok := getNode(a.db, addr.Nibbles())
	if !ok || !n.IsTerminal() {
		return nil, ErrAccountNotFound
	}
	return n.Account, nil
}

// Hash returns the root hash of the trie as seen through r: pass nil to
// read the last committed state, or an in-flight transaction's rw to see
// its own uncommitted writes (spec.md §4.1's hash(txn?)).
func (a *Accounts) Hash(r rw) chainhash.Hash {
	if r == nil {
		r = a.db
	}
	root, ok := getNode(r, "")
	if !ok {
		return chaincrypto.Blake2b256(nil)
	}
	return root.Hash()
}

// Init seeds an empty trie with a genesis account set, used once when
// bootstrapping a new chain.
func (a *Accounts) Init(tx rw, initial map[address.Address]primitives.Account) error {
	addrs := make([]address.Address, 0, len(initial))
	for addr := range initial {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	for _, addr := range addrs {
		if err := a.insert(tx, addr.Nibbles(), initial[addr]); err != nil {
			return err
		}
	}
	return nil
}

// CommitBlock applies a block body's account-pruning effects: every
// pruned account was, by BlockBody.Verify's invariant, already at a
// to-be-pruned state, and is now removed from the trie. Transaction
// content beyond identity and validity window is out of scope (spec.md §1
// Non-goals), so value transfers do not otherwise touch the trie here.
func (a *Accounts) CommitBlock(tx rw, body *primitives.BlockBody) error {
	for _, p := range body.PrunedAccounts {
		if err := a.delete(tx, p.Address.Nibbles()); err != nil {
			return err
		}
	}
	return nil
}

// RevertBlock undoes CommitBlock: every pruned account is reinserted with
// its recorded pre-pruning state, as required to revert a rebranched-away
// block (spec.md §4.3 rebranch path).
func (a *Accounts) RevertBlock(tx rw, body *primitives.BlockBody) error {
	for _, p := range body.PrunedAccounts {
		if err := a.insert(tx, p.Address.Nibbles(), p.Account); err != nil {
			return err
		}
	}
	return nil
}

// BuildProof constructs a Merkle proof covering addrs, ordering the
// collected path nodes bottom-up in post-order: appending a sentinel above
// every hex digit to each prefix makes a node sort after all the nodes it
// is a prefix of, and keeps each subtree contiguous, which is the order
// Proof.Verify consumes.
func (a *Accounts) BuildProof(addrs []address.Address) (Proof, error) {
	seen := make(map[address.Nibbles]Node)
	for _, addr := range addrs {
		if err := a.collectPath(seen, addr.Nibbles()); err != nil {
			return Proof{}, err
		}
	}

	nodes := make([]Node, 0, len(seen))
	for _, n := range seen {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return string(nodes[i].Prefix)+"~" < string(nodes[j].Prefix)+"~"
	})
	return Proof{Nodes: nodes}, nil
}

func (a *Accounts) collectPath(into map[address.Nibbles]Node, key address.Nibbles) error {
	prefix := address.Nibbles("")
	for {
		n, ok := getNode(a.db, prefix)
		if !ok {
			return ErrNodeNotFound
		}
		into[prefix] = n
		if n.IsTerminal() {
			return nil
		}
		if prefix.Len() >= key.Len() {
			return ErrKeyNotUnderPrefix
		}
		nibble := key.At(prefix.Len())
		if n.Children[nibble] == nil {
			return ErrAccountNotFound
		}
		child, ok := findChild(a.db, prefix, nibble)
		if !ok {
			return ErrNodeNotFound
		}
		prefix = child
	}
}

// insert places account at key, creating or splitting branch nodes as
// needed and relinking every ancestor's child-hash pointer up to the
// root.
func (a *Accounts) insert(tx rw, key address.Nibbles, account primitives.Account) error {
	_, ok := getNode(tx, "")
	if !ok {
		term := NewTerminal(key, account)
		if err := putNode(tx, term); err != nil {
			return ErrWriteFailed
		}
		h := term.Hash()
		if err := putNode(tx, NewBranch("").WithChild(key.At(0), &h)); err != nil {
			return ErrWriteFailed
		}
		return nil
	}
	_, err := a.insertAt(tx, "", key, account)
	return err
}

// insertAt inserts (key, account) into the subtree rooted at nodePrefix,
// relinks every ancestor whose child hash changed (including a branch a
// split promoted above nodePrefix), and returns the trie's new root hash.
func (a *Accounts) insertAt(tx rw, nodePrefix, key address.Nibbles, account primitives.Account) (chainhash.Hash, error) {
	node, ok := getNode(tx, nodePrefix)
	if !ok {
		return chainhash.Hash{}, ErrNodeNotFound
	}

	if node.Prefix == key {
		updated := NewTerminal(key, account)
		if err := putNode(tx, updated); err != nil {
			return chainhash.Hash{}, ErrWriteFailed
		}
		return a.relink(tx, nodePrefix, updated.Hash())
	}

	common := node.Prefix.CommonPrefix(key)

	if common.Len() < node.Prefix.Len() {
		// Split: node's old position is replaced by a new branch at
		// common, with node and the new terminal as its two children.
		return a.split(tx, nodePrefix, node, common, key, account)
	}

	// node.Prefix is a strict prefix of key and node is necessarily a
	// branch (terminal case handled by the equality check above).
	nibble := key.At(node.Prefix.Len())
	childHashPtr := node.Children[nibble]
	if childHashPtr == nil {
		newTerm := NewTerminal(key, account)
		if err := putNode(tx, newTerm); err != nil {
			return chainhash.Hash{}, ErrWriteFailed
		}
		h := newTerm.Hash()
		updated := node.WithChild(nibble, &h)
		if err := putNode(tx, updated); err != nil {
			return chainhash.Hash{}, ErrWriteFailed
		}
		return a.relink(tx, nodePrefix, updated.Hash())
	}

	childPrefix, ok := findChild(tx, nodePrefix, nibble)
	if !ok {
		return chainhash.Hash{}, ErrNodeNotFound
	}
	return a.insertAt(tx, childPrefix, key, account)
}

// split replaces the node stored at oldPrefix with a new branch at
// common, whose two children are the unmodified existing node and a
// freshly created terminal for key.
func (a *Accounts) split(tx rw, oldPrefix address.Nibbles, existing Node, common, key address.Nibbles, account primitives.Account) (chainhash.Hash, error) {
	newTerm := NewTerminal(key, account)
	if err := putNode(tx, newTerm); err != nil {
		return chainhash.Hash{}, ErrWriteFailed
	}

	branch := NewBranch(common)
	existingHash := existing.Hash()
	newHash := newTerm.Hash()
	branch = branch.WithChild(existing.Prefix.At(common.Len()), &existingHash)
	branch = branch.WithChild(key.At(common.Len()), &newHash)
	if err := putNode(tx, branch); err != nil {
		return chainhash.Hash{}, ErrWriteFailed
	}

	if oldPrefix.Len() == 0 {
		// existing node was the root: the new branch becomes the root.
		return branch.Hash(), nil
	}
	return a.relink(tx, common, branch.Hash())
}

// relink propagates nodePrefix's new hash up to its parent branch, found
// by re-deriving the parent's prefix (all but the last nibble matched
// during descent) and rewriting its child slot. The recursion bottoms out
// at the root, whose updated hash is simply returned.
func (a *Accounts) relink(tx rw, nodePrefix address.Nibbles, newHash chainhash.Hash) (chainhash.Hash, error) {
	if nodePrefix.Len() == 0 {
		return newHash, nil
	}
	parentPrefix, nibble, ok := findParent(tx, nodePrefix)
	if !ok {
		return newHash, nil
	}
	parent, ok := getNode(tx, parentPrefix)
	if !ok {
		return chainhash.Hash{}, ErrNodeNotFound
	}
	updated := parent.WithChild(nibble, &newHash)
	if err := putNode(tx, updated); err != nil {
		return chainhash.Hash{}, ErrWriteFailed
	}
	return a.relink(tx, parentPrefix, updated.Hash())
}

// findParent walks from the root down to nodePrefix to discover its
// immediate parent's prefix and the nibble under which nodePrefix hangs.
// The trie has no parent pointers, matching the compact on-disk node
// encoding; tracing from the root is bounded by the 40-nibble key depth.
func findParent(r rw, nodePrefix address.Nibbles) (address.Nibbles, byte, bool) {
	prefix := address.Nibbles("")
	for {
		n, ok := getNode(r, prefix)
		if !ok || n.IsTerminal() {
			return "", 0, false
		}
		if !n.Prefix.IsPrefixOf(nodePrefix) || n.Prefix.Len() >= nodePrefix.Len() {
			return "", 0, false
		}
		nibble := nodePrefix.At(n.Prefix.Len())
		child, ok := findChild(r, prefix, nibble)
		if !ok {
			return "", 0, false
		}
		if child == nodePrefix {
			return prefix, nibble, true
		}
		prefix = child
	}
}

// delete removes the account at key, collapsing a branch left with a
// single remaining child back into that child directly.
func (a *Accounts) delete(tx rw, key address.Nibbles) error {
	node, ok := getNode(tx, key)
	if !ok || !node.IsTerminal() {
		return ErrAccountNotFound
	}
	if err := deleteNode(tx, key); err != nil {
		return ErrWriteFailed
	}

	if key.Len() == 0 {
		return nil
	}
	parentPrefix, nibble, ok := findParent(tx, key)
	if !ok {
		return nil
	}
	return a.deleteChild(tx, parentPrefix, nibble)
}

// deleteChild removes the child at nibble from the branch at
// parentPrefix. If the branch is left with exactly one child, it
// collapses: the sole remaining child is re-keyed to absorb the branch's
// own prefix, and the branch node itself is removed.
func (a *Accounts) deleteChild(tx rw, parentPrefix address.Nibbles, nibble byte) error {
	parent, ok := getNode(tx, parentPrefix)
	if !ok {
		return ErrNodeNotFound
	}
	parent.Children[nibble] = nil

	if parent.ChildCount() == 1 {
		soleNibble := parent.SoleChildNibble()
		childPrefix, ok := findChild(tx, parentPrefix, soleNibble)
		if !ok {
			return ErrNodeNotFound
		}
		child, ok := getNode(tx, childPrefix)
		if !ok {
			return ErrNodeNotFound
		}
		if err := deleteNode(tx, childPrefix); err != nil {
			return ErrWriteFailed
		}
		if err := deleteNode(tx, parentPrefix); err != nil {
			return ErrWriteFailed
		}

		if parentPrefix.Len() == 0 {
			child.Prefix = ""
			if err := putNode(tx, child); err != nil {
				return ErrWriteFailed
			}
			return nil
		}
		grandparentPrefix, grandNibble, ok := findParent(tx, parentPrefix)
		if !ok {
			// parentPrefix was itself the root's direct representation;
			// child now becomes the root.
			if err := putNode(tx, child); err != nil {
				return ErrWriteFailed
			}
			return nil
		}
		if err := putNode(tx, child); err != nil {
			return ErrWriteFailed
		}
		h := child.Hash()
		return a.relinkChild(tx, grandparentPrefix, grandNibble, h)
	}

	if err := putNode(tx, parent); err != nil {
		return ErrWriteFailed
	}
	if parentPrefix.Len() == 0 {
		return nil
	}
	gp, gn, ok := findParent(tx, parentPrefix)
	if !ok {
		return nil
	}
	return a.relinkChild(tx, gp, gn, parent.Hash())
}

func (a *Accounts) relinkChild(tx rw, parentPrefix address.Nibbles, nibble byte, newHash chainhash.Hash) error {
	parent, ok := getNode(tx, parentPrefix)
	if !ok {
		return ErrNodeNotFound
	}
	updated := parent.WithChild(nibble, &newHash)
	if err := putNode(tx, updated); err != nil {
		return ErrWriteFailed
	}
	_, err := a.relink(tx, parentPrefix, updated.Hash())
	return err
}
