package accounts

import (
	"bytes"
	"encoding/gob"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// rw is the minimal goleveldb surface the trie needs: point reads/writes
// plus range iteration to locate a branch's child by its stored prefix
// key, satisfied directly by both *leveldb.DB and *leveldb.Transaction.
type rw interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

const nodeKeyTag = 'n'

func nodeKey(prefix address.Nibbles) []byte {
	return append([]byte{nodeKeyTag}, []byte(prefix)...)
}

// gobNode mirrors Node in a gob-friendly shape; Children are stored as
// plain [32]byte arrays with a parallel present bitmask since gob cannot
// encode a *Hash pointer array directly.
type gobNode struct {
	Prefix     string
	IsTerminal bool
	Balance    uint64 // valid only when IsTerminal; BasicAccount is the only variant
	Children   [16][32]byte
	Present    [16]bool
}

func encodeNode(n Node) []byte {
	g := gobNode{Prefix: string(n.Prefix), IsTerminal: n.IsTerminal()}
	if n.IsTerminal() {
		if basic, ok := n.Account.(primitives.BasicAccount); ok {
			g.Balance = basic.Balance
		}
	} else {
		for i, h := range n.Children {
			if h != nil {
				g.Present[i] = true
				g.Children[i] = *h
			}
		}
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(g)
	return buf.Bytes()
}

func decodeNode(raw []byte) (Node, error) {
	var g gobNode
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&g); err != nil {
		return Node{}, ErrCorruptNode
	}
	prefix := address.Nibbles(g.Prefix)
	if g.IsTerminal {
		return NewTerminal(prefix, primitives.BasicAccount{Balance: g.Balance}), nil
	}
	n := NewBranch(prefix)
	for i := range g.Children {
		if g.Present[i] {
			h := g.Children[i]
			n.Children[i] = &h
		}
	}
	return n, nil
}

func getNode(r rw, prefix address.Nibbles) (Node, bool) {
	raw, err := r.Get(nodeKey(prefix), nil)
	if err != nil {
		return Node{}, false
	}
	n, err := decodeNode(raw)
	if err != nil {
		return Node{}, false
	}
	return n, true
}

func putNode(w rw, n Node) error {
	return w.Put(nodeKey(n.Prefix), encodeNode(n), nil)
}

func deleteNode(w rw, prefix address.Nibbles) error {
	return w.Delete(nodeKey(prefix), nil)
}

// findChild locates the stored node whose key begins with parent+nibble,
// returning its full prefix. A branch node does not itself record a
// child's full prefix (only its content hash), so locating it is a
// bounded range scan over the key space immediately below the branch.
func findChild(r rw, parent address.Nibbles, nibble byte) (address.Nibbles, bool) {
	start := nodeKey(parent.Concat(address.Nibbles([]byte{address.HexDigit(int(nibble))})))
	limit := append(append([]byte{}, start...), 0xff)
	iter := r.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()
	if iter.Next() {
		key := iter.Key()
		return address.Nibbles(append([]byte{}, key[1:]...)), true
	}
	return "", false
}

// OpenMemory returns an in-memory leveldb database, used by tests that
// need a real transactional backend without touching disk.
func OpenMemory() *leveldb.DB {
	db, _ := leveldb.Open(storage.NewMemStorage(), nil)
	return db
}
