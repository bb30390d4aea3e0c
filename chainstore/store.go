package chainstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/decred/dcrd/lru"
	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/log"
	"github.com/nimbusledger/corechain/primitives"
	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var logger log.Logger = log.Disabled

// UseLogger wires a Logger for the chainstore package.
func UseLogger(l log.Logger) { logger = l }

// Direction controls which way Store.GetBlocks walks the main chain.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// reader is satisfied by *leveldb.DB, *leveldb.Transaction, and
// *leveldb.Snapshot alike, letting every read accept an optional external
// transaction for snapshot-consistent reads per spec.md §4.2.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
}

const (
	prefixChainInfo = 'c'
	prefixBody      = 'b'
	prefixHeight    = 'H'
	keyHead         = "head"
)

func chainInfoKey(hash chainhash.Hash) []byte {
	return append([]byte{prefixChainInfo}, hash[:]...)
}

func bodyKey(hash chainhash.Hash) []byte {
	return append([]byte{prefixBody}, hash[:]...)
}

func heightKey(height uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = prefixHeight
	binary.BigEndian.PutUint32(buf[1:], height)
	return buf
}

// Store wraps a goleveldb database as the transactional KV backend for
// chain metadata, per spec.md §4.2 and §6.
type Store struct {
	db    *leveldb.DB
	cache *lru.Map[chainhash.Hash, ChainInfo]
}

// Open opens (creating if necessary) a goleveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: lru.NewMap[chainhash.Hash, ChainInfo](4096)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying goleveldb handle so the accounts trie can
// share the exact same database and transactions as chain metadata,
// satisfying spec.md §6's single atomic multi-key commit requirement.
func (s *Store) DB() *leveldb.DB { return s.db }

// Tx is a write transaction against the store, directly backed by
// goleveldb's own ACID Transaction type (spec.md §6's WriteTransaction
// contract, realized rather than reinvented).
type Tx struct {
	ltx *leveldb.Transaction
}

// Begin starts a new write transaction.
func (s *Store) Begin() (*Tx, error) {
	ltx, err := s.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &Tx{ltx: ltx}, nil
}

// Commit finalizes the transaction's writes atomically.
func (t *Tx) Commit() error { return t.ltx.Commit() }

// Abort discards all writes made in the transaction.
func (t *Tx) Abort() { t.ltx.Discard() }

// Raw exposes the underlying goleveldb transaction so other packages
// sharing this database (the accounts trie) can enlist their own writes
// in the same atomic commit.
func (t *Tx) Raw() *leveldb.Transaction { return t.ltx }

func (s *Store) reader(tx *Tx) reader {
	if tx != nil {
		return tx.ltx
	}
	return s.db
}

func gobEncode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("chainstore: encode: %v", err))
	}
	return buf.Bytes()
}

func gobDecode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// storedChainInfo is the gob-friendly projection of ChainInfo: the header
// and interlink are always stored, the body only when requested, and the
// super-block counts map is stored directly.
type storedChainInfo struct {
	Header             gobHeader
	Interlink          []chainhash.Hash
	TotalDifficulty    string
	TotalWork          string
	OnMainChain        bool
	MainChainSuccessor *chainhash.Hash
	Counts             map[uint8]uint32
}

type gobHeader struct {
	Version       uint16
	PrevHash      chainhash.Hash
	InterlinkHash chainhash.Hash
	BodyHash      chainhash.Hash
	AccountsHash  chainhash.Hash
	NBits         uint32
	Height        uint32
	Timestamp     uint32
	Nonce         uint32
}

// GetChainInfo retrieves the ChainInfo for hash. When includeBody is true
// and a body was stored for this block, it is attached. tx, if non-nil,
// provides snapshot-consistent reads within an in-flight write
// transaction.
func (s *Store) GetChainInfo(hash chainhash.Hash, includeBody bool, tx *Tx) (ChainInfo, bool) {
	r := s.reader(tx)

	if tx == nil && includeBody {
		if ci, ok := s.cache.Get(hash); ok {
			return ci, true
		}
	}

	raw, err := r.Get(chainInfoKey(hash), nil)
	if err != nil {
		return ChainInfo{}, false
	}

	ci, err := decodeChainInfo(raw)
	if err != nil {
		logger.Errorf("chainstore: corrupt chain info for %s: %v", hash, err)
		return ChainInfo{}, false
	}

	if includeBody {
		if bodyRaw, err := r.Get(bodyKey(hash), nil); err == nil {
			body, err := decodeBody(bodyRaw)
			if err == nil {
				ci.Head.Body = body
			}
		}
		if tx == nil {
			s.cache.Put(hash, ci)
		}
	}

	return ci, true
}

// GetChainInfoAt retrieves the main-chain ChainInfo at height.
func (s *Store) GetChainInfoAt(height uint32, includeBody bool, tx *Tx) (ChainInfo, bool) {
	r := s.reader(tx)
	hashRaw, err := r.Get(heightKey(height), nil)
	if err != nil {
		return ChainInfo{}, false
	}
	var hash chainhash.Hash
	copy(hash[:], hashRaw)
	return s.GetChainInfo(hash, includeBody, tx)
}

// GetBlock retrieves just the block for hash.
func (s *Store) GetBlock(hash chainhash.Hash, includeBody bool, tx *Tx) (primitives.Block, bool) {
	ci, ok := s.GetChainInfo(hash, includeBody, tx)
	return ci.Head, ok
}

// GetBlockAt retrieves the main-chain block at height.
func (s *Store) GetBlockAt(height uint32, tx *Tx) (primitives.Block, bool) {
	ci, ok := s.GetChainInfoAt(height, true, tx)
	return ci.Head, ok
}

// GetHead returns the current head hash, if any block has been stored.
func (s *Store) GetHead(tx *Tx) (chainhash.Hash, bool) {
	r := s.reader(tx)
	raw, err := r.Get([]byte(keyHead), nil)
	if err != nil {
		return chainhash.Hash{}, false
	}
	var h chainhash.Hash
	copy(h[:], raw)
	return h, true
}

// PutChainInfo persists info under hash, optionally including its body.
func (s *Store) PutChainInfo(tx *Tx, hash chainhash.Hash, info ChainInfo, includeBody bool) {
	tx.ltx.Put(chainInfoKey(hash), encodeChainInfo(info))

	if includeBody && info.Head.Body != nil {
		tx.ltx.Put(bodyKey(hash), encodeBody(*info.Head.Body))
	}

	if info.OnMainChain {
		tx.ltx.Put(heightKey(info.Head.Header.Height), hash[:])
	}

	s.cache.Delete(hash)
}

// SetHead updates the head pointer to hash.
func (s *Store) SetHead(tx *Tx, hash chainhash.Hash) {
	tx.ltx.Put([]byte(keyHead), hash[:])
}

// GetBlocks walks count blocks of the main chain starting at startHash in
// the given direction.
func (s *Store) GetBlocks(startHash chainhash.Hash, count uint32, includeBody bool, dir Direction, tx *Tx) []primitives.Block {
	ci, ok := s.GetChainInfo(startHash, includeBody, tx)
	if !ok {
		return nil
	}

	blocks := make([]primitives.Block, 0, count)
	height := ci.Head.Header.Height

	for i := uint32(0); i < count; i++ {
		var h uint32
		switch dir {
		case Forward:
			h = height + i
		default:
			if height < i {
				return blocks
			}
			h = height - i
		}
		b, ok := s.GetBlockAtInclude(h, includeBody, tx)
		if !ok {
			break
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// GetBlockAtInclude retrieves the main-chain block at height, optionally
// including its body.
func (s *Store) GetBlockAtInclude(height uint32, includeBody bool, tx *Tx) (primitives.Block, bool) {
	ci, ok := s.GetChainInfoAt(height, includeBody, tx)
	return ci.Head, ok
}

// GetBlocksBackward walks count blocks backward from startHash (exclusive
// of startHash itself), used to back-fill the transaction cache per
// spec.md §4.3.
func (s *Store) GetBlocksBackward(startHash chainhash.Hash, count uint32, includeBody bool, tx *Tx) []primitives.Block {
	blocks := make([]primitives.Block, 0, count)
	hash := startHash
	for i := uint32(0); i < count; i++ {
		ci, ok := s.GetChainInfo(hash, includeBody, tx)
		if !ok {
			break
		}
		if ci.Head.Header.Height <= 1 {
			break
		}
		hash = ci.Head.Header.PrevHash
		block, ok := s.GetBlock(hash, includeBody, tx)
		if !ok {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// gobBody, gobTransaction and gobPrunedAccount are wire-friendly
// projections of BlockBody and its elements: gob only encodes exported
// fields, so Transaction's unexported id needs an explicit mirror.
type gobBody struct {
	Miner          address.Address
	ExtraData      []byte
	Transactions   []gobTransaction
	PrunedAccounts []gobPrunedAccount
}

type gobTransaction struct {
	ID                  chainhash.Hash
	ValidityStartHeight uint32
}

type gobPrunedAccount struct {
	Address address.Address
	Balance uint64
}

func encodeBody(b primitives.BlockBody) []byte {
	g := gobBody{
		Miner:     b.Miner,
		ExtraData: b.ExtraData,
	}
	for _, tx := range b.Transactions {
		g.Transactions = append(g.Transactions, gobTransaction{ID: tx.ID(), ValidityStartHeight: tx.ValidityStartHeight})
	}
	for _, p := range b.PrunedAccounts {
		acct, _ := p.Account.(primitives.BasicAccount)
		g.PrunedAccounts = append(g.PrunedAccounts, gobPrunedAccount{Address: p.Address, Balance: acct.Balance})
	}
	return gobEncode(g)
}

func decodeBody(raw []byte) (*primitives.BlockBody, error) {
	var g gobBody
	if err := gobDecode(raw, &g); err != nil {
		return nil, err
	}
	body := &primitives.BlockBody{Miner: g.Miner, ExtraData: g.ExtraData}
	for _, tx := range g.Transactions {
		body.Transactions = append(body.Transactions, primitives.NewTransaction(tx.ID, tx.ValidityStartHeight))
	}
	for _, p := range g.PrunedAccounts {
		body.PrunedAccounts = append(body.PrunedAccounts, primitives.PrunedAccount{
			Address: p.Address,
			Account: primitives.BasicAccount{Balance: p.Balance},
		})
	}
	return body, nil
}

func decodeChainInfo(raw []byte) (ChainInfo, error) {
	var g storedChainInfo
	if err := gobDecode(raw, &g); err != nil {
		return ChainInfo{}, err
	}

	totalDiff, err := decimal.NewFromString(g.TotalDifficulty)
	if err != nil {
		return ChainInfo{}, err
	}
	totalWork, err := decimal.NewFromString(g.TotalWork)
	if err != nil {
		return ChainInfo{}, err
	}

	header := primitives.BlockHeader{
		Version:       g.Header.Version,
		PrevHash:      g.Header.PrevHash,
		InterlinkHash: g.Header.InterlinkHash,
		BodyHash:      g.Header.BodyHash,
		AccountsHash:  g.Header.AccountsHash,
		NBits:         primitives.TargetCompact(g.Header.NBits),
		Height:        g.Header.Height,
		Timestamp:     g.Header.Timestamp,
		Nonce:         g.Header.Nonce,
	}

	return ChainInfo{
		Head:               primitives.Block{Header: header, Interlink: primitives.Interlink{Hashes: g.Interlink}},
		TotalDifficulty:    primitives.Difficulty{Value: totalDiff},
		TotalWork:          primitives.Difficulty{Value: totalWork},
		OnMainChain:        g.OnMainChain,
		MainChainSuccessor: g.MainChainSuccessor,
		SuperBlockCounts:   SuperBlockCounts{counts: g.Counts},
	}, nil
}

func encodeChainInfo(ci ChainInfo) []byte {
	s := storedChainInfo{
		Header: gobHeader{
			Version:       ci.Head.Header.Version,
			PrevHash:      ci.Head.Header.PrevHash,
			InterlinkHash: ci.Head.Header.InterlinkHash,
			BodyHash:      ci.Head.Header.BodyHash,
			AccountsHash:  ci.Head.Header.AccountsHash,
			NBits:         uint32(ci.Head.Header.NBits),
			Height:        ci.Head.Header.Height,
			Timestamp:     ci.Head.Header.Timestamp,
			Nonce:         ci.Head.Header.Nonce,
		},
		Interlink:          ci.Head.Interlink.Hashes,
		TotalDifficulty:    ci.TotalDifficulty.Value.String(),
		TotalWork:          ci.TotalWork.Value.String(),
		OnMainChain:        ci.OnMainChain,
		MainChainSuccessor: ci.MainChainSuccessor,
		Counts:             ci.SuperBlockCounts.counts,
	}
	return gobEncode(s)
}
