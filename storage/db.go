package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrKeyNotFound is returned by Get when the key has no value.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The credit ledger can run on any backend (in-memory or persistent)
// as long as iteration visits keys in ascending byte order.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewIterator walks every key that starts with prefix, in ascending
	// key order. Callers must Release the iterator when done.
	NewIterator(prefix []byte) Iterator
	Close()
}

// Iterator walks a key range. Next must be called before the first Key/Value.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	db.data[string(key)] = cp
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// NewIterator snapshots the matching keys so the caller may mutate the
// database while iterating.
func (db *MemDB) NewIterator(prefix []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	keys := make([]string, 0)
	for k := range db.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]kvPair, len(keys))
	for i, k := range keys {
		v := db.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		pairs[i] = kvPair{key: []byte(k), value: cp}
	}
	return &sliceIterator{pairs: pairs}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type kvPair struct {
	key   []byte
	value []byte
}

type sliceIterator struct {
	pairs []kvPair
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.pairs) {
		return false
	}
	it.pos++
	return it.pos <= len(it.pairs)
}

func (it *sliceIterator) Key() []byte {
	if it.pos == 0 || it.pos > len(it.pairs) {
		return nil
	}
	return it.pairs[it.pos-1].key
}

func (it *sliceIterator) Value() []byte {
	if it.pos == 0 || it.pos > len(it.pairs) {
		return nil
	}
	return it.pairs[it.pos-1].value
}

func (it *sliceIterator) Release() {}

func (it *sliceIterator) Error() error { return nil }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: ldb.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelIterator struct {
	it iterator.Iterator
}

func (li *levelIterator) Next() bool    { return li.it.Next() }
func (li *levelIterator) Key() []byte   { return li.it.Key() }
func (li *levelIterator) Value() []byte { return li.it.Value() }
func (li *levelIterator) Release()      { li.it.Release() }
func (li *levelIterator) Error() error  { return li.it.Error() }
