package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// ErrKeyNotFound is returned by Get when the key has no stored value.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. It allows the ledger
// to run against any backend (in-memory for tests, persistent for deployments).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	WriteBatch(batch *Batch) error
	Close() error
}

// Batch accumulates writes and deletes to be applied in one atomic
// WriteBatch call. A Put after a Delete of the same key wins, and vice versa.
type Batch struct {
	puts    map[string][]byte
	deletes map[string]struct{}
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		puts:    make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Put stages a key-value write.
func (b *Batch) Put(key, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)
	delete(b.deletes, string(key))
	b.puts[string(key)] = stored
}

// Delete stages a key removal.
func (b *Batch) Delete(key []byte) {
	delete(b.puts, string(key))
	b.deletes[string(key)] = struct{}{}
}

// Len reports the number of staged operations.
func (b *Batch) Len() int {
	return len(b.puts) + len(b.deletes)
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
	stored := make([]byte, len(value))
	copy(stored, value)
	db.data[string(key)] = stored
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

// WriteBatch applies all staged operations under one lock acquisition.
func (db *MemDB) WriteBatch(batch *Batch) error {
	if batch == nil {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for key := range batch.deletes {
		delete(db.data, key)
	}
	for key, value := range batch.puts {
		stored := make([]byte, len(value))
		copy(stored, value)
		db.data[key] = stored
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error { return nil }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb at %s: %w", path, err)
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
	if errors.Is(err, lderrors.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

// Delete removes a key-value pair.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Has reports whether a key is present.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// WriteBatch applies all staged operations through one LevelDB write batch.
func (ldb *LevelDB) WriteBatch(batch *Batch) error {
	if batch == nil {
		return nil
	}
	wb := new(leveldb.Batch)
	for key := range batch.deletes {
		wb.Delete([]byte(key))
	}
	for key, value := range batch.puts {
		wb.Put([]byte(key), value)
	}
	return ldb.db.Write(wb, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
