package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("tokend")

// BoltDB is a persistent key-value store backed by a single-file bbolt database.
// It is the low-footprint alternative to LevelDB for small deployments.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates or opens a bbolt database file at the specified path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(boltBucket).Get(key)
		if value == nil {
			return ErrKeyNotFound
		}
		out = make([]byte, len(value))
		copy(out, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

func (b *BoltDB) Has(key []byte) (bool, error) {
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	return found, err
}

// WriteBatch applies all staged operations inside one bbolt transaction.
func (b *BoltDB) WriteBatch(batch *Batch) error {
	if batch == nil {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for key := range batch.deletes {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		for key, value := range batch.puts {
			if err := bucket.Put([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
