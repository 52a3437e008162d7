package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tolelom/tolmarket/core"
	"go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// BoltDB implements DB on a single bbolt bucket.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the bbolt database at path.
// The parent directory is created if it does not exist.
func NewBoltDB(path string) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketState).Get(key)
		if v == nil {
			return core.ErrNotFound
		}
		// bbolt values are only valid inside the transaction.
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func (b *BoltDB) Set(key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(key, value)
	})
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Delete(key)
	})
}

func (b *BoltDB) NewIterator(prefix []byte) Iterator {
	var pairs []KV
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketState).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			pairs = append(pairs, KV{K: bytes.Clone(k), V: bytes.Clone(v)})
		}
		return nil
	})
	if err != nil {
		return NewErrIterator(fmt.Errorf("bolt iterate %q: %w", prefix, err))
	}
	return NewSliceIterator(pairs)
}

func (b *BoltDB) NewBatch() Batch {
	return &boltBatch{db: b.db}
}

func (b *BoltDB) Close() error { return b.db.Close() }

type boltOp struct {
	key   []byte
	value []byte // nil means delete
}

// boltBatch applies all buffered ops in one read-write transaction.
type boltBatch struct {
	db  *bbolt.DB
	ops []boltOp
}

func (b *boltBatch) Set(key, value []byte) {
	b.ops = append(b.ops, boltOp{key: bytes.Clone(key), value: bytes.Clone(value)})
}

func (b *boltBatch) Delete(key []byte) {
	b.ops = append(b.ops, boltOp{key: bytes.Clone(key)})
}

func (b *boltBatch) Reset() { b.ops = nil }

func (b *boltBatch) Write() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketState)
		for _, op := range b.ops {
			var err error
			if op.value == nil {
				err = bucket.Delete(op.key)
			} else {
				err = bucket.Put(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
