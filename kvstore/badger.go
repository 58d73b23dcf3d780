package kvstore

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on top of an embedded Badger database,
// grounded on the teacher pack's BadgerDB wrapper
// (Klingon-tech-klingnet/internal/storage/badger.go), extended with the
// prefix-ordered Iterator and atomic WriteBatch this facade requires.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if necessary) a Badger database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Set(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (s *BadgerStore) Delete(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Iterator takes a consistent snapshot of all keys under prefix at call
// time and returns an in-memory cursor over it; no borrow into the
// Badger transaction escapes this call.
func (s *BadgerStore) Iterator(prefix []byte) Iterator {
	var keys [][]byte
	var values [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			keys = append(keys, item.KeyCopy(nil))
			v, verr := item.ValueCopy(nil)
			if verr != nil {
				return verr
			}
			values = append(values, v)
		}
		return nil
	})
	return &badgerIterator{keys: keys, values: values, idx: -1, err: err}
}

type badgerBatch struct {
	wb *badger.WriteBatch
}

func (b *badgerBatch) Set(key, value []byte) error { return b.wb.Set(key, value) }
func (b *badgerBatch) Delete(key []byte) error     { return b.wb.Delete(key) }

// WriteBatch commits fn's Set/Delete calls atomically via Badger's
// WriteBatch, the mechanism the reorg detector relies on to persist a
// cascade invalidation together with its ReorgEvent record.
func (s *BadgerStore) WriteBatch(fn func(b Batch) error) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	bb := &badgerBatch{wb: wb}
	if err := fn(bb); err != nil {
		return err
	}
	return wb.Flush()
}

func (s *BadgerStore) Close() error { return s.db.Close() }

type badgerIterator struct {
	keys   [][]byte
	values [][]byte
	idx    int
	err    error
}

func (it *badgerIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *badgerIterator) Key() []byte   { return it.keys[it.idx] }
func (it *badgerIterator) Value() []byte { return it.values[it.idx] }
func (it *badgerIterator) Error() error  { return it.err }
func (it *badgerIterator) Close() error  { return nil }
