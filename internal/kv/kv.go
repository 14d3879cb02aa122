// Package kv is the process-wide keyed store used for configuration records.
package kv

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Store is a string-keyed byte store.
type Store interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Badger implements Store on top of a badger database.
type Badger struct {
	db *badger.DB
}

// Open opens (or creates) a badger database in dir.
func Open(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open kv %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

// OpenInMemory opens a badger database that lives only in memory.
func OpenInMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory kv: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, true, nil
}

func (b *Badger) Set(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Close flushes and closes the database. Safe on nil.
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
