// Package badger provides BadgerDB-backed persistence: the checkpoint store
// and a probe-result cache.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/inquestlabs/inquest/orchestrator"
)

// Config configures the BadgerDB store.
type Config struct {
	// Dir is the directory to store data in.
	Dir string

	// InMemory uses in-memory storage (useful for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability. Checkpoints are
	// the resume lifeline, so this defaults on.
	SyncWrites bool
}

// DefaultConfig returns the durable default configuration.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, SyncWrites: true}
}

// ErrConnectionFailed wraps a failed database open.
var ErrConnectionFailed = errors.New("badger: connection failed")

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}

const (
	checkpointPrefix = "checkpoint:"
	latestKey        = "checkpoint-head"
)

// Store is a BadgerDB implementation of orchestrator.CheckpointStore.
type Store struct {
	db    *badger.DB
	owned bool
}

// NewStore opens a database and wraps it as a checkpoint store.
func NewStore(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, owned: true}, nil
}

// NewStoreFromDB wraps an existing database. Close becomes a no-op; the
// caller owns the database lifetime.
func NewStoreFromDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Put stores a checkpoint blob under its ref.
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointPrefix+ref), data)
	})
}

// Get retrieves a checkpoint blob by ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + ref))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SetLatest advances the resume head.
func (s *Store) SetLatest(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(checkpointPrefix + ref)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
			}
			return err
		}
		return txn.Set([]byte(latestKey), []byte(ref))
	})
}

// Latest returns the resume head.
func (s *Store) Latest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var ref string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ref = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", orchestrator.ErrCheckpointNotFound
	}
	if err != nil {
		return "", err
	}
	return ref, nil
}

// DB returns the underlying database so other components can share it.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close closes the database if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

var _ orchestrator.CheckpointStore = (*Store)(nil)
