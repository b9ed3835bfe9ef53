// Package keyvalstore wraps Badger with the durability and disk
// bookkeeping the block store needs.
package keyvalstore

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

var ErrKeyNotFound = errcat.Sentinel(errcat.Consistency, "keyvalstore: key not found")

// StoreConfig configures the on-disk store. Only the first path is
// used for now; the slice exists so that multi-volume layouts do not
// change the API later.
type StoreConfig struct {
	Paths         []string
	MinimumFreeGB int
	Logger        *logrus.Logger
}

type Store struct {
	config       StoreConfig
	db           *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

func New(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := config.check(); err != nil {
		return nil, fmt.Errorf("keyvalstore: invalid config: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("keyvalstore: opening badger at %s: %w", config.Paths[0], err)
	}

	s := &Store{
		config: config,
		db:     db,
		log:    config.Logger,
	}
	s.logDiskUsage()
	return s, nil
}

func (s *Store) Write(key, value []byte) error {
	atomic.AddUint64(&s.writeCounter, 1)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("keyvalstore: writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// WriteBatch writes all key/value pairs in a single write batch.
func (s *Store) WriteBatch(pairs [][2][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range pairs {
		atomic.AddUint64(&s.writeCounter, 1)
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("keyvalstore: batching key %s: %w", hex.EncodeToString(kv[0]), err)
		}
	}
	return wb.Flush()
}

func (s *Store) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&s.readCounter, 1)
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, hex.EncodeToString(key))
	}
	if err != nil {
		return nil, fmt.Errorf("keyvalstore: reading key %s: %w", hex.EncodeToString(key), err)
	}
	return value, nil
}

func (s *Store) Has(key []byte) (bool, error) {
	atomic.AddUint64(&s.readCounter, 1)
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("keyvalstore: checking key %s: %w", hex.EncodeToString(key), err)
	}
	return found, nil
}

func (s *Store) Delete(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("keyvalstore: deleting key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// ItemsWithPrefix returns all key/value pairs under the given prefix.
func (s *Store) ItemsWithPrefix(prefix []byte) ([][2][]byte, error) {
	atomic.AddUint64(&s.readCounter, 1)
	var pairs [][2][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			pairs = append(pairs, [2][]byte{k, v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keyvalstore: iterating prefix %s: %w", hex.EncodeToString(prefix), err)
	}
	return pairs, nil
}

// Sync flushes pending writes, flattens the LSM tree and runs a value
// log GC pass.
func (s *Store) Sync() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("keyvalstore: syncing db: %w", err)
	}

	if err := s.db.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("keyvalstore: flattening db: %w", err)
	}
	s.log.Info("db flattened")

	if err := s.db.RunValueLogGC(0.1); err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("keyvalstore: value log gc: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.Sync(); err != nil {
		s.log.WithError(err).Warn("final sync before close failed")
	}
	return s.db.Close()
}

// Counters returns the read/write operation counts since the last
// call and resets them.
func (s *Store) Counters() (reads, writes uint64) {
	return atomic.SwapUint64(&s.readCounter, 0), atomic.SwapUint64(&s.writeCounter, 0)
}
