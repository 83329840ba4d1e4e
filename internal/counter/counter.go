// Package counter persists per-file download counters in BadgerDB.
//
// Keys are "<namespace>/<relativePath>"; values are decimal strings, kept
// human-readable for debugging. Increments are fire-and-forget: a lost
// increment under store failure is tolerated in favor of keeping the
// listing path available.
package counter

import (
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/logging"
)

// Store is a Badger-backed download counter store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the counter database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open counter db %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used by tests and development
// mode.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory counter db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(namespace, relPath string) []byte {
	return []byte(namespace + "/" + relPath)
}

// Increment bumps the counter for one file. Best-effort: failures are
// logged and swallowed, never retried.
func (s *Store) Increment(namespace, relPath string) {
	k := key(namespace, relPath)
	err := s.db.Update(func(txn *badger.Txn) error {
		current := int64(0)
		item, err := txn.Get(k)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				current, _ = strconv.ParseInt(string(val), 10, 64)
				return nil
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(k, []byte(strconv.FormatInt(current+1, 10)))
	})
	if err != nil {
		logging.Warn("download counter increment dropped",
			zap.String("key", string(k)), zap.Error(err))
	}
}

// Read returns the counter for one file, 0 when absent or unreadable.
func (s *Store) Read(namespace, relPath string) int64 {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(namespace, relPath))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n, _ = strconv.ParseInt(string(val), 10, 64)
			return nil
		})
	})
	if err != nil {
		logging.Warn("download counter read failed",
			zap.String("namespace", namespace), zap.String("path", relPath), zap.Error(err))
		return 0
	}
	return n
}

// DeleteSubtree removes the counter for relPath and every counter nested
// under it, used when a file or directory is deleted.
func (s *Store) DeleteSubtree(namespace, relPath string) error {
	exact := key(namespace, relPath)
	prefix := append(append([]byte{}, exact...), '/')

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(exact); err != nil && err != badger.ErrKeyNotFound {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete counters under %s: %w", string(exact), err)
	}
	return nil
}
