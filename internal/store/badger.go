package store

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

type badgerStore struct {
	db *badger.DB
}

func openBadger(cfg Config) (*badgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(cfg.Dir, "badger"))
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = !cfg.NoSync
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanStart(prefix, after)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.Key(), v) {
				return nil
			}
		}
		return nil
	})
	return wrap("scan", err)
}

func (s *badgerStore) Last(ctx context.Context, prefix []byte) ([]byte, bool, error) {
	var (
		last []byte
		ok   bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse Seek lands on the greatest key <= the seek key.
		seek := append(append([]byte(nil), prefix...), bytes.Repeat([]byte{0xFF}, 16)...)
		it.Seek(seek)
		if it.ValidForPrefix(prefix) {
			last = it.Item().KeyCopy(nil)
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, false, wrap("last", err)
	}
	return last, ok, nil
}

func (s *badgerStore) Put(ctx context.Context, key, value []byte) error {
	return wrap("put", s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

func (s *badgerStore) Delete(ctx context.Context, key []byte) error {
	return wrap("delete", s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

func (s *badgerStore) Write(ctx context.Context, muts []Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, m := range muts {
			switch m.Kind {
			case MutationPut:
				if err := txn.Set(m.Key, m.Value); err != nil {
					return err
				}
			case MutationDelete:
				if err := txn.Delete(m.Key); err != nil {
					return err
				}
			default:
				return errUnknownMutation(m.Kind)
			}
		}
		return nil
	})
	return wrap("write", err)
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
