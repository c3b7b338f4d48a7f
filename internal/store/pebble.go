package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
)

type pebbleStore struct {
	db     *pebble.DB
	noSync bool
}

func openPebble(cfg Config) (*pebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          16 << 20, // 16MB
		L0CompactionThreshold: 8,
		MaxConcurrentCompactions: func() int {
			return 2
		},
		// Queue reads are range scans from the head; the filter only helps
		// the occasional point lookup but is cheap on L0.
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	dir := filepath.Join(cfg.Dir, "pebble")
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		dir = ""
	}
	if !cfg.NoSync {
		opts.WALMinSyncInterval = func() time.Duration { return 2 * time.Millisecond }
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db, noSync: cfg.NoSync}, nil
}

func (s *pebbleStore) syncOpt() *pebble.WriteOptions {
	if s.noSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func (s *pebbleStore) Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scanStart(prefix, after),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return wrap("scan", err)
	}
	defer func() { _ = iter.Close() }()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return wrap("scan", err)
		}
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return wrap("scan", iter.Error())
}

func (s *pebbleStore) Last(ctx context.Context, prefix []byte) ([]byte, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, false, wrap("last", err)
	}
	defer func() { _ = iter.Close() }()
	if !iter.Last() {
		return nil, false, wrap("last", iter.Error())
	}
	return append([]byte(nil), iter.Key()...), true, nil
}

func (s *pebbleStore) Put(ctx context.Context, key, value []byte) error {
	return wrap("put", s.db.Set(key, value, s.syncOpt()))
}

func (s *pebbleStore) Delete(ctx context.Context, key []byte) error {
	return wrap("delete", s.db.Delete(key, s.syncOpt()))
}

func (s *pebbleStore) Write(ctx context.Context, muts []Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()
	for _, m := range muts {
		var err error
		switch m.Kind {
		case MutationPut:
			err = batch.Set(m.Key, m.Value, nil)
		case MutationDelete:
			err = batch.Delete(m.Key, nil)
		default:
			err = errUnknownMutation(m.Kind)
		}
		if err != nil {
			return wrap("write", err)
		}
	}
	return wrap("write", batch.Commit(s.syncOpt()))
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}
