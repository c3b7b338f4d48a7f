package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("qool")

type boltStore struct {
	db   *bolt.DB
	path string
	temp bool
}

func openBolt(cfg Config) (*boltStore, error) {
	path := filepath.Join(cfg.Dir, "qool.bolt")
	temp := false
	if cfg.InMemory {
		// bbolt has no memory mode; back it with a throwaway file.
		f, err := os.CreateTemp("", "qool-*.bolt")
		if err != nil {
			return nil, err
		}
		path = f.Name()
		f.Close()
		temp = true
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	db.NoSync = cfg.NoSync
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &boltStore{db: db, path: path, temp: temp}, nil
}

func (s *boltStore) Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(scanStart(prefix, after)); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !fn(k, v) {
				return nil
			}
		}
		return nil
	})
	return wrap("scan", err)
}

func (s *boltStore) Last(ctx context.Context, prefix []byte) ([]byte, bool, error) {
	var (
		last []byte
		ok   bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		var k []byte
		if upper := prefixUpperBound(prefix); upper != nil {
			if k, _ = c.Seek(upper); k == nil {
				k, _ = c.Last()
			} else {
				k, _ = c.Prev()
			}
		} else {
			k, _ = c.Last()
		}
		if k != nil && bytes.HasPrefix(k, prefix) {
			last = append([]byte(nil), k...)
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, false, wrap("last", err)
	}
	return last, ok, nil
}

func (s *boltStore) Put(ctx context.Context, key, value []byte) error {
	return wrap("put", s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	}))
}

func (s *boltStore) Delete(ctx context.Context, key []byte) error {
	return wrap("delete", s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	}))
}

func (s *boltStore) Write(ctx context.Context, muts []Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for _, m := range muts {
			var err error
			switch m.Kind {
			case MutationPut:
				err = b.Put(m.Key, m.Value)
			case MutationDelete:
				err = b.Delete(m.Key)
			default:
				err = errUnknownMutation(m.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("write", err)
}

func (s *boltStore) Close() error {
	err := s.db.Close()
	if s.temp {
		os.Remove(s.path)
	}
	return err
}
