// Package store is the ordered key-value collaborator underneath the queue
// engine. Every backend offers ordered forward scans with an exclusive lower
// bound, point writes and atomic multi-key batch writes over byte-ordered keys.
package store

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// MutationKind selects what a Mutation does.
type MutationKind uint8

const (
	MutationPut MutationKind = iota + 1
	MutationDelete
)

// Mutation is one element of an atomic batch write.
type Mutation struct {
	Kind  MutationKind
	Key   []byte
	Value []byte
}

// Put returns a put mutation.
func Put(key, value []byte) Mutation {
	return Mutation{Kind: MutationPut, Key: key, Value: value}
}

// Delete returns a delete mutation.
func Delete(key []byte) Mutation {
	return Mutation{Kind: MutationDelete, Key: key}
}

// Store is an ordered key-value store with a single writer.
type Store interface {
	// Scan visits, in ascending key order, every entry whose key starts with
	// prefix and sorts strictly after `after` (nil scans from the prefix
	// start) until fn returns false. Key and value slices passed to fn are
	// only valid for the duration of the call.
	Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error
	// Last returns the greatest key starting with prefix.
	Last(ctx context.Context, prefix []byte) (key []byte, ok bool, err error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Write applies every mutation atomically: all or none.
	Write(ctx context.Context, muts []Mutation) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendBadger = "badger"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Backends lists every supported backend name.
var Backends = []string{BackendPebble, BackendBadger, BackendBolt, BackendSQLite}

// Config selects and tunes a backend.
type Config struct {
	Backend  string // pebble (default), badger, bolt or sqlite
	Dir      string // data directory; ignored when InMemory is set
	NoSync   bool   // skip fsync on commit (unsafe; benchmarks only)
	InMemory bool   // keep everything in memory (tests)
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendPebble
	}
	if !cfg.InMemory {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("open %s store: data dir is required", backend)
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	var (
		s   Store
		err error
	)
	switch backend {
	case BackendPebble:
		s, err = openPebble(cfg)
	case BackendBadger:
		s, err = openBadger(cfg)
	case BackendBolt:
		s, err = openBolt(cfg)
	case BackendSQLite:
		s, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported store backend %q (expected pebble, badger, bolt, or sqlite)", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	return s, nil
}

// scanStart returns the inclusive start key of a scan.
func scanStart(prefix, after []byte) []byte {
	if after == nil {
		return prefix
	}
	start := make([]byte, len(after)+1)
	copy(start, after)
	if string(start) < string(prefix) {
		return prefix
	}
	return start
}

// prefixUpperBound returns the exclusive upper bound of prefix, or nil if
// the prefix has no upper bound.
func prefixUpperBound(prefix []byte) []byte {
	b := append([]byte(nil), prefix...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return b[:i+1]
		}
	}
	return nil
}
