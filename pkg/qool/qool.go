// Package qool is an embedded, persistent FIFO work queue.
//
// A Queue stores opaque byte values under ordered keys in a local key-value
// store. Concurrent calls are coalesced into batches, so many enqueues and
// dequeues share a single store scan and a single atomic write. Entries can
// be leased: a leased entry is hidden from other readers until it is deleted
// or its lease times out.
//
//	q, err := qool.Open(qool.Options{Dir: "/var/lib/app/queue"})
//	if err != nil { ... }
//	defer q.Close()
//
//	key, err := q.Enqueue(ctx, []byte("job"))
//	item, ok, err := q.Lease(ctx, 30*time.Second)
//	err = q.Delete(ctx, item.Key)
package qool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/queue"
	"github.com/user/qool/internal/store"
)

type (
	// Key orders queue entries; see kv.Key.
	Key = kv.Key
	// Item is a queue entry.
	Item = queue.Item
	// Stats is a snapshot of engine counters.
	Stats = queue.Stats
	// ConfigurationError reports an unsafe clock or an exhausted key space.
	ConfigurationError = kv.ConfigurationError
	// StoreError wraps a storage backend failure.
	StoreError = store.StoreError
	// PayloadValidationError rejects a value that fails Options.PayloadSchema.
	PayloadValidationError = queue.PayloadValidationError
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = queue.ErrClosed

// ParseKey parses the "label:seq" form of a Key.
func ParseKey(s string) (Key, error) {
	return kv.ParseKey(s)
}

// Options configures Open.
type Options struct {
	Dir      string // data directory (required unless InMemory)
	Backend  string // pebble (default), badger, bolt or sqlite
	NoSync   bool
	InMemory bool

	Logger             *slog.Logger
	LeaseTimeout       time.Duration // default lease timeout (30s)
	LeaseSweepInterval time.Duration // default 1s
	LabelInterval      time.Duration // default 1s
	PayloadSchema      string        // optional JSON Schema for values
	Now                func() time.Time
}

// Queue is a persistent FIFO queue. All methods are safe for concurrent use.
type Queue struct {
	store  store.Store
	engine *queue.Queue
}

// Open opens (or creates) the queue described by opts.
func Open(opts Options) (*Queue, error) {
	st, err := store.Open(store.Config{
		Backend:  opts.Backend,
		Dir:      opts.Dir,
		NoSync:   opts.NoSync,
		InMemory: opts.InMemory,
	})
	if err != nil {
		return nil, err
	}
	engine, err := queue.Open(st, queue.Config{
		Logger:              opts.Logger,
		Now:                 opts.Now,
		LabelInterval:       opts.LabelInterval,
		LeaseSweepInterval:  opts.LeaseSweepInterval,
		DefaultLeaseTimeout: opts.LeaseTimeout,
		PayloadSchema:       opts.PayloadSchema,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &Queue{store: st, engine: engine}, nil
}

// Engine exposes the callback-based engine for callers that pipeline many
// operations without waiting on each one.
func (q *Queue) Engine() *queue.Queue {
	return q.engine
}

// Close waits for queued operations, then closes the store.
func (q *Queue) Close() error {
	if err := q.engine.Close(); err != nil {
		return err
	}
	if err := q.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Stats returns a snapshot of engine counters.
func (q *Queue) Stats() Stats {
	return q.engine.Stats()
}

// wait blocks until the result arrives or ctx is done. A cancelled call still
// resolves inside the engine; only the result is dropped.
func wait[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type itemResult struct {
	item Item
	ok   bool
	err  error
}

type itemsResult struct {
	items []Item
	err   error
}

// Enqueue appends value and returns its key.
func (q *Queue) Enqueue(ctx context.Context, value []byte) (Key, error) {
	ch := make(chan error, 1)
	key := q.engine.Enqueue(value, func(err error) { ch <- err })
	err, werr := wait(ctx, ch)
	if werr != nil {
		return Key{}, werr
	}
	if err != nil {
		return Key{}, err
	}
	return key, nil
}

// EnqueueKey appends value under a caller-chosen key.
func (q *Queue) EnqueueKey(ctx context.Context, key Key, value []byte) error {
	ch := make(chan error, 1)
	q.engine.EnqueueKey(key, value, func(err error) { ch <- err })
	err, werr := wait(ctx, ch)
	if werr != nil {
		return werr
	}
	return err
}

// Dequeue removes and returns the oldest visible entry. ok is false when the
// queue has nothing visible.
func (q *Queue) Dequeue(ctx context.Context) (Item, bool, error) {
	ch := make(chan itemResult, 1)
	q.engine.Dequeue(func(item Item, ok bool, err error) { ch <- itemResult{item, ok, err} })
	r, err := wait(ctx, ch)
	if err != nil {
		return Item{}, false, err
	}
	return r.item, r.ok, r.err
}

// Peek returns up to count visible entries without removing them, strictly
// after bookmark unless bookmark is the zero Key.
func (q *Queue) Peek(ctx context.Context, count int, bookmark Key) ([]Item, error) {
	ch := make(chan itemsResult, 1)
	q.engine.Peek(count, bookmark, func(items []Item, err error) { ch <- itemsResult{items, err} })
	r, err := wait(ctx, ch)
	if err != nil {
		return nil, err
	}
	return r.items, r.err
}

// Lease hides the oldest visible entry for timeout and returns it.
func (q *Queue) Lease(ctx context.Context, timeout time.Duration) (Item, bool, error) {
	ch := make(chan itemResult, 1)
	q.engine.Lease(timeout, func(item Item, ok bool, err error) { ch <- itemResult{item, ok, err} })
	r, err := wait(ctx, ch)
	if err != nil {
		return Item{}, false, err
	}
	return r.item, r.ok, r.err
}

// Delete removes the entry under key, typically after a successful Lease.
func (q *Queue) Delete(ctx context.Context, key Key) error {
	ch := make(chan error, 1)
	q.engine.Delete(key, func(err error) { ch <- err })
	err, werr := wait(ctx, ch)
	if werr != nil {
		return werr
	}
	return err
}
