package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.UnixMilli(1700000000000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errInjected = errors.New("injected failure")

// faultStore wraps a Store, counts calls and fails them on demand.
type faultStore struct {
	store.Store

	mu        sync.Mutex
	failScan  bool
	failWrite bool
	scans     int
	writes    int
}

func (f *faultStore) Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error {
	f.mu.Lock()
	f.scans++
	fail := f.failScan
	f.mu.Unlock()
	if fail {
		return &store.StoreError{Op: "scan", Err: errInjected}
	}
	return f.Store.Scan(ctx, prefix, after, fn)
}

func (f *faultStore) Write(ctx context.Context, muts []store.Mutation) error {
	f.mu.Lock()
	f.writes++
	fail := f.failWrite
	f.mu.Unlock()
	if fail {
		return &store.StoreError{Op: "write", Err: errInjected}
	}
	return f.Store.Write(ctx, muts)
}

func (f *faultStore) set(scan, write bool) {
	f.mu.Lock()
	f.failScan, f.failWrite = scan, write
	f.mu.Unlock()
}

func (f *faultStore) counts() (scans, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans, f.writes
}

func newTestStore(t *testing.T) *faultStore {
	t.Helper()
	st, err := store.Open(store.Config{Backend: store.BackendPebble, InMemory: true, NoSync: true})
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &faultStore{Store: st}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(clock *testClock) Config {
	return Config{
		Logger: quietLogger(),
		Now:    clock.Now,
		// Sweeps are driven by the tests through ExpireLeases.
		LeaseSweepInterval: time.Hour,
	}
}

func openTestQueue(t *testing.T, st store.Store, cfg Config) *Queue {
	t.Helper()
	q, err := Open(st, cfg)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func newTestEnv(st store.Store, clock *testClock) *env {
	return &env{
		store:        st,
		leases:       newLeaseTable(),
		stats:        &counters{},
		now:          clock.Now,
		defaultLease: 30 * time.Second,
		tracer:       otel.Tracer("test"),
		log:          quietLogger(),
	}
}

// seedEntries writes entries directly to the store under the given keys.
func seedEntries(t *testing.T, st store.Store, entries map[kv.Key]string) {
	t.Helper()
	muts := make([]store.Mutation, 0, len(entries))
	for k, v := range entries {
		muts = append(muts, store.Put(kv.DataKey(k), []byte(v)))
	}
	if err := st.Write(context.Background(), muts); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
}

func storedValues(t *testing.T, st store.Store) []string {
	t.Helper()
	var out []string
	err := st.Scan(context.Background(), kv.DataPrefix(), nil, func(_, v []byte) bool {
		out = append(out, string(v))
		return true
	})
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	return out
}

const waitTimeout = 5 * time.Second

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("callback did not fire within %s", waitTimeout)
	}
	var zero T
	return zero
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

func enqueue(t *testing.T, q *Queue, value string) kv.Key {
	t.Helper()
	errc := make(chan error, 1)
	k := q.Enqueue([]byte(value), func(err error) { errc <- err })
	if err := await(t, errc); err != nil {
		t.Fatalf("Enqueue(%q) error: %v", value, err)
	}
	return k
}

func dequeue(t *testing.T, q *Queue) (Item, bool) {
	t.Helper()
	ch := make(chan itemResult, 1)
	q.Dequeue(func(item Item, ok bool, err error) { ch <- itemResult{item, ok, err} })
	r := await(t, ch)
	if r.err != nil {
		t.Fatalf("Dequeue() error: %v", r.err)
	}
	return r.item, r.ok
}

func lease(t *testing.T, q *Queue, timeout time.Duration) (Item, bool) {
	t.Helper()
	ch := make(chan itemResult, 1)
	q.Lease(timeout, func(item Item, ok bool, err error) { ch <- itemResult{item, ok, err} })
	r := await(t, ch)
	if r.err != nil {
		t.Fatalf("Lease() error: %v", r.err)
	}
	return r.item, r.ok
}

func peek(t *testing.T, q *Queue, count int, after kv.Key) []Item {
	t.Helper()
	ch := make(chan itemsResult, 1)
	q.Peek(count, after, func(items []Item, err error) { ch <- itemsResult{items, err} })
	r := await(t, ch)
	if r.err != nil {
		t.Fatalf("Peek() error: %v", r.err)
	}
	return r.items
}

func remove(t *testing.T, q *Queue, k kv.Key) {
	t.Helper()
	errc := make(chan error, 1)
	q.Delete(k, func(err error) { errc <- err })
	if err := await(t, errc); err != nil {
		t.Fatalf("Delete(%s) error: %v", k, err)
	}
}

func values(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.Value)
	}
	return out
}
