package queue

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/store"
)

// recorder collects callback results of a directly executed batch.
type recorder struct {
	errs  []error
	items []itemResult
}

func (r *recorder) done() DoneFunc {
	return func(err error) { r.errs = append(r.errs, err) }
}

func (r *recorder) item() ItemFunc {
	return func(item Item, ok bool, err error) {
		r.items = append(r.items, itemResult{item, ok, err})
	}
}

func key(seq uint32) kv.Key {
	return kv.Key{Label: 1700000000000, Seq: seq}
}

func TestSmartBatchElidesWithinBatch(t *testing.T) {
	st := newTestStore(t)
	e := newTestEnv(st, newTestClock())
	var rec recorder

	ops := []op{
		{kind: opEnqueue, key: key(1), value: []byte("a"), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
		{kind: opEnqueue, key: key(2), value: []byte("b"), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	for _, err := range rec.errs {
		if err != nil {
			t.Fatalf("enqueue error: %v", err)
		}
	}
	got := []string{string(rec.items[0].item.Value), string(rec.items[1].item.Value)}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("dequeued %v, want [a b]", got)
	}
	if _, writes := st.counts(); writes != 0 {
		t.Fatalf("store writes = %d, want 0 for a fully elided batch", writes)
	}
	if vals := storedValues(t, st); len(vals) != 0 {
		t.Fatalf("store = %v, want empty", vals)
	}
	if got := e.stats.elided.Load(); got != 2 {
		t.Fatalf("elided = %d, want 2", got)
	}
}

func TestSmartBatchPrefersStoredEntries(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "old"})
	e := newTestEnv(st, newTestClock())
	var rec recorder

	ops := []op{
		{kind: opEnqueue, key: key(2), value: []byte("new"), done: rec.done()},
		{kind: opEnqueue, key: key(3), value: []byte("newer"), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
		{kind: opDequeue, item: rec.item()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	got := []string{string(rec.items[0].item.Value), string(rec.items[1].item.Value)}
	if !slices.Equal(got, []string{"old", "new"}) {
		t.Fatalf("dequeued %v, want [old new]", got)
	}
	if vals := storedValues(t, st); !slices.Equal(vals, []string{"newer"}) {
		t.Fatalf("store = %v, want [newer]", vals)
	}
	if _, writes := st.counts(); writes != 2 { // seed + batch
		t.Fatalf("store writes = %d, want 2", writes)
	}
}

func TestSmartBatchDequeueBeforeEnqueue(t *testing.T) {
	st := newTestStore(t)
	e := newTestEnv(st, newTestClock())
	var rec recorder

	ops := []op{
		{kind: opDequeue, item: rec.item()},
		{kind: opEnqueue, key: key(1), value: []byte("1"), done: rec.done()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	if r := rec.items[0]; !r.ok || string(r.item.Value) != "1" {
		t.Fatalf("Dequeue = %q, %v; want 1", r.item.Value, r.ok)
	}
}

func TestSmartBatchSurplusDequeuesResolveEmpty(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "only"})
	e := newTestEnv(st, newTestClock())
	var rec recorder

	ops := []op{
		{kind: opDequeue, item: rec.item()},
		{kind: opDequeue, item: rec.item()},
		{kind: opDequeue, item: rec.item()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	if len(rec.items) != 3 {
		t.Fatalf("%d callbacks, want 3", len(rec.items))
	}
	if r := rec.items[0]; !r.ok || string(r.item.Value) != "only" {
		t.Fatalf("first Dequeue = %q, %v; want only", r.item.Value, r.ok)
	}
	for i, r := range rec.items[1:] {
		if r.ok || r.err != nil {
			t.Fatalf("surplus dequeue %d = %v, %v; want empty without error", i, r.ok, r.err)
		}
	}
}

func TestSmartBatchSkipsPendingDeletesAndLeases(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "deleted", key(2): "leased", key(3): "free"})
	clock := newTestClock()
	e := newTestEnv(st, clock)
	e.leases.acquire(key(2), e.defaultLease, clock.Now())
	var rec recorder

	ops := []op{
		{kind: opDelete, key: key(1), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	if r := rec.items[0]; !r.ok || string(r.item.Value) != "free" {
		t.Fatalf("Dequeue = %q, %v; want free", r.item.Value, r.ok)
	}
	if vals := storedValues(t, st); !slices.Equal(vals, []string{"leased"}) {
		t.Fatalf("store = %v, want [leased]", vals)
	}
}

func TestSmartBatchDeleteReleasesLease(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a"})
	clock := newTestClock()
	e := newTestEnv(st, clock)
	e.leases.acquire(key(1), e.defaultLease, clock.Now())

	newSmartBatch(e, []op{{kind: opDelete, key: key(1)}}).execute(context.Background())

	if e.leases.leased(key(1)) {
		t.Fatal("lease survived delete")
	}
}

func TestSmartBatchWriteFailureIsAtomic(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a", key(9): "victim"})
	clock := newTestClock()
	e := newTestEnv(st, clock)
	e.leases.acquire(key(9), e.defaultLease, clock.Now())
	st.set(false, true)
	var rec recorder

	ops := []op{
		{kind: opEnqueue, key: key(5), value: []byte("b"), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
		{kind: opDelete, key: key(9), done: rec.done()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	if len(rec.errs) != 2 || len(rec.items) != 1 {
		t.Fatalf("callbacks: %d done, %d item; want 2 and 1", len(rec.errs), len(rec.items))
	}
	for _, err := range append(rec.errs, rec.items[0].err) {
		var se *store.StoreError
		if !errors.As(err, &se) || se.Op != "write" {
			t.Fatalf("callback error = %v, want write *store.StoreError", err)
		}
	}
	if rec.items[0].ok {
		t.Fatal("failed dequeue reported an item")
	}
	if !e.leases.leased(key(9)) {
		t.Fatal("failed delete released the lease")
	}
	st.set(false, false)
	if vals := storedValues(t, st); !slices.Equal(vals, []string{"a", "victim"}) {
		t.Fatalf("store = %v, want it unchanged", vals)
	}
}

func TestSmartBatchScanFailureSkipsWrite(t *testing.T) {
	st := newTestStore(t)
	e := newTestEnv(st, newTestClock())
	st.set(true, false)
	var rec recorder

	ops := []op{
		{kind: opEnqueue, key: key(1), value: []byte("a"), done: rec.done()},
		{kind: opDequeue, item: rec.item()},
	}
	newSmartBatch(e, ops).execute(context.Background())

	if !errors.Is(rec.errs[0], errInjected) || !errors.Is(rec.items[0].err, errInjected) {
		t.Fatalf("errors = %v, %v; want injected failure", rec.errs[0], rec.items[0].err)
	}
	if _, writes := st.counts(); writes != 0 {
		t.Fatalf("store writes = %d, want 0", writes)
	}
}

func TestSmartBatchPersistsKeyFloor(t *testing.T) {
	st := newTestStore(t)
	e := newTestEnv(st, newTestClock())
	ctx := context.Background()

	ops := []op{
		{kind: opEnqueue, keygen: true, key: key(2), value: []byte("b")},
		{kind: opEnqueue, key: kv.Key{Label: 1<<63 + 5}, value: []byte("custom")},
		{kind: opEnqueue, keygen: true, key: key(3), value: []byte("c")},
	}
	newSmartBatch(e, ops).execute(ctx)

	floor, ok, err := loadKeyFloor(ctx, st)
	if err != nil || !ok {
		t.Fatalf("loadKeyFloor() = %v, %v, %v", floor, ok, err)
	}
	if floor != key(3) {
		t.Fatalf("floor = %s, want %s", floor, key(3))
	}
	if got := storedValues(t, st); !slices.Equal(got, []string{"b", "c", "custom"}) {
		t.Fatalf("stored = %v, want [b c custom]", got)
	}

	// The elided enqueue still advances the floor inside the delete write.
	_, writesBefore := st.counts()
	newSmartBatch(e, []op{
		{kind: opDequeue},
		{kind: opDequeue},
		{kind: opDequeue},
		{kind: opEnqueue, keygen: true, key: key(9), value: []byte("x")},
		{kind: opDequeue},
	}).execute(ctx)
	if _, writes := st.counts(); writes != writesBefore+1 {
		t.Fatalf("writes = %d, want %d", writes, writesBefore+1)
	}
	if floor, _, _ := loadKeyFloor(ctx, st); floor != key(9) {
		t.Fatalf("floor = %s, want %s", floor, key(9))
	}
}
