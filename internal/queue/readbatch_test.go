package queue

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/user/qool/internal/kv"
)

func TestReadBatchDistribution(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a", key(2): "b", key(3): "c"})
	e := newTestEnv(st, newTestClock())

	var peeks [][]string
	var leased []string
	peekFn := func(items []Item, err error) {
		if err != nil {
			t.Errorf("peek error: %v", err)
		}
		peeks = append(peeks, values(items))
	}
	leaseFn := func(item Item, ok bool, err error) {
		if err != nil || !ok {
			t.Errorf("lease = %v, %v", ok, err)
		}
		leased = append(leased, string(item.Value))
	}

	ops := []op{
		{kind: opPeek, count: 2, items: peekFn},
		{kind: opLease, timeout: time.Minute, item: leaseFn},
		{kind: opPeek, count: 2, items: peekFn},
		{kind: opLease, timeout: time.Minute, item: leaseFn},
	}
	newReadBatch(e, ops).execute(context.Background())

	want := [][]string{{"a", "b"}, {"b", "c"}}
	if len(peeks) != 2 || !slices.Equal(peeks[0], want[0]) || !slices.Equal(peeks[1], want[1]) {
		t.Fatalf("peeks = %v, want %v", peeks, want)
	}
	if !slices.Equal(leased, []string{"a", "b"}) {
		t.Fatalf("leased = %v, want [a b]", leased)
	}
	if scans, _ := st.counts(); scans != 1 {
		t.Fatalf("scans = %d, want 1", scans)
	}
	if e.leases.len() != 2 {
		t.Fatalf("lease table has %d entries, want 2", e.leases.len())
	}
}

func TestReadBatchLeasesBeyondStore(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a"})
	e := newTestEnv(st, newTestClock())

	var results []itemResult
	fn := func(item Item, ok bool, err error) { results = append(results, itemResult{item, ok, err}) }
	ops := []op{
		{kind: opLease, item: fn},
		{kind: opLease, item: fn},
	}
	newReadBatch(e, ops).execute(context.Background())

	if !results[0].ok || results[1].ok || results[1].err != nil {
		t.Fatalf("results = %+v, want one item then empty", results)
	}
}

func TestReadBatchBookmarkPeekScansSeparately(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a", key(2): "b", key(3): "c"})
	e := newTestEnv(st, newTestClock())

	var fromHead, afterFirst []string
	ops := []op{
		{kind: opLease, timeout: time.Minute},
		{kind: opPeek, count: 5, items: func(items []Item, _ error) { fromHead = values(items) }},
		{kind: opPeek, count: 5, after: key(1), items: func(items []Item, _ error) { afterFirst = values(items) }},
	}
	newReadBatch(e, ops).execute(context.Background())

	if !slices.Equal(fromHead, []string{"b", "c"}) {
		t.Fatalf("head peek = %v, want [b c]", fromHead)
	}
	if !slices.Equal(afterFirst, []string{"b", "c"}) {
		t.Fatalf("bookmark peek = %v, want [b c]", afterFirst)
	}
	if scans, _ := st.counts(); scans != 2 {
		t.Fatalf("scans = %d, want 2", scans)
	}
}

func TestReadBatchScanFailure(t *testing.T) {
	st := newTestStore(t)
	seedEntries(t, st, map[kv.Key]string{key(1): "a"})
	e := newTestEnv(st, newTestClock())
	st.set(true, false)

	var errs []error
	ops := []op{
		{kind: opPeek, count: 1, items: func(_ []Item, err error) { errs = append(errs, err) }},
		{kind: opLease, item: func(_ Item, _ bool, err error) { errs = append(errs, err) }},
	}
	newReadBatch(e, ops).execute(context.Background())

	if len(errs) != 2 {
		t.Fatalf("%d callbacks, want 2", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, errInjected) {
			t.Fatalf("error = %v, want injected failure", err)
		}
	}
	if e.leases.len() != 0 {
		t.Fatal("failed lease was registered")
	}
	if got := e.stats.failedBatches.Load(); got != 1 {
		t.Fatalf("failed batches = %d, want 1", got)
	}
}

func TestReadBatchBookmarkScanFailure(t *testing.T) {
	tests := []struct {
		name string
		ops  func(errs *[]error) []op
	}{
		{
			name: "bookmark only",
			ops: func(errs *[]error) []op {
				return []op{
					{kind: opPeek, count: 2, after: key(1), items: func(_ []Item, err error) { *errs = append(*errs, err) }},
				}
			},
		},
		{
			name: "bookmark and shared scan",
			ops: func(errs *[]error) []op {
				return []op{
					{kind: opLease, item: func(_ Item, _ bool, err error) { *errs = append(*errs, err) }},
					{kind: opPeek, count: 2, after: key(1), items: func(_ []Item, err error) { *errs = append(*errs, err) }},
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			seedEntries(t, st, map[kv.Key]string{key(1): "a", key(2): "b"})
			e := newTestEnv(st, newTestClock())
			st.set(true, false)

			var errs []error
			ops := tt.ops(&errs)
			newReadBatch(e, ops).execute(context.Background())

			if len(errs) != len(ops) {
				t.Fatalf("%d callbacks, want %d", len(errs), len(ops))
			}
			for _, err := range errs {
				if !errors.Is(err, errInjected) {
					t.Fatalf("error = %v, want injected failure", err)
				}
			}
			if got := e.stats.failedBatches.Load(); got != 1 {
				t.Fatalf("failed batches = %d, want 1", got)
			}
		})
	}
}
