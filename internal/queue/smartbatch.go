package queue

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/qool/internal/keyset"
	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/store"
)

// env is what a batch needs to execute.
type env struct {
	store        store.Store
	leases       *leaseTable
	stats        *counters
	now          func() time.Time
	defaultLease time.Duration
	tracer       trace.Tracer
	log          *slog.Logger
}

// smartBatch executes a run of enqueue, dequeue and delete ops with at most
// one scan and one atomic write. Enqueues that would only be dequeued again
// in the same batch never reach the store.
type smartBatch struct {
	env      *env
	ops      []op
	enqueues []int // op indices, arrival order
	dequeues int
	deleting *keyset.Set[uint64, uint32]
	keyFloor kv.Key // highest generated key in the batch
	keygen   bool
}

func newSmartBatch(e *env, ops []op) *smartBatch {
	b := &smartBatch{env: e, ops: ops, deleting: keyset.New[uint64, uint32]()}
	for i := range ops {
		switch ops[i].kind {
		case opEnqueue:
			b.enqueues = append(b.enqueues, i)
			if ops[i].keygen && (!b.keygen || b.keyFloor.Less(ops[i].key)) {
				b.keyFloor, b.keygen = ops[i].key, true
			}
		case opDequeue:
			b.dequeues++
		case opDelete:
			b.deleting.Add(ops[i].key.Label, ops[i].key.Seq)
		}
	}
	return b
}

func (b *smartBatch) excluded(k kv.Key) bool {
	return b.deleting.Has(k.Label, k.Seq) || b.env.leases.leased(k)
}

func (b *smartBatch) execute(ctx context.Context) {
	ctx, span := b.env.tracer.Start(ctx, "queue.smartbatch", trace.WithAttributes(
		attribute.Int("queue.ops", len(b.ops)),
		attribute.Int("queue.enqueues", len(b.enqueues)),
		attribute.Int("queue.dequeues", b.dequeues),
	))
	defer span.End()
	b.env.stats.writeBatches.Add(1)

	if err := b.apply(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.env.stats.failedBatches.Add(1)
		b.env.log.Error("write batch failed", "ops", len(b.ops), "error", err)
		failAll(b.ops, err)
		return
	}
	resolveAll(b.ops)
}

func (b *smartBatch) apply(ctx context.Context) error {
	var buf []Item
	if b.dequeues > 0 {
		items, err := readOp{limit: b.dequeues, exclude: b.excluded}.execute(ctx, b.env.store)
		b.env.stats.storeReads.Add(1)
		if err != nil {
			return err
		}
		buf = items
	}

	// The store could not cover every dequeue: hand out this batch's own
	// enqueues, oldest first.
	stored := len(buf)
	for _, i := range b.enqueues {
		if len(buf) >= b.dequeues {
			break
		}
		o := &b.ops[i]
		o.elided = true
		buf = append(buf, Item{Key: o.key, Value: o.value})
	}

	muts := make([]store.Mutation, 0, len(b.ops))
	next := 0
	for i := range b.ops {
		o := &b.ops[i]
		switch o.kind {
		case opEnqueue:
			if !o.elided {
				muts = append(muts, store.Put(kv.DataKey(o.key), o.value))
			}
		case opDequeue:
			if next >= len(buf) {
				continue
			}
			o.result, o.ok = buf[next], true
			if next < stored {
				muts = append(muts, store.Delete(kv.DataKey(o.result.Key)))
			}
			next++
		case opDelete:
			muts = append(muts, store.Delete(kv.DataKey(o.key)))
		}
	}

	if len(muts) > 0 {
		if b.keygen {
			muts = append(muts, store.Put(kv.KeygenMetaKey(), kv.AppendKey(nil, b.keyFloor)))
		}
		if err := b.env.store.Write(ctx, muts); err != nil {
			return err
		}
		b.env.stats.storeWrites.Add(1)
	}
	if elided := len(buf) - stored; elided > 0 {
		b.env.stats.elided.Add(uint64(elided))
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.Int("queue.elided", elided))
	}

	// A deleted key can no longer come back through lease expiry.
	for label := range b.deleting.Prefixes() {
		for seq := range b.deleting.Suffixes(label) {
			b.env.leases.release(kv.Key{Label: label, Seq: seq})
		}
	}
	return nil
}
