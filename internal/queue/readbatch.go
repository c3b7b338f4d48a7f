package queue

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// readBatch executes a run of peek and lease ops. Requests starting at the
// head share one scan; a peek with its own bookmark scans separately.
type readBatch struct {
	env *env
	ops []op
}

func newReadBatch(e *env, ops []op) *readBatch {
	return &readBatch{env: e, ops: ops}
}

func (b *readBatch) execute(ctx context.Context) {
	maxPeek, leases, bookmarks := 0, 0, 0
	for i := range b.ops {
		o := &b.ops[i]
		switch o.kind {
		case opPeek:
			if !o.after.IsZero() {
				bookmarks++
				continue
			}
			maxPeek = max(maxPeek, o.count)
		case opLease:
			leases++
		}
	}
	limit := maxPeek + leases

	ctx, span := b.env.tracer.Start(ctx, "queue.readbatch", trace.WithAttributes(
		attribute.Int("queue.ops", len(b.ops)),
		attribute.Int("queue.leases", leases),
		attribute.Int("queue.limit", limit),
		attribute.Int("queue.bookmarks", bookmarks),
	))
	defer span.End()
	b.env.stats.readBatches.Add(1)

	var (
		buf      []Item
		scanErr  error
		firstErr error
	)
	if limit > 0 {
		buf, scanErr = b.scan(ctx, readOp{limit: limit})
		if scanErr != nil {
			span.RecordError(scanErr)
			firstErr = scanErr
			b.env.log.Error("read batch failed", "ops", len(b.ops), "error", scanErr)
		}
	}

	cursor := 0
	for i := range b.ops {
		o := &b.ops[i]
		switch o.kind {
		case opPeek:
			if o.count <= 0 {
				continue
			}
			if !o.after.IsZero() {
				o.list, o.err = b.scan(ctx, readOp{limit: o.count, after: o.after})
				if o.err != nil {
					span.RecordError(o.err)
					if firstErr == nil {
						firstErr = o.err
					}
					b.env.log.Error("bookmark peek failed", "after", o.after, "error", o.err)
				}
				continue
			}
			if scanErr != nil {
				o.err = scanErr
				continue
			}
			end := min(cursor+o.count, len(buf))
			o.list = append([]Item(nil), buf[cursor:end]...)
		case opLease:
			if scanErr != nil {
				o.err = scanErr
				continue
			}
			if cursor >= len(buf) {
				continue
			}
			o.result, o.ok = buf[cursor], true
			cursor++
			timeout := o.timeout
			if timeout <= 0 {
				timeout = b.env.defaultLease
			}
			b.env.leases.acquire(o.result.Key, timeout, b.env.now())
		}
	}
	if firstErr != nil {
		span.SetStatus(codes.Error, firstErr.Error())
		b.env.stats.failedBatches.Add(1)
	}
	resolveAll(b.ops)
}

func (b *readBatch) scan(ctx context.Context, r readOp) ([]Item, error) {
	r.exclude = b.env.leases.leased
	b.env.stats.storeReads.Add(1)
	return r.execute(ctx, b.env.store)
}
