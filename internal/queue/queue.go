// Package queue implements the batching engine of the persistent FIFO queue.
//
// Every call returns immediately and resolves through its callback. Calls are
// grouped into batches: consecutive enqueue/dequeue/delete calls form a write
// batch that costs one store scan and one atomic store write, and
// consecutive peek/lease calls form a read batch that costs one scan. Batches
// run one at a time on a single drain goroutine, in submission order, and
// callbacks fire on that goroutine. Callbacks must not block waiting for
// another queue operation to resolve.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"

	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/store"
)

const tracerName = "github.com/user/qool/internal/queue"

// Queue is the batching engine over a Store. It does not own the store.
type Queue struct {
	env     env
	sched   *scheduler
	monitor *LeaseMonitor
	schema  *gojsonschema.Schema
	stats   counters

	stop      context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

// Open creates a Queue over st. The key generator is seeded from the highest
// key generated by earlier sessions, so a wall clock behind that key fails
// with *kv.ConfigurationError. Caller-chosen keys do not move the floor.
func Open(st store.Store, cfg Config) (*Queue, error) {
	if st == nil {
		return nil, fmt.Errorf("open queue: store is required")
	}
	cfg = cfg.withDefaults()

	schema, err := compileSchema(cfg.PayloadSchema)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	ctx := context.Background()
	keys := kv.NewGenerator(cfg.Now, cfg.LabelInterval)
	floor, ok, err := loadKeyFloor(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	if ok {
		if err := keys.Observe(floor); err != nil {
			return nil, err
		}
	}

	newest := "none"
	last, ok, err := st.Last(ctx, kv.DataPrefix())
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	if ok {
		k, err := kv.KeyFromData(last)
		if err != nil {
			return nil, fmt.Errorf("open queue: %w", err)
		}
		newest = k.String()
	}

	q := &Queue{
		schema:  schema,
		stopped: make(chan struct{}),
	}
	q.env = env{
		store:        st,
		leases:       newLeaseTable(),
		stats:        &q.stats,
		now:          cfg.Now,
		defaultLease: cfg.DefaultLeaseTimeout,
		tracer:       otel.Tracer(tracerName),
		log:          cfg.Logger,
	}
	q.sched = newScheduler(q.execute, keys.Next)
	q.monitor = newLeaseMonitor(q.env.leases, &q.stats, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	q.stop = cancel
	go func() {
		defer close(q.stopped)
		q.monitor.Run(ctx)
	}()

	cfg.Logger.Info("queue opened", "newest", newest, "key_floor", floor.String())
	return q, nil
}

// loadKeyFloor reads the highest generated key persisted by write batches.
func loadKeyFloor(ctx context.Context, st store.Store) (kv.Key, bool, error) {
	var (
		floor     kv.Key
		found     bool
		decodeErr error
	)
	err := st.Scan(ctx, kv.KeygenMetaKey(), nil, func(_, v []byte) bool {
		floor, decodeErr = kv.DecodeKey(v)
		found = true
		return false
	})
	if err != nil {
		return kv.Key{}, false, fmt.Errorf("read key floor: %w", err)
	}
	if decodeErr != nil {
		return kv.Key{}, false, fmt.Errorf("read key floor: %w", decodeErr)
	}
	return floor, found, nil
}

func (q *Queue) execute(b *batch) {
	ctx := context.Background()
	switch b.class {
	case classWrite:
		newSmartBatch(&q.env, b.ops).execute(ctx)
	case classRead:
		newReadBatch(&q.env, b.ops).execute(ctx)
	}
}

func (q *Queue) submit(o op) kv.Key {
	k, err := q.sched.submit(o)
	if err != nil {
		o.err = err
		o.resolve()
		return kv.Key{}
	}
	return k
}

// Enqueue appends value under a freshly generated key and returns that key.
// Keys are assigned in submission order. The key can be used as a Peek
// bookmark. On failure the zero key is returned and done receives the error.
func (q *Queue) Enqueue(value []byte, done DoneFunc) kv.Key {
	if err := validatePayload(q.schema, value); err != nil {
		if done != nil {
			done(err)
		}
		return kv.Key{}
	}
	return q.submit(op{kind: opEnqueue, keygen: true, value: append([]byte(nil), value...), done: done})
}

// EnqueueKey appends value under a caller-chosen key. Keys order the queue,
// so a key below the current head is dequeued first.
func (q *Queue) EnqueueKey(key kv.Key, value []byte, done DoneFunc) {
	if err := validatePayload(q.schema, value); err != nil {
		if done != nil {
			done(err)
		}
		return
	}
	q.submit(op{kind: opEnqueue, key: key, value: append([]byte(nil), value...), done: done})
}

// Dequeue removes and returns the oldest visible entry. An empty queue
// resolves with ok == false and no error.
func (q *Queue) Dequeue(fn ItemFunc) {
	q.submit(op{kind: opDequeue, item: fn})
}

// Peek returns up to count visible entries without removing them, starting
// at the head, or strictly after bookmark when it is not the zero key.
func (q *Queue) Peek(count int, bookmark kv.Key, fn ItemsFunc) {
	q.submit(op{kind: opPeek, count: count, after: bookmark, items: fn})
}

// Lease hides the oldest visible entry for timeout and returns it. The entry
// becomes visible again once the timeout elapses unless it is deleted first.
// A timeout <= 0 uses Config.DefaultLeaseTimeout.
func (q *Queue) Lease(timeout time.Duration, fn ItemFunc) {
	q.submit(op{kind: opLease, timeout: timeout, item: fn})
}

// Delete removes the entry under key. Deleting a leased entry makes the
// removal permanent.
func (q *Queue) Delete(key kv.Key, done DoneFunc) {
	q.submit(op{kind: opDelete, key: key, done: done})
}

// ExpireLeases runs one lease sweep immediately and returns the number of
// leases that expired.
func (q *Queue) ExpireLeases() int {
	return q.monitor.RunOnce()
}

// Wait blocks until every batch submitted so far has executed.
func (q *Queue) Wait() {
	q.sched.wait()
}

// Stats returns a snapshot of the engine counters.
func (q *Queue) Stats() Stats {
	s := q.stats.snapshot()
	s.ActiveLeases, s.LeaseLabels = q.env.leases.size()
	return s
}

// Close rejects new operations with ErrClosed, waits for queued batches and
// stops the lease monitor. The store stays open.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.sched.close()
		q.stop()
		<-q.stopped
		q.env.log.Info("queue closed")
	})
	return nil
}
