package queue

import (
	"time"

	"github.com/user/qool/internal/kv"
)

// Item is a queue entry as handed to callers.
type Item struct {
	Key   kv.Key
	Value []byte
}

// Callback shapes. A nil callback is allowed everywhere.
type (
	DoneFunc  func(err error)
	ItemFunc  func(item Item, ok bool, err error)
	ItemsFunc func(items []Item, err error)
)

type opKind uint8

const (
	opEnqueue opKind = iota + 1
	opDequeue
	opDelete
	opPeek
	opLease
)

func (k opKind) String() string {
	switch k {
	case opEnqueue:
		return "enqueue"
	case opDequeue:
		return "dequeue"
	case opDelete:
		return "delete"
	case opPeek:
		return "peek"
	case opLease:
		return "lease"
	}
	return "unknown"
}

type batchClass uint8

const (
	classWrite batchClass = iota + 1
	classRead
)

func (c batchClass) String() string {
	if c == classRead {
		return "read"
	}
	return "write"
}

func (k opKind) class() batchClass {
	switch k {
	case opPeek, opLease:
		return classRead
	}
	return classWrite
}

// op is one pending request. Only the fields relevant to its kind are set.
type op struct {
	kind opKind

	key     kv.Key        // enqueue, delete
	keygen  bool          // enqueue whose key is assigned at submission
	value   []byte        // enqueue
	count   int           // peek
	after   kv.Key        // peek bookmark; zero means from the head
	timeout time.Duration // lease

	done  DoneFunc  // enqueue, delete
	item  ItemFunc  // dequeue, lease
	items ItemsFunc // peek

	// Filled in during execution.
	result Item
	ok     bool
	list   []Item
	err    error
	elided bool // enqueue served to a dequeue in the same batch, never written
}

func (o *op) resolve() {
	switch o.kind {
	case opEnqueue, opDelete:
		if o.done != nil {
			o.done(o.err)
		}
	case opDequeue, opLease:
		if o.item == nil {
			return
		}
		if o.err != nil {
			o.item(Item{}, false, o.err)
			return
		}
		o.item(o.result, o.ok, nil)
	case opPeek:
		if o.items == nil {
			return
		}
		if o.err != nil {
			o.items(nil, o.err)
			return
		}
		if o.list == nil {
			o.list = []Item{}
		}
		o.items(o.list, nil)
	}
}

type batchState uint8

const (
	batchOpen batchState = iota
	batchClosed
	batchExecuting
	batchDone
)

// batch owns its operations; ops are addressed by index and never point
// back at the batch.
type batch struct {
	class batchClass
	state batchState
	ops   []op
}

func (b *batch) push(o op) {
	b.ops = append(b.ops, o)
}

// failAll resolves every op with err, in arrival order.
func failAll(ops []op, err error) {
	for i := range ops {
		ops[i].err = err
		ops[i].resolve()
	}
}

func resolveAll(ops []op) {
	for i := range ops {
		ops[i].resolve()
	}
}
