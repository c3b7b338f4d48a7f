package queue

import (
	"sync"

	"github.com/user/qool/internal/kv"
)

// scheduler coalesces submitted ops into batches of one class and runs them
// one at a time, in submission order, on a drain goroutine.
type scheduler struct {
	mu      sync.Mutex
	idle    *sync.Cond
	open    *batch
	runq    []*batch
	running bool
	closed  bool
	exec    func(*batch)
	nextKey func() (kv.Key, error)
}

// newScheduler creates a scheduler. nextKey assigns keys to enqueues
// submitted without one; it runs under the submission lock so key order
// matches batch order.
func newScheduler(exec func(*batch), nextKey func() (kv.Key, error)) *scheduler {
	s := &scheduler{exec: exec, nextKey: nextKey}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// submit adds o to the open batch, opening a new one when the class changes,
// and returns the op's key. It never blocks on execution.
func (s *scheduler) submit(o op) (kv.Key, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return kv.Key{}, ErrClosed
	}
	if o.keygen {
		k, err := s.nextKey()
		if err != nil {
			s.mu.Unlock()
			return kv.Key{}, err
		}
		o.key = k
	}
	class := o.kind.class()
	if s.open == nil || s.open.class != class {
		if s.open != nil {
			s.open.state = batchClosed
		}
		s.open = &batch{class: class}
		s.runq = append(s.runq, s.open)
	}
	s.open.push(o)
	start := !s.running
	s.running = true
	s.mu.Unlock()

	if start {
		go s.drain()
	}
	return o.key, nil
}

func (s *scheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.runq) == 0 {
			s.running = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		b := s.runq[0]
		s.runq[0] = nil
		s.runq = s.runq[1:]
		if b == s.open {
			s.open = nil
		}
		b.state = batchExecuting
		s.mu.Unlock()

		s.exec(b)
		b.state = batchDone
	}
}

// wait blocks until the run queue is empty and no batch is executing.
func (s *scheduler) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running {
		s.idle.Wait()
	}
}

// close rejects further submissions and waits for queued batches to finish.
func (s *scheduler) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wait()
}
