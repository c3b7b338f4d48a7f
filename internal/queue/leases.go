package queue

import (
	"slices"
	"sync"
	"time"

	"github.com/user/qool/internal/keyset"
	"github.com/user/qool/internal/kv"
)

type leaseRecord struct {
	acquired time.Time
	timeout  time.Duration
}

func (r leaseRecord) expired(now time.Time) bool {
	return !now.Before(r.acquired.Add(r.timeout))
}

// leaseTable is the live lease index. Leased keys are invisible to reads
// until the lease expires or the key is deleted.
type leaseTable struct {
	mu      sync.Mutex
	index   *keyset.Set[uint64, uint32]
	records map[kv.Key]leaseRecord
}

func newLeaseTable() *leaseTable {
	return &leaseTable{
		index:   keyset.New[uint64, uint32](),
		records: make(map[kv.Key]leaseRecord),
	}
}

func (t *leaseTable) acquire(k kv.Key, timeout time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index.Add(k.Label, k.Seq)
	t.records[k] = leaseRecord{acquired: now, timeout: timeout}
}

func (t *leaseTable) leased(k kv.Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Has(k.Label, k.Seq)
}

// release drops the lease on k. It reports whether k was leased.
func (t *leaseTable) release(k kv.Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[k]; !ok {
		return false
	}
	t.index.Delete(k.Label, k.Seq)
	delete(t.records, k)
	return true
}

// expire removes every lease whose timeout has fully elapsed at now and
// returns how many were removed.
func (t *leaseTable) expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Collect first; the index must not change under its iterators.
	labels := slices.Collect(t.index.Prefixes())
	n := 0
	for _, label := range labels {
		var dead []uint32
		live := 0
		for seq := range t.index.Suffixes(label) {
			if t.records[kv.Key{Label: label, Seq: seq}].expired(now) {
				dead = append(dead, seq)
			} else {
				live++
			}
		}
		if len(dead) == 0 {
			continue
		}
		if live == 0 {
			t.index.DeleteRange(label)
		} else {
			for _, seq := range dead {
				t.index.Delete(label, seq)
			}
		}
		for _, seq := range dead {
			delete(t.records, kv.Key{Label: label, Seq: seq})
		}
		n += len(dead)
	}
	return n
}

func (t *leaseTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Len()
}

// size returns the number of live leases and of distinct labels they span.
func (t *leaseTable) size() (leases, labels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Len(), t.index.PrefixLen()
}
