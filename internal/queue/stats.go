package queue

import "sync/atomic"

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	WriteBatches  uint64 `json:"write_batches"`
	ReadBatches   uint64 `json:"read_batches"`
	FailedBatches uint64 `json:"failed_batches"`
	StoreReads    uint64 `json:"store_reads"`
	StoreWrites   uint64 `json:"store_writes"`
	Elided        uint64 `json:"elided"`
	ActiveLeases  int    `json:"active_leases"`
	LeaseLabels   int    `json:"lease_labels"`
	ExpiredLeases uint64 `json:"expired_leases"`
}

type counters struct {
	writeBatches  atomic.Uint64
	readBatches   atomic.Uint64
	failedBatches atomic.Uint64
	storeReads    atomic.Uint64
	storeWrites   atomic.Uint64
	elided        atomic.Uint64
	expiredLeases atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		WriteBatches:  c.writeBatches.Load(),
		ReadBatches:   c.readBatches.Load(),
		FailedBatches: c.failedBatches.Load(),
		StoreReads:    c.storeReads.Load(),
		StoreWrites:   c.storeWrites.Load(),
		Elided:        c.elided.Load(),
		ExpiredLeases: c.expiredLeases.Load(),
	}
}
