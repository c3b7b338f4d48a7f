package queue

import (
	"context"
	"log/slog"
	"time"
)

// LeaseMonitor periodically returns expired leases to the visible queue.
type LeaseMonitor struct {
	leases   *leaseTable
	stats    *counters
	now      func() time.Time
	interval time.Duration
	log      *slog.Logger
}

func newLeaseMonitor(leases *leaseTable, stats *counters, cfg Config) *LeaseMonitor {
	return &LeaseMonitor{
		leases:   leases,
		stats:    stats,
		now:      cfg.Now,
		interval: cfg.LeaseSweepInterval,
		log:      cfg.Logger,
	}
}

// Run sweeps once per interval. It blocks until the context is cancelled.
func (m *LeaseMonitor) Run(ctx context.Context) {
	m.log.Debug("lease monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("lease monitor stopped")
			return
		case <-ticker.C:
			m.RunOnce()
		}
	}
}

// RunOnce executes a single sweep and returns the number of expired leases.
func (m *LeaseMonitor) RunOnce() int {
	n := m.leases.expire(m.now())
	if n > 0 {
		m.stats.expiredLeases.Add(uint64(n))
		m.log.Debug("expired leases", "count", n, "active", m.leases.len())
	}
	return n
}
