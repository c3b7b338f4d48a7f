package kv

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultLabelInterval is how often the generator refreshes its label from
// the wall clock.
const DefaultLabelInterval = time.Second

// ConfigurationError reports a setup problem that makes key ordering unsafe,
// such as a wall clock that runs behind already issued keys.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Generator issues strictly increasing keys. The label is refreshed from the
// clock at most once per interval and the sequence restarts at zero whenever
// the label advances.
type Generator struct {
	mu        sync.Mutex
	now       func() time.Time
	interval  time.Duration
	label     uint64
	seq       uint64
	refreshed time.Time
	err       error
}

// NewGenerator creates a Generator. A nil clock uses time.Now and a
// non-positive interval uses DefaultLabelInterval.
func NewGenerator(now func() time.Time, interval time.Duration) *Generator {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = DefaultLabelInterval
	}
	return &Generator{now: now, interval: interval}
}

// Observe raises the generator floor to k so that every later key sorts
// after it. It fails when the wall clock is behind k's label.
func (g *Generator) Observe(k Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return g.err
	}
	now := uint64(g.now().UnixMilli())
	if now < k.Label {
		g.err = &ConfigurationError{Msg: fmt.Sprintf("clock %d ms is behind persisted key %s", now, k)}
		return g.err
	}
	if k.Label > g.label || (k.Label == g.label && uint64(k.Seq) >= g.seq) {
		g.label = k.Label
		g.seq = uint64(k.Seq) + 1
		g.refreshed = time.Time{}
	}
	return nil
}

// Next returns the next key. Once a clock regression or sequence exhaustion
// is detected, every call fails with the same *ConfigurationError.
func (g *Generator) Next() (Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return Key{}, g.err
	}

	now := g.now()
	if g.refreshed.IsZero() || now.Before(g.refreshed) || now.Sub(g.refreshed) >= g.interval {
		label := uint64(now.UnixMilli())
		switch {
		case label < g.label:
			g.err = &ConfigurationError{Msg: fmt.Sprintf("clock moved backwards from label %d to %d", g.label, label)}
			return Key{}, g.err
		case label > g.label:
			g.label = label
			g.seq = 0
		}
		g.refreshed = now
	}

	if g.seq > math.MaxUint32 {
		g.err = &ConfigurationError{Msg: fmt.Sprintf("sequence exhausted for label %d", g.label)}
		return Key{}, g.err
	}
	k := Key{Label: g.label, Seq: uint32(g.seq)}
	g.seq++
	return k, nil
}
