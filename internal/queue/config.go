package queue

import (
	"log/slog"
	"time"

	"github.com/user/qool/internal/kv"
)

// Config holds engine configuration.
type Config struct {
	Logger              *slog.Logger
	Now                 func() time.Time // wall clock (default time.Now)
	LabelInterval       time.Duration    // key label refresh cadence (default 1s)
	LeaseSweepInterval  time.Duration    // lease expiry sweep cadence (default 1s)
	DefaultLeaseTimeout time.Duration    // used when Lease is called with timeout <= 0 (default 30s)
	PayloadSchema       string           // optional JSON Schema every enqueued value must satisfy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:              slog.Default(),
		Now:                 time.Now,
		LabelInterval:       kv.DefaultLabelInterval,
		LeaseSweepInterval:  1 * time.Second,
		DefaultLeaseTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.LabelInterval <= 0 {
		c.LabelInterval = def.LabelInterval
	}
	if c.LeaseSweepInterval <= 0 {
		c.LeaseSweepInterval = def.LeaseSweepInterval
	}
	if c.DefaultLeaseTimeout <= 0 {
		c.DefaultLeaseTimeout = def.DefaultLeaseTimeout
	}
	return c
}
