package monitor

import (
	"time"

	"github.com/sebmann/pgrepltop/pkg/validation"
)

// Config holds the collection engine configuration.
type Config struct {
	// SampleInterval is the per-instance sampling cadence.
	SampleInterval time.Duration

	// SampleTimeout bounds one sample round-trip, including the single
	// transparent reconnect attempt.
	SampleTimeout time.Duration

	// ConnectTimeout bounds the initial connection attempt per instance.
	ConnectTimeout time.Duration

	// SnapshotInterval is the resolve/compute/publish cadence. It is
	// independent of the samplers: a sampler that has not produced a fresh
	// record simply contributes its previous one, aged.
	SnapshotInterval time.Duration

	// MaxBackoff caps the retry interval for an unreachable instance.
	// Consecutive failures double the interval from SampleInterval up to
	// this cap; one success resets it.
	MaxBackoff time.Duration

	// AuthBackoffFloor is the minimum retry interval once credentials have
	// been rejected. Auth failures rarely self-resolve, so they are retried
	// at a slower cadence than connect failures.
	AuthBackoffFloor time.Duration
}

// DefaultConfig returns the documented default collection constants.
func DefaultConfig() Config {
	return Config{
		SampleInterval:   1 * time.Second,
		SampleTimeout:    5 * time.Second,
		ConnectTimeout:   10 * time.Second,
		SnapshotInterval: 1 * time.Second,
		MaxBackoff:       30 * time.Second,
		AuthBackoffFloor: 10 * time.Second,
	}
}

// ConfigForInterval builds a config around an operator-chosen cadence. The
// backoff cap scales up with a long interval so any cadence Validate accepts
// on its own stays valid as a whole.
func ConfigForInterval(interval time.Duration) Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = interval
	cfg.SnapshotInterval = interval
	if cfg.MaxBackoff < interval {
		cfg.MaxBackoff = 2 * interval
	}
	return cfg
}

// Validate validates the collection configuration.
func (c *Config) Validate() error {
	return validation.NewConfigValidator("MonitorConfig").
		MinDuration("SampleInterval", c.SampleInterval, 100*time.Millisecond).
		MinDuration("SampleTimeout", c.SampleTimeout, 500*time.Millisecond).
		MinDuration("ConnectTimeout", c.ConnectTimeout, 1*time.Second).
		MinDuration("SnapshotInterval", c.SnapshotInterval, 100*time.Millisecond).
		MinDuration("MaxBackoff", c.MaxBackoff, c.SampleInterval).
		MaxDuration("AuthBackoffFloor", c.AuthBackoffFloor, c.MaxBackoff).
		Validate()
}
