package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sebmann/pgrepltop/pkg/logging"
)

// InstanceSampler runs an independent sampling cycle for one instance. It is
// the only writer of its latest-record slot; the collection loop is the only
// reader. The slot is replaced wholesale each cycle so a reader can never
// observe a half-updated record.
type InstanceSampler struct {
	conn   *InstanceConnection
	cfg    Config
	logger logging.Logger

	latest atomic.Pointer[InstanceRecord]

	failures int
}

// NewInstanceSampler wraps an instance connection with the per-instance
// retry, backoff and timeout policy.
func NewInstanceSampler(conn *InstanceConnection, cfg Config, logger logging.Logger) *InstanceSampler {
	s := &InstanceSampler{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(logging.Component("sampler"), logging.Instance(conn.Identity().DisplayLabel())),
	}
	// The identity must be visible from the very first snapshot, before any
	// sample has completed.
	s.latest.Store(&InstanceRecord{
		Identity:  conn.Identity(),
		Role:      RoleHintUnknown,
		SampledAt: time.Now(),
	})
	return s
}

// Identity returns the instance this sampler owns.
func (s *InstanceSampler) Identity() InstanceIdentity {
	return s.conn.Identity()
}

// Latest returns the most recent record without blocking. Never nil.
func (s *InstanceSampler) Latest() *InstanceRecord {
	return s.latest.Load()
}

// Run samples until ctx is cancelled. There is exactly one in-flight sample
// at a time; a slow instance delays only its own next cycle. The connection
// is closed on every exit path.
func (s *InstanceSampler) Run(ctx context.Context) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.conn.Close(closeCtx)
	}()

	for {
		s.sampleOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval()):
		}
	}
}

func (s *InstanceSampler) sampleOnce(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, s.cfg.SampleTimeout)
	defer cancel()

	rec, cerr := s.conn.Sample(sampleCtx)
	if cerr != nil {
		if ctx.Err() != nil {
			return
		}
		s.failures++
		s.logger.Warn("sample failed",
			logging.String("kind", cerr.Kind.String()),
			logging.Int("consecutive_failures", s.failures),
			logging.Duration("retry_in", s.interval()),
			logging.Error(cerr))
		s.latest.Store(s.failedRecord(cerr))
		return
	}

	if s.failures > 0 {
		s.logger.Info("instance recovered", logging.Int("failures", s.failures))
	}
	s.failures = 0

	s.carryPrevious(rec)
	s.latest.Store(rec)
	s.logger.Debug("sampled",
		logging.Role(rec.Role.String()),
		logging.Duration("latency", rec.Latency))
}

// carryPrevious threads the previous sample's position through the new
// record so rate math has two observations, and derives the WAL delta.
func (s *InstanceSampler) carryPrevious(rec *InstanceRecord) {
	prev := s.latest.Load()
	if prev == nil || prev.Err != nil {
		return
	}
	if !prev.LSN.Valid() || !prev.InstanceTime.Valid() {
		return
	}
	rec.PrevLSN = prev.LSN
	rec.PrevInstanceTime = prev.InstanceTime
	if rec.LSN.Valid() {
		rec.WALDelta = Known(rec.LSN.Value.Sub(prev.LSN.Value))
	}
}

// failedRecord keeps the identity visible with its last-known values aged to
// stale. A failed instance must never vanish from the snapshot.
func (s *InstanceSampler) failedRecord(cerr *CollectionError) *InstanceRecord {
	prev := s.latest.Load()
	rec := &InstanceRecord{
		Identity:  s.conn.Identity(),
		Role:      RoleHintUnreachable,
		SampledAt: time.Now(),
		Err:       cerr,
	}
	if prev != nil {
		rec.ServerAddr = prev.ServerAddr.Aged()
		rec.LSN = prev.LSN.Aged()
		rec.InstanceTime = prev.InstanceTime.Aged()
		rec.Upstream = prev.Upstream.Aged()
		rec.Slot = prev.Slot.Aged()
		rec.ReplayTime = prev.ReplayTime.Aged()
	}
	return rec
}

// interval is the wait before the next sample: the configured cadence when
// healthy, doubling per consecutive failure up to the cap. Auth failures use
// a slower floor since they rarely self-resolve.
func (s *InstanceSampler) interval() time.Duration {
	if s.failures == 0 {
		return s.cfg.SampleInterval
	}

	backoff := s.cfg.SampleInterval
	for i := 1; i < s.failures && backoff < s.cfg.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > s.cfg.MaxBackoff {
		backoff = s.cfg.MaxBackoff
	}

	if last := s.latest.Load(); last != nil && last.Err != nil &&
		last.Err.Kind == ErrKindAuthFailed && backoff < s.cfg.AuthBackoffFloor {
		backoff = s.cfg.AuthBackoffFloor
	}
	return backoff
}
