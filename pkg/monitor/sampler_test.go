package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebmann/pgrepltop/pkg/logging"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = 200 * time.Millisecond
	cfg.SampleTimeout = time.Second
	cfg.SnapshotInterval = 200 * time.Millisecond
	cfg.MaxBackoff = 1600 * time.Millisecond
	cfg.AuthBackoffFloor = 800 * time.Millisecond
	return cfg
}

func TestSamplerLatestNeverNil(t *testing.T) {
	conn := newTestConnection(&fakeConn{rows: primaryRows(time.Now())}, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	rec := s.Latest()
	if rec == nil {
		t.Fatal("Latest() nil before first sample")
	}
	if rec.Identity != ident("db01") {
		t.Errorf("identity = %+v", rec.Identity)
	}
	if rec.Role != RoleHintUnknown {
		t.Errorf("pre-sample role = %v, want unknown", rec.Role)
	}
}

func TestSamplerPublishesRecord(t *testing.T) {
	conn := newTestConnection(&fakeConn{rows: primaryRows(time.Now())}, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	s.sampleOnce(context.Background())

	rec := s.Latest()
	if rec.Role != RoleHintPrimary {
		t.Errorf("role = %v, want primary", rec.Role)
	}
	if rec.Err != nil {
		t.Errorf("err = %v", rec.Err)
	}
}

func TestSamplerCarriesPreviousForRateMath(t *testing.T) {
	now := time.Now()
	fake := &fakeConn{rows: primaryRows(now)}
	conn := newTestConnection(fake, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	s.sampleOnce(context.Background())
	first := s.Latest()
	if first.PrevLSN.Valid() {
		t.Error("first sample cannot have a previous position")
	}
	if first.WALDelta.Valid() {
		t.Error("wal delta needs two samples")
	}

	// Advance the instance by 0x100 bytes
	fake.rows["SELECT pg_current_wal"] = fakeRow{scan: scanInto("16/B374D948", now.Add(time.Second))}
	s.sampleOnce(context.Background())

	second := s.Latest()
	if !second.PrevLSN.Valid() || second.PrevLSN.Value != first.LSN.Value {
		t.Errorf("prev lsn = %+v, want %v", second.PrevLSN, first.LSN.Value)
	}
	if !second.WALDelta.Valid() || second.WALDelta.Value != 0x100 {
		t.Errorf("wal delta = %+v, want 256", second.WALDelta)
	}
}

func TestSamplerFailureKeepsIdentityVisible(t *testing.T) {
	now := time.Now()
	fake := &fakeConn{rows: primaryRows(now)}
	conn := newTestConnection(fake, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	s.sampleOnce(context.Background())
	healthy := s.Latest()

	// Instance goes dark; every query and every redial fails
	fake.failAll = errors.New("connection reset")
	conn.dial = func(ctx context.Context) (dbConn, error) {
		return nil, errors.New("connect refused")
	}
	s.sampleOnce(context.Background())

	rec := s.Latest()
	if rec.Identity != ident("db01") {
		t.Error("identity dropped on failure")
	}
	if rec.Role != RoleHintUnreachable {
		t.Errorf("role = %v, want unreachable", rec.Role)
	}
	if rec.Err == nil || rec.Err.Kind != ErrKindUnreachable {
		t.Errorf("err = %+v", rec.Err)
	}
	// Last-known values survive, downgraded to stale
	if rec.LSN.State != FieldStale || rec.LSN.Value != healthy.LSN.Value {
		t.Errorf("lsn after failure = %+v, want stale %v", rec.LSN, healthy.LSN.Value)
	}
	if rec.LSN.Valid() {
		t.Error("stale value must not read as fresh")
	}
}

func TestSamplerBackoffDoublesToCap(t *testing.T) {
	conn := newTestConnection(&fakeConn{}, "")
	cfg := testConfig()
	s := NewInstanceSampler(conn, cfg, logging.NewNopLogger())

	want := []time.Duration{
		0: cfg.SampleInterval, // healthy
		1: 200 * time.Millisecond,
		2: 400 * time.Millisecond,
		3: 800 * time.Millisecond,
		4: 1600 * time.Millisecond,
		5: 1600 * time.Millisecond, // capped
		6: 1600 * time.Millisecond,
	}
	for failures, expected := range want {
		s.failures = failures
		if got := s.interval(); got != expected {
			t.Errorf("interval(failures=%d) = %v, want %v", failures, got, expected)
		}
	}
}

func TestSamplerAuthFailureBacksOffSlower(t *testing.T) {
	conn := newTestConnection(&fakeConn{}, "")
	cfg := testConfig()
	s := NewInstanceSampler(conn, cfg, logging.NewNopLogger())

	s.failures = 1
	s.latest.Store(&InstanceRecord{
		Identity: ident("db01"),
		Role:     RoleHintUnreachable,
		Err:      &CollectionError{Kind: ErrKindAuthFailed, Err: errors.New("bad password")},
	})

	if got := s.interval(); got != cfg.AuthBackoffFloor {
		t.Errorf("auth retry interval = %v, want floor %v", got, cfg.AuthBackoffFloor)
	}
}

func TestSamplerSuccessResetsBackoff(t *testing.T) {
	now := time.Now()
	fake := &fakeConn{rows: primaryRows(now)}
	conn := newTestConnection(fake, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	s.failures = 5
	s.sampleOnce(context.Background())

	if s.failures != 0 {
		t.Errorf("failures after success = %d, want 0", s.failures)
	}
	if got := s.interval(); got != testConfig().SampleInterval {
		t.Errorf("interval after recovery = %v, want base interval", got)
	}
}

func TestSamplerRunStopsOnCancel(t *testing.T) {
	fake := &fakeConn{rows: primaryRows(time.Now())}
	conn := newTestConnection(fake, "")
	s := NewInstanceSampler(conn, testConfig(), logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler did not stop on cancel")
	}
	if !fake.closed {
		t.Error("connection not closed on shutdown")
	}
}
