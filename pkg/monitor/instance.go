package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sebmann/pgrepltop/pkg/logging"
)

// dbConn is the slice of *pgx.Conn the connection layer needs. Narrowed to
// an interface so samples can be exercised against canned rows in tests.
type dbConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// pgconnCommandTag mirrors pgconn.CommandTag's use here (none beyond the
// error), keeping the interface free of driver types tests cannot build.
type pgconnCommandTag = interface{ String() string }

// pgxConn adapts *pgx.Conn to dbConn.
type pgxConn struct {
	*pgx.Conn
}

func (c pgxConn) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := c.Conn.Exec(ctx, sql, args...)
	return tag, err
}

// InstanceConnection owns one long-lived connection to a single cluster
// instance. The connection is opened once and reused for every sample;
// reconnecting every cycle is deliberately avoided. If the connection has
// dropped, Sample attempts exactly one transparent reconnect before
// reporting the instance unreachable.
type InstanceConnection struct {
	identity InstanceIdentity
	role     string // optional role to switch to after connect
	logger   logging.Logger

	dial func(ctx context.Context) (dbConn, error)
	conn dbConn
}

// NewInstanceConnection builds a connection owner for one instance. connCfg
// must already carry credentials; the core never reads the environment
// itself.
func NewInstanceConnection(identity InstanceIdentity, connCfg *pgx.ConnConfig, role string, logger logging.Logger) *InstanceConnection {
	return &InstanceConnection{
		identity: identity,
		role:     role,
		logger:   logger.With(logging.Component("connection"), logging.Instance(identity.DisplayLabel())),
		dial: func(ctx context.Context) (dbConn, error) {
			conn, err := pgx.ConnectConfig(ctx, connCfg)
			if err != nil {
				return nil, err
			}
			return pgxConn{conn}, nil
		},
	}
}

// Identity returns the instance this connection belongs to.
func (c *InstanceConnection) Identity() InstanceIdentity {
	return c.identity
}

// Open establishes the connection and applies the post-connect role switch.
func (c *InstanceConnection) Open(ctx context.Context) *CollectionError {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return ClassifyError(err)
	}

	if c.role != "" {
		// SET ROLE does not take bind parameters; quote as an identifier.
		stmt := fmt.Sprintf("SET ROLE %s", pgx.Identifier{c.role}.Sanitize())
		if _, err := conn.Exec(ctx, stmt); err != nil {
			conn.Close(ctx)
			return ClassifyError(err)
		}
		c.logger.Debug("switched role", logging.Role(c.role))
	}

	c.conn = conn
	c.logger.Info("connected")
	return nil
}

// Close tears the connection down. Safe to call on a never-opened connection.
func (c *InstanceConnection) Close(ctx context.Context) {
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close(ctx)
	}
	c.conn = nil
}

// Sample reads the instance's replication state once. A field rejected for
// insufficient privilege is marked unreadable inside the returned record
// rather than failing the whole sample; only connection-level trouble causes
// a typed failure, after one transparent reconnect attempt.
func (c *InstanceConnection) Sample(ctx context.Context) (*InstanceRecord, *CollectionError) {
	start := time.Now()

	rec, cerr := c.sampleOnce(ctx)
	if cerr != nil && cerr.Kind == ErrKindUnreachable {
		c.logger.Debug("sample failed, reconnecting once", logging.Error(cerr))
		c.Close(ctx)
		if cerr = c.Open(ctx); cerr == nil {
			rec, cerr = c.sampleOnce(ctx)
		}
	}
	if cerr != nil {
		return nil, cerr
	}

	now := time.Now()
	rec.SampledAt = now
	rec.Latency = now.Sub(start)
	return rec, nil
}

func (c *InstanceConnection) sampleOnce(ctx context.Context) (*InstanceRecord, *CollectionError) {
	if c.conn == nil || c.conn.IsClosed() {
		if cerr := c.Open(ctx); cerr != nil {
			return nil, cerr
		}
	}

	rec := &InstanceRecord{Identity: c.identity}

	// Role first: everything else branches on it, and a failure here is a
	// failure of the sample, not of one field.
	var inRecovery bool
	if err := c.conn.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return nil, ClassifyError(err)
	}
	if inRecovery {
		rec.Role = RoleHintStandby
	} else {
		rec.Role = RoleHintPrimary
	}

	if cerr := c.readPosition(ctx, rec, inRecovery); cerr != nil {
		return nil, cerr
	}
	if cerr := c.readServerAddr(ctx, rec); cerr != nil {
		return nil, cerr
	}
	if inRecovery {
		if cerr := c.readWALReceiver(ctx, rec); cerr != nil {
			return nil, cerr
		}
	}

	return rec, nil
}

// readPosition fills LSN, InstanceTime and, on a standby, ReplayTime.
func (c *InstanceConnection) readPosition(ctx context.Context, rec *InstanceRecord, inRecovery bool) *CollectionError {
	var (
		lsnText *string
		now     time.Time
	)

	if inRecovery {
		var replay *time.Time
		err := c.conn.QueryRow(ctx,
			"SELECT pg_last_wal_replay_lsn()::text, now(), pg_last_xact_replay_timestamp()",
		).Scan(&lsnText, &now, &replay)
		switch {
		case IsPermissionDenied(err):
			rec.LSN = Unreadable[LSN]()
			rec.InstanceTime = Unreadable[time.Time]()
			rec.ReplayTime = Unreadable[time.Time]()
			return nil
		case err != nil:
			return ClassifyError(err)
		}
		if replay != nil {
			rec.ReplayTime = Known(*replay)
		}
	} else {
		err := c.conn.QueryRow(ctx,
			"SELECT pg_current_wal_lsn()::text, now()",
		).Scan(&lsnText, &now)
		switch {
		case IsPermissionDenied(err):
			rec.LSN = Unreadable[LSN]()
			rec.InstanceTime = Unreadable[time.Time]()
			return nil
		case err != nil:
			return ClassifyError(err)
		}
	}

	rec.InstanceTime = Known(now)
	if lsnText == nil {
		// Replay LSN can be null early in recovery.
		return nil
	}
	lsn, err := ParseLSN(*lsnText)
	if err != nil {
		return &CollectionError{Kind: ErrKindProtocol, Err: err}
	}
	rec.LSN = Known(lsn)
	return nil
}

// readServerAddr fills the instance's self-reported address.
func (c *InstanceConnection) readServerAddr(ctx context.Context, rec *InstanceRecord) *CollectionError {
	var (
		addr *string
		port *int32
	)
	err := c.conn.QueryRow(ctx,
		"SELECT inet_server_addr()::text, inet_server_port()",
	).Scan(&addr, &port)
	switch {
	case IsPermissionDenied(err):
		rec.ServerAddr = Unreadable[string]()
		return nil
	case err != nil:
		return ClassifyError(err)
	}
	if addr == nil || port == nil {
		// Unix-socket connections report no server address.
		return nil
	}
	rec.ServerAddr = Known(fmt.Sprintf("%s:%d", *addr, *port))
	return nil
}

// readWALReceiver fills Upstream and Slot from the standby's WAL receiver.
func (c *InstanceConnection) readWALReceiver(ctx context.Context, rec *InstanceRecord) *CollectionError {
	var (
		host *string
		port *int32
		slot *string
	)
	err := c.conn.QueryRow(ctx,
		"SELECT sender_host, sender_port, slot_name FROM pg_stat_wal_receiver",
	).Scan(&host, &port, &slot)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No receiver running: restore_command standby or receiver restart.
		return nil
	case IsPermissionDenied(err):
		rec.Upstream = Unreadable[string]()
		rec.Slot = Unreadable[string]()
		return nil
	case err != nil:
		return ClassifyError(err)
	}
	if host != nil && port != nil {
		rec.Upstream = Known(fmt.Sprintf("%s:%d", *host, *port))
	}
	if slot != nil && *slot != "" {
		rec.Slot = Known(*slot)
	}
	return nil
}
