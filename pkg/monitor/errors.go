package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies a per-instance collection failure. Failures are data:
// they are attached to the instance's record, never thrown past the sampler.
type ErrorKind uint8

const (
	// ErrKindUnreachable covers connect failures and timeouts.
	ErrKindUnreachable ErrorKind = iota
	// ErrKindAuthFailed covers rejected credentials. Retried at a slower
	// cadence since it rarely self-resolves.
	ErrKindAuthFailed
	// ErrKindPermissionDenied means connected but a specific field read was
	// rejected. The field, not the instance, is marked unknown.
	ErrKindPermissionDenied
	// ErrKindProtocol means the instance responded but the payload did not
	// match the expected shape. Retried like a connect failure.
	ErrKindProtocol
)

// String returns the string representation of an error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnreachable:
		return "unreachable"
	case ErrKindAuthFailed:
		return "auth_failed"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindProtocol:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// CollectionError is a classified per-instance failure.
type CollectionError struct {
	Kind ErrorKind
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// SQLSTATE classes and codes used for classification.
const (
	sqlstateClassInvalidAuth    = "28"    // invalid_authorization_specification
	sqlstateInsufficientPrivile = "42501" // insufficient_privilege
)

// ClassifyError maps a driver error onto the collection taxonomy. Anything
// not positively identified as auth or privilege trouble on an established
// connection is treated as unreachable, which retries with backoff.
func ClassifyError(err error) *CollectionError {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlstateInsufficientPrivile:
			return &CollectionError{Kind: ErrKindPermissionDenied, Err: err}
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == sqlstateClassInvalidAuth:
			return &CollectionError{Kind: ErrKindAuthFailed, Err: err}
		default:
			return &CollectionError{Kind: ErrKindProtocol, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &CollectionError{Kind: ErrKindUnreachable, Err: err}
	}
	if pgconn.Timeout(err) {
		return &CollectionError{Kind: ErrKindUnreachable, Err: err}
	}

	return &CollectionError{Kind: ErrKindUnreachable, Err: err}
}

// IsPermissionDenied reports whether err reads as insufficient privilege on
// one field rather than a failure of the whole sample.
func IsPermissionDenied(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateInsufficientPrivile
}
