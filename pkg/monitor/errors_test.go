package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "permission denied",
			err:  &pgconn.PgError{Code: "42501", Message: "permission denied for function pg_current_wal_lsn"},
			want: ErrKindPermissionDenied,
		},
		{
			name: "invalid password",
			err:  &pgconn.PgError{Code: "28P01", Message: "password authentication failed"},
			want: ErrKindAuthFailed,
		},
		{
			name: "invalid authorization",
			err:  &pgconn.PgError{Code: "28000", Message: "role does not exist"},
			want: ErrKindAuthFailed,
		},
		{
			name: "other server error",
			err:  &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			want: ErrKindProtocol,
		},
		{
			name: "wrapped server error",
			err:  fmt.Errorf("query position: %w", &pgconn.PgError{Code: "42501"}),
			want: ErrKindPermissionDenied,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: ErrKindUnreachable,
		},
		{
			name: "plain network failure",
			err:  errors.New("dial tcp 10.0.0.1:5432: connection refused"),
			want: ErrKindUnreachable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cerr := ClassifyError(tc.err)
			if cerr.Kind != tc.want {
				t.Errorf("kind = %v, want %v", cerr.Kind, tc.want)
			}
			if !errors.Is(cerr, tc.err) {
				t.Error("classified error must unwrap to the cause")
			}
		})
	}
}

func TestIsPermissionDenied(t *testing.T) {
	if !IsPermissionDenied(&pgconn.PgError{Code: "42501"}) {
		t.Error("42501 must read as permission denied")
	}
	if IsPermissionDenied(&pgconn.PgError{Code: "28P01"}) {
		t.Error("auth failure is not a per-field permission problem")
	}
	if IsPermissionDenied(errors.New("boom")) {
		t.Error("arbitrary errors are not permission denied")
	}
}
