package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// LSN is a write-ahead log position. Postgres reports these as two 32-bit
// hex halves joined by a slash ("16/B374D848"); internally they are a single
// monotonically increasing 64-bit byte offset.
type LSN uint64

// ParseLSN parses the textual X/X form reported by the server.
func ParseLSN(s string) (LSN, error) {
	hi, lo, ok := strings.Cut(s, "/")
	if !ok {
		return 0, fmt.Errorf("malformed lsn %q: missing separator", s)
	}
	h, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed lsn %q: %w", s, err)
	}
	l, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed lsn %q: %w", s, err)
	}
	return LSN(h<<32 | l), nil
}

// String renders the LSN in the server's X/X hex form.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

// Sub returns l - other as a signed byte delta.
func (l LSN) Sub(other LSN) int64 {
	return int64(l) - int64(other)
}
