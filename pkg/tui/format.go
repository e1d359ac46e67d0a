package tui

import (
	"fmt"
	"time"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

// unknownMarker is what any field without a trustworthy value renders as.
// A question mark is honest; a zero or a blank is not.
const unknownMarker = "?"

// staleSuffix marks a last-known value from before the instance stopped
// answering.
const staleSuffix = "*"

// cellString renders a tri-state cell with a custom value formatter.
func cellString[T any](c monitor.Cell[T], format func(T) string) string {
	switch c.State {
	case monitor.FieldKnown:
		return format(c.Value)
	case monitor.FieldStale:
		return format(c.Value) + staleSuffix
	default:
		return unknownMarker
	}
}

// humanBytes renders a byte count with a binary-prefix unit.
func humanBytes(n int64) string {
	neg := ""
	if n < 0 {
		neg = "-"
		n = -n
	}
	units := []string{"K", "M", "G", "T", "P", "E"}
	if n < 1024 {
		return fmt.Sprintf("%s%dB", neg, n)
	}
	v := float64(n)
	for _, u := range units {
		v /= 1024
		if v < 1024 {
			return fmt.Sprintf("%s%.2f%s", neg, v, u)
		}
	}
	return fmt.Sprintf("%s%.2fE", neg, v)
}

// humanRate renders bytes/sec as MB/s to match the column header.
func humanRate(bps float64) string {
	return fmt.Sprintf("%.2f", bps/(1024*1024))
}

// humanSeconds renders a duration as whole seconds.
func humanSeconds(d time.Duration) string {
	return fmt.Sprintf("%.0f", d.Seconds())
}

// humanDrift renders clock drift with sign and millisecond precision.
func humanDrift(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
