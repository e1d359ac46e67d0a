package tui

import (
	"sort"
	"time"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

// SortMode selects the row ordering. The letters match the interactive keys.
type SortMode byte

const (
	SortHost     SortMode = 'h'
	SortUpstream SortMode = 'u'
	SortSlot     SortMode = 's'
	SortRole     SortMode = 'r'
	SortLagSec   SortMode = 'm'
	SortLagBytes SortMode = 'w'
	SortLSN      SortMode = 'l'
)

// String returns the ordering's display name.
func (m SortMode) String() string {
	switch m {
	case SortUpstream:
		return "upstream"
	case SortSlot:
		return "slot"
	case SortRole:
		return "role"
	case SortLagSec:
		return "lag(s)"
	case SortLagBytes:
		return "lag(bytes)"
	case SortLSN:
		return "lsn"
	default:
		return "host"
	}
}

// sortStatuses orders a copy of the statuses. Instances with unknown values
// for the sort field go last; ties break by host so the order is stable
// across refreshes.
func sortStatuses(in []monitor.InstanceStatus, mode SortMode) []monitor.InstanceStatus {
	out := make([]monitor.InstanceStatus, len(in))
	copy(out, in)

	less := func(a, b monitor.InstanceStatus) bool {
		switch mode {
		case SortUpstream:
			return upstreamLabel(a) < upstreamLabel(b)
		case SortSlot:
			return cellOrder(a.Record.Slot, b.Record.Slot, func(x, y string) bool { return x < y })
		case SortRole:
			return a.Role < b.Role
		case SortLagSec:
			return cellOrder(a.TimeLag, b.TimeLag, func(x, y time.Duration) bool { return x > y })
		case SortLagBytes:
			return cellOrder(a.ByteLag, b.ByteLag, func(x, y int64) bool { return x > y })
		case SortLSN:
			return cellOrder(a.Record.LSN, b.Record.LSN, func(x, y monitor.LSN) bool { return x > y })
		default:
			return false
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Record.Identity.DisplayLabel() < b.Record.Identity.DisplayLabel()
	})
	return out
}

// cellOrder compares two cells, pushing valueless ones to the end.
func cellOrder[T any](a, b monitor.Cell[T], less func(T, T) bool) bool {
	switch {
	case a.HasValue() && !b.HasValue():
		return true
	case !a.HasValue():
		return false
	default:
		return less(a.Value, b.Value)
	}
}

func upstreamLabel(st monitor.InstanceStatus) string {
	if st.Upstream != nil {
		return st.Upstream.DisplayLabel()
	}
	if st.Record.Upstream.HasValue() {
		return st.Record.Upstream.Value
	}
	// Sort instances without an upstream after those with one.
	return "\xff"
}
