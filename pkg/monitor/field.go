package monitor

// FieldState distinguishes why a metric field does or does not carry a value.
// Collapsing these states into a plain optional loses information the
// renderer needs: an unreadable field and a stale field both have "no fresh
// value" but mean very different things to an operator.
type FieldState uint8

const (
	// FieldUnknown means no value has ever been observed for this field.
	FieldUnknown FieldState = iota
	// FieldKnown means the value was read during the most recent sample.
	FieldKnown
	// FieldUnreadable means the instance rejected the read for insufficient
	// privilege. The value is never defaulted to zero.
	FieldUnreadable
	// FieldStale means the value was read on an earlier sample and the
	// instance has since become unreachable.
	FieldStale
)

// String returns the string representation of a field state
func (s FieldState) String() string {
	switch s {
	case FieldKnown:
		return "known"
	case FieldUnreadable:
		return "unreadable"
	case FieldStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Cell is one tri-state metric field: a value plus the reason it can or
// cannot be trusted. The zero Cell is FieldUnknown.
type Cell[T any] struct {
	Value T
	State FieldState
}

// Known wraps a freshly observed value.
func Known[T any](v T) Cell[T] {
	return Cell[T]{Value: v, State: FieldKnown}
}

// Unknown returns a cell with no value.
func Unknown[T any]() Cell[T] {
	return Cell[T]{}
}

// Unreadable returns a cell marked permission-denied.
func Unreadable[T any]() Cell[T] {
	return Cell[T]{State: FieldUnreadable}
}

// Valid reports whether the cell holds a fresh value.
func (c Cell[T]) Valid() bool {
	return c.State == FieldKnown
}

// HasValue reports whether the cell holds any value, fresh or stale.
func (c Cell[T]) HasValue() bool {
	return c.State == FieldKnown || c.State == FieldStale
}

// Aged returns the cell downgraded for a sample that failed: a known value
// becomes stale, everything else keeps its state. The value survives so the
// renderer can show the last observation alongside the staleness marker.
func (c Cell[T]) Aged() Cell[T] {
	if c.State == FieldKnown {
		return Cell[T]{Value: c.Value, State: FieldStale}
	}
	return c
}
