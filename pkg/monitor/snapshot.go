package monitor

import (
	"fmt"
	"time"
)

// InstanceIdentity names one cluster instance for the lifetime of a run.
// It is derived once from the connection target list and is the join key
// across samples over time and across the topology graph.
type InstanceIdentity struct {
	Host  string
	Port  uint16
	Label string // stable display label, defaults to host:port
}

// Addr returns the host:port form used for upstream matching.
func (id InstanceIdentity) Addr() string {
	return fmt.Sprintf("%s:%d", id.Host, id.Port)
}

// DisplayLabel returns the label, falling back to host:port.
func (id InstanceIdentity) DisplayLabel() string {
	if id.Label != "" {
		return id.Label
	}
	return id.Addr()
}

// RoleHint is the role an instance reports for itself in one sample. The
// resolved role in a snapshot may differ; see ResolvedRole.
type RoleHint uint8

const (
	RoleHintUnknown RoleHint = iota
	RoleHintPrimary
	RoleHintStandby
	RoleHintUnreachable
)

// String returns the string representation of a role hint
func (r RoleHint) String() string {
	switch r {
	case RoleHintPrimary:
		return "primary"
	case RoleHintStandby:
		return "standby"
	case RoleHintUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// InstanceRecord is one instance's point-in-time state as observed by its
// sampler. Immutable once built; superseded wholesale by the next sample.
type InstanceRecord struct {
	Identity InstanceIdentity
	Role     RoleHint

	// ServerAddr is the instance's self-reported address:port
	// (inet_server_addr/inet_server_port), used to collapse duplicate
	// targets and to match upstream pointers.
	ServerAddr Cell[string]

	// LSN is the current WAL position: write position on a primary, last
	// replay position on a standby.
	LSN Cell[LSN]

	// InstanceTime is the clock of the instance itself, not the collector.
	InstanceTime Cell[time.Time]

	// Upstream is the host:port this instance replicates from, as reported
	// by its WAL receiver. Only standbys carry one.
	Upstream Cell[string]

	// Slot is the replication slot the WAL receiver uses, when readable.
	Slot Cell[string]

	// ReplayTime is the commit timestamp of the last replayed transaction.
	ReplayTime Cell[time.Time]

	// PrevLSN and PrevInstanceTime carry the previous sample's position and
	// instance clock. Rate math needs two observations of the same instance
	// measured on that instance's own clock.
	PrevLSN          Cell[LSN]
	PrevInstanceTime Cell[time.Time]

	// WALDelta is bytes written between the previous and current sample.
	// Needs two samples; unknown until then.
	WALDelta Cell[int64]

	// SampledAt is the collector's wall clock at sample receipt. Latency is
	// how long the sample round-trip took.
	SampledAt time.Time
	Latency   time.Duration

	// Err classifies the failure when the sample did not fully succeed.
	Err *CollectionError
}

// ResolvedRole is the role the topology resolver assigns after seeing every
// instance's record, not just the instance's own claim.
type ResolvedRole uint8

const (
	ResolvedUnknown ResolvedRole = iota
	ResolvedPrimary
	ResolvedStandby
	ResolvedUnreachable
)

// String returns the string representation of a resolved role
func (r ResolvedRole) String() string {
	switch r {
	case ResolvedPrimary:
		return "primary"
	case ResolvedStandby:
		return "standby"
	case ResolvedUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// AnomalyKind enumerates cluster-level findings that are computed, never
// asserted by the user.
type AnomalyKind uint8

const (
	// AnomalyNoPrimary means no instance is visibly accepting writes.
	AnomalyNoPrimary AnomalyKind = iota
	// AnomalySplitBrain means more than one instance claims to be primary.
	AnomalySplitBrain
	// AnomalyUnknownUpstream means a standby points at an address outside
	// the monitored set.
	AnomalyUnknownUpstream
	// AnomalyNegativeLag means an instance's position was ahead of its lag
	// reference. The lag is clamped to zero and the condition surfaced here.
	AnomalyNegativeLag
	// AnomalyDuplicateInstance means two configured targets report the same
	// server address: the same instance is being sampled twice under
	// different names.
	AnomalyDuplicateInstance
)

// String returns the string representation of an anomaly kind
func (k AnomalyKind) String() string {
	switch k {
	case AnomalyNoPrimary:
		return "no_primary_visible"
	case AnomalySplitBrain:
		return "split_brain"
	case AnomalyUnknownUpstream:
		return "upstream_unknown"
	case AnomalyNegativeLag:
		return "negative_lag"
	case AnomalyDuplicateInstance:
		return "duplicate_instance"
	default:
		return "unknown"
	}
}

// Anomaly is one cluster-level finding, optionally tied to an instance.
type Anomaly struct {
	Kind     AnomalyKind
	Instance *InstanceIdentity
	Detail   string
}

// InstanceStatus is one instance's row in a snapshot: its latest record plus
// everything derived from the cluster-wide view.
type InstanceStatus struct {
	Record InstanceRecord

	Role          ResolvedRole
	Upstream      *InstanceIdentity  // resolved upstream, nil if none or unknown
	UpstreamChain []InstanceIdentity // path to the replication root

	ByteLag    Cell[int64]
	TimeLag    Cell[time.Duration]
	WALRate    Cell[float64] // bytes per second
	ClockDrift Cell[time.Duration]
}

// ClusterSnapshot is the merged, immutable result of one collection round.
// Exactly one InstanceStatus per configured identity, in target-list order;
// a new snapshot fully replaces the previous one each cycle.
type ClusterSnapshot struct {
	TakenAt   time.Time
	Instances []InstanceStatus
	Anomalies []Anomaly
}

// Status returns the status for the given identity, or nil.
func (s *ClusterSnapshot) Status(id InstanceIdentity) *InstanceStatus {
	for i := range s.Instances {
		if s.Instances[i].Record.Identity == id {
			return &s.Instances[i]
		}
	}
	return nil
}

// HasAnomaly reports whether any anomaly of the given kind is present.
func (s *ClusterSnapshot) HasAnomaly(kind AnomalyKind) bool {
	for _, a := range s.Anomalies {
		if a.Kind == kind {
			return true
		}
	}
	return false
}
