package monitor

import (
	"fmt"
	"time"
)

// ComputeStatuses enriches the resolved topology with lag, rate and drift
// metrics and assembles the per-instance statuses in record order. Any
// unknown operand propagates to an unknown result; a metric is never
// silently zero.
func ComputeStatuses(records []InstanceRecord, topo *Topology) []InstanceStatus {
	references := lagReferences(records, topo)

	statuses := make([]InstanceStatus, 0, len(records))
	for _, rec := range records {
		id := rec.Identity
		st := InstanceStatus{
			Record:        rec,
			Role:          topo.Roles[id],
			Upstream:      topo.Upstreams[id],
			UpstreamChain: topo.Chains[id],
			WALRate:       walRate(rec),
			ClockDrift:    clockDrift(rec),
		}

		ref, hasRef := references[topo.Root(id)]
		if hasRef && rec.LSN.Valid() {
			delta := ref.lsn.Sub(rec.LSN.Value)
			if delta < 0 {
				// The reference is the maximum known position, so a negative
				// delta means positions moved between reads or clocks are
				// inconsistent. Clamp and surface it instead of reporting a
				// negative lag.
				topo.Anomalies = append(topo.Anomalies, Anomaly{
					Kind:     AnomalyNegativeLag,
					Instance: &rec.Identity,
					Detail:   fmt.Sprintf("position %s ahead of reference %s", rec.LSN.Value, ref.lsn),
				})
				delta = 0
			}
			st.ByteLag = Known(delta)
			st.TimeLag = timeLag(delta, ref)
		}

		statuses = append(statuses, st)
	}
	return statuses
}

// lagReference is the most advanced known position within one replication
// subtree, plus that node's observed WAL advance rate for time-lag
// estimation.
type lagReference struct {
	lsn  LSN
	rate Cell[float64] // bytes per second, from the reference node's last two samples
}

// lagReferences picks the reference per subtree root. The reference is the
// highest valid LSN, not a designated primary: during failover or split
// brain an ahead standby is the only honest yardstick.
func lagReferences(records []InstanceRecord, topo *Topology) map[InstanceIdentity]lagReference {
	refs := make(map[InstanceIdentity]lagReference)
	for _, rec := range records {
		if !rec.LSN.Valid() {
			continue
		}
		root := topo.Root(rec.Identity)
		cur, ok := refs[root]
		if !ok || rec.LSN.Value > cur.lsn {
			refs[root] = lagReference{lsn: rec.LSN.Value, rate: walRate(rec)}
		}
	}
	return refs
}

// walRate computes an instance's WAL advance in bytes per second between its
// two most recent samples, measured on the instance's own clock so collector
// scheduling jitter cannot skew it. Unknown until two samples exist.
func walRate(rec InstanceRecord) Cell[float64] {
	if !rec.LSN.Valid() || !rec.InstanceTime.Valid() {
		return Unknown[float64]()
	}
	if !rec.PrevLSN.Valid() || !rec.PrevInstanceTime.Valid() {
		return Unknown[float64]()
	}
	window := rec.InstanceTime.Value.Sub(rec.PrevInstanceTime.Value)
	if window <= 0 {
		return Unknown[float64]()
	}
	return Known(float64(rec.LSN.Value.Sub(rec.PrevLSN.Value)) / window.Seconds())
}

// timeLag estimates how long the instance needs to replay byteLag bytes at
// the reference node's observed WAL rate. Unknown when the reference has
// fewer than two samples or its WAL is not advancing, even at zero byte-lag:
// without a rate there is no basis for a time estimate.
func timeLag(byteLag int64, ref lagReference) Cell[time.Duration] {
	if !ref.rate.Valid() || ref.rate.Value <= 0 {
		return Unknown[time.Duration]()
	}
	secs := float64(byteLag) / ref.rate.Value
	return Known(time.Duration(secs * float64(time.Second)))
}

// clockDrift is the instance's self-reported clock minus the collector's
// wall clock at sample receipt. Network latency rides along in this number;
// it is an estimate, not a corrected measurement.
func clockDrift(rec InstanceRecord) Cell[time.Duration] {
	if !rec.InstanceTime.Valid() || rec.SampledAt.IsZero() {
		return Unknown[time.Duration]()
	}
	return Known(rec.InstanceTime.Value.Sub(rec.SampledAt))
}
