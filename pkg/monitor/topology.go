package monitor

import (
	"fmt"
)

// Topology is the resolver output: role and upstream per identity plus the
// cluster-level anomaly list. It is rebuilt from scratch every cycle from
// the declarative upstream pointers, never patched incrementally, so a
// failover is reflected the moment the records reflect it.
type Topology struct {
	Roles     map[InstanceIdentity]ResolvedRole
	Upstreams map[InstanceIdentity]*InstanceIdentity
	Chains    map[InstanceIdentity][]InstanceIdentity
	Anomalies []Anomaly
}

// ResolveTopology derives each instance's role and upstream from the latest
// record set. It is deterministic and free of cross-cycle state: the same
// records always produce the same topology.
func ResolveTopology(records []InstanceRecord) Topology {
	topo := Topology{
		Roles:     make(map[InstanceIdentity]ResolvedRole, len(records)),
		Upstreams: make(map[InstanceIdentity]*InstanceIdentity, len(records)),
		Chains:    make(map[InstanceIdentity][]InstanceIdentity, len(records)),
	}

	// Instances are addressable by their configured host:port, their label,
	// and their self-reported server address. Upstream pointers may use any
	// of them.
	byAddr := make(map[string]InstanceIdentity, len(records)*2)
	// Two targets reporting the same server address are aliases of one
	// instance (a hostname and its IP, say). Literal duplicates collapse at
	// parse time; alias pairs only become visible here, once the server has
	// told each connection who it is. The identity set is fixed for the run,
	// so the duplicate is flagged rather than dropped.
	firstByServer := make(map[string]InstanceIdentity, len(records))
	for _, rec := range records {
		byAddr[rec.Identity.Addr()] = rec.Identity
		if rec.Identity.Label != "" {
			byAddr[rec.Identity.Label] = rec.Identity
		}
		if !rec.ServerAddr.HasValue() {
			continue
		}
		byAddr[rec.ServerAddr.Value] = rec.Identity
		if first, ok := firstByServer[rec.ServerAddr.Value]; ok {
			id := rec.Identity
			topo.Anomalies = append(topo.Anomalies, Anomaly{
				Kind:     AnomalyDuplicateInstance,
				Instance: &id,
				Detail:   fmt.Sprintf("reports the same server %s as %s", rec.ServerAddr.Value, first.DisplayLabel()),
			})
		} else {
			firstByServer[rec.ServerAddr.Value] = rec.Identity
		}
	}

	var primaries []InstanceIdentity
	reachable := 0

	for _, rec := range records {
		id := rec.Identity
		switch rec.Role {
		case RoleHintPrimary:
			topo.Roles[id] = ResolvedPrimary
			primaries = append(primaries, id)
			reachable++
		case RoleHintStandby:
			topo.Roles[id] = ResolvedStandby
			reachable++
		case RoleHintUnreachable:
			topo.Roles[id] = ResolvedUnreachable
		default:
			topo.Roles[id] = ResolvedUnknown
		}

		if !rec.Upstream.HasValue() {
			continue
		}
		if up, ok := byAddr[rec.Upstream.Value]; ok {
			upstream := up
			topo.Upstreams[id] = &upstream
		} else {
			topo.Anomalies = append(topo.Anomalies, Anomaly{
				Kind:     AnomalyUnknownUpstream,
				Instance: &id,
				Detail:   fmt.Sprintf("upstream %s is not a monitored instance", rec.Upstream.Value),
			})
		}
	}

	for _, rec := range records {
		topo.Chains[rec.Identity] = chain(rec.Identity, topo.Upstreams)
	}

	switch {
	case len(primaries) == 0 && reachable > 0:
		topo.Anomalies = append(topo.Anomalies, Anomaly{
			Kind:   AnomalyNoPrimary,
			Detail: "no instance is accepting writes",
		})
	case len(primaries) == 0:
		// Every instance unreachable: the cluster may be fine and the
		// collector partitioned from it. Still worth flagging.
		topo.Anomalies = append(topo.Anomalies, Anomaly{
			Kind:   AnomalyNoPrimary,
			Detail: "no instance reachable",
		})
	case len(primaries) > 1:
		for i := range primaries {
			id := primaries[i]
			topo.Anomalies = append(topo.Anomalies, Anomaly{
				Kind:     AnomalySplitBrain,
				Instance: &id,
				Detail:   fmt.Sprintf("%d instances claim to be primary", len(primaries)),
			})
		}
	}

	return topo
}

// Root returns the top of an instance's upstream chain: the instance itself
// when it has no known upstream. Lag references are chosen per root so that
// during a split brain each primary's subtree is measured independently.
func (t Topology) Root(id InstanceIdentity) InstanceIdentity {
	c := t.Chains[id]
	if len(c) == 0 {
		return id
	}
	return c[len(c)-1]
}

// chain walks upstream pointers from id to the replication root. A cycle,
// which only a misconfigured cluster can produce, terminates the walk
// rather than hanging it.
func chain(id InstanceIdentity, upstreams map[InstanceIdentity]*InstanceIdentity) []InstanceIdentity {
	var out []InstanceIdentity
	seen := map[InstanceIdentity]bool{id: true}
	for cur := upstreams[id]; cur != nil; cur = upstreams[*cur] {
		if seen[*cur] {
			break
		}
		seen[*cur] = true
		out = append(out, *cur)
	}
	return out
}
