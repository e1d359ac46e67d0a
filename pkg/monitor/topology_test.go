package monitor

import (
	"reflect"
	"testing"
	"time"
)

func ident(host string) InstanceIdentity {
	return InstanceIdentity{Host: host, Port: 5432, Label: host + ":5432"}
}

func primaryRecord(host string, lsn LSN) InstanceRecord {
	return InstanceRecord{
		Identity:     ident(host),
		Role:         RoleHintPrimary,
		LSN:          Known(lsn),
		InstanceTime: Known(time.Now()),
		SampledAt:    time.Now(),
	}
}

func standbyRecord(host string, lsn LSN, upstream string) InstanceRecord {
	return InstanceRecord{
		Identity:     ident(host),
		Role:         RoleHintStandby,
		LSN:          Known(lsn),
		InstanceTime: Known(time.Now()),
		Upstream:     Known(upstream + ":5432"),
		SampledAt:    time.Now(),
	}
}

func unreachableRecord(host string) InstanceRecord {
	return InstanceRecord{
		Identity:  ident(host),
		Role:      RoleHintUnreachable,
		SampledAt: time.Now(),
		Err:       &CollectionError{Kind: ErrKindUnreachable},
	}
}

func TestResolveTopologyHealthyCluster(t *testing.T) {
	records := []InstanceRecord{
		primaryRecord("db01", 1000),
		standbyRecord("db02", 900, "db01"),
		standbyRecord("db03", 950, "db01"),
	}

	topo := ResolveTopology(records)

	if len(topo.Anomalies) != 0 {
		t.Fatalf("healthy cluster produced anomalies: %+v", topo.Anomalies)
	}
	if topo.Roles[ident("db01")] != ResolvedPrimary {
		t.Errorf("db01 role = %v, want primary", topo.Roles[ident("db01")])
	}
	for _, h := range []string{"db02", "db03"} {
		if topo.Roles[ident(h)] != ResolvedStandby {
			t.Errorf("%s role = %v, want standby", h, topo.Roles[ident(h)])
		}
		up := topo.Upstreams[ident(h)]
		if up == nil || *up != ident("db01") {
			t.Errorf("%s upstream = %v, want db01", h, up)
		}
	}
}

func TestResolveTopologySplitBrain(t *testing.T) {
	records := []InstanceRecord{
		primaryRecord("db01", 1000),
		primaryRecord("db02", 800),
		standbyRecord("db03", 790, "db02"),
	}

	topo := ResolveTopology(records)

	splitBrains := 0
	for _, a := range topo.Anomalies {
		if a.Kind == AnomalySplitBrain {
			splitBrains++
		}
	}
	if splitBrains != 2 {
		t.Errorf("split brain anomalies = %d, want one per claiming primary", splitBrains)
	}
	// Both claimants keep their primary role so each subtree stays measurable
	if topo.Roles[ident("db01")] != ResolvedPrimary || topo.Roles[ident("db02")] != ResolvedPrimary {
		t.Error("split-brain primaries must both stay resolved as primary")
	}
	if topo.Root(ident("db03")) != ident("db02") {
		t.Errorf("db03 root = %v, want db02", topo.Root(ident("db03")))
	}
}

func TestResolveTopologyNoPrimary(t *testing.T) {
	tests := []struct {
		name    string
		records []InstanceRecord
	}{
		{
			name: "standbys only",
			records: []InstanceRecord{
				standbyRecord("db02", 900, "db01"),
				standbyRecord("db03", 950, "db01"),
			},
		},
		{
			name: "everything unreachable",
			records: []InstanceRecord{
				unreachableRecord("db01"),
				unreachableRecord("db02"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := ResolveTopology(tt.records)
			found := false
			for _, a := range topo.Anomalies {
				if a.Kind == AnomalyNoPrimary {
					found = true
				}
			}
			if !found {
				t.Errorf("no-primary anomaly missing, got %+v", topo.Anomalies)
			}
		})
	}
}

func TestResolveTopologyUnknownUpstream(t *testing.T) {
	records := []InstanceRecord{
		primaryRecord("db01", 1000),
		standbyRecord("db02", 900, "db99"), // off the monitored set
	}

	topo := ResolveTopology(records)

	if topo.Upstreams[ident("db02")] != nil {
		t.Error("upstream outside the monitored set must not resolve")
	}
	found := false
	for _, a := range topo.Anomalies {
		if a.Kind == AnomalyUnknownUpstream && a.Instance != nil && *a.Instance == ident("db02") {
			found = true
		}
	}
	if !found {
		t.Errorf("upstream-unknown anomaly missing, got %+v", topo.Anomalies)
	}
}

func TestResolveTopologyMatchesServerAddr(t *testing.T) {
	// db02's receiver reports the upstream by the address the server knows
	// itself as, not by the configured label.
	primary := primaryRecord("db01", 1000)
	primary.ServerAddr = Known("10.0.0.1:5432")

	standby := standbyRecord("db02", 900, "unused")
	standby.Upstream = Known("10.0.0.1:5432")

	topo := ResolveTopology([]InstanceRecord{primary, standby})

	up := topo.Upstreams[ident("db02")]
	if up == nil || *up != ident("db01") {
		t.Errorf("upstream via server-reported address = %v, want db01", up)
	}
}

func TestResolveTopologyFlagsDuplicateInstance(t *testing.T) {
	// Two targets, a hostname and its IP, turn out to be one server.
	byName := primaryRecord("db01", 1000)
	byName.ServerAddr = Known("10.0.0.1:5432")

	byIP := primaryRecord("10.0.0.1", 1000)
	byIP.ServerAddr = Known("10.0.0.1:5432")

	topo := ResolveTopology([]InstanceRecord{byName, byIP})

	found := false
	for _, a := range topo.Anomalies {
		if a.Kind == AnomalyDuplicateInstance && a.Instance != nil && *a.Instance == ident("10.0.0.1") {
			found = true
		}
	}
	if !found {
		t.Errorf("duplicate-instance anomaly missing, got %+v", topo.Anomalies)
	}
	// Both rows stay in the output; the identity set never shrinks mid-run.
	if len(topo.Roles) != 2 {
		t.Errorf("roles = %d entries, want both aliases present", len(topo.Roles))
	}
}

func TestResolveTopologyDistinctServersNotDuplicates(t *testing.T) {
	a := primaryRecord("db01", 1000)
	a.ServerAddr = Known("10.0.0.1:5432")
	b := standbyRecord("db02", 900, "db01")
	b.ServerAddr = Known("10.0.0.2:5432")

	topo := ResolveTopology([]InstanceRecord{a, b})

	for _, an := range topo.Anomalies {
		if an.Kind == AnomalyDuplicateInstance {
			t.Errorf("distinct servers flagged as duplicates: %+v", an)
		}
	}
}

func TestResolveTopologyDeterministic(t *testing.T) {
	records := []InstanceRecord{
		primaryRecord("db01", 1000),
		primaryRecord("db04", 2000),
		standbyRecord("db02", 900, "db01"),
		standbyRecord("db03", 950, "db99"),
		unreachableRecord("db05"),
	}

	first := ResolveTopology(records)
	second := ResolveTopology(records)

	if !reflect.DeepEqual(first.Roles, second.Roles) {
		t.Error("roles differ across identical inputs")
	}
	if !reflect.DeepEqual(first.Chains, second.Chains) {
		t.Error("chains differ across identical inputs")
	}
	if !reflect.DeepEqual(first.Anomalies, second.Anomalies) {
		t.Error("anomalies differ across identical inputs")
	}
}

func TestUpstreamChainCycleTerminates(t *testing.T) {
	// Two standbys pointing at each other cannot happen in a sane cluster,
	// but the walk still has to stop.
	a := standbyRecord("db01", 100, "db02")
	b := standbyRecord("db02", 100, "db01")

	topo := ResolveTopology([]InstanceRecord{a, b})

	if len(topo.Chains[ident("db01")]) > 2 {
		t.Errorf("cycle produced unbounded chain: %v", topo.Chains[ident("db01")])
	}
}
