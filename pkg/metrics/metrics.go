// Package metrics exposes the collector's view of the cluster as Prometheus
// metrics. Exposition is optional and off by default; when enabled it runs
// beside the terminal view, fed from the same snapshot bus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

// Registry holds all collector metrics.
type Registry struct {
	InstanceUp       *prometheus.GaugeVec
	InstanceRole     *prometheus.GaugeVec
	ByteLag          *prometheus.GaugeVec
	TimeLagSeconds   *prometheus.GaugeVec
	WALRateBytes     *prometheus.GaugeVec
	ClockDriftSecs   *prometheus.GaugeVec
	SampleLatency    *prometheus.HistogramVec
	SampleErrors     *prometheus.CounterVec
	SnapshotsTotal   prometheus.Counter
	AnomaliesPresent *prometheus.GaugeVec

	registry *prometheus.Registry

	// A record can appear in several consecutive snapshots; latency and
	// error counting must happen once per sample, not once per snapshot.
	lastSample map[string]time.Time
	lastErr    map[string]*monitor.CollectionError
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{
		InstanceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_instance_up",
			Help: "1 when the instance answered its most recent sample",
		}, []string{"instance"}),
		InstanceRole: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_instance_role",
			Help: "Resolved role per instance (1 for the held role)",
		}, []string{"instance", "role"}),
		ByteLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_byte_lag",
			Help: "Bytes behind the most advanced position in the instance's subtree",
		}, []string{"instance"}),
		TimeLagSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_time_lag_seconds",
			Help: "Estimated seconds to catch up at the reference WAL rate",
		}, []string{"instance"}),
		WALRateBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_wal_rate_bytes_per_second",
			Help: "WAL advance rate between the instance's two most recent samples",
		}, []string{"instance"}),
		ClockDriftSecs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_clock_drift_seconds",
			Help: "Instance clock minus collector clock at sample receipt (estimate)",
		}, []string{"instance"}),
		SampleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pgrepltop_sample_latency_seconds",
			Help:    "Sample round-trip time per instance",
			Buckets: prometheus.DefBuckets,
		}, []string{"instance"}),
		SampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgrepltop_sample_errors_total",
			Help: "Failed samples by instance and failure kind",
		}, []string{"instance", "kind"}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgrepltop_snapshots_total",
			Help: "Snapshots published by the collection loop",
		}),
		AnomaliesPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pgrepltop_anomaly",
			Help: "1 while the named cluster anomaly is present",
		}, []string{"kind"}),
		registry:   prometheus.NewRegistry(),
		lastSample: make(map[string]time.Time),
		lastErr:    make(map[string]*monitor.CollectionError),
	}

	r.registry.MustRegister(
		r.InstanceUp, r.InstanceRole, r.ByteLag, r.TimeLagSeconds,
		r.WALRateBytes, r.ClockDriftSecs, r.SampleLatency, r.SampleErrors,
		r.SnapshotsTotal, r.AnomaliesPresent,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler returns the exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var anomalyKinds = []monitor.AnomalyKind{
	monitor.AnomalyNoPrimary,
	monitor.AnomalySplitBrain,
	monitor.AnomalyUnknownUpstream,
	monitor.AnomalyNegativeLag,
	monitor.AnomalyDuplicateInstance,
}

var roleNames = []string{"primary", "standby", "unreachable", "unknown"}

// Observe projects one snapshot onto the gauges. Unknown cells delete their
// series rather than reporting zero: absence of data must stay absent.
func (r *Registry) Observe(snap *monitor.ClusterSnapshot) {
	r.SnapshotsTotal.Inc()

	for _, st := range snap.Instances {
		label := st.Record.Identity.DisplayLabel()

		up := 0.0
		if st.Record.Err == nil && st.Role != monitor.ResolvedUnreachable && st.Role != monitor.ResolvedUnknown {
			up = 1.0
		}
		r.InstanceUp.WithLabelValues(label).Set(up)

		for _, role := range roleNames {
			v := 0.0
			if st.Role.String() == role {
				v = 1.0
			}
			r.InstanceRole.WithLabelValues(label, role).Set(v)
		}

		setOrDelete(r.ByteLag, label, st.ByteLag.Valid(), float64(st.ByteLag.Value))
		setOrDelete(r.TimeLagSeconds, label, st.TimeLag.Valid(), st.TimeLag.Value.Seconds())
		setOrDelete(r.WALRateBytes, label, st.WALRate.Valid(), st.WALRate.Value)
		setOrDelete(r.ClockDriftSecs, label, st.ClockDrift.Valid(), st.ClockDrift.Value.Seconds())

		if r.lastSample[label] != st.Record.SampledAt {
			r.lastSample[label] = st.Record.SampledAt
			if st.Record.Err == nil && st.Record.Latency > 0 {
				r.SampleLatency.WithLabelValues(label).Observe(st.Record.Latency.Seconds())
			}
			if st.Record.Err != nil && r.lastErr[label] != st.Record.Err {
				r.SampleErrors.WithLabelValues(label, st.Record.Err.Kind.String()).Inc()
			}
			r.lastErr[label] = st.Record.Err
		}
	}

	for _, kind := range anomalyKinds {
		v := 0.0
		if snap.HasAnomaly(kind) {
			v = 1.0
		}
		r.AnomaliesPresent.WithLabelValues(kind.String()).Set(v)
	}
}

// Watch feeds the registry from a bus subscription until the channel closes
// or ctx-style cancellation closes it upstream.
func (r *Registry) Watch(ch <-chan *monitor.ClusterSnapshot) {
	for snap := range ch {
		r.Observe(snap)
	}
}

func setOrDelete(g *prometheus.GaugeVec, label string, known bool, v float64) {
	if known {
		g.WithLabelValues(label).Set(v)
	} else {
		g.DeleteLabelValues(label)
	}
}
