// Package health reports the collector's own condition over HTTP, mounted
// on the optional metrics listener. The checks are cluster-facing: a
// monitored instance being down degrades the report, it does not fail it;
// only the collector itself losing its snapshot flow is unhealthy.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

// Status is the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one health check
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// CheckFunc performs one health check
type CheckFunc func() Check

// Response is the overall health response
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
}

// Checker runs registered health checks on demand
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates an empty checker
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// Register adds a named check
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every registered check; the worst individual status wins.
func (c *Checker) Check() Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check),
	}
	for name, fn := range c.checks {
		start := time.Now()
		check := fn()
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		response.Checks[name] = check

		if check.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if check.Status == StatusDegraded && response.Status != StatusUnhealthy {
			response.Status = StatusDegraded
		}
	}
	return response
}

// Handler serves the health report; unhealthy maps to 503, degraded stays 200.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check()
		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// ReadyHandler reports 503 until the first snapshot has been published.
// Readiness is about the collector having produced a view, not about the
// monitored cluster being up.
func ReadyHandler(bus *monitor.SnapshotBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bus.Latest() == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SnapshotFlowCheck reports unhealthy when the bus has stopped producing
// fresh snapshots, which means the collection loop itself is stuck.
func SnapshotFlowCheck(bus *monitor.SnapshotBus, maxAge time.Duration) CheckFunc {
	return func() Check {
		snap := bus.Latest()
		if snap == nil {
			return Check{Status: StatusDegraded, Message: "no snapshot published yet"}
		}
		if age := time.Since(snap.TakenAt); age > maxAge {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("last snapshot is %v old", age.Round(time.Millisecond)),
			}
		}
		return Check{Status: StatusHealthy}
	}
}

// InstancesCheck degrades while any monitored instance is failing. The
// cluster being partly down is the tool doing its job, not the tool broken.
func InstancesCheck(bus *monitor.SnapshotBus) CheckFunc {
	return func() Check {
		snap := bus.Latest()
		if snap == nil {
			return Check{Status: StatusDegraded, Message: "no snapshot published yet"}
		}
		failing := 0
		for _, st := range snap.Instances {
			if st.Record.Err != nil {
				failing++
			}
		}
		if failing == len(snap.Instances) {
			return Check{Status: StatusDegraded, Message: "all instances unreachable"}
		}
		if failing > 0 {
			return Check{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d of %d instances failing", failing, len(snap.Instances)),
			}
		}
		return Check{Status: StatusHealthy}
	}
}
