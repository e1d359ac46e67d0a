package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sebmann/pgrepltop/pkg/logging"
)

// ErrNoTargets is returned when the loop is built with an empty identity
// set. This is the one startup condition that is fatal to the process.
var ErrNoTargets = errors.New("no connection targets")

// CollectionLoop owns all samplers and runs the resolve/compute/publish
// cycle. The identity set is fixed at construction: instances are never
// discovered or dropped mid-run, and an unreachable instance stays visible
// in every snapshot as failed rather than vanishing.
//
// The loop goroutine never performs blocking I/O; all network calls live in
// the samplers, each on its own goroutine.
type CollectionLoop struct {
	cfg      Config
	samplers []*InstanceSampler
	bus      *SnapshotBus
	logger   logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewCollectionLoop wires the samplers to a bus.
func NewCollectionLoop(cfg Config, samplers []*InstanceSampler, bus *SnapshotBus, logger logging.Logger) (*CollectionLoop, error) {
	if len(samplers) == 0 {
		return nil, ErrNoTargets
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CollectionLoop{
		cfg:      cfg,
		samplers: samplers,
		bus:      bus,
		logger:   logger.With(logging.Component("collection_loop")),
	}, nil
}

// Bus returns the snapshot bus consumers subscribe to.
func (l *CollectionLoop) Bus() *SnapshotBus {
	return l.bus
}

// Start launches one goroutine per sampler plus the coordinating cycle.
func (l *CollectionLoop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)

	for _, s := range l.samplers {
		sampler := s
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			// A panic in one sampler must not take down the loop or the
			// other samplers; the instance just reads as unreachable from
			// its last stored record onward.
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("sampler crashed",
						logging.Instance(sampler.Identity().DisplayLabel()),
						logging.String("panic", toString(r)))
				}
			}()
			sampler.Run(ctx)
		}()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()

	l.logger.Info("collection started", logging.Int("instances", len(l.samplers)))
}

// Stop cancels the loop and waits for in-flight samples to finish or time
// out. Connections are closed by each sampler on its own exit path.
func (l *CollectionLoop) Stop() {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.wg.Wait()
		l.logger.Info("collection stopped")
	})
}

func (l *CollectionLoop) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SnapshotInterval)
	defer ticker.Stop()

	// First snapshot immediately: the view should not stay empty for a full
	// interval at startup.
	l.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.publishSnapshot()
		}
	}
}

// publishSnapshot gathers every sampler's latest record without waiting,
// resolves topology, computes metrics and publishes the result.
func (l *CollectionLoop) publishSnapshot() {
	records := make([]InstanceRecord, 0, len(l.samplers))
	for _, s := range l.samplers {
		records = append(records, *s.Latest())
	}

	topo := ResolveTopology(records)
	statuses := ComputeStatuses(records, &topo)

	snap := &ClusterSnapshot{
		TakenAt:   time.Now(),
		Instances: statuses,
		Anomalies: topo.Anomalies,
	}
	l.bus.Publish(snap)

	for _, a := range snap.Anomalies {
		l.logger.Debug("anomaly", logging.String("kind", a.Kind.String()), logging.String("detail", a.Detail))
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}
