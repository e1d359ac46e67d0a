package monitor

import (
	"sync"
	"sync/atomic"
)

// SnapshotBus delivers the newest snapshot to any number of consumers with
// latest-wins semantics: a consumer slower than the producer sees the most
// recent snapshot and skips the ones in between. Publish never blocks.
type SnapshotBus struct {
	mu     sync.Mutex
	subs   []chan *ClusterSnapshot
	latest atomic.Pointer[ClusterSnapshot]
}

// NewSnapshotBus creates an empty bus.
func NewSnapshotBus() *SnapshotBus {
	return &SnapshotBus{}
}

// Subscribe registers a consumer. Each subscriber channel holds exactly one
// pending snapshot; an unread one is replaced, not queued behind.
func (b *SnapshotBus) Subscribe() <-chan *ClusterSnapshot {
	ch := make(chan *ClusterSnapshot, 1)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	// A late subscriber starts from the current state instead of waiting a
	// full cycle. A publish racing the registration may have filled the slot
	// already; that snapshot is at least as fresh, so keep it.
	if s := b.latest.Load(); s != nil {
		select {
		case ch <- s:
		default:
		}
	}
	return ch
}

// Publish hands a snapshot to every subscriber, dropping each subscriber's
// unread predecessor if there is one. Bounded work regardless of consumer
// pace.
func (b *SnapshotBus) Publish(s *ClusterSnapshot) {
	b.latest.Store(s)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Latest returns the most recently published snapshot, or nil before the
// first publish.
func (b *SnapshotBus) Latest() *ClusterSnapshot {
	return b.latest.Load()
}
