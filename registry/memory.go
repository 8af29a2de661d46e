package registry

import (
	"sync"

	"github.com/r3dlight/godiode/protocol"
)

// InMemoryRegistry records transfer lifecycle events in memory. It is meant
// for tests and small deployments that want to inspect state directly
// rather than scrape Prometheus.
type InMemoryRegistry struct {
	mu         sync.Mutex
	active     map[protocol.ClientId]struct{}
	completed  int
	aborted    int
	heartbeats int
	syncLost   int
}

// NewInMemoryRegistry returns an empty InMemoryRegistry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{active: make(map[protocol.ClientId]struct{})}
}

func (r *InMemoryRegistry) TransferStarted(id protocol.ClientId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = struct{}{}
}

func (r *InMemoryRegistry) TransferEnded(id protocol.ClientId, aborted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
	if aborted {
		r.aborted++
	} else {
		r.completed++
	}
}

func (r *InMemoryRegistry) HeartbeatObserved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
}

func (r *InMemoryRegistry) SyncLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncLost++
}

// Snapshot returns the current counts for assertions in tests.
func (r *InMemoryRegistry) Snapshot() (active, completed, aborted, heartbeats int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active), r.completed, r.aborted, r.heartbeats
}

// SyncLostCount returns how many synchronization-lost events have been
// recorded, for assertions in tests.
func (r *InMemoryRegistry) SyncLostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncLost
}
