package registry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3dlight/godiode/protocol"
)

func TestInMemoryRegistryLifecycle(t *testing.T) {
	r := NewInMemoryRegistry()
	id := protocol.ClientId(1)

	r.TransferStarted(id)
	active, completed, aborted, _ := r.Snapshot()
	if active != 1 || completed != 0 || aborted != 0 {
		t.Fatalf("unexpected snapshot after start: active=%d completed=%d aborted=%d", active, completed, aborted)
	}

	r.TransferEnded(id, false)
	active, completed, aborted, _ = r.Snapshot()
	if active != 0 || completed != 1 || aborted != 0 {
		t.Fatalf("unexpected snapshot after clean end: active=%d completed=%d aborted=%d", active, completed, aborted)
	}
}

func TestInMemoryRegistryHeartbeat(t *testing.T) {
	r := NewInMemoryRegistry()
	r.HeartbeatObserved()
	r.HeartbeatObserved()
	_, _, _, heartbeats := r.Snapshot()
	if heartbeats != 2 {
		t.Fatalf("got %d heartbeats, want 2", heartbeats)
	}
}

func TestInMemoryRegistrySyncLost(t *testing.T) {
	r := NewInMemoryRegistry()
	r.SyncLost()
	r.SyncLost()
	if got := r.SyncLostCount(); got != 2 {
		t.Fatalf("SyncLostCount() = %d, want 2", got)
	}
}

func TestPrometheusRegistryRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusRegistry(reg, "godiode_test")

	p.TransferStarted(protocol.ClientId(1))
	p.TransferEnded(protocol.ClientId(1), true)
	p.HeartbeatObserved()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}
