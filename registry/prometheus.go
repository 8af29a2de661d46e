package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3dlight/godiode/protocol"
)

// PrometheusRegistry exports transfer lifecycle events as counters and a
// gauge, suitable for registration against the process's default registry
// or a dedicated one in tests.
type PrometheusRegistry struct {
	active     prometheus.Gauge
	completed  prometheus.Counter
	aborted    prometheus.Counter
	heartbeats prometheus.Counter
	syncLost   prometheus.Counter
}

// NewPrometheusRegistry creates the metrics and registers them against reg.
func NewPrometheusRegistry(reg prometheus.Registerer, namespace string) *PrometheusRegistry {
	p := &PrometheusRegistry{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_transfers",
			Help:      "Number of client transfers currently in flight.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_completed_total",
			Help:      "Number of client transfers that ended with an End block.",
		}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_aborted_total",
			Help:      "Number of client transfers that ended with an Abort block or a timeout.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_observed_total",
			Help:      "Number of Heartbeat blocks observed.",
		}),
		syncLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_lost_total",
			Help:      "Number of times the receiver's reblock or decode stage lost synchronization and aborted active transfers.",
		}),
	}
	reg.MustRegister(p.active, p.completed, p.aborted, p.heartbeats, p.syncLost)
	return p
}

func (p *PrometheusRegistry) TransferStarted(protocol.ClientId) {
	p.active.Inc()
}

func (p *PrometheusRegistry) TransferEnded(_ protocol.ClientId, aborted bool) {
	p.active.Dec()
	if aborted {
		p.aborted.Inc()
	} else {
		p.completed.Inc()
	}
}

func (p *PrometheusRegistry) HeartbeatObserved() {
	p.heartbeats.Inc()
}

func (p *PrometheusRegistry) SyncLost() {
	p.syncLost.Inc()
}
