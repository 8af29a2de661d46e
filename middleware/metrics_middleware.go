package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3dlight/godiode/protocol"
)

// MetricsMiddleware counts blocks processed and failed, labeled by kind, and
// reports them through the supplied counter vectors so a single Prometheus
// registry can be shared between the sender and receiver pipelines.
func MetricsMiddleware(processed, failed *prometheus.CounterVec) Middleware {
	return func(next BlockFunc) BlockFunc {
		return func(b protocol.Block) error {
			kind := b.Kind().String()
			err := next(b)
			if err != nil {
				failed.WithLabelValues(kind).Inc()
			} else {
				processed.WithLabelValues(kind).Inc()
			}
			return err
		}
	}
}
