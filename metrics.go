package fabric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/fabric/internal/metrics"
)

// NewPrometheusMetrics returns a MetricsCollector registering its metrics
// with reg under the "fabric" namespace.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src, fabric.WithMetrics(fabric.NewPrometheusMetrics(reg)))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func NewPrometheusMetrics(reg prometheus.Registerer) MetricsCollector {
	return metrics.NewPrometheus(reg, "fabric")
}
