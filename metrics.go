package sectioned

import (
	"github.com/prometheus/client_golang/prometheus"
)

var RefreshCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sectioned",
	Subsystem: "live",
	Name:      "refreshes",
}, []string{"result"})

var DeliveryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sectioned",
	Subsystem: "live",
	Name:      "deliveries",
}, []string{"kind"})

var KeyErrorCount = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "sectioned",
	Subsystem: "live",
	Name:      "key_errors",
})

var DiffDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sectioned",
	Subsystem: "live",
	Name:      "diff_duration_ms",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
})

var SubscriberGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "sectioned",
	Subsystem: "live",
	Name:      "subscribers",
})

// MetricCollectors returns the collectors to register with a prometheus
// registry.
func MetricCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		RefreshCount,
		DeliveryCount,
		KeyErrorCount,
		DiffDuration,
		SubscriberGauge,
	}
}
