package station

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wsmbot"

var (
	metricFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "fetch_total",
		Help:      "Status fetches by result.",
	}, []string{"result"})

	metricFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "fetch_duration_seconds",
		Help:      "Time taken by one status fetch.",
		Buckets:   prometheus.DefBuckets,
	})

	metricListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "listeners",
		Help:      "Listener count from the last status fetch.",
	})
)
