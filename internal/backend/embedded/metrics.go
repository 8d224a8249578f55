package embedded

import "github.com/prometheus/client_golang/prometheus"

var (
	nodeBootDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodekeeper_embedded_node_boot_seconds",
			Help:    "Duration from repo open to node API ready, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	nodeShutdownDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodekeeper_embedded_node_shutdown_seconds",
			Help:    "Duration of node API shutdown and repo close, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	runningNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodekeeper_embedded_running_nodes",
			Help: "Number of embedded nodes currently serving.",
		},
	)
)

func init() {
	prometheus.MustRegister(nodeBootDuration)
	prometheus.MustRegister(nodeShutdownDuration)
	prometheus.MustRegister(runningNodes)
}
