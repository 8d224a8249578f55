package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/model"
)

var (
	activeNode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodekeeper_active_node",
			Help: "1 for the backend kind currently holding the active slot, 0 otherwise.",
		},
		[]string{"kind"},
	)

	initDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodekeeper_node_init_seconds",
			Help:    "Duration of successful backend Init calls, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodekeeper_transitions_total",
			Help: "Total number of lifecycle transition attempts.",
		},
		[]string{"transition", "result"},
	)
)

func init() {
	prometheus.MustRegister(activeNode)
	prometheus.MustRegister(initDuration)
	prometheus.MustRegister(transitionsTotal)

	for _, k := range backend.Kinds() {
		activeNode.WithLabelValues(string(k))
	}
	for _, tr := range []model.Transition{model.TransitionAvailable, model.TransitionUnavailable} {
		transitionsTotal.WithLabelValues(string(tr), model.ResultOK)
		transitionsTotal.WithLabelValues(string(tr), model.ResultFailed)
	}
}
