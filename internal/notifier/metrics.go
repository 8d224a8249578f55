package notifier

import "github.com/prometheus/client_golang/prometheus"

// Metric label values.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	warmCancelled = "cancelled"
)

var (
	reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodekeeper_dependent_reloads_total",
			Help: "Total number of management surface reloads issued.",
		},
		[]string{"transition", "result"},
	)

	warmsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodekeeper_cache_warms_total",
			Help: "Total number of scheduled cache warms by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(reloadsTotal)
	prometheus.MustRegister(warmsTotal)

	for _, r := range []string{resultOK, resultFailed, warmCancelled} {
		warmsTotal.WithLabelValues(r)
	}
}
