package saga

import "github.com/prometheus/client_golang/prometheus"

var (
	sagaTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_saga_total",
			Help: "Total number of booking sagas by terminal outcome",
		},
		[]string{"outcome"},
	)

	sagaStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_saga_step_failures_total",
			Help: "Total number of forward step failures by step and error kind",
		},
		[]string{"step", "kind"},
	)

	sagaCompensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_saga_compensations_total",
			Help: "Total number of compensation calls by step and result",
		},
		[]string{"step", "result"},
	)

	sagaDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_saga_duration_seconds",
			Help:    "Wall-clock duration of a saga from start to terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(sagaTotal)
	prometheus.MustRegister(sagaStepFailures)
	prometheus.MustRegister(sagaCompensations)
	prometheus.MustRegister(sagaDuration)
}
