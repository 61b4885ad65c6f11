package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsExpiredTotal,
		reconcilerRunsTotal,
		callbacksTotal,
	)
}

var (
	paymentsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_expired_total",
			Help: "Payments transitioned to timeout by the expiration sweeper.",
		},
	)

	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciler_runs_total",
			Help: "Reconciler passes over stale redirected payments.",
		},
		[]string{"outcome"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Inbound gateway callbacks by kind.",
		},
		[]string{"kind"},
	)
)

func AddPaymentsExpired(n int) {
	if n > 0 {
		paymentsExpiredTotal.Add(float64(n))
	}
}

func IncReconcilerRun(outcome string) {
	reconcilerRunsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncCallback(kind string) {
	callbacksTotal.WithLabelValues(norm(kind)).Inc()
}
