package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"shop-payment-core/internal/domain"
)

func init() {
	register(
		gatewayCallsTotal,
		gatewayCallSeconds,
	)
}

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Outbound gateway calls by provider, operation and outcome.",
		},
		[]string{"provider", "op", "outcome"},
	)

	gatewayCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_seconds",
			Help:    "Outbound gateway call latency distribution.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)
)

// ObserveGatewayCall records one outbound call. Outcome separates gateway
// rejections from connectivity faults, mirroring the error taxonomy.
func ObserveGatewayCall(provider, op string, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrGatewayConnection):
		outcome = "connection_error"
	case errors.Is(err, domain.ErrVerificationMismatch):
		outcome = "mismatch"
	case errors.Is(err, domain.ErrPayerCancelled):
		outcome = "cancelled"
	default:
		outcome = "rejected"
	}
	gatewayCallsTotal.WithLabelValues(norm(provider), op, outcome).Inc()
	gatewayCallSeconds.WithLabelValues(norm(provider), op).Observe(elapsed.Seconds())
}
