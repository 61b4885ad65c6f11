package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		refundsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total minor-unit value of settled payments, labeled by provider.",
		},
		[]string{"provider"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund sub-lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(provider string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(provider)).Add(float64(amount))
}

func IncRefund(status string) {
	refundsTotal.WithLabelValues(norm(status)).Inc()
}
