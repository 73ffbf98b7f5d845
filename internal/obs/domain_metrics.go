package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentOrderTotal counts gateway order creation attempts.
	PaymentOrderTotal *prometheus.CounterVec
	// PaymentConfirmTotal counts confirmation processing outcomes by channel.
	PaymentConfirmTotal *prometheus.CounterVec
	// PaymentDuplicateTotal counts suspected replays (payment id already bound).
	PaymentDuplicateTotal prometheus.Counter
	// PaymentCancelTotal counts cancellation outcomes by origin.
	PaymentCancelTotal *prometheus.CounterVec
	// GatewayRequestLatency records gateway order-creation latency in milliseconds.
	GatewayRequestLatency *prometheus.HistogramVec
	// PaymentExpireTotal counts expiry sweep outcomes.
	PaymentExpireTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the payment domain
// collectors. Safe to call from both binaries; only the first call wins.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentOrderTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_order_total",
			Help:      "Count of gateway order creation outcomes.",
		}, []string{"result"}))
		PaymentConfirmTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirm_total",
			Help:      "Count of processed payment confirmations by channel and outcome.",
		}, []string{"channel", "result"}))
		PaymentDuplicateTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_duplicate_total",
			Help:      "Number of confirmations rejected because the payment id was already bound.",
		}))
		PaymentCancelTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_cancel_total",
			Help:      "Count of cancellation outcomes by origin.",
		}, []string{"origin", "result"}))
		GatewayRequestLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency for payment gateway requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation", "result"}))
		PaymentExpireTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_expire_total",
			Help:      "Count of intent expiry sweep outcomes.",
		}, []string{"result"}))
	})
}
