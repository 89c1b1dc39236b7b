package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BackendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_backend_call_seconds",
			Help:    "Duration of calls to the ticketing backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	ReservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_reservations_total",
			Help: "Reservation create attempts by result",
		},
		[]string{"result"},
	)

	PaymentPollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_payment_poll_attempts",
			Help:    "Status polls issued per payment poller run",
			Buckets: prometheus.LinearBuckets(1, 2, 11),
		},
	)

	PaymentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_outcomes_total",
			Help: "Payment poller outcomes",
		},
		[]string{"outcome"},
	)

	RabbitPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
		[]string{"rule"},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			BackendCallDuration,
			ReservationsCreated,
			PaymentPollAttempts,
			PaymentOutcomes,
			RabbitPublishRetries,
			RateLimitExceeded,
		)
	})
}
