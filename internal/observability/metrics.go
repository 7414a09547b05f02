package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "sessions_live",
			Help:      "Currently admitted sessions.",
		},
	)
	sessionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "sessions_accepted_total",
			Help:      "Connections admitted after handshake.",
		},
	)
	sessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "sessions_swept_total",
			Help:      "Dead sessions purged by the cleanup sweep.",
		},
	)
	handshakeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "handshake_failures_total",
			Help:      "Connections dropped during the liveness handshake.",
		},
	)
	topicPublishes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "topic_publishes_total",
			Help:      "Messages published into topics.",
		},
	)
	topicDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "topic_deliveries_total",
			Help:      "Per-subscriber topic deliveries.",
		},
	)
	privateMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "private_messages_total",
			Help:      "Private delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsLive, sessionsAccepted, sessionsSwept, handshakeFailures,
			topicPublishes, topicDeliveries, privateMessages,
			httpRequests, httpDuration,
		)
	})
}

func RecordSessionAdmitted() {
	RegisterMetrics()
	sessionsAccepted.Inc()
	sessionsLive.Inc()
}

func RecordSessionClosed() {
	RegisterMetrics()
	sessionsLive.Dec()
}

func RecordSessionSwept() {
	RegisterMetrics()
	sessionsSwept.Inc()
}

func RecordHandshakeFailure() {
	RegisterMetrics()
	handshakeFailures.Inc()
}

func RecordTopicPublish(delivered int) {
	RegisterMetrics()
	topicPublishes.Inc()
	topicDeliveries.Add(float64(delivered))
}

func RecordPrivateMessage(outcome string) {
	RegisterMetrics()
	privateMessages.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
