package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wearctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		},
		[]string{"state"},
	)
	sessionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Inbound envelopes by msgType.",
		},
		[]string{"msg_type"},
	)
	sessionDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "dropped_total",
			Help:      "Inbound frames dropped without notification.",
		},
		[]string{"reason"},
	)
	sessionCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Outbound envelopes by msgType and result.",
		},
		[]string{"msg_type", "success"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "handshake_seconds",
			Help:      "Time from setup to handshake outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionTransitions,
			sessionMessages,
			sessionDropped,
			sessionCommands,
			handshakeDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransition(state string) {
	RegisterMetrics()
	sessionTransitions.WithLabelValues(state).Inc()
}

func RecordInbound(msgType string) {
	RegisterMetrics()
	sessionMessages.WithLabelValues(msgType).Inc()
}

func RecordDropped(reason string) {
	RegisterMetrics()
	sessionDropped.WithLabelValues(reason).Inc()
}

func RecordCommand(msgType string, success bool) {
	RegisterMetrics()
	sessionCommands.WithLabelValues(msgType, strconv.FormatBool(success)).Inc()
}

func RecordHandshake(outcome string, duration time.Duration) {
	RegisterMetrics()
	handshakeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
