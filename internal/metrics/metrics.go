// Package metrics holds the Prometheus collectors shared across the proxy.
// Collectors are registered on the default registry through promauto and
// exposed by the /metrics route.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts handled chat messages.
	//
	// Labels:
	//   - path: "link", "followup", "plan"
	//   - status: "success" or "failure"
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ppmchat",
			Subsystem: "assistant",
			Name:      "messages_total",
			Help:      "Total chat messages handled, by resolution path and outcome.",
		},
		[]string{"path", "status"},
	)

	remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ppmchat",
			Subsystem: "ppm",
			Name:      "call_duration_seconds",
			Help:      "Duration of calls to the PPM REST API, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "status"},
	)

	remoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ppmchat",
			Subsystem: "ppm",
			Name:      "retries_total",
			Help:      "Retried calls to the PPM REST API.",
		},
		[]string{"method"},
	)

	reasoningCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ppmchat",
			Subsystem: "reasoning",
			Name:      "calls_total",
			Help:      "Calls to the external reasoning service.",
		},
		[]string{"provider", "status"},
	)

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ppmchat",
			Subsystem: "conversation",
			Name:      "active_sessions",
			Help:      "Number of conversation sessions held in memory.",
		},
	)

	// SessionsExpiredTotal counts sessions evicted by the idle sweep.
	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ppmchat",
			Subsystem: "conversation",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the idle sweep.",
		},
	)
)

// RecordRemoteCall observes one logical PPM API call. statusCode 0 means the
// call never produced an HTTP response.
func RecordRemoteCall(method string, statusCode int, d time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	remoteCallDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func RecordRetry(method string) {
	remoteRetriesTotal.WithLabelValues(method).Inc()
}

func RecordReasoningCall(provider string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	reasoningCallsTotal.WithLabelValues(provider, status).Inc()
}
