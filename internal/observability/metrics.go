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
			Namespace: "rspstub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rspstub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	rspPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rspstub",
			Subsystem: "rsp",
			Name:      "packets_total",
			Help:      "Inbound RSP frames by kind (ack, nack, data, garbage, malformed).",
		},
		[]string{"kind"},
	)
	rspResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rspstub",
			Subsystem: "rsp",
			Name:      "responses_total",
			Help:      "Outbound RSP writes by type (ack, nack, reply, unsupported).",
		},
		[]string{"type"},
	)
	rspCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rspstub",
			Subsystem: "rsp",
			Name:      "commands_total",
			Help:      "Decoded RSP commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)
	rspDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rspstub",
			Subsystem: "rsp",
			Name:      "dispatch_duration_seconds",
			Help:      "Backend dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	rspSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rspstub",
			Subsystem: "rsp",
			Name:      "sessions_active",
			Help:      "RSP sessions currently being served.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			rspPackets,
			rspResponses,
			rspCommands,
			rspDispatchDuration,
			rspSessionsActive,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacket(kind string) {
	RegisterMetrics()
	rspPackets.WithLabelValues(kind).Inc()
}

func RecordResponse(kind string) {
	RegisterMetrics()
	rspResponses.WithLabelValues(kind).Inc()
}

func RecordCommand(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	rspCommands.WithLabelValues(command, outcome).Inc()
	if duration > 0 {
		rspDispatchDuration.WithLabelValues(command).Observe(duration.Seconds())
	}
}

func SessionOpened() {
	RegisterMetrics()
	rspSessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	rspSessionsActive.Dec()
}
