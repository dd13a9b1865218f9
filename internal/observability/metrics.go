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
			Namespace: "ndnrevoke",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ndnrevoke",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	appendOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "append",
			Name:      "exchanges_total",
			Help:      "Finished append exchanges by side and terminal phase.",
		},
		[]string{"side", "phase"},
	)
	appendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "append",
			Name:      "retries_total",
			Help:      "Interest retransmissions inside append exchanges.",
		},
		[]string{"side"},
	)
	checkOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "checker",
			Name:      "queries_total",
			Help:      "Finished checker queries by outcome.",
		},
		[]string{"outcome"},
	)
	checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ndnrevoke",
			Subsystem: "checker",
			Name:      "query_duration_seconds",
			Help:      "Time from first query to outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	ledgerReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "ledger",
			Name:      "query_replies_total",
			Help:      "Ledger answers to revocation queries.",
		},
		[]string{"ledger", "reply"},
	)
	ledgerSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Submitted objects by per-object status.",
		},
		[]string{"ledger", "kind", "status"},
	)
	hubFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ndnrevoke",
			Subsystem: "hub",
			Name:      "frames_total",
			Help:      "Frames handled by the hub by type and disposition.",
		},
		[]string{"type", "disposition"},
	)
	hubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ndnrevoke",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Faces currently connected to the hub.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			appendOutcomes, appendRetries,
			checkOutcomes, checkDuration,
			ledgerReplies, ledgerSubmissions,
			hubFrames, hubConnections,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordAppendOutcome counts a finished exchange; side is "holder" or "ledger".
func RecordAppendOutcome(side, phase string) {
	RegisterMetrics()
	appendOutcomes.WithLabelValues(side, phase).Inc()
}

func RecordAppendRetry(side string) {
	RegisterMetrics()
	appendRetries.WithLabelValues(side).Inc()
}

func RecordCheck(outcome string, duration time.Duration) {
	RegisterMetrics()
	checkOutcomes.WithLabelValues(outcome).Inc()
	checkDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordLedgerReply counts a query answer: "record", "nack" or "silent".
func RecordLedgerReply(ledger, reply string) {
	RegisterMetrics()
	ledgerReplies.WithLabelValues(ledger, reply).Inc()
}

func RecordSubmission(ledger, kind, status string) {
	RegisterMetrics()
	ledgerSubmissions.WithLabelValues(ledger, kind, status).Inc()
}

// RecordHubFrame counts a frame; disposition is "forwarded", "dropped",
// "unsolicited" or "no-route".
func RecordHubFrame(frameType, disposition string) {
	RegisterMetrics()
	hubFrames.WithLabelValues(frameType, disposition).Inc()
}

func SetHubConnections(n int) {
	RegisterMetrics()
	hubConnections.Set(float64(n))
}
