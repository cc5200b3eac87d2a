package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "onboard"

var (
	registerOnce sync.Once

	skippedSymbols = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "skipped_symbols_total",
			Help:      "Symbols skipped because no address is provisioned.",
		},
		[]string{"kind"},
	)
	chunksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "chunks_total",
			Help:      "Submitted chunks by flow and outcome.",
		},
		[]string{"flow", "success"},
	)
	chunkGas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "gas_used_total",
			Help:      "Gas consumed by confirmed chunks.",
		},
		[]string{"flow"},
	)
	chunkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "chunk_duration_seconds",
			Help:      "Submit-to-confirmation latency per chunk.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		},
		[]string{"flow"},
	)
	strategyDeployments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "deployments_total",
			Help:      "Rate strategies provisioned.",
		},
	)
	roleTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "privilege",
			Name:      "role_transfers_total",
			Help:      "Pool admin transfers by direction and outcome.",
		},
		[]string{"direction", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			skippedSymbols,
			chunksSubmitted,
			chunkGas,
			chunkDuration,
			strategyDeployments,
			roleTransfers,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordSkip(kind string) {
	RegisterMetrics()
	skippedSymbols.WithLabelValues(kind).Inc()
}

func RecordChunk(flow string, gasUsed uint64, duration time.Duration, success bool) {
	RegisterMetrics()
	chunksSubmitted.WithLabelValues(flow, strconv.FormatBool(success)).Inc()
	if success {
		chunkGas.WithLabelValues(flow).Add(float64(gasUsed))
	}
	chunkDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

func RecordStrategyDeployment() {
	RegisterMetrics()
	strategyDeployments.Inc()
}

func RecordRoleTransfer(direction string, success bool) {
	RegisterMetrics()
	roleTransfers.WithLabelValues(direction, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// WriteTextfile dumps the default registry in node_exporter textfile format.
func WriteTextfile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
