package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the connection, query and export metrics.
const (
	OutcomeSuccess           = "success"
	OutcomeUnsupportedEngine = "unsupported_engine"
	OutcomeConnectionError   = "connection_error"
	OutcomeQueryError        = "query_error"
	OutcomeError             = "error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_http_requests_total",
			Help: "Total number of HTTP requests by matched route.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydesk_http_request_duration_seconds",
			Help:    "HTTP request latency by matched route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	connectionTestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_connection_tests_total",
			Help: "Total number of connection tests by engine kind and outcome.",
		},
		[]string{"engine", "outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_query_executions_total",
			Help: "Total number of ad-hoc query executions by engine kind and outcome.",
		},
		[]string{"engine", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydesk_query_duration_seconds",
			Help:    "Wall time of ad-hoc query executions including connect and fetch.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)
	queryResultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydesk_query_result_rows",
			Help:    "Rows returned per successful query execution.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)
	unsupportedCellsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_unsupported_cells_total",
			Help: "Total number of result cells no coercion attempt could render.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_exports_total",
			Help: "Total number of result exports by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_export_bytes_total",
			Help: "Total bytes written to the object store by result exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		connectionTestsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		queryResultRows,
		unsupportedCellsTotal,
		exportsTotal,
		exportBytesTotal,
	)
}

func ObserveConnectionTest(engine, outcome string) {
	connectionTestsTotal.WithLabelValues(engine, outcome).Inc()
}

func ObserveQueryExecution(engine, outcome string, rows int, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(engine, outcome).Inc()
	queryDurationSeconds.WithLabelValues(engine).Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess {
		queryResultRows.Observe(float64(rows))
	}
}

func IncrementUnsupportedCells() {
	unsupportedCellsTotal.Inc()
}

func ObserveExport(format, outcome string, size int64) {
	exportsTotal.WithLabelValues(format, outcome).Inc()
	if size > 0 {
		exportBytesTotal.Add(float64(size))
	}
}
