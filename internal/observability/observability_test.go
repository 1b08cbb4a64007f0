package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/querydesk/querydesk/internal/config"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if seen == "" || rr.Header().Get(traceHeader) != seen {
		t.Fatalf("context trace id = %q, header = %q", seen, rr.Header().Get(traceHeader))
	}
}

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	cfg, err := config.Load("querydesk-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	FromContext(ContextWithTraceID(context.Background(), "abc123"), logger).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json decode failed: %v (%s)", err, buf.String())
	}
	if entry["service"] != "querydesk-api" || entry["profile"] != "dev" || entry["trace_id"] != "abc123" {
		t.Fatalf("log entry = %v", entry)
	}
}

func TestFromContextWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	FromContext(context.Background(), logger).Info("hello")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("unexpected trace_id in %s", buf.String())
	}
	FromContext(context.Background(), nil).Info("discarded")
}

func TestMiddlewaresLabelByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/exports/{key...}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := TraceMiddleware(MetricsMiddleware(LoggingMiddleware(logger)(mux)))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /v1/exports/{key...}", "200")
	before := counterValue(t, counter)

	for _, key := range []string{"a.csv", "b.csv", "c.parquet"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/exports/exports/date=2026-03-04/"+key, nil))
	}

	if got := counterValue(t, counter) - before; got != 3 {
		t.Fatalf("requests counted under route = %v, want 3", got)
	}
	if !strings.Contains(logs.String(), `"route":"GET /v1/exports/{key...}"`) {
		t.Fatalf("logs = %s", logs.String())
	}
	if !strings.Contains(logs.String(), `"trace_id"`) {
		t.Fatalf("logs missing trace_id: %s", logs.String())
	}
}

func TestDomainMetrics(t *testing.T) {
	unsupportedBefore := counterValue(t, unsupportedCellsTotal)
	IncrementUnsupportedCells()
	IncrementUnsupportedCells()
	if got := counterValue(t, unsupportedCellsTotal) - unsupportedBefore; got != 2 {
		t.Fatalf("unsupported cells delta = %v, want 2", got)
	}

	queries := queryExecutionsTotal.WithLabelValues("postgres", OutcomeQueryError)
	queriesBefore := counterValue(t, queries)
	ObserveQueryExecution("postgres", OutcomeQueryError, 0, 15*time.Millisecond)
	if got := counterValue(t, queries) - queriesBefore; got != 1 {
		t.Fatalf("query executions delta = %v, want 1", got)
	}

	bytesBefore := counterValue(t, exportBytesTotal)
	ObserveExport("csv", OutcomeSuccess, 128)
	ObserveExport("csv", OutcomeError, 0)
	if got := counterValue(t, exportBytesTotal) - bytesBefore; got != 128 {
		t.Fatalf("export bytes delta = %v, want 128", got)
	}
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("counter.Write() error = %v", err)
	}
	return metric.GetCounter().GetValue()
}
