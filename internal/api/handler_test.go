package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/query"
	"github.com/querydesk/querydesk/internal/storage"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got != "dependency down" {
		t.Fatalf("error = %q", got)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckObjectStoreConfig(t *testing.T) {
	cfg := testConfig(t, nil)
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("disabled export readiness error = %v", err)
	}
	cfg.Export.Enabled = true
	cfg.ObjectStore.Endpoint = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

func TestTestConnectionReturnsMessage(t *testing.T) {
	queries := &fakeQueries{message: "Successfully connected to Postgres!"}
	h := NewHandler(testConfig(t, nil), Dependencies{Queries: queries})

	rr := postJSON(h, "/v1/connections/test", `{"connection":{"db_type":"postgres","host":"h","port":5432,"user":"u","database":"d"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["message"] != "Successfully connected to Postgres!" {
		t.Fatalf("message = %q", body["message"])
	}
	if queries.lastDescriptor.Kind != engine.KindPostgres || queries.lastDescriptor.Port != 5432 || queries.lastDescriptor.Password != nil {
		t.Fatalf("descriptor = %+v", queries.lastDescriptor)
	}
}

func TestErrorsUseSingleShapeAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		text   string
	}{
		{
			name:   "unsupported engine",
			err:    &engine.UnsupportedEngineError{Kind: "sqlite"},
			status: http.StatusBadRequest,
			text:   `unsupported database type "sqlite"`,
		},
		{
			name:   "connection failure",
			err:    &engine.ConnectionError{Family: "MySQL/MariaDB", Err: errors.New("access denied")},
			status: http.StatusBadGateway,
			text:   "MySQL/MariaDB connection error: access denied",
		},
		{
			name:   "query failure",
			err:    &engine.QueryError{Family: "Postgres", Err: errors.New("syntax error")},
			status: http.StatusBadGateway,
			text:   "Postgres query error: syntax error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(testConfig(t, nil), Dependencies{Queries: &fakeQueries{err: tc.err}})
			rr := postJSON(h, "/v1/query", `{"connection":{"db_type":"postgres","host":"h","port":5432,"user":"u","database":"d"},"query":"SELECT 1"}`)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if got := decodeError(t, rr); got != tc.text {
				t.Fatalf("error = %q, want %q", got, tc.text)
			}
		})
	}
}

func TestQueryReturnsNormalizedResult(t *testing.T) {
	queries := &fakeQueries{result: query.Result{Columns: []string{"id"}, Rows: []query.Row{{"1"}, {"2"}}}}
	h := NewHandler(testConfig(t, nil), Dependencies{Queries: queries})

	rr := postJSON(h, "/v1/query", `{"connection":{"db_type":"mysql","host":"h","port":3306,"user":"u","password":"p","database":"d"},"query":"SELECT id FROM t;"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if strings.TrimSpace(rr.Body.String()) != `{"columns":["id"],"rows":[["1"],["2"]]}` {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if queries.lastQuery != "SELECT id FROM t;" {
		t.Fatalf("query = %q", queries.lastQuery)
	}
	if queries.lastDescriptor.PasswordOrEmpty() != "p" {
		t.Fatalf("password = %q", queries.lastDescriptor.PasswordOrEmpty())
	}
}

func TestQueryRejectsMalformedRequests(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Queries: &fakeQueries{}})

	for name, body := range map[string]string{
		"not json":        `{`,
		"unknown field":   `{"connection":{"db_type":"postgres"},"sql":"SELECT 1"}`,
		"missing conn":    `{"query":"SELECT 1"}`,
		"port overflow":   `{"connection":{"db_type":"postgres","port":70000},"query":"SELECT 1"}`,
		"trailing object": `{"query":"SELECT 1","connection":{"db_type":"postgres"}}{}`,
	} {
		rr := postJSON(h, "/v1/query", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", name, rr.Code)
		}
		if decodeError(t, rr) == "" {
			t.Fatalf("%s: expected error text", name)
		}
	}
}

func TestQueryRejectsOversizedBody(t *testing.T) {
	h := NewHandler(testConfig(t, map[string]string{"QUERYDESK_HTTP_MAX_BODY_BYTES": "64"}), Dependencies{Queries: &fakeQueries{}})
	body := `{"connection":{"db_type":"postgres"},"query":"` + strings.Repeat("x", 128) + `"}`
	rr := postJSON(h, "/v1/query", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); !strings.Contains(got, "exceeds 64 bytes") {
		t.Fatalf("error = %q", got)
	}
}

func TestExportNotConfigured(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Queries: &fakeQueries{}})
	rr := postJSON(h, "/v1/query/export", `{"connection":{"db_type":"postgres"},"query":"SELECT 1"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/exports/exports/date=2026-03-04/a.csv", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("get status = %d", rr.Code)
	}
}

func TestExportRoundTrip(t *testing.T) {
	store := &memoryStore{objects: map[string]storedObject{}}
	exporter, err := export.NewExporter(store)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	exporter.Now = func() time.Time { return time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC) }
	exporter.NewID = func() string { return "b1c2d3" }

	h := NewHandler(testConfig(t, nil), Dependencies{
		Queries:  &fakeQueries{result: query.Result{Columns: []string{"n"}, Rows: []query.Row{{"1"}}}},
		Exporter: exporter,
		Exports:  store,
	})

	rr := postJSON(h, "/v1/query/export", `{"connection":{"db_type":"postgres","host":"h","port":5432,"user":"u","database":"d"},"query":"SELECT 1 AS n","format":"csv"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("export status = %d body=%s", rr.Code, rr.Body.String())
	}
	var object export.Object
	if err := json.Unmarshal(rr.Body.Bytes(), &object); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if object.Key != "exports/date=2026-03-04/b1c2d3.csv" {
		t.Fatalf("key = %q", object.Key)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/exports/"+object.Key, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "n\n1\n" {
		t.Fatalf("get body = %q", rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("X-Export-Rows") != "1" || rr.Header().Get("X-Export-Columns") != "1" {
		t.Fatalf("export headers = %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/exports/"+object.Key, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/exports/"+object.Key, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/exports/"+object.Key, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rr.Code)
	}
}

func TestExportRejectsUnknownFormatAndEmptyResult(t *testing.T) {
	store := &memoryStore{objects: map[string]storedObject{}}
	exporter, err := export.NewExporter(store)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	h := NewHandler(testConfig(t, nil), Dependencies{
		Queries:  &fakeQueries{result: query.Result{Columns: []string{}, Rows: []query.Row{}}},
		Exporter: exporter,
		Exports:  store,
	})

	rr := postJSON(h, "/v1/query/export", `{"connection":{"db_type":"postgres"},"query":"SELECT 1","format":"xlsx"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown format status = %d", rr.Code)
	}

	rr = postJSON(h, "/v1/query/export", `{"connection":{"db_type":"postgres"},"query":"SELECT 1","format":"parquet"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty result status = %d", rr.Code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("stored objects = %d, want 0", len(store.objects))
	}
}

func TestGetExportRejectsForeignKeys(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Exports: &memoryStore{objects: map[string]storedObject{}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/exports/other/secret.txt", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func testConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	cfg, err := config.Load("querydesk-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	if len(body) != 1 {
		t.Fatalf("error body has fields %v, want only error", body)
	}
	message, _ := body["error"].(string)
	return message
}

type fakeQueries struct {
	message string
	result  query.Result
	err     error

	lastDescriptor engine.Descriptor
	lastQuery      string
}

func (f *fakeQueries) TestConnection(_ context.Context, descriptor engine.Descriptor) (string, error) {
	f.lastDescriptor = descriptor
	if f.err != nil {
		return "", f.err
	}
	return f.message, nil
}

func (f *fakeQueries) ExecuteQuery(_ context.Context, descriptor engine.Descriptor, sqlText string) (query.Result, error) {
	f.lastDescriptor = descriptor
	f.lastQuery = sqlText
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

type storedObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

type memoryStore struct {
	objects map[string]storedObject
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = storedObject{data: data, contentType: opts.ContentType, metadata: opts.Metadata}
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: opts.ContentType}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	object, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(object.data)), storage.ObjectInfo{
		Key:         key,
		Size:        int64(len(object.data)),
		ContentType: object.contentType,
		Metadata:    object.metadata,
	}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}
