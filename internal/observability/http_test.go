package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dbchat/dbchat/internal/config"
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
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestTraceAttr(t *testing.T) {
	attr := TraceAttr(ContextWithTraceID(context.Background(), "t-9"))
	if attr.Key != "trace_id" || attr.Value.String() != "t-9" {
		t.Fatalf("TraceAttr() = %v", attr)
	}
	if got := TraceAttr(context.Background()).Value.String(); got != "" {
		t.Fatalf("TraceAttr() outside request = %q", got)
	}
}

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := MetricsMiddleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /v1/things/{id}", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /v1/things/{id}", "418"))
	if after-before != 1 {
		t.Fatalf("request counter delta = %v, want 1", after-before)
	}

	before = testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	after = testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	if after-before != 1 {
		t.Fatalf("unmatched counter delta = %v, want 1", after-before)
	}
}

func TestDomainMetrics(t *testing.T) {
	before := testutil.ToFloat64(pipelineRequestsTotal.WithLabelValues(OutcomeCourtesy))
	ObservePipelineOutcome(OutcomeCourtesy)
	if got := testutil.ToFloat64(pipelineRequestsTotal.WithLabelValues(OutcomeCourtesy)) - before; got != 1 {
		t.Fatalf("pipeline outcome delta = %v", got)
	}

	before = testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("read", "failed"))
	ObserveSQLExecution("read", false, 3*time.Millisecond)
	if got := testutil.ToFloat64(sqlExecutionsTotal.WithLabelValues("read", "failed")) - before; got != 1 {
		t.Fatalf("sql execution delta = %v", got)
	}

	archived := testutil.ToFloat64(auditRecordsArchivedTotal)
	failures := testutil.ToFloat64(auditFlushFailuresTotal)
	ObserveAuditFlush(4, nil)
	ObserveAuditFlush(2, io.ErrUnexpectedEOF)
	if got := testutil.ToFloat64(auditRecordsArchivedTotal) - archived; got != 4 {
		t.Fatalf("archived delta = %v", got)
	}
	if got := testutil.ToFloat64(auditFlushFailuresTotal) - failures; got != 1 {
		t.Fatalf("flush failure delta = %v", got)
	}
}

func TestNewLoggerEmitsJSONWithServiceAttrs(t *testing.T) {
	var buf strings.Builder
	cfg := config.Config{Service: config.ServiceConfig{Name: "dbchat-api"}, Profile: config.ProfileTest}
	cfg.Observability.LogJSON = true
	cfg.Database.Driver = "sqlite"
	NewLogger(cfg, &buf).Info("hello")

	out := buf.String()
	for _, want := range []string{`"msg":"hello"`, `"service":"dbchat-api"`, `"profile":"test"`, `"db_driver":"sqlite"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %s", out, want)
		}
	}
}
