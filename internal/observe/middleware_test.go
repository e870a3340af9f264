package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup installs an in-memory tracer globally and returns metrics backed
// by a manual reader. Tests using it must not run in parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationIDMatchesSpan(t *testing.T) {
	m, _, exp := testSetup(t)

	var inHandler string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(inHandler) != 32 {
		t.Fatalf("correlation ID %q is not a trace ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inHandler)
	}
	if got := rec.Header().Get("traceparent"); !strings.Contains(got, inHandler) {
		t.Errorf("traceparent = %q, want it to carry %q", got, inHandler)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "GET /healthz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].SpanContext.TraceID().String() != inHandler {
		t.Error("span trace ID differs from correlation ID")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := serve(h, req)

	if inHandler != traceID {
		t.Errorf("correlation ID = %q, want %q", inHandler, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_RecordsDurationPerPath(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	met := findMetric(collect(t, reader), "vivavoce.http.request.duration")
	if met == nil {
		t.Fatal("vivavoce.http.request.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want Histogram[float64]", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		method, _ := dp.Attributes.Value("method")
		if method.AsString() != http.MethodGet {
			t.Errorf("method attribute = %q", method.AsString())
		}
		counts[path.AsString()] += dp.Count
	}
	if counts["/metrics"] != 2 || counts["/healthz"] != 1 {
		t.Errorf("counts by path = %v", counts)
	}
}

func TestMiddleware_StatusCodeOnSpan(t *testing.T) {
	m, _, exp := testSetup(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	var got int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			got = a.Value.AsInt64()
		}
	}
	if got != http.StatusServiceUnavailable {
		t.Errorf("http.response.status_code = %d, want 503", got)
	}
}

func TestMiddleware_LogLevelByStatus(t *testing.T) {
	m, _, _ := testSetup(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ok := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serve(ok, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if buf.Len() != 0 {
		t.Errorf("2xx request logged at info: %s", buf.String())
	}

	failing := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	serve(failing, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "status=500") {
		t.Errorf("5xx request not logged at warn: %s", buf.String())
	}
}
