package observability

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/MHMDHIDR/expenses-tracker/internal/observability"

// HTTPMetrics instruments the REST facade. Requests are labelled by the
// resolved chi route pattern ("/receipts/{id}", "/sync/all") rather than
// the raw path, so per-record ids never become metric labels.
type HTTPMetrics struct {
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestSize     metric.Int64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the facade's HTTP instruments.
func NewHTTPMetrics() (*HTTPMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &HTTPMetrics{}
	var err error

	if m.requestCounter, err = meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Requests served, by route and status"),
		metric.WithUnit("{requests}"),
	); err != nil {
		return nil, err
	}
	if m.requestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("Request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.requestSize, err = meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("Request body size; receipt image uploads dominate the tail"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Response body size; the /sync/all snapshot dominates the tail"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Requests currently in flight"),
		metric.WithUnit("{requests}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Flush and Hijack keep the /ws upgrade path working behind the wrapper.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// routePattern returns the chi pattern the router matched. Chi fills the
// route context during dispatch, so this is only meaningful after the
// handler has run; unrouted requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// TracingMiddleware traces each request as a server span, honoring any
// trace context a syncing client propagates.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(instrumentationName)
	propagator := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("service.name", serviceName),
				),
			)
			defer span.End()

			sr := record(w)
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			next.ServeHTTP(sr, r.WithContext(ctx))

			// The matched pattern is only known after dispatch.
			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", sr.status),
				attribute.Int64("http.response_content_length", sr.bytes),
			)
			if sr.status >= 400 {
				span.SetStatus(codes.Error, http.StatusText(sr.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// MetricsMiddleware records per-route request metrics.
func MetricsMiddleware(metrics *HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			inflight := attribute.String("http.method", r.Method)
			metrics.activeRequests.Add(r.Context(), 1, metric.WithAttributes(inflight))
			defer metrics.activeRequests.Add(r.Context(), -1, metric.WithAttributes(inflight))

			sr := record(w)
			next.ServeHTTP(sr, r)

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.Int("http.status_code", sr.status),
			}
			if r.ContentLength > 0 {
				metrics.requestSize.Record(r.Context(), r.ContentLength, metric.WithAttributes(attrs...))
			}
			metrics.requestDuration.Record(r.Context(), float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
			metrics.requestCounter.Add(r.Context(), 1, metric.WithAttributes(attrs...))
			metrics.responseSize.Record(r.Context(), sr.bytes, metric.WithAttributes(attrs...))
		})
	}
}
