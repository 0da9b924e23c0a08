package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const unmatchedRoute = "unmatched"

// responseStats records the first status written and the body bytes.
type responseStats struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseStats) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseStats) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseStats) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseStats) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records inflight, request totals, 5xx, latency and response size.
// It installs a chi route context when none exists so the router further in
// can fill in the matched pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withRouteContext(r)

		m.http.inflight.Inc()
		defer m.http.inflight.Dec()

		start := time.Now()
		rs := &responseStats{ResponseWriter: w}
		next.ServeHTTP(rs, r)

		m.http.record(r, rs.code(), rs.bytes, time.Since(start))
	})
}

func (h httpMetrics) record(r *http.Request, code, bytes int, took time.Duration) {
	route := routeLabel(r)
	h.requests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		h.serverErrs.WithLabelValues(r.Method, route).Inc()
	}
	observe(r.Context(), h.duration.WithLabelValues(r.Method, route), took.Seconds())
	h.size.WithLabelValues(r.Method, route).Observe(float64(bytes))
}

func withRouteContext(r *http.Request) *http.Request {
	if chi.RouteContext(r.Context()) != nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
}

// routeLabel is the matched chi pattern, never the raw URL path.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

func observe(ctx context.Context, o prometheus.Observer, v float64) {
	if ex := traceExemplar(ctx); ex != nil {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, ex)
			return
		}
	}
	o.Observe(v)
}

// traceExemplar returns trace_id labels for a sampled span, nil otherwise.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
