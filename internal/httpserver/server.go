// Package httpserver assembles the public site listener: a chi router behind
// the shared middleware stack.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/sitestore/internal/health"
	"github.com/keithlinneman/sitestore/internal/httpmw"
	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

const (
	healthPath = "/-/healthy"
	readyPath  = "/-/ready"
)

var compressTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"application/javascript",
	"text/javascript",
	"application/json",
	"image/svg+xml",
	"image/x-icon",
}

// NewHandler builds the router and wraps it in middleware. main owns the
// *http.Server so it can shut down gracefully.
func NewHandler(opts Options) http.Handler {
	opts.setDefaults()

	r := chi.NewRouter()
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
			ExposedHeaders: []string{"ETag", "X-Request-Id"},
			MaxAge:         600,
		}))
	}
	r.Use(middleware.Compress(5, compressTypes...))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(opts.MaxBodyBytes))

	if opts.Health != nil {
		r.Get(healthPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get(readyPath, health.ReadyzHandler(opts.Readiness))
	}
	if opts.SiteHandler != nil {
		r.Handle("/*", opts.SiteHandler)
		r.NotFound(opts.SiteHandler.ServeHTTP)
		r.MethodNotAllowed(opts.SiteHandler.ServeHTTP)
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIP(opts.ClientIP),
		opts.RateLimitMW,
		tracing,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return shouldTrace(r.URL.Path) }),
		// AnnotateHTTPRoute renames the span to the route pattern once chi has matched
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

func shouldTrace(p string) bool {
	switch p {
	case healthPath, readyPath, "/favicon.ico", "/favicon.svg", "/robots.txt":
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultShutdownTimeout   = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port and serves in the background.
// The returned stop(ctx) shuts down gracefully and is safe to call twice.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	opts.setDefaults()
	addr := fmt.Sprintf(":%d", opts.Port)
	srv := NewServer(addr, NewHandler(opts))
	return Serve(ctx, "http server", srv, opts.Logger)
}

// Serve binds srv.Addr and runs srv until stopped. name labels log lines.
func Serve(ctx context.Context, name string, srv *http.Server, L log.Logger) (func(context.Context) error, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s listen %s", name, srv.Addr)
	}

	go func() {
		L.Info(ctx, name+" listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, name+" error")
		}
	}()

	var once sync.Once
	return func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, name+" shutting down")
			c, cancel := context.WithTimeout(sctx, DefaultShutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}, nil
}
