// Package opshttp serves the operator listener: metrics, health probes and
// optional pprof. It only answers clients on loopback or private networks.
package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/sitestore/internal/health"
	"github.com/keithlinneman/sitestore/internal/httpmw"
	"github.com/keithlinneman/sitestore/internal/httpserver"
	"github.com/keithlinneman/sitestore/internal/log"
)

const DefaultPort = 9000

// NewHandler builds the ops mux wrapped in the network guard.
func NewHandler(L log.Logger, opts Options) http.Handler {
	mux := http.NewServeMux()

	if opts.Health != nil {
		mux.Handle("GET /-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		mux.Handle("GET /-/ready", health.ReadyzHandler(opts.Readiness))
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// shadow pprof so a stray import of net/http/pprof cannot expose it
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.Handle("/debug/pprof/", http.NotFoundHandler())
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	return httpmw.Chain(mux,
		func(next http.Handler) http.Handler { return requireNonPublicNetwork(L, next) },
		recoverMW,
	)
}

// Start runs the ops listener and returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, L log.Logger, opts Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	srv := httpserver.NewServer(fmt.Sprintf(":%d", port), NewHandler(L, opts))
	return httpserver.Serve(ctx, "ops http server", srv, L)
}

// requireNonPublicNetwork answers 403 unless the peer is loopback, private
// or link-local. Unparseable peers are rejected.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !nonPublicPeer(r.RemoteAddr) {
			L.Warn(r.Context(), "ops request from public network rejected",
				"network.peer.address", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func nonPublicPeer(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
