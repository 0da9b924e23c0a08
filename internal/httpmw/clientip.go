package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry (one load balancer),
	// 2 the second to last (CDN + load balancer) and so on.
	TrustedHops int
}

// ClientIP resolves the visitor address into the request context. The
// forwarded header is only honoured when the peer is a private address and
// TrustedHops > 0; otherwise it is deleted so nothing downstream reads it.
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func clientAddr(r *http.Request, trustedHops int) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return "0.0.0.0"
	}

	xff := r.Header.Get("X-Forwarded-For")
	if trustedHops <= 0 || !peer.IsPrivate() && !peer.IsLoopback() || xff == "" {
		dropForwarded(r)
		return peer.String()
	}

	parts := strings.Split(xff, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer hops than configured proxies, fail closed
		dropForwarded(r)
		return peer.String()
	}
	if ip := net.ParseIP(strings.TrimSpace(parts[idx])); ip != nil {
		return ip.String()
	}
	return peer.String()
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
