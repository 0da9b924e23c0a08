package httpserver

import (
	"net/http"

	"github.com/keithlinneman/sitestore/internal/health"
	"github.com/keithlinneman/sitestore/internal/httpmw"
	"github.com/keithlinneman/sitestore/internal/log"
)

// DefaultMaxBodyBytes caps request bodies; a static site has no use for them.
const DefaultMaxBodyBytes = 1 << 10

type Options struct {
	Logger log.Logger
	Port   int

	// SiteHandler serves every path not claimed by a health route.
	SiteHandler http.Handler

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler
	ClientIP    httpmw.ClientIPOptions

	UseRecoverMW bool
	OnPanic      func()

	Health    health.Probe
	Readiness health.Probe

	MaxBodyBytes int64

	// CORSOrigins enables CORS for GET/HEAD when non-empty, e.g. fonts
	// loaded from another host.
	CORSOrigins []string
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}
