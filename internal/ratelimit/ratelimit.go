package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/sitestore/internal/httpmw"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// set after the first denial so each offender is logged once per entry lifetime
	reported bool
}

// IPLimiter keeps one token bucket per client IP and evicts idle entries in
// the background.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int
	ttl       time.Duration
	// maxVisitors bounds the map; once full, new addresses share one bucket
	maxVisitors int
	overflow    *rate.Limiter

	onFirstDenied func(ip string)
	onDenied      func(ip string)
	onCapacity    func()
}

type Option func(*IPLimiter)

// WithRate refills perSecond tokens per second into a bucket of size burst.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		if perSecond > 0 {
			l.perSecond = rate.Limit(perSecond)
		}
		if burst > 0 {
			l.burst = burst
		}
	}
}

// WithTTL is how long an idle IP keeps its bucket.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) {
		if d > 0 {
			l.ttl = d
		}
	}
}

func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) {
		if n > 0 {
			l.maxVisitors = n
		}
	}
}

// WithOnFirstDenied runs once per tracked IP on its first rejection (logging).
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onFirstDenied = fn }
}

// WithOnDenied runs on every rejection (metrics).
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onDenied = fn }
}

// WithOnCapacity runs whenever a new IP arrives while the table is full.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.onCapacity = fn }
}

// New starts the eviction loop, which stops when ctx is done.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   10,
		burst:       30,
		ttl:         5 * time.Minute,
		maxVisitors: 100_000,
	}
	for _, o := range opts {
		o(l)
	}
	l.overflow = rate.NewLimiter(l.perSecond, l.burst)
	go l.evictLoop(ctx)
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *IPLimiter) Allow(ip string) bool {
	return l.allowAt(ip, time.Now())
}

func (l *IPLimiter) allowAt(ip string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok && len(l.visitors) >= l.maxVisitors {
		allowed := l.overflow.AllowN(now, 1)
		l.mu.Unlock()
		if l.onCapacity != nil {
			l.onCapacity()
		}
		if !allowed && l.onDenied != nil {
			l.onDenied(ip)
		}
		return allowed
	}
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	first := !allowed && !v.reported
	if first {
		v.reported = true
	}
	l.mu.Unlock()

	// hooks run unlocked, they may log or touch metrics
	if first && l.onFirstDenied != nil {
		l.onFirstDenied(ip)
	}
	if !allowed && l.onDenied != nil {
		l.onDenied(ip)
	}
	return allowed
}

func (l *IPLimiter) evictLoop(ctx context.Context) {
	t := time.NewTicker(l.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

func (l *IPLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware answers 429 to clients over their limit. It relies on
// httpmw.ClientIP having run first.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(httpmw.ClientIPFromContext(r.Context())) {
			h := w.Header()
			h.Set("Retry-After", "30")
			h.Set("Cache-Control", "no-store")
			// no detail on limits or refill timing
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
