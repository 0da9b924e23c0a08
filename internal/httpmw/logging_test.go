package httpmw

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitestore/internal/log"
)

func TestWithLogger_RequestFields(t *testing.T) {
	l := &recLogger{}
	var scoped log.Logger
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = log.FromContext(r.Context())
	}), RequestID(""), ClientIP(ClientIPOptions{}), WithLogger(l))

	req := httptest.NewRequest(http.MethodGet, "/about?utm=x", http.NoBody)
	req.RemoteAddr = "203.0.113.4:1234"
	req.Header.Set("User-Agent", "secret-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if scoped != l {
		t.Fatal("request logger not stored in context")
	}
	want := map[string]any{
		"client.address":      "203.0.113.4",
		"http.request.method": http.MethodGet,
		"url.path":            "/about",
		"url.scheme":          "http",
	}
	for k, v := range want {
		if got, _ := l.withField(k); got != v {
			t.Errorf("%s = %v, want %v", k, got, v)
		}
	}
	if id, _ := l.withField("request_id"); id == "" {
		t.Error("request_id missing")
	}
	for _, k := range []string{"url.query", "user_agent.original"} {
		if _, ok := l.withField(k); ok {
			t.Errorf("%s should not be logged", k)
		}
	}
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		path   string
		status int
		logged bool
	}{
		{"/", http.StatusOK, true},
		{"/missing", http.StatusNotFound, true},
		{"/css/site.css", http.StatusOK, false},
		{"/-/healthy", http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			l := &recLogger{}
			r := chi.NewRouter()
			r.Use(AccessLog())
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			h := WithLogger(l)(r)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			infos := l.byLevel("info")
			if (len(infos) == 1) != tt.logged {
				t.Fatalf("access records = %d, want logged=%v", len(infos), tt.logged)
			}
			if !tt.logged {
				return
			}
			kv := infos[0].kv
			if v, _ := field(kv, "http.response.status_code"); v != tt.status {
				t.Errorf("status = %v, want %d", v, tt.status)
			}
			if v, _ := field(kv, "http.response.body.size"); v != int64(4) {
				t.Errorf("body size = %v, want 4", v)
			}
			if v, _ := field(kv, "http.route"); v != "/*" {
				t.Errorf("route = %v, want /*", v)
			}
		})
	}
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &statusRecorder{ResponseWriter: rec}
	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("abc"))
	if rw.status != http.StatusNotFound || rw.bytes != 3 {
		t.Fatalf("status=%d bytes=%d", rw.status, rw.bytes)
	}
	if rw.Unwrap() != rec {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}

func TestSchemeFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if s := schemeFromRequest(req); s != "http" {
		t.Fatalf("plain = %q", s)
	}
	req.TLS = &tls.ConnectionState{}
	if s := schemeFromRequest(req); s != "https" {
		t.Fatalf("tls = %q", s)
	}
	req.TLS = nil
	req.Header.Set("X-Forwarded-Proto", "HTTPS, http")
	if s := schemeFromRequest(req); s != "https" {
		t.Fatalf("forwarded = %q", s)
	}
	req.Header.Set("X-Forwarded-Proto", "javascript")
	if s := schemeFromRequest(req); s != "http" {
		t.Fatalf("bogus forwarded = %q", s)
	}
}
