package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/sitestore/internal/health"
	"github.com/keithlinneman/sitestore/internal/log"
)

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	req.RemoteAddr = "127.0.0.1:40000"
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_Routes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# HELP up\n")
	})
	var gate health.ShutdownGate

	h := NewHandler(log.Nop(), Options{
		Metrics:   metrics,
		Health:    health.Fixed(true, ""),
		Readiness: gate.Probe(),
	})

	tests := []struct {
		target     string
		wantStatus int
		wantBody   string
	}{
		{"/-/healthy", 200, "ok"},
		{"/-/ready", 200, "ready"},
		{"/metrics", 200, "# HELP up"},
		{"/debug/pprof/", 404, ""},
		{"/debug/pprof/heap", 404, ""},
		{"/elsewhere", 404, ""},
	}
	for _, tt := range tests {
		rec := serve(t, h, tt.target)
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.target, rec.Code, tt.wantStatus)
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("%s: body = %q, want %q", tt.target, rec.Body.String(), tt.wantBody)
		}
	}

	gate.Set("shutting down")
	rec := serve(t, h, "/-/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "shutting down") {
		t.Fatalf("gated ready: %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandler_NilOptionalRoutes(t *testing.T) {
	h := NewHandler(log.Nop(), Options{})
	for _, target := range []string{"/-/healthy", "/-/ready", "/metrics"} {
		if rec := serve(t, h, target); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestNewHandler_Pprof(t *testing.T) {
	h := NewHandler(log.Nop(), Options{EnablePprof: true})
	rec := serve(t, h, "/debug/pprof/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatal("pprof index missing profiles")
	}
}

func TestNewHandler_RecoverMW(t *testing.T) {
	var panics int
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("metrics exploded") })
	h := NewHandler(log.Nop(), Options{Metrics: boom, UseRecoverMW: true, OnPanic: func() { panics++ }})

	if rec := serve(t, h, "/metrics"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if panics != 1 {
		t.Fatalf("OnPanic called %d times", panics)
	}
}

func TestRequireNonPublicNetwork(t *testing.T) {
	tests := []struct {
		remote string
		allow  bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"10.0.0.5:80", true},
		{"172.16.3.4:80", true},
		{"192.168.1.10:80", true},
		{"[fd00::1]:80", true},
		{"169.254.1.1:8080", true},
		{"[::ffff:10.0.0.1]:12345", true},
		{"8.8.8.8:12345", false},
		{"203.0.113.1:80", false},
		{"[2001:4860:4860::8888]:443", false},
		{"[::ffff:8.8.8.8]:12345", false},
		{"not-an-address", false},
		{"", false},
		{"999.999.999.999:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			called := false
			h := requireNonPublicNetwork(log.Nop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
			req.RemoteAddr = tt.remote
			h.ServeHTTP(rec, req)

			if called != tt.allow {
				t.Fatalf("handler called = %v, want %v", called, tt.allow)
			}
			if !tt.allow && rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
		})
	}
}

func TestStart_LiveListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err := Start(t.Context(), log.Nop(), Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if _, err := Start(t.Context(), log.Nop(), Options{Port: ln.Addr().(*net.TCPAddr).Port}); err == nil {
		t.Fatal("expected listen error")
	}
}
