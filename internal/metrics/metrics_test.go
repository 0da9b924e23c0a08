package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/sitestore/internal/version"
)

// --- gather helpers ---

func family(t *testing.T, m *ServerMetrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// sample finds the metric in family name whose labels include want.
func sample(t *testing.T, m *ServerMetrics, name string, want map[string]string) *dto.Metric {
	t.Helper()
	f := family(t, m, name)
	if f == nil {
		t.Fatalf("metric family %q not gathered", name)
	}
	for _, mt := range f.GetMetric() {
		got := map[string]string{}
		for _, lp := range mt.GetLabel() {
			got[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range want {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return mt
		}
	}
	t.Fatalf("no %s sample with labels %v", name, want)
	return nil
}

func counter(t *testing.T, m *ServerMetrics, name string, labels map[string]string) float64 {
	t.Helper()
	return sample(t, m, name, labels).GetCounter().GetValue()
}

func gauge(t *testing.T, m *ServerMetrics, name string, labels map[string]string) float64 {
	t.Helper()
	return sample(t, m, name, labels).GetGauge().GetValue()
}

func histCount(t *testing.T, m *ServerMetrics, name string, labels map[string]string) uint64 {
	t.Helper()
	return sample(t, m, name, labels).GetHistogram().GetSampleCount()
}

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

// --- registry ---

func TestNew_ScrapeIncludesUnlabelledAndRuntimeMetrics(t *testing.T) {
	body := scrape(t, New())
	for _, want := range []string{
		"sitestore_http_inflight_requests",
		"sitestore_http_panics_total",
		"sitestore_profiling_active",
		"go_goroutines",
		"process_",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNew_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncPanic()

	if got := counter(t, a, "sitestore_http_panics_total", nil); got != 1 {
		t.Errorf("a panics = %v, want 1", got)
	}
	if got := counter(t, b, "sitestore_http_panics_total", nil); got != 0 {
		t.Errorf("b panics = %v, want 0", got)
	}
}

func TestNew_ResponseSizeBuckets(t *testing.T) {
	m := New()
	m.http.size.WithLabelValues("GET", "/*").Observe(300)

	h := sample(t, m, "sitestore_http_response_size_bytes", nil).GetHistogram()
	b := h.GetBucket()
	if len(b) != 10 {
		t.Fatalf("buckets = %d, want 10", len(b))
	}
	if b[0].GetUpperBound() != 256 || b[1].GetUpperBound() != 1024 {
		t.Errorf("first bounds = %v, %v", b[0].GetUpperBound(), b[1].GetUpperBound())
	}
	if b[0].GetCumulativeCount() != 0 || b[1].GetCumulativeCount() != 1 {
		t.Errorf("300 bytes landed in the wrong bucket: %v/%v", b[0].GetCumulativeCount(), b[1].GetCumulativeCount())
	}
}

// --- operational flags ---

func TestRateLimitCounters(t *testing.T) {
	m := New()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitCapacity()

	if got := counter(t, m, "sitestore_http_rate_limited_total", map[string]string{"reason": "denied"}); got != 2 {
		t.Errorf("denied = %v, want 2", got)
	}
	if got := counter(t, m, "sitestore_http_rate_limited_total", map[string]string{"reason": "capacity"}); got != 1 {
		t.Errorf("capacity = %v, want 1", got)
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := gauge(t, m, "sitestore_profiling_active", nil); got != 1 {
		t.Errorf("after true = %v", got)
	}
	m.SetProfilingActive(false)
	if got := gauge(t, m, "sitestore_profiling_active", nil); got != 0 {
		t.Errorf("after false = %v", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	tru := true
	tests := []struct {
		name      string
		dirty     *bool
		wantDirty string
	}{
		{"dirty tree", &tru, "true"},
		{"unknown", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.SetBuildInfoFromVersion("sitestore", "server", version.Info{
				Version:   "1.4.0",
				Commit:    "abc123",
				BuildID:   "b-42",
				GoVersion: "go1.24.11",
				VCSDirty:  tt.dirty,
			})
			mt := sample(t, m, "sitestore_build_info", map[string]string{
				"app":       "sitestore",
				"component": "server",
				"version":   "1.4.0",
				"commit":    "abc123",
				"build_id":  "b-42",
				"vcs_dirty": tt.wantDirty,
			})
			if mt.GetGauge().GetValue() != 1 {
				t.Errorf("build_info value = %v", mt.GetGauge().GetValue())
			}
		})
	}
}

// --- store metrics ---

func TestObserveStoreRead(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.ObserveStoreRead(ctx, "file", "hit", 0.002)
	m.ObserveStoreRead(ctx, "file", "hit", 0.004)
	m.ObserveStoreRead(ctx, "embedded", "not_found", 0.001)

	if got := counter(t, m, "sitestore_store_reads_total", map[string]string{"store": "file", "result": "hit"}); got != 2 {
		t.Errorf("file hits = %v, want 2", got)
	}
	if got := counter(t, m, "sitestore_store_reads_total", map[string]string{"store": "embedded", "result": "not_found"}); got != 1 {
		t.Errorf("embedded misses = %v, want 1", got)
	}
	if got := histCount(t, m, "sitestore_store_read_duration_seconds", map[string]string{"store": "file", "result": "hit"}); got != 2 {
		t.Errorf("file hit observations = %d, want 2", got)
	}
}

func TestObserveStoreRead_AttachesTraceExemplar(t *testing.T) {
	m := New()
	m.ObserveStoreRead(sampledContext(), "s3", "hit", 0.01)

	h := sample(t, m, "sitestore_store_read_duration_seconds", map[string]string{"store": "s3"}).GetHistogram()
	var found bool
	for _, b := range h.GetBucket() {
		if ex := b.GetExemplar(); ex != nil {
			for _, lp := range ex.GetLabel() {
				if lp.GetName() == "trace_id" && lp.GetValue() == testTraceID.String() {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected trace_id exemplar on a bucket")
	}
}

func TestSetStoreInfo(t *testing.T) {
	m := New()
	m.SetStoreInfo("filesystem", "file", 0)
	m.SetStoreInfo("embedded", "embed", 1)

	for _, labels := range []map[string]string{
		{"store": "filesystem", "kind": "file", "position": "0"},
		{"store": "embedded", "kind": "embed", "position": "1"},
	} {
		if got := gauge(t, m, "sitestore_store_info", labels); got != 1 {
			t.Errorf("store_info%v = %v, want 1", labels, got)
		}
	}
}
