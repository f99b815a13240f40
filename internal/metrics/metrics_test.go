package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveSource("wikipedia", "ok", 120*time.Millisecond)
	m.ObserveSource("wikipedia", "timeout", 5*time.Second)
	m.ObserveCache("hit")
	m.ObserveQuery("simple")

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch f.GetName() {
			case "shirabe_source_requests_total", "shirabe_cache_lookups_total", "shirabe_queries_total":
				counts[f.GetName()] += int(metric.GetCounter().GetValue())
			case "shirabe_source_latency_seconds":
				counts[f.GetName()] += int(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	want := map[string]int{
		"shirabe_source_requests_total":  2,
		"shirabe_source_latency_seconds": 2,
		"shirabe_cache_lookups_total":    1,
		"shirabe_queries_total":          1,
	}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("%s = %d, want %d", name, counts[name], n)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveCache("miss")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `shirabe_cache_lookups_total{result="miss"} 1`) {
		t.Errorf("metrics output missing cache counter:\n%s", body)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSource("x", "ok", time.Second)
	m.ObserveCache("hit")
	m.ObserveQuery("complex")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil metrics handler code = %d", rec.Code)
	}
}
