package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return 0
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	before := counterValue(t, HTTPRequestsTotal.WithLabelValues("/health", http.MethodGet, "200"))

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	after := counterValue(t, HTTPRequestsTotal.WithLabelValues("/health", http.MethodGet, "200"))
	if after != before+1 {
		t.Fatalf("expected request counter to increment by 1, got before=%v after=%v", before, after)
	}
}

func TestMiddlewareDefaultsToStatusOKWhenUnset(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // never calls WriteHeader explicitly
	}))

	r := httptest.NewRequest(http.MethodGet, "/implicit-ok", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	before := counterValue(t, RateLimitRejectionsTotal.WithLabelValues("claim_mission"))
	RecordRateLimitRejection("claim_mission")
	after := counterValue(t, RateLimitRejectionsTotal.WithLabelValues("claim_mission"))
	if after != before+1 {
		t.Fatalf("expected rejection counter to increment by 1, got before=%v after=%v", before, after)
	}
}

func TestRecordCacheOutcome(t *testing.T) {
	beforeHit := counterValue(t, CacheHitsTotal.WithLabelValues("lru", "hit"))
	RecordCacheOutcome("lru", true)
	afterHit := counterValue(t, CacheHitsTotal.WithLabelValues("lru", "hit"))
	if afterHit != beforeHit+1 {
		t.Fatalf("expected hit counter to increment by 1, got before=%v after=%v", beforeHit, afterHit)
	}

	beforeMiss := counterValue(t, CacheHitsTotal.WithLabelValues("redis", "miss"))
	RecordCacheOutcome("redis", false)
	afterMiss := counterValue(t, CacheHitsTotal.WithLabelValues("redis", "miss"))
	if afterMiss != beforeMiss+1 {
		t.Fatalf("expected miss counter to increment by 1, got before=%v after=%v", beforeMiss, afterMiss)
	}
}
