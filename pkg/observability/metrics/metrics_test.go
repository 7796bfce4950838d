package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
}

func TestRenderMetrics(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()

	c.OnRenderStart(ctx, "Caveat", 10)
	if got := testutil.ToFloat64(c.rendersInFlight); got != 1 {
		t.Errorf("renders_in_flight = %v, want 1", got)
	}
	c.OnRenderComplete(ctx, "Caveat", 3, 200*time.Millisecond, nil)
	c.OnRenderStart(ctx, "Caveat", 10)
	c.OnRenderComplete(ctx, "Caveat", 0, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(c.rendersInFlight); got != 0 {
		t.Errorf("renders_in_flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.renderErrors.WithLabelValues("Caveat")); got != 1 {
		t.Errorf("render_errors_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.renderDuration); n != 1 {
		t.Errorf("render_duration_seconds series = %d, want 1", n)
	}

	c.OnEncode(ctx, "png", 2048, time.Millisecond, nil)
	c.OnEncode(ctx, "png", 1024, time.Millisecond, nil)
	c.OnEncode(ctx, "pdf", 99, time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(c.encodeBytes.WithLabelValues("png")); got != 3072 {
		t.Errorf("encoded_bytes_total{png} = %v, want 3072", got)
	}
	if got := testutil.ToFloat64(c.encodeBytes.WithLabelValues("pdf")); got != 0 {
		t.Errorf("failed encodes should not count bytes, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()

	c.OnCacheMiss(ctx, "render")
	c.OnCacheSet(ctx, "render", 512)
	c.OnCacheHit(ctx, "render")
	c.OnCacheHit(ctx, "render")

	expected := `
# HELP handwrite_cache_operations_total The number of cache lookups and writes.
# TYPE handwrite_cache_operations_total counter
handwrite_cache_operations_total{key_type="render",result="hit"} 2
handwrite_cache_operations_total{key_type="render",result="miss"} 1
handwrite_cache_operations_total{key_type="render",result="set"} 1
`
	if err := testutil.CollectAndCompare(c.cacheOps, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestHTTPMetrics(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()

	c.OnRequest(ctx, "POST", "/api/v1/generate")
	c.OnError(ctx, "POST", "/api/v1/generate", errors.New("boom"))
	c.OnResponse(ctx, "POST", "/api/v1/generate", 500, time.Second)
	c.OnRequest(ctx, "GET", "/api/v1/fonts")
	c.OnResponse(ctx, "GET", "/api/v1/fonts", 200, time.Millisecond)

	if got := testutil.ToFloat64(c.requestsInFlight); got != 0 {
		t.Errorf("http_requests_in_flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.requestErrors.WithLabelValues("POST", "/api/v1/generate")); got != 1 {
		t.Errorf("http_request_errors_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.requestDuration); n != 2 {
		t.Errorf("http_request_duration_seconds series = %d, want 2", n)
	}
}
