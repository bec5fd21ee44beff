package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/albertocavalcante/go-wally/internal/telemetry"
)

const sampleMetadata = `{
	"versions": [
		{
			"package": {"name": "roblox/roact", "version": "1.4.4", "registry": "https://github.com/UpliftGames/wally-index", "realm": "shared"},
			"dependencies": {},
			"server-dependencies": {},
			"dev-dependencies": {}
		},
		{
			"package": {"name": "roblox/roact", "version": "1.4.2", "registry": "https://github.com/UpliftGames/wally-index", "realm": "shared", "license": "Apache-2.0"},
			"dependencies": {"Promise": "evaera/promise@^4.0.0"},
			"server-dependencies": {},
			"dev-dependencies": {}
		}
	]
}`

func TestNewClient_WithValidation(t *testing.T) {
	c1 := NewClient()
	if !c1.validateResponses {
		t.Error("Default client should have validation enabled")
	}

	c2 := NewClient(WithValidation(false))
	if c2.validateResponses {
		t.Error("Client with WithValidation(false) should have validation disabled")
	}
}

func TestNewClient_WithHTTPClient(t *testing.T) {
	customClient := &http.Client{Timeout: 5 * time.Second}
	c := NewClient(WithHTTPClient(customClient))

	if c.client != customClient {
		t.Error("Client should use custom HTTP client")
	}

	c2 := NewClient(WithHTTPClient(nil))
	if c2.client == nil {
		t.Error("WithHTTPClient(nil) should keep the default client")
	}
}

func TestNewClient_NoDefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 (bounded by context only)", c.client.Timeout)
	}
}

func TestTimeout_OptionsOrder(t *testing.T) {
	c1 := NewClient(
		WithTimeout(25*time.Second),
		WithHTTPClient(&http.Client{Timeout: 1 * time.Second}))
	if c1.client.Timeout != 1*time.Second {
		t.Errorf("Last option (WithHTTPClient) should win: got %v", c1.client.Timeout)
	}

	c2 := NewClient(
		WithHTTPClient(&http.Client{Timeout: 1 * time.Second}),
		WithTimeout(25*time.Second))
	if c2.client.Timeout != 25*time.Second {
		t.Errorf("Last option (WithTimeout) should win: got %v", c2.client.Timeout)
	}
}

func TestMetadataURL(t *testing.T) {
	tests := []struct {
		api, author, name string
		want              string
	}{
		{"https://api.wally.run", "roblox", "roact", "https://api.wally.run/v1/package-metadata/roblox/roact"},
		{"https://api.wally.run/", "roblox", "roact", "https://api.wally.run/v1/package-metadata/roblox/roact"},
		{"http://localhost:8080/api", "a", "b-c", "http://localhost:8080/api/v1/package-metadata/a/b-c"},
		{"http://x", "we ird", "n", "http://x/v1/package-metadata/we%20ird/n"},
	}

	for _, tt := range tests {
		if got := MetadataURL(tt.api, tt.author, tt.name); got != tt.want {
			t.Errorf("MetadataURL(%q, %q, %q) = %q, want %q", tt.api, tt.author, tt.name, got, tt.want)
		}
	}
}

func TestGetMetadata_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/package-metadata/roblox/roact" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, sampleMetadata)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient()
	metadata, err := c.GetMetadata(context.Background(), server.URL, "roblox", "roact")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}

	if len(metadata.Versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(metadata.Versions))
	}
	if got := metadata.Versions[1].Dependencies["Promise"]; got != "evaera/promise@^4.0.0" {
		t.Errorf("Dependencies[Promise] = %q", got)
	}
	if metadata.Versions[1].Package.License != "Apache-2.0" {
		t.Errorf("License = %q", metadata.Versions[1].Package.License)
	}
}

func TestGetMetadata_NotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"versions": []}`)
	}))
	defer server.Close()

	c := NewClient()
	ctx := context.Background()
	for range 3 {
		if _, err := c.GetMetadata(ctx, server.URL, "a", "b"); err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
	}

	if calls.Load() != 3 {
		t.Errorf("Expected 3 HTTP calls (no caching), got %d", calls.Load())
	}
}

func TestGetMetadata_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient()
	_, err := c.GetMetadata(context.Background(), server.URL, "nobody", "nothing")
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected *HTTPError with 404, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Error should mention 404: %v", err)
	}
}

func TestGetMetadata_BadResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"invalid json", http.StatusOK, `{invalid json`},
		{"empty body", http.StatusOK, ``},
		{"missing versions", http.StatusOK, `{"error": "nope"}`},
		{"versions not a list", http.StatusOK, `{"versions": "1.0.0"}`},
		{"entry without version", http.StatusOK, `{"versions": [{"package": {"name": "a/b"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := NewClient()
			if _, err := c.GetMetadata(context.Background(), server.URL, "a", "b"); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestGetMetadata_ValidationDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"versions": [{"package": {"name": "a/b"}}]}`)
	}))
	defer server.Close()

	c := NewClient(WithValidation(false))
	metadata, err := c.GetMetadata(context.Background(), server.URL, "a", "b")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if len(metadata.Versions) != 1 {
		t.Errorf("Expected 1 version, got %d", len(metadata.Versions))
	}
}

func TestGetMetadata_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{"versions": []}`)
	}))
	defer server.Close()

	c := NewClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GetMetadata(ctx, server.URL, "a", "b"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestGetMetadata_TimeoutActuallyRespected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"versions": []}`)
	}))
	defer server.Close()

	c := NewClient(WithTimeout(50 * time.Millisecond))

	start := time.Now()
	_, err := c.GetMetadata(context.Background(), server.URL, "a", "b")
	elapsed := time.Since(start)

	if err == nil {
		t.Error("Expected timeout error, got nil")
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("Timeout took too long: %v (should be around 50ms)", elapsed)
	}
}

func TestGetMetadata_ConcurrentAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleMetadata)
	}))
	defer server.Close()

	c := NewClient()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Go(func() {
			if _, err := c.GetMetadata(context.Background(), server.URL, "roblox", "roact"); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent GetMetadata failed: %v", err)
	}
}

func TestGetMetadata_ObserverAndSpan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, sampleMetadata)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c := NewClient(WithObserver(metrics), WithTracer(telemetry.Tracer(tp)))
	ctx := context.Background()

	if _, err := c.GetMetadata(ctx, server.URL, "roblox", "roact"); err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	_, _ = c.GetMetadata(ctx, server.URL, "roblox", "missing")

	if got := testutil.ToFloat64(metrics.Requests().WithLabelValues(telemetry.APIMetadata, telemetry.OutcomeSuccess)); got != 1 {
		t.Errorf("success requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Requests().WithLabelValues(telemetry.APIMetadata, telemetry.OutcomeNotFound)); got != 1 {
		t.Errorf("not_found requests = %v, want 1", got)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "registry.metadata" {
		t.Errorf("span name = %q", spans[0].Name())
	}
}
