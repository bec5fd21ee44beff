package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertocavalcante/go-wally/internal/telemetry"
)

// Client configuration defaults.
const (
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 90 * time.Second
)

// maxResponseSize bounds metadata response bodies.
const maxResponseSize = 32 << 20

// HTTPError is returned when the metadata API answers with a non-200 status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// NotFound reports whether the API answered 404.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err wraps an HTTPError with status 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.NotFound()
}

// Observer receives request measurements. *telemetry.Metrics satisfies it.
type Observer interface {
	ObserveRequest(api, outcome string, d time.Duration)
}

// Client fetches package metadata from a Wally registry API.
// It holds no per-package cache: version lists change as packages are
// published, so every call goes to the network.
type Client struct {
	client   *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer

	validateResponses bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithValidation enables or disables validation of metadata responses.
func WithValidation(enabled bool) ClientOption {
	return func(c *Client) {
		c.validateResponses = enabled
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets a per-request timeout. Zero leaves requests bounded only by
// their context.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout >= 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for metadata spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithObserver sets the request observer.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a metadata API client.
//
// By default, responses are validated. Use WithValidation(false) to accept
// entries without a version.
func NewClient(opts ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	c := &Client{
		client:            &http.Client{Transport: transport},
		logger:            slog.New(slog.DiscardHandler),
		validateResponses: true,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}

	return c
}

// MetadataURL builds the package-metadata endpoint for author/name under apiURL.
func MetadataURL(apiURL, author, name string) string {
	return fmt.Sprintf("%s/v1/package-metadata/%s/%s",
		strings.TrimSuffix(apiURL, "/"), url.PathEscape(author), url.PathEscape(name))
}

// GetMetadata fetches the metadata document for author/name from the API at apiURL.
func (c *Client) GetMetadata(ctx context.Context, apiURL, author, name string) (_ *Metadata, err error) {
	endpoint := MetadataURL(apiURL, author, name)

	ctx, span := telemetry.StartSpan(ctx, c.tracer, "registry.metadata",
		attribute.String("wally.package", author+"/"+name),
		attribute.String("url.full", endpoint),
	)
	start := time.Now()
	defer func() {
		c.observe(start, err)
		telemetry.EndSpan(span, err)
	}()

	data, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata for %s/%s: %w", author, name, err)
	}

	var metadata *Metadata
	if c.validateResponses {
		metadata, err = ParseMetadata(data)
	} else {
		metadata, err = decodeMetadata(data)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid metadata for %s/%s: %w", author, name, err)
	}

	c.logger.DebugContext(ctx, "fetched package metadata",
		"package", author+"/"+name,
		"versions", len(metadata.Versions))

	return metadata, nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.observer == nil {
		return
	}
	outcome := telemetry.OutcomeSuccess
	switch {
	case IsNotFound(err):
		outcome = telemetry.OutcomeNotFound
	case err != nil:
		outcome = telemetry.OutcomeError
	}
	c.observer.ObserveRequest(telemetry.APIMetadata, outcome, time.Since(start))
}

// fetch performs an HTTP GET and returns the response body.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}
