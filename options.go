package gowally

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertocavalcante/go-wally/index"
	"github.com/albertocavalcante/go-wally/internal/telemetry"
	"github.com/albertocavalcante/go-wally/registry"
)

// DefaultRegistry is the public Wally package index.
const DefaultRegistry = "https://github.com/UpliftGames/wally-index"

// Option configures a Resolver or Pool.
type Option func(*config) error

type config struct {
	httpClient        *http.Client
	timeout           time.Duration
	githubURL         string
	branch            string
	token             string
	registry          string
	backgroundRefresh bool
	fallback          bool
	validate          bool
	cacheTTL          time.Duration
	concurrency       int
	registerer        prometheus.Registerer
	tracerProvider    trace.TracerProvider

	// logger is the structured logger for diagnostics. Silent when nil.
	logger *slog.Logger

	metrics *telemetry.Metrics
}

// WithHTTPClient sets the HTTP client for GitHub and metadata API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		c.httpClient = client
		return nil
	}
}

// WithTimeout bounds each metadata API request. There is no timeout by default.
func WithTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.timeout = d
		return nil
	}
}

// WithGitHubBaseURL sets the GitHub REST endpoint, for GitHub Enterprise or tests.
func WithGitHubBaseURL(url string) Option {
	return func(c *config) error {
		c.githubURL = url
		return nil
	}
}

// WithBranch sets the index branch. Defaults to "main".
func WithBranch(branch string) Option {
	return func(c *config) error {
		c.branch = branch
		return nil
	}
}

// WithAuthToken sets the GitHub token used to read the index.
func WithAuthToken(token string) Option {
	return func(c *config) error {
		c.token = token
		return nil
	}
}

// WithRegistry selects the registry of a Resolver at construction.
// Pool ignores it; registries are chosen per call.
func WithRegistry(identifier string) Option {
	return func(c *config) error {
		c.registry = identifier
		return nil
	}
}

// WithBackgroundRefresh controls the config refresh started by registry and
// token changes. Enabled by default.
func WithBackgroundRefresh(enabled bool) Option {
	return func(c *config) error {
		c.backgroundRefresh = enabled
		return nil
	}
}

// WithFallback controls whether Pool consults fallback_registries.
// Enabled by default.
func WithFallback(enabled bool) Option {
	return func(c *config) error {
		c.fallback = enabled
		return nil
	}
}

// WithValidation enables or disables metadata response validation.
func WithValidation(enabled bool) Option {
	return func(c *config) error {
		c.validate = enabled
		return nil
	}
}

// WithCacheTTL expires index caches after ttl. Zero keeps them until invalidated.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) error {
		c.cacheTTL = ttl
		return nil
	}
}

// WithConcurrency bounds how many references Pool.ResolveAll resolves at once.
func WithConcurrency(n int) Option {
	return func(c *config) error {
		c.concurrency = n
		return nil
	}
}

// WithRegisterer registers Prometheus collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) error {
		c.tracerProvider = tp
		return nil
	}
}

// WithLogger sets a structured logger for resolution diagnostics.
// If not set, logging is disabled (silent mode).
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "wally")
//	r, err := gowally.NewResolver(gowally.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

// DefaultConcurrency is the ResolveAll worker limit.
const DefaultConcurrency = 8

func (c *config) validateConfig() error {
	if c.timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.cacheTTL < 0 {
		return errors.New("cache TTL must not be negative")
	}
	if c.concurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	return nil
}

// log returns the configured logger, or a no-op logger if none was set.
func (c *config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

func newConfig(opts ...Option) (*config, error) {
	c := &config{
		backgroundRefresh: true,
		fallback:          true,
		validate:          true,
		concurrency:       DefaultConcurrency,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validateConfig(); err != nil {
		return nil, err
	}
	if c.concurrency == 0 {
		c.concurrency = DefaultConcurrency
	}
	c.metrics = telemetry.NewMetrics(c.registerer)
	return c, nil
}

func (c *config) indexOptions(token string) []index.Option {
	opts := []index.Option{
		index.WithAuthToken(token),
		index.WithBackgroundRefresh(c.backgroundRefresh),
		index.WithCacheTTL(c.cacheTTL),
		index.WithLogger(c.log()),
		index.WithTracer(telemetry.Tracer(c.tracerProvider)),
	}
	if c.httpClient != nil {
		opts = append(opts, index.WithHTTPClient(c.httpClient))
	}
	if c.githubURL != "" {
		opts = append(opts, index.WithBaseURL(c.githubURL))
	}
	if c.branch != "" {
		opts = append(opts, index.WithBranch(c.branch))
	}
	if c.metrics != nil {
		opts = append(opts, index.WithObserver(c.metrics))
	}
	return opts
}

func (c *config) registryOptions() []registry.ClientOption {
	opts := []registry.ClientOption{
		registry.WithValidation(c.validate),
		registry.WithLogger(c.log()),
		registry.WithTracer(telemetry.Tracer(c.tracerProvider)),
	}
	if c.httpClient != nil {
		// Copy so WithTimeout does not mutate the caller's client.
		hc := *c.httpClient
		opts = append(opts, registry.WithHTTPClient(&hc))
	}
	if c.timeout > 0 {
		opts = append(opts, registry.WithTimeout(c.timeout))
	}
	if c.metrics != nil {
		opts = append(opts, registry.WithObserver(c.metrics))
	}
	return opts
}
