package index

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com/"

// DefaultBranch is the branch whose tree lists the index.
const DefaultBranch = "main"

// Option configures a Client.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient        *http.Client
	baseURL           string
	branch            string
	token             string
	registry          string
	backgroundRefresh bool
	cacheTTL          time.Duration
	logger            *slog.Logger
	tracer            trace.Tracer
	observer          Observer
}

// WithHTTPClient sets the HTTP client used for GitHub requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) error {
		c.httpClient = client
		return nil
	}
}

// WithBaseURL points the client at a GitHub-compatible API, such as a
// GitHub Enterprise server or a test fake.
func WithBaseURL(rawURL string) Option {
	return func(c *clientConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", rawURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid GitHub API URL %q: must be absolute", rawURL)
		}
		c.baseURL = rawURL
		return nil
	}
}

// WithBranch sets the branch whose tree is listed. Defaults to "main".
func WithBranch(branch string) Option {
	return func(c *clientConfig) error {
		c.branch = branch
		return nil
	}
}

// WithAuthToken sets the initial GitHub token.
func WithAuthToken(token string) Option {
	return func(c *clientConfig) error {
		c.token = token
		return nil
	}
}

// WithRegistry selects a registry at construction time.
func WithRegistry(identifier string) Option {
	return func(c *clientConfig) error {
		c.registry = identifier
		return nil
	}
}

// WithBackgroundRefresh controls whether a registry or token change starts a
// config refresh in the background. Enabled by default.
func WithBackgroundRefresh(enabled bool) Option {
	return func(c *clientConfig) error {
		c.backgroundRefresh = enabled
		return nil
	}
}

// WithCacheTTL expires the cached tree ttl after it was fetched. Configs
// and name lists expire with the tree. Zero keeps them until the next
// invalidation.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *clientConfig) error {
		c.cacheTTL = ttl
		return nil
	}
}

// WithLogger sets a structured logger. If not set, logging is disabled.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) error {
		c.logger = l
		return nil
	}
}

// WithTracer sets the tracer for GitHub API spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *clientConfig) error {
		c.tracer = t
		return nil
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *clientConfig) error {
		c.observer = o
		return nil
	}
}

func (c *clientConfig) validate() error {
	if strings.TrimSpace(c.branch) == "" {
		return errors.New("branch must not be empty")
	}
	if c.cacheTTL < 0 {
		return errors.New("cache TTL must not be negative")
	}
	return nil
}

func newClientConfig(opts ...Option) (*clientConfig, error) {
	c := &clientConfig{
		baseURL:           DefaultGitHubAPI,
		branch:            DefaultBranch,
		backgroundRefresh: true,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}
