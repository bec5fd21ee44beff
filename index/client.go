// Package index reads a Wally registry index stored in a GitHub repository.
//
// The repository root holds one directory per author and a configuration
// file. Each author directory holds one file per package plus owners.json.
// Client lists both levels through the GitHub git tree API, reads the
// configuration through the blob API, and caches all three views until the
// registry or credentials change. With a cache TTL, the config and name
// lists expire together with the tree they were read from.
//
// Lookups never return errors. A failed request is logged and reported as
// absence (ok == false); callers treat that as "registry temporarily
// unusable". Only SetRegistry reports errors, for malformed identifiers.
package index

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertocavalcante/go-wally/internal/cache"
	"github.com/albertocavalcante/go-wally/internal/telemetry"
	"github.com/albertocavalcante/go-wally/label"
	"github.com/albertocavalcante/go-wally/registry"
)

// Errors reported through logs when a lookup comes back empty.
var (
	ErrNoRegistry     = errors.New("no registry selected")
	ErrNoConfigFile   = errors.New("registry tree has no configuration file")
	ErrAuthorNotFound = errors.New("author not found in registry")
)

// Cache names used for metrics.
const (
	cacheTree   = "tree"
	cacheConfig = "config"
	cacheNames  = "names"
)

const (
	keyTree        = "tree"
	keyConfig      = "config"
	keyNamesPrefix = "names/"
)

// Observer receives request and cache measurements. *telemetry.Metrics satisfies it.
type Observer interface {
	ObserveRequest(api, outcome string, d time.Duration)
	ObserveCache(cache string, hit bool)
}

// Client is the tree, config and name index for one registry at a time.
// It is safe for concurrent use.
type Client struct {
	mu         sync.RWMutex
	locator    label.Registry
	token      string
	gh         *github.Client
	generation uint64

	cache     *cache.Store
	refreshes sync.WaitGroup

	cfg    *clientConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// snapshot is the state one lookup runs against.
type snapshot struct {
	locator    label.Registry
	gh         *github.Client
	generation uint64
}

// New creates a Client. Without WithRegistry no registry is selected and
// every lookup reports absence until SetRegistry is called.
func New(opts ...Option) (*Client, error) {
	cfg, err := newClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		token:  cfg.token,
		logger: cfg.logger,
		tracer: cfg.tracer,
		cache:  cache.New("index", cfg.cacheTTL, cfg.logger),
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}

	c.gh, err = c.newGitHub(cfg.token)
	if err != nil {
		return nil, err
	}

	if cfg.registry != "" {
		if err := c.SetRegistry(cfg.registry, false); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) newGitHub(token string) (*github.Client, error) {
	base, err := url.Parse(c.cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
	}
	gh := github.NewClient(c.cfg.httpClient)
	gh.BaseURL = base
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return gh, nil
}

// SetRegistry selects the registry identified by a canonical URL such as
// https://github.com/UpliftGames/wally-index.
//
// Selecting the active registry again keeps the caches unless force is set;
// only the spelling reported by Registry follows the new identifier.
// Otherwise every cache is invalidated and the config is refreshed in the
// background. On error the previous selection is kept.
func (c *Client) SetRegistry(identifier string, force bool) error {
	loc, err := label.ParseRegistry(identifier)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !force && c.locator.Equal(loc) {
		c.locator = loc
		c.mu.Unlock()
		return nil
	}
	c.locator = loc
	c.invalidateLocked()
	c.mu.Unlock()

	c.logger.Info("registry selected", "registry", loc.String(), "force", force)
	c.refreshInBackground()
	return nil
}

// Registry returns the active registry as "owner/repo".
func (c *Client) Registry() (string, bool) {
	loc := c.Locator()
	if loc.IsEmpty() {
		return "", false
	}
	return loc.String(), true
}

// Locator returns the active registry. It is empty when none is selected.
func (c *Client) Locator() label.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locator
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// SetAuthToken replaces the GitHub token used for future requests,
// invalidates every cache and refreshes the config in the background.
// An empty token sends unauthenticated requests.
func (c *Client) SetAuthToken(token string) {
	gh, err := c.newGitHub(token)
	if err != nil {
		// baseURL was validated by New.
		c.logger.Error("rebuilding GitHub client", "error", err)
		return
	}

	c.mu.Lock()
	c.token = token
	c.gh = gh
	c.invalidateLocked()
	c.mu.Unlock()

	c.logger.Info("auth token changed", "authenticated", token != "")
	c.refreshInBackground()
}

// InvalidateAll drops the cached tree, config and every name list at once.
// Fetches that started before the call cannot store their results afterwards.
func (c *Client) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	c.generation++
	c.cache.Flush()
}

// Wait blocks until background refreshes started so far have finished.
func (c *Client) Wait() {
	c.refreshes.Wait()
}

func (c *Client) refreshInBackground() {
	if !c.cfg.backgroundRefresh {
		return
	}
	c.refreshes.Go(func() {
		if _, err := c.config(context.Background(), c.snapshot()); err != nil {
			c.logger.Warn("background config refresh failed", "error", err)
		}
	})
}

func (c *Client) snapshot() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot{locator: c.locator, gh: c.gh, generation: c.generation}
}

// storeTree caches a freshly fetched tree. Entries derived from an older
// tree are dropped and s moves to the new generation, so results computed
// against the previous tree can no longer be stored.
func (c *Client) storeTree(s *snapshot, tree *Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != s.generation {
		c.logger.Debug("discarding stale cache entry", "key", keyTree)
		return
	}
	c.invalidateLocked()
	c.cache.Set(keyTree, tree)
	s.generation = c.generation
}

// store caches a value derived from the cached tree. It expires with the
// tree and is discarded if the caches moved on after s was taken.
func (c *Client) store(s snapshot, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != s.generation {
		c.logger.Debug("discarding stale cache entry", "key", key)
		return
	}
	deadline, ok := c.cache.Expiration(keyTree)
	if !ok {
		c.logger.Debug("discarding entry for expired tree", "key", key)
		return
	}
	c.cache.SetUntil(key, value, deadline)
}

// Tree returns the top-level index tree, fetching it on a cache miss.
func (c *Client) Tree(ctx context.Context) (*Tree, bool) {
	s := c.snapshot()
	tree, err := c.tree(ctx, &s)
	if err != nil {
		c.warn(ctx, "tree", s, err)
		return nil, false
	}
	return tree, true
}

// Config returns the registry configuration, resolving the tree first.
func (c *Client) Config(ctx context.Context) (*registry.Config, bool) {
	s := c.snapshot()
	cfg, err := c.config(ctx, s)
	if err != nil {
		c.warn(ctx, "config", s, err)
		return nil, false
	}
	return cfg, true
}

// APIURL returns the metadata API base URL from the registry configuration.
func (c *Client) APIURL(ctx context.Context) (string, bool) {
	cfg, ok := c.Config(ctx)
	if !ok {
		return "", false
	}
	return cfg.API, true
}

// AuthorNames returns the author directories of the index.
func (c *Client) AuthorNames(ctx context.Context) ([]string, bool) {
	tree, ok := c.Tree(ctx)
	if !ok {
		return nil, false
	}
	return tree.AuthorNames(), true
}

// PackageNames returns the packages published under author. The author is
// matched case-insensitively and results are cached per author until the
// next invalidation.
func (c *Client) PackageNames(ctx context.Context, author string) ([]string, bool) {
	s := c.snapshot()
	names, err := c.packageNames(ctx, s, strings.ToLower(author))
	if err != nil {
		c.warn(ctx, "package names", s, err, "author", author)
		return nil, false
	}
	return names, true
}

// tree returns the cached tree or fetches a new one. A fetched tree replaces
// every cached entry and advances s to the new generation.
func (c *Client) tree(ctx context.Context, s *snapshot) (*Tree, error) {
	if s.locator.IsEmpty() {
		return nil, ErrNoRegistry
	}

	tree, ok := cache.Get[*Tree](c.cache, keyTree)
	c.observeCache(cacheTree, ok)
	if ok {
		return tree, nil
	}

	listing, err := c.getTree(ctx, *s, c.cfg.branch)
	if err != nil {
		return nil, fmt.Errorf("listing %s tree: %w", c.cfg.branch, err)
	}

	tree = newTree(listing)
	c.storeTree(s, tree)
	c.logger.DebugContext(ctx, "fetched registry tree",
		"registry", s.locator.String(),
		"authors", len(tree.Authors),
		"config", tree.Config.Name)
	return tree, nil
}

func (c *Client) config(ctx context.Context, s snapshot) (*registry.Config, error) {
	tree, err := c.tree(ctx, &s)
	if err != nil {
		return nil, err
	}

	cfg, ok := cache.Get[*registry.Config](c.cache, keyConfig)
	c.observeCache(cacheConfig, ok)
	if ok {
		return cfg, nil
	}

	if !tree.HasConfig() {
		return nil, ErrNoConfigFile
	}

	data, err := c.getBlob(ctx, s, tree.Config.SHA)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", tree.Config.Name, err)
	}

	cfg, err = registry.ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", tree.Config.Name, err)
	}

	c.store(s, keyConfig, cfg)
	c.logger.DebugContext(ctx, "fetched registry config",
		"registry", s.locator.String(),
		"api", cfg.API)
	return cfg, nil
}

func (c *Client) packageNames(ctx context.Context, s snapshot, author string) ([]string, error) {
	key := keyNamesPrefix + author

	names, ok := cache.Get[[]string](c.cache, key)
	c.observeCache(cacheNames, ok)
	if ok {
		return names, nil
	}

	tree, err := c.tree(ctx, &s)
	if err != nil {
		return nil, err
	}

	entry, ok := tree.FindAuthor(author)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthorNotFound, author)
	}

	listing, err := c.getTree(ctx, s, entry.SHA)
	if err != nil {
		return nil, fmt.Errorf("listing author %s: %w", entry.Name, err)
	}

	names = packageNames(listing)
	c.store(s, key, names)
	return names, nil
}

func (c *Client) getTree(ctx context.Context, s snapshot, sha string) (_ *github.Tree, err error) {
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "index.tree",
		attribute.String("wally.registry", s.locator.String()),
		attribute.String("git.sha", sha),
	)
	start := time.Now()
	defer func() {
		c.observeRequest(telemetry.APITree, start, err)
		telemetry.EndSpan(span, err)
	}()

	tree, _, err := s.gh.Git.GetTree(ctx, s.locator.Owner(), s.locator.Repo(), sha, false)
	return tree, err
}

func (c *Client) getBlob(ctx context.Context, s snapshot, sha string) (_ []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "index.blob",
		attribute.String("wally.registry", s.locator.String()),
		attribute.String("git.sha", sha),
	)
	start := time.Now()
	defer func() {
		c.observeRequest(telemetry.APIBlob, start, err)
		telemetry.EndSpan(span, err)
	}()

	blob, _, err := s.gh.Git.GetBlob(ctx, s.locator.Owner(), s.locator.Repo(), sha)
	if err != nil {
		return nil, err
	}
	return decodeBlob(blob)
}

// decodeBlob returns the raw bytes of a blob. GitHub wraps base64 content
// at 60 columns.
func decodeBlob(b *github.Blob) ([]byte, error) {
	switch enc := strings.ToLower(b.GetEncoding()); enc {
	case "base64", "":
		cleaned := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, b.GetContent())
		return base64.StdEncoding.DecodeString(cleaned)
	case "utf-8", "utf8":
		return []byte(b.GetContent()), nil
	default:
		return nil, fmt.Errorf("unsupported blob encoding %q", enc)
	}
}

func (c *Client) warn(ctx context.Context, step string, s snapshot, err error, attrs ...any) {
	args := append([]any{"step", step, "registry", s.locator.String(), "error", err}, attrs...)
	c.logger.WarnContext(ctx, "registry lookup failed", args...)
}

func (c *Client) observeRequest(api string, start time.Time, err error) {
	if c.cfg.observer == nil {
		return
	}
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeError
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			outcome = telemetry.OutcomeNotFound
		}
	}
	c.cfg.observer.ObserveRequest(api, outcome, time.Since(start))
}

func (c *Client) observeCache(name string, hit bool) {
	if c.cfg.observer == nil {
		return
	}
	c.cfg.observer.ObserveCache(name, hit)
}
