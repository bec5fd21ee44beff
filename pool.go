package gowally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-wally/label"
	"github.com/albertocavalcante/go-wally/registry"
)

// Pool keeps one Resolver per registry and resolves with fallback.
//
// When the requested registry cannot serve a package, the registries listed
// in its config's fallback_registries are tried, breadth first, each at most
// once. The first registry that returns a version list is remembered and
// used for every later lookup of that package from the same starting
// registry, until it fails and the chain is walked again.
type Pool struct {
	cfg    *config
	logger *slog.Logger

	mu        sync.Mutex
	resolvers map[string]*Resolver // keyed by label.Registry.Key()
	token     string

	// served tracks which registry provides each package, keyed by
	// "<start registry key>|<author/name>".
	served   map[string]string
	servedMu sync.RWMutex
}

// NewPool creates an empty pool. Resolvers are created on first use.
func NewPool(opts ...Option) (*Pool, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{
		cfg:       cfg,
		logger:    cfg.log(),
		resolvers: make(map[string]*Resolver),
		token:     cfg.token,
		served:    make(map[string]string),
	}, nil
}

// Resolver returns the Resolver for identifier, creating it if needed.
// Identifiers that differ only in case share a Resolver.
func (p *Pool) Resolver(identifier string) (*Resolver, error) {
	loc, err := label.ParseRegistry(identifier)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.resolvers[loc.Key()]; ok {
		return r, nil
	}

	r, err := newResolver(p.cfg, loc.URL(), p.token)
	if err != nil {
		return nil, err
	}
	p.resolvers[loc.Key()] = r
	p.logger.Debug("created resolver", "registry", loc.String())
	return r, nil
}

// Registries returns the canonical URLs of every registry in the pool, sorted.
func (p *Pool) Registries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	urls := make([]string, 0, len(p.resolvers))
	for _, r := range p.resolvers {
		urls = append(urls, r.index.Locator().URL())
	}
	sort.Strings(urls)
	return urls
}

// SetAuthToken replaces the GitHub token of every current and future Resolver.
func (p *Pool) SetAuthToken(token string) {
	p.mu.Lock()
	p.token = token
	resolvers := make([]*Resolver, 0, len(p.resolvers))
	for _, r := range p.resolvers {
		resolvers = append(resolvers, r)
	}
	p.mu.Unlock()

	for _, r := range resolvers {
		r.SetAuthToken(token)
	}
}

// Wait blocks until background refreshes of every Resolver have finished.
func (p *Pool) Wait() {
	p.mu.Lock()
	resolvers := make([]*Resolver, 0, len(p.resolvers))
	for _, r := range p.resolvers {
		resolvers = append(resolvers, r)
	}
	p.mu.Unlock()

	for _, r := range resolvers {
		r.Wait()
	}
}

// Versions returns the published versions of author/name, newest first, and
// the canonical URL of the registry that served them.
func (p *Pool) Versions(ctx context.Context, identifier, author, name string) ([]string, string, error) {
	r, metadata, err := p.lookup(ctx, identifier, author, name)
	if err != nil {
		return nil, "", err
	}
	return sortedVersions(metadata), r.index.Locator().URL(), nil
}

// Info returns the published record of one version of author/name.
func (p *Pool) Info(ctx context.Context, identifier, author, name, v string) (*registry.PackageInfo, error) {
	r, metadata, err := p.lookup(ctx, identifier, author, name)
	if err != nil {
		return nil, err
	}
	return r.selectInfo(metadata, author, name, v)
}

// Resolve resolves ref starting at the registry identified by identifier.
func (p *Pool) Resolve(ctx context.Context, identifier string, ref label.PackageRef) (*Resolution, error) {
	start, err := label.ParseRegistry(identifier)
	if err != nil {
		return nil, err
	}

	r, metadata, err := p.lookup(ctx, identifier, ref.Author(), ref.Name())
	if err != nil {
		p.cfg.metrics.ObserveResolution(resolutionOutcome(err))
		return nil, err
	}

	res, err := r.resolveFrom(metadata, ref)
	if err != nil {
		return nil, err
	}
	res.Fallback = !r.index.Locator().Equal(start)
	return res, nil
}

// Result pairs a reference with its resolution or error.
type Result struct {
	Ref        label.PackageRef
	Resolution *Resolution
	Err        error
}

// ResolveAll resolves refs concurrently, at most WithConcurrency at a time.
// Results are returned in input order; per-reference failures are reported
// in Result.Err. The returned error is non-nil only for an invalid
// identifier or a cancelled context.
func (p *Pool) ResolveAll(ctx context.Context, identifier string, refs []label.PackageRef) ([]Result, error) {
	if _, err := p.Resolver(identifier); err != nil {
		return nil, err
	}

	results := make([]Result, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.concurrency)

	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Ref: ref, Err: err}
				return err
			}
			res, err := p.Resolve(ctx, identifier, ref)
			results[i] = Result{Ref: ref, Resolution: res, Err: err}
			return nil
		})
	}

	return results, g.Wait()
}

// lookup walks the fallback chain starting at identifier until a registry
// returns metadata for author/name.
func (p *Pool) lookup(ctx context.Context, identifier, author, name string) (*Resolver, *registry.Metadata, error) {
	primary, err := p.Resolver(identifier)
	if err != nil {
		return nil, nil, err
	}
	startKey := primary.index.Locator().Key()
	key := startKey + "|" + strings.ToLower(author+"/"+name)

	// A fallback already known to serve this package is asked directly.
	// When it fails, the chain is walked again from the primary.
	if servedBy, ok := p.servedBy(key); ok {
		if r, err := p.Resolver(servedBy); err == nil {
			if metadata, err := r.metadata(ctx, author, name); err == nil {
				return r, metadata, nil
			}
		}
		p.forget(key)
		p.logger.DebugContext(ctx, "remembered registry failed, walking fallback chain",
			"package", author+"/"+name,
			"registry", servedBy)
	}

	queue := []*Resolver{primary}
	visited := map[string]bool{startKey: true}
	var errs []error

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		loc := r.index.Locator()

		metadata, err := r.metadata(ctx, author, name)
		if err == nil {
			if loc.Key() != startKey {
				p.remember(key, loc.URL())
				p.logger.InfoContext(ctx, "package served by fallback registry",
					"package", author+"/"+name,
					"registry", loc.String(),
					"requested", primary.index.Locator().String())
			}
			return r, metadata, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", loc.String(), err))

		if !p.cfg.fallback || ctx.Err() != nil {
			break
		}

		cfg, ok := r.index.Config(ctx)
		if !ok {
			continue
		}
		for _, fb := range cfg.FallbackRegistries {
			fbLoc, err := label.ParseRegistry(fb)
			if err != nil {
				p.logger.WarnContext(ctx, "skipping fallback registry", "registry", loc.String(), "fallback", fb, "error", err)
				continue
			}
			if visited[fbLoc.Key()] {
				continue
			}
			visited[fbLoc.Key()] = true

			next, err := p.Resolver(fbLoc.URL())
			if err != nil {
				p.logger.WarnContext(ctx, "skipping fallback registry", "fallback", fb, "error", err)
				continue
			}
			queue = append(queue, next)
		}
	}

	if len(errs) == 1 {
		return nil, nil, errs[0]
	}
	return nil, nil, fmt.Errorf("%s/%s not found in any registry: %w", author, name, errors.Join(errs...))
}

func (p *Pool) servedBy(key string) (string, bool) {
	p.servedMu.RLock()
	defer p.servedMu.RUnlock()
	url, ok := p.served[key]
	return url, ok
}

func (p *Pool) remember(key, url string) {
	p.servedMu.Lock()
	defer p.servedMu.Unlock()
	if _, exists := p.served[key]; !exists {
		p.served[key] = url
	}
}

func (p *Pool) forget(key string) {
	p.servedMu.Lock()
	defer p.servedMu.Unlock()
	delete(p.served, key)
}
