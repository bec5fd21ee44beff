package gowally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/albertocavalcante/go-wally/index"
	"github.com/albertocavalcante/go-wally/internal/telemetry"
	"github.com/albertocavalcante/go-wally/label"
	"github.com/albertocavalcante/go-wally/registry"
	"github.com/albertocavalcante/go-wally/version"
)

// Resolver resolves version constraints against one registry.
//
// The registry index (authors, packages and the metadata API location) is
// cached by the underlying index.Client. Version lists are fetched fresh on
// every call, since they change whenever a release is published.
//
// Lookups report failures as absence (ok == false) and log the cause.
type Resolver struct {
	index    *index.Client
	registry *registry.Client
	cfg      *config
	logger   *slog.Logger
}

// NewResolver creates a Resolver. Use WithRegistry or SetRegistry to select
// the registry; DefaultRegistry is a good default.
func NewResolver(opts ...Option) (*Resolver, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newResolver(cfg, cfg.registry, cfg.token)
}

func newResolver(cfg *config, identifier, token string) (*Resolver, error) {
	idxOpts := cfg.indexOptions(token)
	if identifier != "" {
		idxOpts = append(idxOpts, index.WithRegistry(identifier))
	}
	idx, err := index.New(idxOpts...)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		index:    idx,
		registry: registry.NewClient(cfg.registryOptions()...),
		cfg:      cfg,
		logger:   cfg.log(),
	}, nil
}

// Index returns the underlying index client.
func (r *Resolver) Index() *index.Client {
	return r.index
}

// SetRegistry selects the registry. See index.Client.SetRegistry.
func (r *Resolver) SetRegistry(identifier string, force bool) error {
	return r.index.SetRegistry(identifier, force)
}

// Registry returns the active registry as "owner/repo".
func (r *Resolver) Registry() (string, bool) {
	return r.index.Registry()
}

// SetAuthToken replaces the GitHub token and invalidates the index caches.
func (r *Resolver) SetAuthToken(token string) {
	r.index.SetAuthToken(token)
}

// PackageAuthors returns the authors published in the registry.
func (r *Resolver) PackageAuthors(ctx context.Context) ([]string, bool) {
	return r.index.AuthorNames(ctx)
}

// PackageNames returns the packages published by author.
func (r *Resolver) PackageNames(ctx context.Context, author string) ([]string, bool) {
	return r.index.PackageNames(ctx, author)
}

// Wait blocks until background index refreshes have finished.
func (r *Resolver) Wait() {
	r.index.Wait()
}

// PackageVersions returns every published version of author/name, newest first.
func (r *Resolver) PackageVersions(ctx context.Context, author, name string) ([]string, bool) {
	metadata, err := r.metadata(ctx, author, name)
	if err != nil {
		r.logFailure(ctx, "package versions", author, name, err)
		return nil, false
	}
	return sortedVersions(metadata), true
}

// LatestCompatibleVersion returns the newest version of author/name that
// satisfies constraint. A bare version such as "1.2.0" must match exactly;
// "^1.2.0" accepts any 1.x at or above 1.2.0, and "^0.1.0" any 0.1.x.
func (r *Resolver) LatestCompatibleVersion(ctx context.Context, author, name, constraint string) (string, bool) {
	metadata, err := r.metadata(ctx, author, name)
	if err != nil {
		r.logFailure(ctx, "latest compatible version", author, name, err)
		r.observeResolution(err)
		return "", false
	}

	v, err := pickVersion(metadata, constraint)
	r.observeResolution(err)
	if err != nil {
		r.logFailure(ctx, "latest compatible version", author, name, err, "constraint", constraint)
		return "", false
	}
	return v, true
}

// FullPackageInfo returns the published record of one version of author/name.
func (r *Resolver) FullPackageInfo(ctx context.Context, author, name, v string) (*registry.PackageInfo, bool) {
	metadata, err := r.metadata(ctx, author, name)
	if err != nil {
		r.logFailure(ctx, "package info", author, name, err)
		return nil, false
	}

	info, err := r.selectInfo(metadata, author, name, v)
	if err != nil {
		r.logFailure(ctx, "package info", author, name, err, "version", v)
		return nil, false
	}
	return info, true
}

// Resolve picks the newest version matching ref's constraint and returns its
// full record. A reference without a constraint resolves to the newest
// stable release.
func (r *Resolver) Resolve(ctx context.Context, ref label.PackageRef) (*registry.PackageInfo, bool) {
	res, err := r.resolve(ctx, ref)
	if err != nil {
		r.logFailure(ctx, "resolve", ref.Author(), ref.Name(), err, "constraint", ref.Constraint())
		return nil, false
	}
	return res.Info, true
}

// resolve lists versions, picks one and selects its record from the same
// metadata document.
func (r *Resolver) resolve(ctx context.Context, ref label.PackageRef) (*Resolution, error) {
	metadata, err := r.metadata(ctx, ref.Author(), ref.Name())
	if err != nil {
		r.observeResolution(err)
		return nil, err
	}
	return r.resolveFrom(metadata, ref)
}

func (r *Resolver) resolveFrom(metadata *registry.Metadata, ref label.PackageRef) (*Resolution, error) {
	constraint := ref.Constraint()
	if constraint == "" {
		constraint = "*"
	}

	v, err := pickVersion(metadata, constraint)
	r.observeResolution(err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}

	info, err := r.selectInfo(metadata, ref.Author(), ref.Name(), v)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Author:     ref.Author(),
		Name:       ref.Name(),
		Constraint: ref.Constraint(),
		Version:    v,
		Registry:   r.index.Locator().URL(),
		Info:       info,
	}, nil
}

// metadata runs the tree → config → metadata pipeline.
func (r *Resolver) metadata(ctx context.Context, author, name string) (*registry.Metadata, error) {
	api, ok := r.index.APIURL(ctx)
	if !ok {
		return nil, ErrRegistryUnavailable
	}

	metadata, err := r.registry.GetMetadata(ctx, api, author, name)
	if err != nil {
		if registry.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrPackageNotFound, author, name, err)
		}
		return nil, err
	}
	return metadata, nil
}

func (r *Resolver) selectInfo(metadata *registry.Metadata, author, name, v string) (*registry.PackageInfo, error) {
	pv, ok := metadata.Find(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s@%s", ErrVersionNotFound, author, name, v)
	}
	return &registry.PackageInfo{
		PackageVersion: *pv,
		SourceRegistry: r.index.Locator().URL(),
	}, nil
}

func sortedVersions(metadata *registry.Metadata) []string {
	versions := metadata.VersionStrings()
	version.SortDescending(versions)
	return versions
}

func pickVersion(metadata *registry.Metadata, constraint string) (string, error) {
	v, ok, err := version.FirstMatch(sortedVersions(metadata), constraint)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w for %q", ErrNoCompatibleVersion, constraint)
	}
	return v, nil
}

func (r *Resolver) observeResolution(err error) {
	r.cfg.metrics.ObserveResolution(resolutionOutcome(err))
}

func resolutionOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, ErrPackageNotFound), errors.Is(err, ErrNoCompatibleVersion):
		return telemetry.OutcomeNotFound
	}
	return telemetry.OutcomeError
}

func (r *Resolver) logFailure(ctx context.Context, step, author, name string, err error, attrs ...any) {
	registryName, _ := r.index.Registry()
	args := append([]any{
		"step", step,
		"registry", registryName,
		"package", author + "/" + name,
		"error", err,
	}, attrs...)
	r.logger.WarnContext(ctx, "resolution failed", args...)
}
