// Package gowally resolves Wally package references against Git-backed
// package registries.
//
// A Wally registry is a GitHub repository that acts as the package index:
// one directory per author, one file per package, and a configuration file
// naming the registry's metadata API. Resolving "author/name@constraint"
// means reading the index to find that API, fetching the published version
// list, and picking the newest version that satisfies the constraint.
//
// # Overview
//
// The package provides two main components:
//
//   - Resolver: resolves against one registry, with cached index lookups
//   - Pool: one Resolver per registry, with fallback_registries support
//
// # Quick Start
//
//	res, err := gowally.Resolve(ctx, "roblox/roact@^1.4.0")
//	fmt.Println(res.Version, res.Info.Package.License)
//
//	r, err := gowally.NewResolver(gowally.WithRegistry(gowally.DefaultRegistry))
//	versions, ok := r.PackageVersions(ctx, "roblox", "roact")
//
// # Constraints
//
// Constraints use semantic versioning. "^1.2.0" accepts any 1.x release at or
// above 1.2.0; below 1.0.0 the caret is minor-sensitive, so "^0.1.0" accepts
// only 0.1.x. A bare version requires an exact match. Pre-releases are
// selected only by constraints that name one.
//
// # Thread Safety
//
// All public types in this package are safe for concurrent use.
package gowally

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/go-wally/label"
	"github.com/albertocavalcante/go-wally/registry"
)

// Resolution is the outcome of resolving one package reference.
type Resolution struct {
	Author     string `json:"author" yaml:"author"`
	Name       string `json:"name" yaml:"name"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
	Version    string `json:"version" yaml:"version"`

	// Registry is the canonical URL of the registry that served the package.
	Registry string `json:"registry" yaml:"registry"`

	// Fallback is true when Registry is not the registry that was asked.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`

	Info *registry.PackageInfo `json:"info,omitempty" yaml:"info,omitempty"`
}

// Ref returns the reference pinned to the resolved version.
func (r *Resolution) Ref() string {
	return fmt.Sprintf("%s/%s@%s", r.Author, r.Name, r.Version)
}

// Resolve resolves a reference such as "roblox/roact@^1.4.0" against
// DefaultRegistry and its fallbacks.
//
// This is the recommended entry point for one-off lookups. Long-lived callers
// should keep a Pool so index caches are reused.
func Resolve(ctx context.Context, ref string, opts ...Option) (*Resolution, error) {
	return ResolveIn(ctx, DefaultRegistry, ref, opts...)
}

// ResolveIn resolves a reference against the given registry and its fallbacks.
func ResolveIn(ctx context.Context, identifier, ref string, opts ...Option) (*Resolution, error) {
	pkg, err := label.ParsePackageRef(ref)
	if err != nil {
		return nil, err
	}

	// The lookup below reads the config right away.
	pool, err := NewPool(append([]Option{WithBackgroundRefresh(false)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return pool.Resolve(ctx, identifier, pkg)
}
