package registry

import (
	"strings"

	"github.com/albertocavalcante/go-wally/version"
)

// Realm classifies where a package version is meant to run.
type Realm string

// Known realms.
const (
	RealmShared Realm = "shared"
	RealmServer Realm = "server"
	RealmDev    Realm = "dev"
)

// IsKnown returns true for the realms Wally defines.
func (r Realm) IsKnown() bool {
	switch r {
	case RealmShared, RealmServer, RealmDev:
		return true
	}
	return false
}

// Config represents the registry configuration file at the root of the index repository.
type Config struct {
	// API is the base URL of the registry metadata API.
	API string `json:"api" yaml:"api"`

	// GitHubOAuthID is the OAuth application used by the registry for publishing.
	GitHubOAuthID string `json:"github_oauth_id" yaml:"github_oauth_id"`

	// FallbackRegistries lists other registry URLs consulted when a package
	// is not found in this one.
	FallbackRegistries []string `json:"fallback_registries,omitempty" yaml:"fallback_registries,omitempty"`
}

// Package describes the [package] section of a published manifest.
type Package struct {
	// Name is the scoped package name, "author/name".
	Name string `json:"name" yaml:"name"`

	// Version is the semantic version of this release.
	Version string `json:"version" yaml:"version"`

	// Registry is the canonical URL of the registry the package was published to.
	Registry string `json:"registry" yaml:"registry"`

	// Realm is "shared", "server" or "dev".
	Realm Realm `json:"realm" yaml:"realm"`

	// Description is optional free text.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// License is an optional SPDX identifier.
	License string `json:"license,omitempty" yaml:"license,omitempty"`

	// Authors lists author strings, e.g. "Jane Doe <jane@example.com>".
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`
}

// PackageVersion is one published release and its dependency declarations.
// Each dependency map goes from alias to "author/name@constraint".
type PackageVersion struct {
	Package            Package           `json:"package" yaml:"package"`
	Dependencies       map[string]string `json:"dependencies" yaml:"dependencies"`
	ServerDependencies map[string]string `json:"server-dependencies" yaml:"server-dependencies"`
	DevDependencies    map[string]string `json:"dev-dependencies" yaml:"dev-dependencies"`
}

// Version returns the release's version string.
func (v *PackageVersion) Version() string {
	return v.Package.Version
}

// Author returns the scope portion of the package name.
func (v *PackageVersion) Author() string {
	author, _, _ := strings.Cut(v.Package.Name, "/")
	return author
}

// ShortName returns the package name without its scope.
func (v *PackageVersion) ShortName() string {
	_, name, ok := strings.Cut(v.Package.Name, "/")
	if !ok {
		return v.Package.Name
	}
	return name
}

// PackageInfo is a PackageVersion plus the registry that served it.
// It is only built for the version a caller actually selected.
type PackageInfo struct {
	PackageVersion `yaml:",inline"`

	// SourceRegistry is the canonical URL of the registry the record was fetched from.
	SourceRegistry string `json:"source_registry" yaml:"source_registry"`
}

// HasAuthors returns true if the manifest lists any authors.
func (i *PackageInfo) HasAuthors() bool {
	return len(i.Package.Authors) > 0
}

// Metadata is the package-metadata document returned by the registry API.
type Metadata struct {
	Versions []PackageVersion `json:"versions" yaml:"versions"`
}

// VersionStrings returns the version of every entry, in document order.
func (m *Metadata) VersionStrings() []string {
	result := make([]string, 0, len(m.Versions))
	for i := range m.Versions {
		result = append(result, m.Versions[i].Package.Version)
	}
	return result
}

// HasVersion returns true if the given version exists in the document.
func (m *Metadata) HasVersion(v string) bool {
	_, ok := m.Find(v)
	return ok
}

// Find returns the entry for v. An exact string match wins over a
// semver-equal one (for example "v1.0.0" and "1.0.0").
func (m *Metadata) Find(v string) (*PackageVersion, bool) {
	for i := range m.Versions {
		if m.Versions[i].Package.Version == v {
			return &m.Versions[i], true
		}
	}
	for i := range m.Versions {
		if version.Equal(m.Versions[i].Package.Version, v) {
			return &m.Versions[i], true
		}
	}
	return nil, false
}

// LatestVersion returns the highest version in the document.
// Returns empty string if no versions are available.
func (m *Metadata) LatestVersion() string {
	latest := ""
	for i := range m.Versions {
		v := m.Versions[i].Package.Version
		if latest == "" || version.Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}
