// Package label provides strongly-typed, validated identifiers for Wally registries and packages.
//
// All types in this package are immutable and validate their values at construction time.
// Zero values are invalid (or "unset") - use the constructor functions (ParseRegistry,
// ParsePackageRef) to create valid instances.
//
// # Types
//
//   - [Registry]: a GitHub-backed registry locator (e.g., "UpliftGames/wally-index")
//   - [PackageRef]: a package reference with an optional constraint (e.g., "roblox/roact@^1.4.0")
//
// # Validation Patterns
//
// Registry identifiers must look like: https://github.com/<owner>/<repo>
// Owners must match: [A-Za-z0-9-]+
// Repositories must match: [A-Za-z0-9_.-]+
// Package scopes and names must match: [A-Za-z0-9_-]+
package label

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// GitHubBaseURL is the only hosting prefix accepted for registry identifiers.
const GitHubBaseURL = "https://github.com/"

var (
	// ErrInvalidRegistry indicates the identifier does not start with GitHubBaseURL.
	ErrInvalidRegistry = errors.New("invalid registry")

	// ErrUnsupportedRegistry indicates the identifier is a GitHub URL that is not
	// of the form <owner>/<repo>.
	ErrUnsupportedRegistry = errors.New("unsupported registry")
)

// RegistryError reports a registry identifier that was rejected.
type RegistryError struct {
	Identifier string
	Err        error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Identifier)
}

// Unwrap returns the sentinel error for errors.Is compatibility.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

var ownerRepoRegex = regexp.MustCompile(`^([A-Za-z0-9-]+)/([A-Za-z0-9_.-]+)$`)

// Registry identifies a GitHub repository used as a package index.
type Registry struct {
	owner string
	repo  string
}

// ParseRegistry parses a canonical registry URL of the form https://github.com/<owner>/<repo>.
// A trailing slash or ".git" suffix is tolerated. Anything else is rejected whole.
func ParseRegistry(identifier string) (Registry, error) {
	if !strings.HasPrefix(identifier, GitHubBaseURL) {
		return Registry{}, &RegistryError{Identifier: identifier, Err: ErrInvalidRegistry}
	}

	stripped := strings.TrimPrefix(identifier, GitHubBaseURL)
	stripped = strings.TrimSuffix(stripped, "/")
	stripped = strings.TrimSuffix(stripped, ".git")

	matches := ownerRepoRegex.FindStringSubmatch(stripped)
	if matches == nil || matches[2] == "." || matches[2] == ".." {
		return Registry{}, &RegistryError{Identifier: identifier, Err: ErrUnsupportedRegistry}
	}

	return Registry{owner: matches[1], repo: matches[2]}, nil
}

// MustRegistry parses a Registry or panics. Use only for constants/tests.
func MustRegistry(identifier string) Registry {
	r, err := ParseRegistry(identifier)
	if err != nil {
		panic(err)
	}
	return r
}

// Owner returns the GitHub user or organization.
func (r Registry) Owner() string {
	return r.owner
}

// Repo returns the repository name.
func (r Registry) Repo() string {
	return r.repo
}

// String returns "owner/repo", or "" for the zero value.
func (r Registry) String() string {
	if r.IsEmpty() {
		return ""
	}
	return r.owner + "/" + r.repo
}

// URL returns the canonical registry URL.
func (r Registry) URL() string {
	if r.IsEmpty() {
		return ""
	}
	return GitHubBaseURL + r.String()
}

// Key returns a case-normalized identity suitable for map keys.
// GitHub treats owner and repository names case-insensitively.
func (r Registry) Key() string {
	return strings.ToLower(r.String())
}

// IsEmpty returns true if this is a zero-value Registry.
func (r Registry) IsEmpty() bool {
	return r.owner == "" || r.repo == ""
}

// Equal reports whether both locators name the same repository.
func (r Registry) Equal(other Registry) bool {
	return strings.EqualFold(r.owner, other.owner) && strings.EqualFold(r.repo, other.repo)
}
