package label

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPackageRef indicates a package reference that could not be parsed.
var ErrInvalidPackageRef = errors.New("invalid package reference")

var (
	packagePartRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	constraintRegex  = regexp.MustCompile(`^[0-9A-Za-z.*+\-,<>=^~|! ]+$`)
)

// PackageRef names a package in a registry along with an optional version constraint.
// The textual form is "author/name" or "author/name@constraint".
type PackageRef struct {
	author     string
	name       string
	constraint string
}

// NewPackageRef creates a validated PackageRef from its components.
func NewPackageRef(author, name, constraint string) (PackageRef, error) {
	if author == "" {
		return PackageRef{}, fmt.Errorf("package author cannot be empty")
	}
	if !packagePartRegex.MatchString(author) {
		return PackageRef{}, fmt.Errorf("invalid package author %q: must match pattern [A-Za-z0-9_-]+", author)
	}
	if name == "" {
		return PackageRef{}, fmt.Errorf("package name cannot be empty")
	}
	if !packagePartRegex.MatchString(name) {
		return PackageRef{}, fmt.Errorf("invalid package name %q: must match pattern [A-Za-z0-9_-]+", name)
	}
	constraint = strings.TrimSpace(constraint)
	if constraint != "" && !constraintRegex.MatchString(constraint) {
		return PackageRef{}, fmt.Errorf("invalid version constraint %q", constraint)
	}
	return PackageRef{author: author, name: name, constraint: constraint}, nil
}

// ParsePackageRef parses "author/name" or "author/name@constraint".
func ParsePackageRef(s string) (PackageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PackageRef{}, fmt.Errorf("%w: empty", ErrInvalidPackageRef)
	}

	spec, constraint, hasConstraint := strings.Cut(s, "@")
	if hasConstraint && strings.TrimSpace(constraint) == "" {
		return PackageRef{}, fmt.Errorf("%w %q: empty constraint after '@'", ErrInvalidPackageRef, s)
	}

	author, name, ok := strings.Cut(spec, "/")
	if !ok {
		return PackageRef{}, fmt.Errorf("%w %q: expected author/name", ErrInvalidPackageRef, s)
	}

	ref, err := NewPackageRef(author, name, constraint)
	if err != nil {
		return PackageRef{}, fmt.Errorf("%w %q: %w", ErrInvalidPackageRef, s, err)
	}
	return ref, nil
}

// MustPackageRef parses a PackageRef or panics. Use only for constants/tests.
func MustPackageRef(s string) PackageRef {
	ref, err := ParsePackageRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// Author returns the scope the package is published under.
func (p PackageRef) Author() string {
	return p.author
}

// Name returns the package name.
func (p PackageRef) Name() string {
	return p.name
}

// Constraint returns the version constraint, or "" if none was given.
func (p PackageRef) Constraint() string {
	return p.constraint
}

// HasConstraint returns true if a version constraint was given.
func (p PackageRef) HasConstraint() bool {
	return p.constraint != ""
}

// WithConstraint returns a copy of p with the constraint replaced.
func (p PackageRef) WithConstraint(constraint string) PackageRef {
	p.constraint = strings.TrimSpace(constraint)
	return p
}

// FullName returns "author/name".
func (p PackageRef) FullName() string {
	return p.author + "/" + p.name
}

// Key returns the case-normalized "author/name".
func (p PackageRef) Key() string {
	return strings.ToLower(p.FullName())
}

// String returns the textual form of the reference.
func (p PackageRef) String() string {
	if p.constraint == "" {
		return p.FullName()
	}
	return p.FullName() + "@" + p.constraint
}

// IsEmpty returns true if this is a zero-value PackageRef.
func (p PackageRef) IsEmpty() bool {
	return p.author == "" && p.name == ""
}
