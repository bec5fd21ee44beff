// Package version implements semantic version ordering and constraint matching
// for Wally package versions.
//
// Version format: MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]
//   - PRERELEASE versions sort BEFORE the release they precede
//   - BUILD metadata is ignored for comparison purposes
//
// Constraint syntax follows the usual semver conventions:
//   - "^1.2.0" permits >=1.2.0 <2.0.0
//   - "^0.1.0" permits >=0.1.0 <0.2.0 (minor-sensitive below 1.0.0)
//   - "1.2.0" with no operator requires exactly 1.2.0 ("1.2" means 1.2.0)
//   - ranges such as ">=1.0.0, <2.0.0" are also accepted
package version

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseError represents a version or constraint parsing error.
type ParseError struct {
	Input   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return "bad version " + e.Input + ": " + e.Message
}

// Unwrap returns the underlying semver error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse parses a version string.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, &ParseError{Input: s, Message: "does not match version pattern", Err: err}
	}
	return v, nil
}

// ParseConstraint parses a version constraint. A version written without an
// operator matches only itself; missing components are zero, so "1.2"
// means exactly 1.2.0.
func ParseConstraint(s string) (*semver.Constraints, error) {
	expr := strings.TrimSpace(s)
	if v, ok := plainVersion(expr); ok {
		expr = exactConstraint(v)
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, &ParseError{Input: s, Message: "is not a valid constraint", Err: err}
	}
	return c, nil
}

// plainVersion parses s when it is a bare version with no operator.
func plainVersion(s string) (*semver.Version, bool) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func exactConstraint(v *semver.Version) string {
	expr := fmt.Sprintf("=%d.%d.%d", v.Major(), v.Minor(), v.Patch())
	if pre := v.Prerelease(); pre != "" {
		expr += "-" + pre
	}
	return expr
}

// Compare compares two version strings.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
//
// Order:
//  1. Unparseable versions sort BEFORE every valid version
//  2. Valid versions compare by semver precedence
//  3. Two unparseable versions compare lexicographically
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)

	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}

	return va.Compare(vb)
}

// Sort sorts a slice of version strings in ascending order.
// Equal versions keep their relative order.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// SortDescending sorts a slice of version strings newest first.
func SortDescending(versions []string) {
	slices.SortStableFunc(versions, func(a, b string) int {
		return Compare(b, a)
	})
}

// Max returns the higher of two versions.
func Max(a, b string) string {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Satisfies reports whether v satisfies constraint.
func Satisfies(v, constraint string) (bool, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	parsed, err := Parse(v)
	if err != nil {
		return false, err
	}
	return c.Check(parsed), nil
}

// FirstMatch returns the first entry of versions that satisfies constraint.
// Given a newest-first list this is the latest compatible version.
// Entries that do not parse are skipped. For a bare version, an entry
// spelled exactly like the constraint wins over others that differ only in
// build metadata.
func FirstMatch(versions []string, constraint string) (string, bool, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return "", false, err
	}
	if expr := strings.TrimSpace(constraint); slices.Contains(versions, expr) {
		if _, ok := plainVersion(expr); ok {
			return expr, true, nil
		}
	}
	for _, v := range versions {
		parsed, err := Parse(v)
		if err != nil {
			continue
		}
		if c.Check(parsed) {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Equal reports whether a and b denote the same version.
// Strings that are not valid versions are only equal to themselves.
func Equal(a, b string) bool {
	if a == b {
		return true
	}
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return va.Equal(vb)
}
