package gowally

import (
	"errors"

	"github.com/albertocavalcante/go-wally/label"
)

// Sentinel errors for malformed input. Registry errors are wrapped in a
// *label.RegistryError.
var (
	// ErrInvalidRegistry indicates the identifier is not a https://github.com/ URL.
	ErrInvalidRegistry = label.ErrInvalidRegistry

	// ErrUnsupportedRegistry indicates a GitHub URL that is not <owner>/<repo>.
	ErrUnsupportedRegistry = label.ErrUnsupportedRegistry

	// ErrInvalidPackageRef indicates a reference that is not author/name[@constraint].
	ErrInvalidPackageRef = label.ErrInvalidPackageRef
)

// Sentinel errors for resolution failures returned by Pool.
var (
	// ErrRegistryUnavailable indicates the registry tree or config could not be read.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrPackageNotFound indicates no registry in the chain publishes the package.
	ErrPackageNotFound = errors.New("package not found")

	// ErrNoCompatibleVersion indicates no published version satisfies the constraint.
	ErrNoCompatibleVersion = errors.New("no compatible version")

	// ErrVersionNotFound indicates the requested version is not published.
	ErrVersionNotFound = errors.New("version not found")
)
