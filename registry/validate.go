package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation failure for a specific field.
type FieldError struct {
	Field   string // Field path (e.g., "versions[0].package.version")
	Message string // Human-readable error message
}

func (e *FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []*FieldError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&b, "\n  - %s", err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors for errors.Is/As compatibility.
func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Add appends a validation error.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &FieldError{Field: field, Message: message})
}

// HasErrors returns true if any errors were collected.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ToError returns nil if no errors, otherwise returns self.
func (e *ValidationErrors) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Validate checks that the Config points at a usable metadata API.
// Returns nil if valid, or ValidationErrors containing all issues found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.API == "" {
		errs.Add("api", "required field is missing")
	} else if u, err := url.Parse(c.API); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add("api", fmt.Sprintf("must be an absolute http(s) URL, got %q", c.API))
	}

	for i, fallback := range c.FallbackRegistries {
		if strings.TrimSpace(fallback) == "" {
			errs.Add(fmt.Sprintf("fallback_registries[%d]", i), "must not be empty")
		}
	}

	return errs.ToError()
}

// Validate checks that every entry in the Metadata names its version.
// An empty versions list is valid: the package exists but has no releases.
func (m *Metadata) Validate() error {
	var errs ValidationErrors

	for i := range m.Versions {
		if m.Versions[i].Package.Version == "" {
			errs.Add(fmt.Sprintf("versions[%d].package.version", i), "required field is missing")
		}
	}

	return errs.ToError()
}
