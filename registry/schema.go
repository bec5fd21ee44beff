package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Validator validates registry JSON documents.
type Validator struct{}

// NewValidator creates a validator for registry config and metadata documents.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates JSON data as a registry configuration file.
func (v *Validator) ValidateConfig(data []byte) error {
	_, err := ParseConfig(data)
	return err
}

// ValidateMetadata validates JSON data as a package-metadata document.
func (v *Validator) ValidateMetadata(data []byte) error {
	m, err := decodeMetadata(data)
	if err != nil {
		return err
	}
	return m.Validate()
}

// ParseConfig decodes and validates a registry configuration file.
// Unknown fields are ignored so newer registries stay readable.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &c); err != nil {
		return nil, &FieldError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseMetadata decodes and validates a package-metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	m, err := decodeMetadata(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

var utf8BOM = []byte("\xef\xbb\xbf")

// decodeMetadata decodes a metadata document, requiring "versions" to be an array.
func decodeMetadata(data []byte) (*Metadata, error) {
	var raw struct {
		Versions json.RawMessage `json:"versions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FieldError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	trimmed := bytes.TrimSpace(raw.Versions)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &FieldError{Field: "versions", Message: "response has no versions list"}
	}

	var m Metadata
	if err := json.Unmarshal(trimmed, &m.Versions); err != nil {
		return nil, &FieldError{Field: "versions", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &m, nil
}
