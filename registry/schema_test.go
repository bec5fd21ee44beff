package registry

import (
	"errors"
	"testing"
)

func TestValidator_ValidateConfig(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "valid minimal",
			json:    `{"api": "https://api.wally.run", "github_oauth_id": "abc123"}`,
			wantErr: false,
		},
		{
			name: "valid with fallbacks",
			json: `{
				"api": "https://api.wally.run/",
				"github_oauth_id": "abc123",
				"fallback_registries": ["https://github.com/other/index"]
			}`,
			wantErr: false,
		},
		{
			name:    "unknown fields ignored",
			json:    `{"api": "http://localhost:8000", "github_oauth_id": "", "extra": 1}`,
			wantErr: false,
		},
		{
			name:    "leading BOM",
			json:    "\xef\xbb\xbf{\"api\": \"https://api.wally.run\"}",
			wantErr: false,
		},
		{
			name:    "missing api",
			json:    `{"github_oauth_id": "abc123"}`,
			wantErr: true,
		},
		{
			name:    "relative api",
			json:    `{"api": "/v1"}`,
			wantErr: true,
		},
		{
			name:    "non-http api",
			json:    `{"api": "ftp://api.wally.run"}`,
			wantErr: true,
		},
		{
			name:    "empty fallback",
			json:    `{"api": "https://api.wally.run", "fallback_registries": [" "]}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			json:    `{invalid`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateConfig([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_ValidateMetadata(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid", sampleMetadata, false},
		{"empty versions", `{"versions": []}`, false},
		{"missing versions", `{}`, true},
		{"null versions", `{"versions": null}`, true},
		{"versions object", `{"versions": {}}`, true},
		{"missing version field", `{"versions": [{"package": {"name": "a/b"}}, {"package": {"name": "a/b"}}]}`, true},
		{"top-level array", `[]`, true},
		{"invalid json", `{invalid`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateMetadata([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetadata() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"api": "https://api.wally.run", "github_oauth_id": "id", "fallback_registries": ["https://github.com/a/b"]}`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.API != "https://api.wally.run" {
		t.Errorf("API = %q", cfg.API)
	}
	if cfg.GitHubOAuthID != "id" {
		t.Errorf("GitHubOAuthID = %q", cfg.GitHubOAuthID)
	}
	if len(cfg.FallbackRegistries) != 1 || cfg.FallbackRegistries[0] != "https://github.com/a/b" {
		t.Errorf("FallbackRegistries = %v", cfg.FallbackRegistries)
	}
}

func TestValidationErrors_Multiple(t *testing.T) {
	err := (&Metadata{Versions: []PackageVersion{{}, {}}}).Validate()
	if err == nil {
		t.Fatal("expected error")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(verrs.Errors))
	}
	if verrs.Errors[1].Field != "versions[1].package.version" {
		t.Errorf("Field = %q", verrs.Errors[1].Field)
	}

	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Error("errors.As should reach the individual FieldError")
	}
}

func TestValidationErrors_Empty(t *testing.T) {
	var errs ValidationErrors
	if errs.ToError() != nil {
		t.Error("ToError() on empty collection should be nil")
	}
	if errs.Error() != "validation failed" {
		t.Errorf("Error() = %q", errs.Error())
	}
}
