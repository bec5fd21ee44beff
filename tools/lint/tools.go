//go:build tools

// Package lint pins the linters used on go-wally in their own module, so
// the library's go.mod carries no tool dependencies.
//
// Both linters are declared with tool directives. From the repository root:
//
//	go tool -modfile=tools/lint/go.mod golangci-lint run ./...
//	go tool -modfile=tools/lint/go.mod staticcheck ./...
package lint
