package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	gowally "github.com/albertocavalcante/go-wally"
	"github.com/albertocavalcante/go-wally/registry"
	"github.com/albertocavalcante/go-wally/registrytest"
)

type harness struct {
	srv  *registrytest.Server
	repo *registrytest.Repo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"WALLY_TOKEN", "GITHUB_TOKEN", "WALLY_REGISTRY", "WALLY_OUTPUT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	srv := registrytest.NewServer(t)
	repo := srv.AddRegistry("UpliftGames", "wally-index")
	repo.Publish("roblox", "roact", "1.4.2", "1.4.4")
	repo.Publish("roblox", "rodux", "3.0.0")
	repo.Publish("evaera", "promise", "3.2.1", "4.0.0")
	return &harness{srv: srv, repo: repo}
}

// run executes the command line with the harness registry and returns
// stdout, stderr and the command error.
func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	full := append([]string{"--github-api", h.srv.GitHubURL(), "--registry", h.repo.Identifier()}, args...)
	err := a.execute(context.Background(), full)
	return stdout.String(), stderr.String(), err
}

func TestResolve(t *testing.T) {
	h := newHarness(t)

	stdout, _, err := h.run(t, "resolve", "roblox/roact@^1.4.0", "evaera/promise@^3.0.0")
	require.NoError(t, err)

	var out []gowally.Resolution
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "roblox/roact@1.4.4", out[0].Ref())
	assert.Equal(t, "evaera/promise@3.2.1", out[1].Ref())
	assert.Equal(t, h.repo.Identifier(), out[0].Registry)
}

func TestResolve_PartialFailure(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, err := h.run(t, "resolve", "roblox/roact", "nobody/nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, stderr, "nobody/nothing")

	var out []gowally.Resolution
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "1.4.4", out[0].Version)
}

func TestResolve_BadReference(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "resolve", "not-a-ref")
	assert.ErrorIs(t, err, gowally.ErrInvalidPackageRef)
	assert.Zero(t, h.srv.Count(registrytest.KindTree))
}

func TestVersions_YAML(t *testing.T) {
	h := newHarness(t)

	stdout, _, err := h.run(t, "--output", "yaml", "versions", "evaera/promise")
	require.NoError(t, err)

	var out versionsOutput
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "evaera/promise", out.Package)
	assert.Equal(t, []string{"4.0.0", "3.2.1"}, out.Versions)
	assert.Equal(t, h.repo.Identifier(), out.Registry)
}

func TestInfo(t *testing.T) {
	h := newHarness(t)

	stdout, _, err := h.run(t, "info", "roblox/roact@1.4.2")
	require.NoError(t, err)
	var info registry.PackageInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.4.2", info.Version())
	assert.Equal(t, h.repo.Identifier(), info.SourceRegistry)

	stdout, _, err = h.run(t, "-o", "yaml", "info", "roblox/roact@1.4.2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "source_registry: "+h.repo.Identifier())
	assert.Contains(t, stdout, "name: roblox/roact")

	_, _, err = h.run(t, "info", "roblox/roact")
	assert.ErrorContains(t, err, "a version is required")

	_, _, err = h.run(t, "info", "roblox/roact@9.9.9")
	assert.ErrorIs(t, err, gowally.ErrVersionNotFound)
}

func TestAuthorsAndPackages(t *testing.T) {
	h := newHarness(t)

	stdout, _, err := h.run(t, "authors")
	require.NoError(t, err)
	var authors authorsOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &authors))
	assert.Equal(t, []string{"roblox", "evaera"}, authors.Authors)

	stdout, _, err = h.run(t, "packages", "roblox")
	require.NoError(t, err)
	var packages packagesOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &packages))
	assert.Equal(t, []string{"roact", "rodux"}, packages.Packages)

	_, _, err = h.run(t, "packages", "nobody")
	assert.ErrorContains(t, err, "nobody")
}

func TestInvalidConfiguration(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "--output", "toml", "authors")
	assert.ErrorContains(t, err, "output")

	_, _, err = h.run(t, "--registry", "https://gitlab.com/a/b", "authors")
	assert.ErrorIs(t, err, gowally.ErrInvalidRegistry)
}

func TestConfigFile(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wally.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: yaml\n"), 0o644))

	stdout, _, err := h.run(t, "--config", path, "versions", "roblox/rodux")
	require.NoError(t, err)
	assert.Contains(t, stdout, "- 3.0.0")
}

func TestTrace(t *testing.T) {
	h := newHarness(t)

	_, stderr, err := h.run(t, "--trace", "versions", "roblox/roact")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"Name": "index.tree"`)
	assert.Contains(t, stderr, `"Name": "registry.metadata"`)
}

func TestTokenFlag(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "--token", "cli-token", "authors")
	require.NoError(t, err)
	for _, header := range h.srv.AuthHeaders() {
		assert.Equal(t, "Bearer cli-token", header)
	}
}
