// Package registrytest provides an in-process fake of the services a Wally
// registry depends on: the GitHub git tree and blob API serving the index
// repository, and the registry's package-metadata API.
//
// A single Server can host several index repositories, which makes fallback
// chains testable without network access:
//
//	srv := registrytest.NewServer(t)
//	primary := srv.AddRegistry("UpliftGames", "wally-index")
//	primary.Publish("roblox", "roact", "1.4.2", "1.4.4")
//
//	c, _ := index.New(index.WithBaseURL(srv.GitHubURL()))
//	_ = c.SetRegistry(primary.Identifier(), false)
package registrytest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/albertocavalcante/go-wally/registry"
)

// Content addresses used by the fake index.
const (
	ConfigFile = "config.json"
	OwnersFile = "owners.json"
	ConfigSHA  = "config"
)

// Request kinds reported by Count and accepted by SetStatus.
const (
	KindTree     = "tree"
	KindBlob     = "blob"
	KindMetadata = "metadata"
)

// Server is a fake GitHub + metadata API server.
type Server struct {
	srv *httptest.Server

	mu     sync.Mutex
	repos  map[string]*Repo
	counts map[string]int
	status map[string]int
	auth   []string
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		repos:  make(map[string]*Repo),
		counts: make(map[string]int),
		status: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/github/repos/{owner}/{repo}/git/trees/{sha}", s.handleTree)
	r.Get("/github/repos/{owner}/{repo}/git/blobs/{sha}", s.handleBlob)
	r.Get("/api/{owner}/{repo}/v1/package-metadata/{author}/{name}", s.handleMetadata)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server root URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// GitHubURL returns the base URL to configure as the GitHub API endpoint.
func (s *Server) GitHubURL() string {
	return s.srv.URL + "/github/"
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// AddRegistry creates an index repository hosted at owner/repo.
func (s *Server) AddRegistry(owner, repo string) *Repo {
	r := &Repo{
		s:        s,
		owner:    owner,
		repo:     repo,
		packages: make(map[string][]registry.PackageVersion),
	}
	r.config = registry.Config{
		API:           r.APIURL(),
		GitHubOAuthID: "fake-oauth-id",
	}

	s.mu.Lock()
	s.repos[repoKey(owner, repo)] = r
	s.mu.Unlock()
	return r
}

// Count returns how many requests matched key. Keys are a kind ("tree"),
// a kind with detail ("tree:main", "metadata:roblox/roact"), or a kind scoped
// to one repository ("metadata@owner/repo").
func (s *Server) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// ResetCounts zeroes every request counter.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
}

// SetStatus forces every request matching key to answer with status.
// Keys follow Count. A status of zero removes the override.
func (s *Server) SetStatus(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.status, key)
		return
	}
	s.status[key] = status
}

// AuthHeaders returns the Authorization header of every GitHub request, in order.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

// record counts a request and returns a forced status, if any.
func (s *Server) record(kind, detail, repo string, header http.Header) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{kind, kind + ":" + detail, kind + "@" + repo}
	for _, k := range keys {
		s.counts[k]++
	}
	if kind != KindMetadata {
		s.auth = append(s.auth, header.Get("Authorization"))
	}
	for _, k := range keys {
		if status, ok := s.status[k]; ok {
			return status
		}
	}
	return 0
}

func (s *Server) lookup(r *http.Request) (*Repo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[repoKey(chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))]
	return repo, ok
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sha := chi.URLParam(r, "sha")
	repoName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	if status := s.record(KindTree, sha, repoName, r.Header); status != 0 {
		writeError(w, status)
		return
	}

	repo, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	entries, ok := repo.tree(sha)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"sha":       sha,
		"tree":      entries,
		"truncated": false,
	})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	sha := chi.URLParam(r, "sha")
	repoName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	if status := s.record(KindBlob, sha, repoName, r.Header); status != 0 {
		writeError(w, status)
		return
	}

	repo, ok := s.lookup(r)
	if !ok || sha != ConfigSHA {
		writeError(w, http.StatusNotFound)
		return
	}

	content := repo.configBytes()
	writeJSON(w, map[string]any{
		"sha":      sha,
		"size":     len(content),
		"encoding": "base64",
		"content":  wrapBase64(content),
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	author, name := chi.URLParam(r, "author"), chi.URLParam(r, "name")
	repoName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	if status := s.record(KindMetadata, author+"/"+name, repoName, r.Header); status != 0 {
		writeError(w, status)
		return
	}

	repo, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	versions, ok := repo.versions(author, name)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, registry.Metadata{Versions: versions})
}

// Repo is one fake index repository plus its metadata API.
type Repo struct {
	s     *Server
	owner string
	repo  string

	// guarded by s.mu
	config    registry.Config
	rawConfig []byte
	noConfig  bool
	authors   []string
	packages  map[string][]registry.PackageVersion
}

// Identifier returns the canonical registry URL of the repository.
func (r *Repo) Identifier() string {
	return "https://github.com/" + r.owner + "/" + r.repo
}

// APIURL returns the metadata API base URL advertised by the repository config.
func (r *Repo) APIURL() string {
	return r.s.srv.URL + "/api/" + r.owner + "/" + r.repo
}

// Publish adds versions of author/name with empty dependency maps.
func (r *Repo) Publish(author, name string, versions ...string) *Repo {
	for _, v := range versions {
		r.PublishVersion(registry.PackageVersion{
			Package: registry.Package{
				Name:     author + "/" + name,
				Version:  v,
				Registry: r.Identifier(),
				Realm:    registry.RealmShared,
			},
			Dependencies:       map[string]string{},
			ServerDependencies: map[string]string{},
			DevDependencies:    map[string]string{},
		})
	}
	return r
}

// PublishVersion adds a full version record. The author is taken from pv.Package.Name.
func (r *Repo) PublishVersion(pv registry.PackageVersion) *Repo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	author := pv.Author()
	if !r.hasAuthor(author) {
		r.authors = append(r.authors, author)
	}
	key := strings.ToLower(pv.Package.Name)
	r.packages[key] = append(r.packages[key], pv)
	return r
}

// SetFallbacks sets the fallback_registries of the repository config.
func (r *Repo) SetFallbacks(identifiers ...string) *Repo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.config.FallbackRegistries = identifiers
	return r
}

// SetAPI overrides the advertised metadata API URL.
func (r *Repo) SetAPI(api string) *Repo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.config.API = api
	return r
}

// SetRawConfig serves data verbatim as the config blob.
func (r *Repo) SetRawConfig(data string) *Repo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.rawConfig = []byte(data)
	return r
}

// RemoveConfig drops the config file from the root tree.
func (r *Repo) RemoveConfig() *Repo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.noConfig = true
	return r
}

func (r *Repo) hasAuthor(author string) bool {
	for _, a := range r.authors {
		if a == author {
			return true
		}
	}
	return false
}

func (r *Repo) tree(sha string) ([]treeEntry, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sha == "main" {
		var entries []treeEntry
		for _, author := range r.authors {
			entries = append(entries, treeEntry{Path: author, Mode: "040000", Type: "tree", SHA: authorSHA(author)})
		}
		if !r.noConfig {
			entries = append(entries, treeEntry{Path: ConfigFile, Mode: "100644", Type: "blob", SHA: ConfigSHA})
		}
		return entries, true
	}

	for _, author := range r.authors {
		if authorSHA(author) != sha {
			continue
		}
		var names []string
		prefix := strings.ToLower(author) + "/"
		for key, versions := range r.packages {
			if strings.HasPrefix(key, prefix) && len(versions) > 0 {
				names = append(names, versions[0].ShortName())
			}
		}
		sort.Strings(names)

		entries := []treeEntry{{Path: OwnersFile, Mode: "100644", Type: "blob", SHA: "owners-" + author}}
		for _, name := range names {
			entries = append(entries, treeEntry{Path: name, Mode: "100644", Type: "blob", SHA: "pkg-" + author + "-" + name})
		}
		return entries, true
	}
	return nil, false
}

func (r *Repo) configBytes() []byte {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.rawConfig != nil {
		return r.rawConfig
	}
	data, _ := json.Marshal(r.config)
	return data
}

func (r *Repo) versions(author, name string) ([]registry.PackageVersion, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	versions, ok := r.packages[strings.ToLower(author+"/"+name)]
	return append([]registry.PackageVersion(nil), versions...), ok
}

func authorSHA(author string) string {
	return "author-" + strings.ToLower(author)
}

func repoKey(owner, repo string) string {
	return strings.ToLower(owner + "/" + repo)
}

// wrapBase64 encodes data the way the GitHub blob API does, with a newline
// every 60 characters.
func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for len(encoded) > 60 {
		b.WriteString(encoded[:60])
		b.WriteByte('\n')
		encoded = encoded[60:]
	}
	b.WriteString(encoded)
	b.WriteByte('\n')
	return b.String()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": http.StatusText(status)})
}
