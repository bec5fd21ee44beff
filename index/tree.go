package index

import (
	"strings"

	"github.com/google/go-github/v66/github"
)

// Reserved file names in an index repository.
const (
	// OwnersFile lists the GitHub users allowed to publish under an author.
	OwnersFile = "owners.json"

	// ConfigFile is the preferred name of the registry configuration file.
	ConfigFile = "config.json"
)

// Git object types returned by the tree API.
const (
	typeTree = "tree"
	typeBlob = "blob"
)

// Entry is one named object in a git tree, addressed by its SHA.
type Entry struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// Tree is the top level of an index repository: one directory per author
// plus the registry configuration file.
type Tree struct {
	SHA     string  `json:"sha"`
	Authors []Entry `json:"authors"`
	Config  Entry   `json:"config"`
}

// newTree builds a Tree from a non-recursive tree listing.
// The config entry is config.json when present, otherwise the last
// top-level .json blob.
func newTree(t *github.Tree) *Tree {
	tree := &Tree{SHA: t.GetSHA()}
	for _, e := range t.Entries {
		switch e.GetType() {
		case typeTree:
			tree.Authors = append(tree.Authors, Entry{Name: e.GetPath(), SHA: e.GetSHA()})
		case typeBlob:
			if !strings.HasSuffix(e.GetPath(), ".json") {
				continue
			}
			if tree.Config.Name == ConfigFile {
				continue
			}
			tree.Config = Entry{Name: e.GetPath(), SHA: e.GetSHA()}
		}
	}
	return tree
}

// AuthorNames returns the author directory names in tree order.
func (t *Tree) AuthorNames() []string {
	names := make([]string, 0, len(t.Authors))
	for _, a := range t.Authors {
		names = append(names, a.Name)
	}
	return names
}

// FindAuthor returns the first author entry whose name matches case-insensitively.
func (t *Tree) FindAuthor(name string) (Entry, bool) {
	for _, a := range t.Authors {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Entry{}, false
}

// HasConfig reports whether the tree contains a configuration file.
func (t *Tree) HasConfig() bool {
	return t.Config.SHA != ""
}

// packageNames lists the package files of an author tree, skipping
// subdirectories and the owners file.
func packageNames(t *github.Tree) []string {
	names := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.GetType() == typeTree || e.GetPath() == OwnersFile {
			continue
		}
		names = append(names, e.GetPath())
	}
	return names
}
