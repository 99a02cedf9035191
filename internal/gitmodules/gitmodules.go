// Package gitmodules resolves which submodule path maps to which raw URL
// (and optional branch hint) at a given top-repository commit, memoised
// along first-parent chains.
package gitmodules

import (
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/meroton/git-toprepo/internal/errs"
)

// Entry is one submodule stanza from .gitmodules.
type Entry struct {
	Path   string // subdirectory path inside the top tree
	URL    string // raw URL, exactly as written
	Branch string // optional branch hint; informational only
}

// Modules is the immutable, shareable result of parsing one .gitmodules
// blob: {subdir path -> Entry}. Once built it is never mutated, so commits
// that inherit it from their first parent can share the pointer.
type Modules struct {
	byPath map[string]Entry
}

// Get looks up the submodule entry for a subdirectory path.
func (m *Modules) Get(path string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.byPath[path]
	return e, ok
}

// Paths returns every configured subdirectory path.
func (m *Modules) Paths() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		out = append(out, p)
	}
	return out
}

// Parse decodes a .gitmodules blob. Malformed stanzas (missing path or
// url) are skipped and reported as warnings rather than failing the
// parse.
func Parse(blob []byte, warnings *errs.Warnings) (*Modules, error) {
	var cfg config.Config
	if err := config.NewDecoder(strings.NewReader(string(blob))).Decode(&cfg); err != nil {
		return nil, err
	}

	m := &Modules{byPath: make(map[string]Entry)}
	for _, section := range cfg.Sections {
		if !strings.EqualFold(section.Name, "submodule") {
			continue
		}
		for _, sub := range section.Subsections {
			name := sub.Name
			path := sub.Options.Get("path")
			url := sub.Options.Get("url")
			branch := sub.Options.Get("branch")
			if path == "" || url == "" {
				if warnings != nil {
					warnings.Add("invalid .gitmodules entry %q: missing path or url", name)
				}
				continue
			}
			m.byPath[path] = Entry{Path: path, URL: url, Branch: branch}
		}
	}
	return m, nil
}

// CommitSource is the tree/commit access the cache needs.
type CommitSource interface {
	CommitObject(h plumbing.Hash) (*object.Commit, error)
}

// Cache resolves the effective .gitmodules mapping at any commit, sharing
// the parsed Modules by reference along unchanged first-parent runs.
type Cache struct {
	src      CommitSource
	warnings *errs.Warnings

	mu    sync.Mutex
	byHash map[plumbing.Hash]*Modules
}

// NewCache returns a Cache backed by src, reporting parse problems on
// warnings.
func NewCache(src CommitSource, warnings *errs.Warnings) *Cache {
	return &Cache{src: src, warnings: warnings, byHash: make(map[plumbing.Hash]*Modules)}
}

// ConfigAt returns the Modules effective at commit. If commit's
// .gitmodules blob is unchanged from its first parent's, the parent's
// Modules pointer is returned directly (never copied).
func (c *Cache) ConfigAt(commit *object.Commit) (*Modules, error) {
	c.mu.Lock()
	if m, ok := c.byHash[commit.Hash]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	var firstParent *object.Commit
	if commit.NumParents() > 0 {
		p, err := commit.Parent(0)
		if err == nil {
			firstParent = p
		}
	}

	curBlob, curOK := gitmodulesBlobHash(commit)

	if firstParent != nil {
		parentBlob, parentOK := gitmodulesBlobHash(firstParent)
		if curOK == parentOK && curBlob == parentBlob {
			parentModules, err := c.ConfigAt(firstParent)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.byHash[commit.Hash] = parentModules
			c.mu.Unlock()
			return parentModules, nil
		}
	}

	var m *Modules
	if curOK {
		f, err := commit.File(".gitmodules")
		if err != nil {
			return nil, err
		}
		content, err := f.Contents()
		if err != nil {
			return nil, err
		}
		m, err = Parse([]byte(content), c.warnings)
		if err != nil {
			return nil, err
		}
	} else {
		m = &Modules{byPath: map[string]Entry{}}
	}

	c.mu.Lock()
	c.byHash[commit.Hash] = m
	c.mu.Unlock()
	return m, nil
}

func gitmodulesBlobHash(commit *object.Commit) (plumbing.Hash, bool) {
	f, err := commit.File(".gitmodules")
	if err != nil {
		return plumbing.ZeroHash, false
	}
	return f.Hash, true
}
