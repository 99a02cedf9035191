package config

import (
	"fmt"
	"path/filepath"

	"github.com/meroton/git-toprepo/internal/giturl"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// defaultFs is the filesystem used for "file"-typed config sources absent
// an explicit override; tests can bypass it by constructing a
// localFileLoader directly via LocalFile with an in-memory afero.Fs.
func defaultFs() afero.Fs { return afero.NewOsFs() }

// MultiLoader combines several Loaders: their lines are concatenated in
// listed order, so a multi-valued key lists the first loader's values
// first. Order does not resolve single-valued keys: two loaders giving
// one such key different values make GetSingleton report a ConflictError.
type MultiLoader struct {
	Loaders []Loader
}

func (m MultiLoader) FetchRemote(online bool) error {
	for _, l := range m.Loaders {
		if err := l.FetchRemote(online); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiLoader) Lines() (string, error) {
	var parts []string
	for _, l := range m.Loaders {
		lines, err := l.Lines()
		if err != nil {
			return "", err
		}
		parts = append(parts, lines)
	}
	// Concatenate in listed order; see the MultiLoader doc for how
	// repeated keys are treated.
	out := ""
	for _, p := range parts {
		out += p
	}
	return out, nil
}

// Accumulator resolves the toprepo.config.<id> loader DAG: each loaded
// Dict may itself declare more toprepo.config.<id>.* entries, which are
// loaded depth-first and merged, each source's values listed ahead of
// those loaded before it; a single-valued key given different values by
// two sources is a ConflictError, not an override.
type Accumulator struct {
	Repo   *gitrepo.Repo
	Online bool
	// TopFetchURL is used to resolve relative `url` values in
	// toprepo.config.<id>.url entries, per join_submodule_url semantics.
	TopFetchURL string
}

// Load resolves root and its transitive toprepo.config.<id> sources into
// one merged Dict.
func (a *Accumulator) Load(root Loader) (Dict, error) {
	full := Dict{}
	seen := map[string]bool{}
	queue := []Loader{root}

	for len(queue) > 0 {
		loader := queue[0]
		queue = queue[1:]

		if err := loader.FetchRemote(a.Online); err != nil {
			return nil, err
		}
		lines, err := loader.Lines()
		if err != nil {
			return nil, err
		}
		current := ParseDict(lines)

		subLoaders, err := a.subLoaders(current, full)
		if err != nil {
			return nil, err
		}

		// join([current, full]) lists current's values first, with
		// GetSingleton treating differing duplicates as a conflict rather
		// than a priority order. Entries with partial=true create no
		// loader of their own (see subLoaders), but their values are
		// merged here like any other, so they do not override: a value
		// differing from one already set is a ConflictError too.
		full = Join(current, full)

		var next []Loader
		for name, sub := range subLoaders {
			if seen[name] {
				return nil, fmt.Errorf("toprepo.config.%s declared in multiple sources", name)
			}
			seen[name] = true
			next = append(next, sub)
		}
		// Depth-first: a source's own sub-sources are loaded before the
		// sources still waiting in the queue.
		queue = append(next, queue...)
	}
	return full, nil
}

func (a *Accumulator) subLoaders(current, overrides Dict) (map[string]Loader, error) {
	own := current.ExtractMapping("toprepo.config")
	full := Join(current, overrides).ExtractMapping("toprepo.config")

	out := map[string]Loader{}
	for name, ownValues := range own {
		partialStr, _, _ := ownValues.GetSingleton("partial")
		isPartial, err := parseBool(partialStr)
		if err != nil {
			return nil, fmt.Errorf("toprepo.config.%s.partial: %w", name, err)
		}
		if isPartial {
			continue
		}
		loader, err := a.buildLoader(name, full[name])
		if err != nil {
			return nil, err
		}
		out[name] = loader
	}
	return out, nil
}

func (a *Accumulator) buildLoader(name string, d Dict) (Loader, error) {
	typ, _, _ := d.GetSingleton("type")
	switch typ {
	case "none", "":
		return Static(""), nil
	case "file":
		path, _, err := d.GetSingleton("path")
		if err != nil {
			return nil, fmt.Errorf("toprepo.config.%s.path: %w", name, err)
		}
		return LocalFile(defaultFs(), path, false), nil
	case "git":
		rawURL, _, err := d.GetSingleton("url")
		if err != nil {
			return nil, fmt.Errorf("toprepo.config.%s.url: %w", name, err)
		}
		ref, _, err := d.GetSingleton("ref")
		if err != nil {
			return nil, fmt.Errorf("toprepo.config.%s.ref: %w", name, err)
		}
		path, _, err := d.GetSingleton("path")
		if err != nil {
			return nil, fmt.Errorf("toprepo.config.%s.path: %w", name, err)
		}
		url := giturl.Join(a.TopFetchURL, rawURL)
		return GitRemote(a.Repo, url, ref, path, "refs/toprepo/config/"+name), nil
	default:
		return nil, fmt.Errorf("invalid toprepo.config.%s.type %q", name, typ)
	}
}

// DefaultRootLoader chains, in this order, GIT_TOPREPO_*-prefixed env
// vars (for CI), then the local git config, then the
// user's own per-home override file (~/.config/git-toprepo/config, read
// if present), then the default chained "toprepo.config.default" source
// that reads from refs/meta/git-toprepo:toprepo.config on origin. As with
// any MultiLoader, a single-valued key set differently by two of these
// sources is a ConflictError.
func DefaultRootLoader(repo *gitrepo.Repo) Loader {
	loaders := []Loader{Env("GIT_TOPREPO", []string{"toprepo.role"}), LocalGitConfig(repo)}
	if home, err := homedir.Dir(); err == nil {
		loaders = append(loaders, LocalFile(defaultFs(), filepath.Join(home, ".config", "git-toprepo", "config"), true))
	}
	loaders = append(loaders, Static("toprepo.config.default.type=git\n"+
		"toprepo.config.default.url=.\n"+
		"toprepo.config.default.ref=refs/meta/git-toprepo\n"+
		"toprepo.config.default.path=toprepo.config\n"))
	return MultiLoader{Loaders: loaders}
}
