package config

import (
	"io"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Loader is the closed set of ways a configuration source can be
// fetched and listed: the `toprepo.config.<id>.type` variants (none,
// file, git) plus the always-present static and local-git-config
// sources. A flat interface in place of the deep inheritance a class
// hierarchy would otherwise need for this kind of variant dispatch.
type Loader interface {
	// FetchRemote performs any network operation needed before Lines can
	// be read (a no-op for everything but a git-remote source).
	FetchRemote(online bool) error
	// Lines returns the raw "key=value" config lines this source
	// contributes.
	Lines() (string, error)
}

// staticLoader returns a fixed, literal set of config lines.
type staticLoader struct{ content string }

func Static(content string) Loader                 { return staticLoader{content} }
func (s staticLoader) FetchRemote(bool) error       { return nil }
func (s staticLoader) Lines() (string, error)       { return s.content, nil }

// envLoader surfaces GIT_TOPREPO_*-prefixed environment variables as
// overrides for a fixed set of known "toprepo.*" singleton keys, the way
// the pack's viper-based CLIs let CI pin settings without a checked-in
// file. Only keys explicitly listed are looked up: viper's AutomaticEnv
// only resolves keys it's asked about, it doesn't discover arbitrary
// unbound environment variables.
type envLoader struct {
	v    *viper.Viper
	keys []string
}

// Env builds a Loader over the named dotted keys (e.g. "toprepo.role"),
// bound to env vars via prefix and "." -> "_" replacement, so
// GIT_TOPREPO_ROLE overrides "toprepo.role".
func Env(prefix string, knownKeys []string) Loader {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return envLoader{v: v, keys: knownKeys}
}

func (e envLoader) FetchRemote(bool) error { return nil }

func (e envLoader) Lines() (string, error) {
	var b strings.Builder
	for _, key := range e.keys {
		// The prefix stands in for the "toprepo." namespace, so
		// "toprepo.role" is looked up as "role" (GIT_TOPREPO_ROLE).
		envKey := strings.TrimPrefix(key, "toprepo.")
		if !e.v.IsSet(envKey) {
			continue
		}
		b.WriteString(key + "=" + e.v.GetString(envKey) + "\n")
	}
	return b.String(), nil
}

// localGitConfigLoader reads `git config --list`-equivalent key/value
// pairs out of the local repository's own git config (remote.*, and any
// toprepo.* keys a user set directly with `git config`).
type localGitConfigLoader struct {
	repo *gitrepo.Repo
}

func LocalGitConfig(repo *gitrepo.Repo) Loader { return localGitConfigLoader{repo} }

func (l localGitConfigLoader) FetchRemote(bool) error { return nil }

func (l localGitConfigLoader) Lines() (string, error) {
	cfg, err := l.repo.Underlying().Config()
	if err != nil {
		return "", errors.Wrap(err, "reading local git config")
	}
	var b strings.Builder
	for _, section := range cfg.Raw.Sections {
		for _, opt := range section.Options {
			b.WriteString(section.Name + "." + opt.Key + "=" + opt.Value + "\n")
		}
		for _, sub := range section.Subsections {
			for _, opt := range sub.Options {
				b.WriteString(section.Name + "." + sub.Name + "." + opt.Key + "=" + opt.Value + "\n")
			}
		}
	}
	return b.String(), nil
}

// localFileLoader reads a config-formatted file off a filesystem,
// through afero so tests can substitute an in-memory filesystem instead
// of touching disk.
type localFileLoader struct {
	fs           afero.Fs
	path         string
	allowMissing bool
}

func LocalFile(fs afero.Fs, path string, allowMissing bool) Loader {
	return localFileLoader{fs: fs, path: path, allowMissing: allowMissing}
}

func (l localFileLoader) FetchRemote(bool) error { return nil }

func (l localFileLoader) Lines() (string, error) {
	f, err := l.fs.Open(l.path)
	if err != nil {
		if l.allowMissing {
			return "", nil
		}
		return "", errors.Wrapf(err, "opening config file %s", l.path)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return parseGitConfigFormat(string(content)), nil
}

// gitRemoteLoader fetches `<ref>:<path>` from a remote URL into
// refs/toprepo/config/<id> and reads the git-config-formatted file found
// there.
type gitRemoteLoader struct {
	repo      *gitrepo.Repo
	url       string
	remoteRef string
	path      string
	localRef  string
}

func GitRemote(repo *gitrepo.Repo, url, remoteRef, path, localRef string) Loader {
	return &gitRemoteLoader{repo: repo, url: url, remoteRef: remoteRef, path: path, localRef: localRef}
}

func (l *gitRemoteLoader) FetchRemote(online bool) error {
	if !online {
		return nil
	}
	return l.repo.Fetch("toprepo-config", l.url, []config.RefSpec{
		config.RefSpec("+" + l.remoteRef + ":" + l.localRef),
	})
}

func (l *gitRemoteLoader) Lines() (string, error) {
	ref, err := l.repo.Ref(plumbing.ReferenceName(l.localRef))
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", l.localRef)
	}
	content, err := l.repo.BlobAt(ref.Hash(), l.path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s:%s", l.localRef, l.path)
	}
	return parseGitConfigFormat(string(content)), nil
}

// parseGitConfigFormat turns an ini-style `[section "sub"]\n key = value`
// file into flat "section.sub.key=value" lines. A minimal, line-oriented
// reader is enough here since the files this loader reads are themselves
// produced by this tool or are .gitmodules-shaped; full git-config
// quoting edge cases are handled by internal/gitmodules where they
// matter (actual .gitmodules parsing uses go-git's config decoder).
func parseGitConfigFormat(content string) string {
	var b strings.Builder
	section := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			name, sub, hasSub := strings.Cut(inner, " ")
			name = strings.ToLower(strings.TrimSpace(name))
			if hasSub {
				sub = strings.Trim(strings.TrimSpace(sub), `"`)
				section = name + "." + sub
			} else {
				section = name
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if section != "" {
			key = section + "." + key
		}
		b.WriteString(key + "=" + value + "\n")
	}
	return b.String()
}

// parseBool accepts the {"1","true"} / {"0","false"} set, the common
// git-config boolean spelling.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true":
		return true, nil
	case "0", "false", "":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}
