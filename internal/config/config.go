package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meroton/git-toprepo/internal/errs"
	"github.com/meroton/git-toprepo/internal/giturl"
	"github.com/meroton/git-toprepo/internal/ledger"
)

// TopName is the reserved repository name for the top repository itself.
const TopName = "top"

// RepoConfig is one repository's identity.
type RepoConfig struct {
	Name      string
	URLs      []string // raw URLs as they appear in .gitmodules
	FetchURL  string
	PushURL   string
	FetchArgs []string
	Enabled   bool
}

// AppConfig is the fully resolved configuration for one translation run.
type AppConfig struct {
	TopFetchURL string
	TopPushURL  string
	Role        string

	Repos         map[string]*RepoConfig
	RawURLToRepos map[string][]*RepoConfig

	Ledger *ledger.Ledger
}

var defaultFetchArgs = []string{"--prune", "--prune-tags", "--tags"}

// FromDict builds an AppConfig from a fully merged Dict of
// toprepo.* keys.
func FromDict(d Dict, warnings *errs.Warnings) (*AppConfig, error) {
	cfg := &AppConfig{
		Repos:         map[string]*RepoConfig{},
		RawURLToRepos: map[string][]*RepoConfig{},
		Ledger:        ledger.New(),
	}

	var err error
	cfg.TopFetchURL, _, err = d.GetSingleton("remote.origin.url")
	if err != nil {
		return nil, fmt.Errorf("remote.origin.url: %w", err)
	}
	if cfg.TopFetchURL == "" {
		return nil, fmt.Errorf("remote.origin.url is required")
	}
	cfg.TopPushURL, _, err = d.GetSingleton("remote.top.pushUrl")
	if err != nil {
		return nil, fmt.Errorf("remote.top.pushUrl: %w", err)
	}
	if cfg.TopPushURL == "" {
		return nil, fmt.Errorf("remote.top.pushUrl is required")
	}

	cfg.Role, err = d.GetSingletonDefault("toprepo.role", "default")
	if err != nil {
		return nil, fmt.Errorf("toprepo.role: %w", err)
	}

	rolePatterns := d.Get("toprepo.role." + cfg.Role + ".repos")
	var roleFilter *RoleFilter
	if len(rolePatterns) > 0 {
		roleFilter, err = ParseRoleFilter(rolePatterns)
		if err != nil {
			return nil, err
		}
	}

	repoDicts := d.ExtractMapping("toprepo.repo")
	names := make([]string, 0, len(repoDicts))
	for name := range repoDicts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == TopName {
			return nil, fmt.Errorf("repo name %q is reserved", TopName)
		}
		rd := repoDicts[name]
		urls := rd.Get("urls")
		if len(urls) == 0 {
			return nil, fmt.Errorf("toprepo.repo.%s.urls is required", name)
		}
		fetchURL, _, err := rd.GetSingleton("fetchUrl")
		if err != nil {
			return nil, fmt.Errorf("toprepo.repo.%s.fetchUrl: %w", name, err)
		}
		if fetchURL == "" {
			fetchURL = giturl.Join(cfg.TopFetchURL, urls[0])
		}
		pushURL, _, err := rd.GetSingleton("pushUrl")
		if err != nil {
			return nil, fmt.Errorf("toprepo.repo.%s.pushUrl: %w", name, err)
		}
		if pushURL == "" {
			pushURL = fetchURL
		}
		fetchArgs := rd.Get("fetchArgs")
		if len(fetchArgs) == 0 {
			fetchArgs = defaultFetchArgs
		} else {
			fetchArgs = strings.Fields(strings.Join(fetchArgs, " "))
		}

		enabled := true
		if roleFilter != nil {
			enabled, err = roleFilter.Enabled(name)
			if err != nil {
				return nil, err
			}
		}

		rc := &RepoConfig{
			Name:      name,
			URLs:      urls,
			FetchURL:  fetchURL,
			PushURL:   pushURL,
			FetchArgs: fetchArgs,
			Enabled:   enabled,
		}
		cfg.Repos[name] = rc
		for _, u := range urls {
			cfg.RawURLToRepos[u] = append(cfg.RawURLToRepos[u], rc)
		}
	}

	for key, values := range d {
		const prefix = "toprepo.missing-commits.rev-"
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		hash := strings.TrimPrefix(key, prefix)
		for _, url := range values {
			cfg.Ledger.Declare(url, hash)
		}
	}

	return cfg, nil
}

// ReposForURL returns every enabled RepoConfig whose raw URL set contains
// url.
func (c *AppConfig) ReposForURL(url string) []*RepoConfig {
	var out []*RepoConfig
	for _, rc := range c.RawURLToRepos[url] {
		if rc.Enabled {
			out = append(out, rc)
		}
	}
	return out
}
