// Package toprepo wires the Expander, Resolver, Splitter and config
// loader together into the operations the CLI drives: init, config,
// refilter, fetch and push.
package toprepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/errs"
	"github.com/meroton/git-toprepo/internal/expand"
	"github.com/meroton/git-toprepo/internal/gitmodules"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/graph"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/refspec"
	"github.com/meroton/git-toprepo/internal/split"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// topRefPrefix returns the ref namespace a repo's raw, untranslated
// history is fetched into: refs/repos/<name>/* holds per-source-repo raw
// history copies.
func topRefPrefix(name string) string {
	return "refs/repos/" + name + "/"
}

// Session owns the mono repository's single object database and every
// component derived from its configuration. All of TopRepo and every
// entry in subrepoRepos wrap the very same underlying *git.Repository as
// Mono: the mono object database is the only shared mutable resource,
// and per-source raw history lives in it too, scoped by the
// refs/repos/<name>/* namespace rather than a separate store.
type Session struct {
	Log  logging.Logger
	Mono *gitrepo.Repo

	Config   *config.AppConfig
	Dict     config.Dict
	Warnings *errs.Warnings

	topRepo      *gitrepo.Repo
	subrepoRepos map[string]*gitrepo.Repo

	expander *expand.Expander
	resolver *expand.Resolver
	splitter *split.Splitter
}

// Init creates the on-disk layout for a new mono repository at path and
// records the top repository's URLs as the origin/top remotes.
func Init(log logging.Logger, path, url string) (*Session, error) {
	gitRepo, err := git.PlainInit(path, true)
	if err != nil {
		return nil, errors.Wrapf(err, "initializing mono repository at %s", path)
	}
	cfg, err := gitRepo.Config()
	if err != nil {
		return nil, err
	}
	cfg.Raw.Section("remote").Subsection("origin").SetOption("url", url)
	cfg.Raw.Section("remote").Subsection("top").SetOption("pushUrl", url)
	if err := gitRepo.SetConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "writing remote config")
	}

	return Open(log, path)
}

// Open opens an existing mono repository and loads its configuration.
func Open(log logging.Logger, path string) (*Session, error) {
	mono, err := gitrepo.PlainOpen("mono", path)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Log:      log,
		Mono:     mono,
		Warnings: &errs.Warnings{},
	}
	if err := s.LoadConfig(false); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadConfig (re)resolves the toprepo.config.<id> loader DAG and rebuilds
// every component that depends on it. online controls whether
// git-remote-backed config sources are actually fetched (--offline on
// refilter/config disables this).
func (s *Session) LoadConfig(online bool) error {
	localLines, err := config.LocalGitConfig(s.Mono).Lines()
	if err != nil {
		return err
	}
	localDict := config.ParseDict(localLines)
	topFetchURL, _, _ := localDict.GetSingleton("remote.origin.url")

	return s.loadConfigFrom(topFetchURL, online)
}

func (s *Session) loadConfigFrom(topFetchURL string, online bool) error {
	acc := &config.Accumulator{Repo: s.Mono, Online: online, TopFetchURL: topFetchURL}
	dict, err := acc.Load(config.DefaultRootLoader(s.Mono))
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}
	cfg, err := config.FromDict(dict, s.Warnings)
	if err != nil {
		return &errs.ConfigError{Key: "toprepo", Cause: err}
	}
	s.Config = cfg
	s.Dict = dict
	s.rebuildComponents(false)
	return nil
}

// rebuildComponents re-derives the repo wrappers from s.Config and wires
// them into the Expander/Resolver/Splitter. A plain configuration reload
// (fromScratch false) reuses the existing Expander and Splitter in place,
// since their whole point is the incremental state they accumulate
// across runs (the Conversion Map, BumpInfo, the Splitter's subdir-parent
// cache) — recreating them on every config reload would defeat
// incrementality entirely. fromScratch true (an explicit `refilter
// --from-scratch`) starts both over. The first call for a freshly opened
// Session passes false and builds both because none exist yet; that
// Expander is not marked Rehydrated, so RefilterAll's Rehydrate call
// restores its state.
func (s *Session) rebuildComponents(fromScratch bool) {
	s.topRepo = gitrepo.Open(config.TopName, s.Mono.Underlying())
	s.subrepoRepos = map[string]*gitrepo.Repo{}
	for name := range s.Config.Repos {
		s.subrepoRepos[name] = gitrepo.Open(name, s.Mono.Underlying())
	}

	if s.expander == nil || fromScratch {
		e := expand.New(s.Log.Module("expand"), s.Mono, s.topRepo, s.Config)
		e.Warnings = s.Warnings
		if fromScratch {
			// An explicit reset genuinely starts empty: skip the
			// Conversion Map/BumpInfo rehydration RefilterAll would
			// otherwise trigger for a nil-state Expander.
			e.Rehydrated = true
		}
		s.expander = e
	} else {
		s.expander.Mono = s.Mono
		s.expander.TopRepo = s.topRepo
		s.expander.Config = s.Config
		s.expander.Ledger = s.Config.Ledger
	}
	s.expander.SubrepoRepos = s.subrepoRepos

	s.resolver = &expand.Resolver{Log: s.Log.Module("resolve"), Mono: s.Mono}

	if s.splitter == nil || fromScratch {
		s.splitter = split.New(s.Log.Module("split"), s.Mono, s.topRepo, s.reposWithTop(), s.Config)
	} else {
		s.splitter.TopRepo = s.topRepo
		s.splitter.Config = s.Config
		s.splitter.Repos = s.reposWithTop()
	}
}

func (s *Session) reposWithTop() map[string]*gitrepo.Repo {
	out := map[string]*gitrepo.Repo{config.TopName: s.topRepo}
	for name, r := range s.subrepoRepos {
		out[name] = r
	}
	return out
}

// refNames extracts the reference names of a slice of resolved
// references, for use as graph.Collect's roots.
func refNames(refs []*plumbing.Reference) []plumbing.ReferenceName {
	var out []plumbing.ReferenceName
	for _, r := range refs {
		if r.Type() == plumbing.HashReference {
			out = append(out, r.Name())
		}
	}
	return out
}

// RefilterAll translates every top branch found under
// refs/repos/top/heads/* onto its corresponding refs/remotes/origin/*
// mono branch. If fromScratch is set, the Expander's Conversion Map and
// BumpInfo state are discarded first, so every commit is retranslated.
func (s *Session) RefilterAll(fromScratch, online bool) (map[string]plumbing.Hash, error) {
	if err := s.LoadConfig(online); err != nil {
		return nil, err
	}
	if fromScratch {
		s.rebuildComponents(true)
	}

	topRefs, err := s.topRepo.Refs(topRefPrefix(config.TopName) + "heads/")
	if err != nil {
		return nil, errors.Wrap(err, "listing top branches")
	}
	topGraph, err := graph.Collect(s.topRepo, refNames(topRefs))
	if err != nil {
		return nil, errors.Wrap(err, "collecting top commit graph")
	}

	// Each subrepo's commit graph is independent of the others, so they're
	// collected concurrently: RefilterAll's wall-clock time otherwise
	// scales with the number of configured subrepos rather than the
	// slowest one.
	var mu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	for name, repo := range s.subrepoRepos {
		name, repo := name, repo
		rc := s.Config.Repos[name]
		if rc == nil || !rc.Enabled {
			continue
		}
		g.Go(func() error {
			subRefs, err := repo.Refs(topRefPrefix(name))
			if err != nil {
				return errors.Wrapf(err, "listing %s branches", name)
			}
			subGraph, err := graph.Collect(repo, refNames(subRefs))
			if err != nil {
				return errors.Wrapf(err, "collecting %s commit graph", name)
			}
			mu.Lock()
			s.expander.SubrepoGraphs[name] = subGraph
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Rehydrate the Conversion Map and BumpInfo state from commits a prior
	// process already wrote, now that SubrepoGraphs (needed to recompute
	// BumpInfo.SubrepoDepth) are populated. A no-op past the first call,
	// and skipped entirely after an explicit from-scratch reset.
	if err := s.expander.Rehydrate(); err != nil {
		return nil, errors.Wrap(err, "rehydrating conversion state")
	}

	results := map[string]plumbing.Hash{}
	branches := make([]string, 0, len(topRefs))
	for _, ref := range topRefs {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		branch := strings.TrimPrefix(string(ref.Name()), topRefPrefix(config.TopName)+"heads/")
		branches = append(branches, branch)
	}
	sort.Strings(branches)

	for _, branch := range branches {
		headRef, err := s.topRepo.Ref(plumbing.ReferenceName(topRefPrefix(config.TopName) + "heads/" + branch))
		if err != nil {
			return nil, err
		}
		tip, err := s.expander.ExpandRef(topGraph, headRef.Hash(), branch)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding branch %s", branch)
		}
		if err := s.Mono.SetRef(plumbing.ReferenceName("refs/remotes/origin/"+branch), tip); err != nil {
			return nil, err
		}
		results[branch] = tip
	}

	for _, w := range s.Warnings.Items() {
		s.Log.Warn(w.Message)
	}
	return results, nil
}

// Fetch fetches refSpec (default: all branches) from remote (default:
// "origin", the top repository) into this repo's raw ref namespace. For
// the top repository, filtering (unless skipFilter) re-runs the Expander
// over every top branch via RefilterAll. For a named subrepo with an
// explicit single refspec, filtering instead grafts the newly fetched tip
// directly onto every mono branch's HEAD via the Resolver — the
// read-ahead path for pulling a subrepo commit before the top
// repository's own pointer bump lands.
func (s *Session) Fetch(remote, refSpec string, skipFilter, online bool) error {
	if remote == "" {
		remote = "origin"
	}

	var url string
	var destName string
	if remote == "origin" || remote == config.TopName {
		url = s.Config.TopFetchURL
		destName = config.TopName
	} else {
		rc, ok := s.Config.Repos[remote]
		if !ok {
			return &errs.UnknownRemoteError{Remote: remote}
		}
		url = rc.FetchURL
		destName = remote
	}

	repo := s.reposWithTop()[destName]

	var rs gogitconfig.RefSpec
	var localDst string
	if refSpec == "" {
		localDst = topRefPrefix(destName) + "heads/*"
		rs = gogitconfig.RefSpec("+refs/heads/*:" + localDst)
	} else {
		src, dst, err := refspec.Parse(refSpec)
		if err != nil {
			return err
		}
		localDst = topRefPrefix(destName) + strings.TrimPrefix(string(dst), "refs/")
		rs = gogitconfig.RefSpec("+" + string(src) + ":" + localDst)
	}

	if err := repo.Fetch(destName, url, []gogitconfig.RefSpec{rs}); err != nil {
		return errors.Wrapf(err, "fetching %s from %s", remote, url)
	}

	fetchedRef, fetchedErr := repo.Ref(plumbing.ReferenceName(localDst))
	if fetchedErr == nil {
		if err := s.Mono.SetRef("refs/toprepo/fetch-head", fetchedRef.Hash()); err != nil {
			return err
		}
	}

	if skipFilter {
		return nil
	}
	if destName == config.TopName {
		_, err := s.RefilterAll(false, online)
		return err
	}
	if fetchedErr != nil {
		// A wildcard fetch of a subrepo has no single tip to graft; the
		// commits become reachable once the top repository's own bump
		// is fetched and filtered.
		return nil
	}
	return s.graftOntoAllBranches(destName, repo, fetchedRef.Hash())
}

// graftOntoAllBranches splices newTip (and its not-yet-present ancestors)
// onto every refs/remotes/origin/* branch that currently mounts repoName
// somewhere in its tree, via the Resolver.
func (s *Session) graftOntoAllBranches(repoName string, repo *gitrepo.Repo, newTip plumbing.Hash) error {
	monoRefs, err := s.Mono.Refs("refs/remotes/origin/")
	if err != nil {
		return err
	}
	subRefs, err := repo.Refs(topRefPrefix(repoName))
	if err != nil {
		return err
	}
	subGraph, err := graph.Collect(repo, refNames(subRefs))
	if err != nil {
		return errors.Wrapf(err, "collecting %s commit graph", repoName)
	}

	for _, ref := range monoRefs {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		subdir, ok, err := s.subdirForRepo(repoName, ref.Hash())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		tip, err := s.resolver.Fetch(repoName, subdir, subGraph, repo, ref.Hash(), newTip)
		if err != nil {
			return errors.Wrapf(err, "grafting %s onto %s", repoName, ref.Name())
		}
		if err := s.Mono.SetRef(ref.Name(), tip); err != nil {
			return err
		}
	}
	return nil
}

// subdirForRepo looks up the subdirectory repoName is currently mounted
// at in monoCommit's tree, by matching its .gitmodules URL against the
// repo's configured URL set.
func (s *Session) subdirForRepo(repoName string, monoCommit plumbing.Hash) (string, bool, error) {
	commit, err := s.Mono.CommitObject(monoCommit)
	if err != nil {
		return "", false, err
	}
	f, err := commit.File(".gitmodules")
	if err != nil {
		return "", false, nil
	}
	content, err := f.Contents()
	if err != nil {
		return "", false, err
	}
	modules, err := gitmodules.Parse([]byte(content), s.Warnings)
	if err != nil {
		return "", false, err
	}
	rc := s.Config.Repos[repoName]
	if rc == nil {
		return "", false, nil
	}
	for _, path := range modules.Paths() {
		entry, _ := modules.Get(path)
		for _, u := range rc.URLs {
			if entry.URL == u {
				return path, true, nil
			}
		}
	}
	return "", false, nil
}

// Push splits refSpec's local ref into per-repository commits and
// pushes each to its configured remote, unless dryRun is set (in which
// case the computed PushInstructions are returned without touching the
// network).
func (s *Session) Push(refSpec string, dryRun bool) ([]split.PushInstruction, error) {
	localRef, remoteRef, err := refspec.Parse(refSpec)
	if err != nil {
		return nil, err
	}

	upstream := map[string]plumbing.Hash{}
	for name, repo := range s.reposWithTop() {
		ref, err := repo.Ref(plumbing.ReferenceName("refs/repos/" + name + "/toprepo/push"))
		if err != nil {
			continue
		}
		upstream[name] = ref.Hash()
	}

	instructions, err := s.splitter.SplitRef(localRef, upstream)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return instructions, nil
	}

	repos := s.reposWithTop()
	for _, ins := range instructions {
		var pushURL string
		if ins.RepoName == config.TopName {
			pushURL = s.Config.TopPushURL
		} else {
			rc, ok := s.Config.Repos[ins.RepoName]
			if !ok {
				return instructions, fmt.Errorf("no configuration for repo %q produced by splitter", ins.RepoName)
			}
			pushURL = rc.PushURL
		}
		rs := gogitconfig.RefSpec(ins.CommitHash.String() + ":" + string(remoteRef))
		repo := repos[ins.RepoName]
		if err := repo.Push(ins.RepoName, pushURL, []gogitconfig.RefSpec{rs}); err != nil {
			return instructions, errors.Wrapf(err, "pushing %s to %s", ins.RepoName, pushURL)
		}
	}
	return instructions, nil
}

// ConfigList returns every merged configuration line as "key=value",
// sorted, for `git-toprepo config --list`.
func (s *Session) ConfigList() []string {
	var keys []string
	for k := range s.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, v := range s.Dict[k] {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// ConfigGet returns every value assigned to key.
func (s *Session) ConfigGet(key string) []string {
	return s.Dict.Get(key)
}
