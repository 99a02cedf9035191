// Package expand implements the Expander and the Subrepo-onto-Mono
// Resolver: splicing submodule history into the mono branch at every
// pointer bump, and grafting newly fetched submodule commits onto an
// existing mono HEAD.
package expand

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/meroton/git-toprepo/internal/annotate"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/convmap"
	"github.com/meroton/git-toprepo/internal/errs"
	"github.com/meroton/git-toprepo/internal/gitmodules"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/gittree"
	"github.com/meroton/git-toprepo/internal/graph"
	"github.com/meroton/git-toprepo/internal/ledger"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/pkg/errors"
)

// Expander rewrites top-repository commits into mono commits, splicing
// in submodule history at every pointer bump.
type Expander struct {
	Log logging.Logger

	Mono    *gitrepo.Repo
	TopRepo *gitrepo.Repo

	SubrepoRepos  map[string]*gitrepo.Repo
	SubrepoGraphs map[string]*graph.CommitMap

	Config   *config.AppConfig
	Modules  *gitmodules.Cache
	Ledger   *ledger.Ledger
	Conv     *convmap.Map
	Warnings *errs.Warnings

	// topIDToMono maps a top-repo commit's graph.ID to the mono commit
	// it translated to.
	topIDToMono map[graph.ID]plumbing.Hash
	// bumpStates maps a mono commit hash to the BumpState effective
	// there (per subdir: which subrepo commit is installed).
	bumpStates map[plumbing.Hash]BumpState
	// monoFirstParent records the first-parent edge of every mono commit
	// this Expander has written, so the mono-side iterator can walk
	// backward without re-reading commit objects.
	monoFirstParent map[plumbing.Hash]plumbing.Hash

	// branchConv is the per-branch subrepo conversion cache, reset
	// whenever the target branch changes.
	branchConv map[string]map[plumbing.Hash]plumbing.Hash
	lastBranch string

	// Rehydrated marks whether Rehydrate has already run (or was
	// deliberately skipped, e.g. by an explicit from-scratch reset) for
	// this Expander's lifetime; Rehydrate itself is then a no-op.
	Rehydrated bool
}

// New returns an Expander ready to translate commits.
func New(log logging.Logger, mono, topRepo *gitrepo.Repo, cfg *config.AppConfig) *Expander {
	return &Expander{
		Log:           log,
		Mono:          mono,
		TopRepo:       topRepo,
		SubrepoRepos:  map[string]*gitrepo.Repo{},
		SubrepoGraphs: map[string]*graph.CommitMap{},
		Config:        cfg,
		Ledger:        cfg.Ledger,
		Conv:          convmap.New(),
		Warnings:      &errs.Warnings{},
		topIDToMono:     map[graph.ID]plumbing.Hash{},
		bumpStates:      map[plumbing.Hash]BumpState{},
		monoFirstParent: map[plumbing.Hash]plumbing.Hash{},
		branchConv:      map[string]map[plumbing.Hash]plumbing.Hash{},
	}
}

// ExpandRef translates every commit reachable from topHead (not yet
// translated) onto the mono branch named monoBranch, in topological
// order. It returns the resulting mono tip hash.
func (e *Expander) ExpandRef(topGraph *graph.CommitMap, topHead plumbing.Hash, monoBranch string) (plumbing.Hash, error) {
	if e.Modules == nil {
		e.Modules = gitmodules.NewCache(e.TopRepo, e.Warnings)
	}

	order, err := topologicalOrder(topGraph, topHead)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	// Seed topIDToMono from the Conversion Map for this run's topGraph:
	// graph.ID is only stable within the CommitMap that minted it, so a
	// commit translated in an earlier process (or an earlier topGraph
	// within this one) is only ever known to us by hash, via Conv.
	for _, id := range order {
		if _, already := e.topIDToMono[id]; already {
			continue
		}
		c, _ := topGraph.ByID(id)
		if mono, ok := e.Conv.Lookup(config.TopName, c.Hash); ok {
			e.topIDToMono[id] = mono
		}
	}

	var tip plumbing.Hash
	for _, id := range order {
		if mono, done := e.topIDToMono[id]; done {
			tip = mono
			continue
		}
		mono, err := e.translateCommit(topGraph, id, monoBranch)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		e.topIDToMono[id] = mono
		tip = mono
	}
	return tip, nil
}

// topologicalOrder returns the IDs of every commit reachable from head,
// oldest (lowest id) first. IDs are already assigned parent-before-child
// by graph.Collect, so a plain sort suffices once the reachable set is
// known.
func topologicalOrder(g *graph.CommitMap, head plumbing.Hash) ([]graph.ID, error) {
	start, ok := g.ByHash(head)
	if !ok {
		return nil, fmt.Errorf("commit %s not present in graph", head)
	}
	seen := map[graph.ID]bool{}
	var stack []graph.ID
	stack = append(stack, start.ID)
	seen[start.ID] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, _ := g.ByID(id)
		for _, p := range c.Parents {
			if p.Known && !seen[p.ID] {
				seen[p.ID] = true
				stack = append(stack, p.ID)
			}
		}
	}
	ids := make([]graph.ID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// translateCommit produces M(C) for the top commit at id, injecting any
// submodule history newly reachable through this commit's bumps.
func (e *Expander) translateCommit(topGraph *graph.CommitMap, id graph.ID, branch string) (plumbing.Hash, error) {
	if branch != e.lastBranch {
		// Conversion cache reset on branch change.
		e.branchConv = map[string]map[plumbing.Hash]plumbing.Hash{}
		e.lastBranch = branch
	}

	c, _ := topGraph.ByID(id)
	topCommit, err := e.TopRepo.CommitObject(c.Hash)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "reading top commit %s", c.Hash)
	}

	modules, err := e.Modules.ConfigAt(topCommit)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "reading .gitmodules at %s", c.Hash)
	}

	// Translated images of C's own parents (pre-augmentation).
	var parents []plumbing.Hash
	var primaryParent plumbing.Hash
	havePrimary := false
	for i, p := range c.Parents {
		if !p.Known {
			continue
		}
		mh, ok := e.topIDToMono[p.ID]
		if !ok {
			return plumbing.ZeroHash, fmt.Errorf("parent of %s not yet translated", c.Hash)
		}
		parents = appendUnique(parents, mh)
		if i == 0 {
			primaryParent = mh
			havePrimary = true
		}
	}

	var bumpState BumpState
	if havePrimary {
		bumpState = e.bumpStates[primaryParent].Clone()
	} else {
		bumpState = BumpState{}
	}

	if err := gitrepo.CopyTree(e.TopRepo, e.Mono, topCommit.TreeHash); err != nil {
		return plumbing.ZeroHash, err
	}
	tree := topCommit.TreeHash

	pins, err := pinsAt(topCommit, modules)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	messages := [][]byte{annotate.Annotate([]byte(topCommit.Message), annotate.TopSentinel, c.Hash.String())}

	type headConv struct {
		repoName string
		subdir   string
		hash     plumbing.Hash
	}
	var headConvs []headConv

	subdirs := make([]string, 0, len(pins))
	for subdir := range pins {
		subdirs = append(subdirs, subdir)
	}
	sort.Strings(subdirs)

	for _, subdir := range subdirs {
		pinHash := pins[subdir]
		entry, _ := modules.Get(subdir)
		repos := e.Config.ReposForURL(entry.URL)
		if len(repos) == 0 {
			// Unknown or disabled: leave the gitlink untouched.
			continue
		}
		repoName := repos[0].Name
		subGraph := e.SubrepoGraphs[repoName]
		subRepo := e.SubrepoRepos[repoName]
		if subGraph == nil || subRepo == nil {
			continue
		}
		subC, ok := subGraph.ByHash(pinHash)
		if !ok {
			// Availability should have been checked before expansion
			// started; treat as unknown here rather than failing the
			// whole run.
			e.Warnings.Add("commit %s for %s not available; leaving gitlink", pinHash, entry.URL)
			continue
		}

		if err := gitrepo.CopyTree(subRepo, e.Mono, subC.TreeHash); err != nil {
			return plumbing.ZeroHash, err
		}
		tree, err = gittree.MountSubtree(e.Mono, tree, subdir, subC.TreeHash)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		prev, hadPrev := bumpState[subdir]
		if hadPrev && prev.SubrepoCommit == pinHash {
			continue // no bump at this commit
		}

		extraParents, err := e.injectBump(repoName, subGraph, subdir, pinHash, parents)
		if err != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "injecting bump of %s at %s", subdir, c.Hash)
		}
		for _, p := range extraParents {
			parents = appendUnique(parents, p)
		}

		messages = append(messages, annotate.Annotate([]byte(subC.Message), subdir, pinHash.String()))
		bumpState[subdir] = BumpInfo{SubrepoCommit: pinHash, SubrepoDepth: subC.Depth}
		headConvs = append(headConvs, headConv{repoName: repoName, subdir: subdir, hash: pinHash})
	}

	// Subdirs present in the inherited state but no longer pinned (the
	// submodule was removed) drop out of the BumpState entirely.
	for subdir := range bumpState {
		if _, stillPinned := pins[subdir]; !stillPinned {
			delete(bumpState, subdir)
		}
	}

	msg := annotate.Join(messages)
	monoHash, err := e.Mono.WriteCommit(gitrepo.CommitSpec{
		Tree:      tree,
		Parents:   parents,
		Author:    topCommit.Author,
		Committer: topCommit.Committer,
		Message:   string(msg),
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "writing mono commit for %s", c.Hash)
	}

	// Only the subdirs actually bumped by this commit get their
	// FirstMonoCommit landmark moved to it; every inherited, unchanged
	// subdir keeps the FirstMonoCommit it already had via
	// BumpState.Clone(), the same narrowly-scoped update injectBump uses
	// for commits it injects directly (see bumpgen.go).
	touchedSubdirs := make(map[string]bool, len(headConvs))
	for _, hc := range headConvs {
		touchedSubdirs[hc.subdir] = true
	}
	for subdir := range touchedSubdirs {
		info := bumpState[subdir]
		info.FirstMonoCommit = monoHash
		bumpState[subdir] = info
	}
	e.bumpStates[monoHash] = bumpState
	if havePrimary {
		e.monoFirstParent[monoHash] = primaryParent
	}
	e.Conv.Set(config.TopName, c.Hash, monoHash)
	for _, hc := range headConvs {
		conv := e.branchConvFor(hc.repoName)
		if _, already := conv[hc.hash]; !already {
			conv[hc.hash] = monoHash
		}
		e.Conv.Set(hc.repoName, hc.hash, monoHash)
	}

	return monoHash, nil
}

// pinsAt reads the gitlink hash for every configured submodule path at
// commit.
func pinsAt(commit *object.Commit, modules *gitmodules.Modules) (map[string]plumbing.Hash, error) {
	out := map[string]plumbing.Hash{}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	for _, path := range modules.Paths() {
		entry, err := tree.FindEntry(path)
		if err != nil {
			continue // path not present at this commit
		}
		if entry.Mode != filemode.Submodule {
			continue
		}
		out[path] = entry.Hash
	}
	return out, nil
}

func appendUnique(hashes []plumbing.Hash, h plumbing.Hash) []plumbing.Hash {
	for _, existing := range hashes {
		if existing == h {
			return hashes
		}
	}
	return append(hashes, h)
}
