package expand

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/meroton/git-toprepo/internal/annotate"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/gitmodules"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/pkg/errors"
)

// Rehydrate rebuilds the Conversion Map and BumpInfo state a prior
// process already wrote to refs/remotes/origin/*, so a freshly opened
// Session resumes translation instead of starting from the root every
// time. It walks each mono branch's full history once, parent before
// child, reading the ^-- footers Annotate already left on every commit
// this package itself produced — the same provenance
// Splitter.resolveSubdirParents reads on the split side. It is a no-op
// on every call after the first; Session skips calling it at all after
// an explicit from-scratch reset (see Expander.Rehydrated).
func (e *Expander) Rehydrate() error {
	if e.Rehydrated {
		return nil
	}
	e.Rehydrated = true

	refs, err := e.Mono.Refs("refs/remotes/origin/")
	if err != nil {
		return errors.Wrap(err, "listing mono branches to rehydrate from")
	}

	seen := map[plumbing.Hash]bool{}
	for _, ref := range refs {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		order, err := ancestorsOldestFirst(e.Mono, ref.Hash(), seen)
		if err != nil {
			return errors.Wrapf(err, "walking history of %s", ref.Name())
		}
		for _, h := range order {
			if err := e.rehydrateCommit(h); err != nil {
				return errors.Wrapf(err, "rehydrating %s", h)
			}
		}
	}
	return nil
}

// rehydrateCommit reconstructs one already-written mono commit's
// bumpStates/monoFirstParent/Conv entries from its own footers.
func (e *Expander) rehydrateCommit(h plumbing.Hash) error {
	commit, err := e.Mono.CommitObject(h)
	if err != nil {
		return err
	}
	footers, err := annotate.ParseAllFooters([]byte(commit.Message))
	if err != nil {
		return err
	}

	var primaryParent plumbing.Hash
	havePrimary := len(commit.ParentHashes) > 0
	if havePrimary {
		primaryParent = commit.ParentHashes[0]
	}
	bumpState := e.bumpStates[primaryParent].Clone()

	for subdir, hashStr := range footers {
		hash := plumbing.NewHash(hashStr)
		if subdir == annotate.TopSentinel {
			e.Conv.Set(config.TopName, hash, h)
			continue
		}
		repoName, ok := e.repoNameForSubdir(commit, subdir)
		if !ok {
			// Repo no longer configured/fetched: its BumpInfo can't
			// matter to any commit translated from here on.
			continue
		}
		subGraph := e.SubrepoGraphs[repoName]
		if subGraph == nil {
			continue
		}
		subC, ok := subGraph.ByHash(hash)
		if !ok {
			continue
		}
		bumpState[subdir] = BumpInfo{SubrepoCommit: hash, SubrepoDepth: subC.Depth, FirstMonoCommit: h}
		e.Conv.Set(repoName, hash, h)
	}

	e.bumpStates[h] = bumpState
	if havePrimary {
		e.monoFirstParent[h] = primaryParent
	}
	return nil
}

// repoNameForSubdir resolves subdir to its configured repo name by
// reading the .gitmodules blob mounted in commit's own tree, the same
// lookup Session.subdirForRepo performs for the Resolver's read-ahead
// path.
func (e *Expander) repoNameForSubdir(commit *object.Commit, subdir string) (string, bool) {
	f, err := commit.File(".gitmodules")
	if err != nil {
		return "", false
	}
	content, err := f.Contents()
	if err != nil {
		return "", false
	}
	modules, err := gitmodules.Parse([]byte(content), e.Warnings)
	if err != nil {
		return "", false
	}
	entry, ok := modules.Get(subdir)
	if !ok {
		return "", false
	}
	repos := e.Config.ReposForURL(entry.URL)
	if len(repos) == 0 {
		return "", false
	}
	return repos[0].Name, true
}

// ancestorsOldestFirst returns every commit reachable from head not
// already marked in seen, oldest (parent-before-child) first, sealing
// each into seen as it's returned. Mirrors split.go's collectNew, which
// solves the same "parents before children, no reprocessing" problem for
// the Splitter's own history walk.
func ancestorsOldestFirst(repo *gitrepo.Repo, head plumbing.Hash, seen map[plumbing.Hash]bool) ([]plumbing.Hash, error) {
	if seen[head] {
		return nil, nil
	}
	var order []plumbing.Hash
	stack := []plumbing.Hash{head}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		if seen[h] {
			stack = stack[:len(stack)-1]
			continue
		}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		allReady := true
		for _, ph := range commit.ParentHashes {
			if seen[ph] {
				continue
			}
			// Pushed even if already waiting lower on the stack, so that
			// it is finished before h.
			allReady = false
			stack = append(stack, ph)
		}
		if !allReady {
			continue
		}
		stack = stack[:len(stack)-1]
		seen[h] = true
		order = append(order, h)
	}
	return order, nil
}
