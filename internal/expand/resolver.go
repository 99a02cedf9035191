package expand

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/meroton/git-toprepo/internal/annotate"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/gittree"
	"github.com/meroton/git-toprepo/internal/graph"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/pkg/errors"
)

// Short-window sizes for Resolver.Fetch.
const (
	shortWindowMono    = 1000
	shortWindowSubrepo = 999
)

// errWindowTooSmall signals that the short-window heuristic ran out of
// budget before finding a base, and a full-history retry is warranted.
var errWindowTooSmall = errors.New("short window exhausted without finding a base")

// Resolver grafts newly fetched subrepo commits onto the current mono
// HEAD history, for `git-toprepo fetch <subrepo> <ref>`. Unlike the
// Expander, it has no top-repository commit driving the splice: it
// works purely from the `^-- <subdir> <hash>` footers already present
// in mono history.
type Resolver struct {
	Log  logging.Logger
	Mono *gitrepo.Repo
}

// Fetch inserts newTip and its not-yet-present ancestors onto mono
// history below subdir, returning the mono hash that now represents
// newTip (either a freshly injected commit, or an existing one if newTip
// was already reachable).
func (r *Resolver) Fetch(repoName, subdir string, subGraph *graph.CommitMap, subRepo *gitrepo.Repo, monoHead plumbing.Hash, newTip plumbing.Hash) (plumbing.Hash, error) {
	for _, full := range []bool{false, true} {
		mono, err := r.tryFetch(repoName, subdir, subGraph, subRepo, monoHead, newTip, full)
		if err == errWindowTooSmall {
			continue
		}
		return mono, err
	}
	return plumbing.ZeroHash, fmt.Errorf("no base found for %s %s in mono history under %q", repoName, newTip, subdir)
}

func (r *Resolver) tryFetch(repoName, subdir string, subGraph *graph.CommitMap, subRepo *gitrepo.Repo, monoHead, newTip plumbing.Hash, full bool) (plumbing.Hash, error) {
	bases, err := r.collectBases(subdir, monoHead, full)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	newC, ok := subGraph.ByHash(newTip)
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("commit %s not present in %s's graph", newTip, repoName)
	}

	sq := newDepthQueue()
	sq.Push(newC.Depth, newC.ID)
	queued := map[graph.ID]bool{newC.ID: true}

	var toConvert []graph.ID
	count := 0
	for sq.Len() > 0 {
		_, v := sq.Pop()
		id := v.(graph.ID)
		c, _ := subGraph.ByID(id)

		if _, ok := bases[c.Hash]; ok {
			continue // already reachable in mono history
		}

		count++
		if !full && count > shortWindowSubrepo && sq.Len() > 0 {
			return plumbing.ZeroHash, errWindowTooSmall
		}

		toConvert = append(toConvert, id)
		for _, p := range c.Parents {
			if p.Known && !queued[p.ID] {
				queued[p.ID] = true
				pc, _ := subGraph.ByID(p.ID)
				sq.Push(pc.Depth, p.ID)
			}
		}
	}

	if len(toConvert) == 0 {
		// newTip itself was already a recorded base.
		return bases[newTip], nil
	}

	for i, j := 0, len(toConvert)-1; i < j; i, j = i+1, j-1 {
		toConvert[i], toConvert[j] = toConvert[j], toConvert[i]
	}

	converted := map[plumbing.Hash]plumbing.Hash{}
	var tip plumbing.Hash
	for _, id := range toConvert {
		c, _ := subGraph.ByID(id)

		var parentImages []plumbing.Hash
		for _, p := range c.Parents {
			if !p.Known {
				continue
			}
			pc, _ := subGraph.ByID(p.ID)
			if img, ok := bases[pc.Hash]; ok {
				parentImages = appendUnique(parentImages, img)
				continue
			}
			if img, ok := converted[pc.Hash]; ok {
				parentImages = appendUnique(parentImages, img)
				continue
			}
			return plumbing.ZeroHash, fmt.Errorf("parent %s of %s has no base or conversion", pc.Hash, c.Hash)
		}

		var base plumbing.Hash
		var baseTree plumbing.Hash
		if len(parentImages) > 0 {
			base = parentImages[0]
			baseCommit, err := r.Mono.CommitObject(base)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			baseTree = baseCommit.TreeHash
		}

		if err := gitrepo.CopyTree(subRepo, r.Mono, c.TreeHash); err != nil {
			return plumbing.ZeroHash, err
		}
		newTree, err := gittree.MountSubtree(r.Mono, baseTree, subdir, c.TreeHash)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		msg := annotate.Annotate([]byte(c.Message), subdir, c.Hash.String())
		monoHash, err := r.Mono.WriteCommit(gitrepo.CommitSpec{
			Tree:      newTree,
			Parents:   parentImages,
			Author:    c.Author,
			Committer: c.Committer,
			Message:   string(msg),
		})
		if err != nil {
			return plumbing.ZeroHash, err
		}
		converted[c.Hash] = monoHash
		tip = monoHash
	}

	return tip, nil
}

// collectBases builds the subrepo-hash -> mono-hash map via a BFS over
// mono ancestry (bounded to ~1000 commits unless
// full is set), overwriting on every sighting so that, since the walk
// visits newest commits first, the final value recorded for a repeated
// subrepo hash is the oldest mono commit that introduced it.
func (r *Resolver) collectBases(subdir string, monoHead plumbing.Hash, full bool) (map[plumbing.Hash]plumbing.Hash, error) {
	bases := map[plumbing.Hash]plumbing.Hash{}
	visited := map[plumbing.Hash]bool{}
	queue := []plumbing.Hash{monoHead}
	budget := shortWindowMono

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if visited[h] {
			continue
		}
		visited[h] = true

		if !full {
			budget--
			if budget < 0 {
				break
			}
		}

		commit, err := r.Mono.CommitObject(h)
		if err != nil {
			return nil, errors.Wrapf(err, "reading mono commit %s", h)
		}
		if hash, ok, err := annotate.ParseFooter([]byte(commit.Message), subdir); err != nil {
			return nil, err
		} else if ok {
			bases[plumbing.NewHash(hash)] = h
		}
		for _, ph := range commit.ParentHashes {
			if !visited[ph] {
				queue = append(queue, ph)
			}
		}
	}
	return bases, nil
}
