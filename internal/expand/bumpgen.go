package expand

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/meroton/git-toprepo/internal/annotate"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/gittree"
	"github.com/meroton/git-toprepo/internal/graph"
)

// monoCandidate is one entry in the mono-side iterator: a BumpInfo still
// attached to an already-produced mono commit.
type monoCandidate struct {
	bump       BumpInfo
	monoCommit plumbing.Hash
}

// branchConvFor returns the per-branch, per-repo subrepo conversion cache,
// creating it on first use.
func (e *Expander) branchConvFor(repoName string) map[plumbing.Hash]plumbing.Hash {
	m, ok := e.branchConv[repoName]
	if !ok {
		m = map[plumbing.Hash]plumbing.Hash{}
		e.branchConv[repoName] = m
	}
	return m
}

// injectBump splices repoName's history up to newHash into the mono
// repository ahead of the commit currently being translated. monoParents
// are the translated images of the top
// commit's own parents, used to seed the mono-side iterator. It returns
// the translated images that must be added to the mono commit's own
// parent list (the images of newHash's parents): newHash itself is not
// injected as a separate commit, since its content becomes part of the
// mono commit being built.
func (e *Expander) injectBump(repoName string, subGraph *graph.CommitMap, subdir string, newHash plumbing.Hash, monoParents []plumbing.Hash) ([]plumbing.Hash, error) {
	subRepo := e.SubrepoRepos[repoName]
	conv := e.branchConvFor(repoName)

	newC, ok := subGraph.ByHash(newHash)
	if !ok {
		return nil, fmt.Errorf("commit %s not present in %s's graph", newHash, repoName)
	}

	// Subrepo-side queue: candidates to potentially convert, deepest
	// first.
	sq := newDepthQueue()
	sq.Push(newC.Depth, newC.ID)
	queued := map[graph.ID]bool{newC.ID: true}

	// Mono-side iterator: bases already known from M(C)'s translated
	// parents, also deepest first.
	mq := newDepthQueue()
	for _, mp := range monoParents {
		if info, ok := e.bumpStates[mp][subdir]; ok {
			mq.Push(info.SubrepoDepth, monoCandidate{bump: info, monoCommit: mp})
		}
	}

	advanceMono := func() {
		_, v := mq.Pop()
		cand := v.(monoCandidate)
		if _, already := conv[cand.bump.SubrepoCommit]; !already {
			conv[cand.bump.SubrepoCommit] = cand.monoCommit
			e.Conv.Set(repoName, cand.bump.SubrepoCommit, cand.monoCommit)
		}
		// Jump past the run of mono commits that all share this same
		// BumpInfo (inherited, unchanged) straight to the commit that
		// changed it last, then look one step further back.
		if fp, ok := e.monoFirstParent[cand.bump.FirstMonoCommit]; ok {
			if info, ok := e.bumpStates[fp][subdir]; ok {
				mq.Push(info.SubrepoDepth, monoCandidate{bump: info, monoCommit: fp})
			}
		}
	}

	var toConvert []graph.ID
	for sq.Len() > 0 {
		depth, v := sq.Pop()
		id := v.(graph.ID)
		c, _ := subGraph.ByID(id)

		for {
			d, ok := mq.PeekDepth()
			if !ok || d < depth {
				break
			}
			advanceMono()
		}

		if _, already := conv[c.Hash]; already {
			// Shared base: this subrepo commit (and everything behind
			// it) is already reachable through mono history.
			continue
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

	// Inject oldest first: every parent of a commit being injected must
	// already have a Conversion Map entry.
	for i, j := 0, len(toConvert)-1; i < j; i, j = i+1, j-1 {
		toConvert[i], toConvert[j] = toConvert[j], toConvert[i]
	}

	var extraParents []plumbing.Hash
	for _, id := range toConvert {
		c, _ := subGraph.ByID(id)

		var parentImages []plumbing.Hash
		for _, p := range c.Parents {
			if !p.Known {
				continue
			}
			pc, _ := subGraph.ByID(p.ID)
			img, ok := conv[pc.Hash]
			if !ok {
				return nil, fmt.Errorf("parent %s of %s has no conversion yet", pc.Hash, c.Hash)
			}
			parentImages = appendUnique(parentImages, img)
		}

		if c.Hash == newHash {
			// Realised by the caller's own commit, not injected here.
			extraParents = append(extraParents, parentImages...)
			continue
		}

		var base plumbing.Hash
		var baseTree plumbing.Hash
		if len(parentImages) > 0 {
			base = parentImages[0]
			baseCommit, err := e.Mono.CommitObject(base)
			if err != nil {
				return nil, err
			}
			baseTree = baseCommit.TreeHash
		}

		if err := gitrepo.CopyTree(subRepo, e.Mono, c.TreeHash); err != nil {
			return nil, err
		}
		newTree, err := gittree.MountSubtree(e.Mono, baseTree, subdir, c.TreeHash)
		if err != nil {
			return nil, err
		}

		msg := annotate.Annotate([]byte(c.Message), subdir, c.Hash.String())
		monoHash, err := e.Mono.WriteCommit(gitrepo.CommitSpec{
			Tree:      newTree,
			Parents:   parentImages,
			Author:    c.Author,
			Committer: c.Committer,
			Message:   string(msg),
		})
		if err != nil {
			return nil, err
		}

		conv[c.Hash] = monoHash
		e.Conv.Set(repoName, c.Hash, monoHash)
		e.monoFirstParent[monoHash] = base

		var bs BumpState
		if base != plumbing.ZeroHash {
			bs = e.bumpStates[base].Clone()
		} else {
			bs = BumpState{}
		}
		bs[subdir] = BumpInfo{SubrepoCommit: c.Hash, SubrepoDepth: c.Depth, FirstMonoCommit: monoHash}
		e.bumpStates[monoHash] = bs
	}

	return extraParents, nil
}
