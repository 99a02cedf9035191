// Package graph implements the Commit Graph Store: a per-source-repository
// cache of commit metadata populated by streaming a repository's history
// once.
package graph

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// ID is a local, per-CommitMap identifier for a commit. IDs are dense and
// stable only within the CommitMap that minted them.
type ID int

// Parent is either a resolved local ID (Known true) or a bare hash for a
// commit that has not been loaded yet (e.g. a shallow-clone boundary).
type Parent struct {
	Known bool
	ID    ID
	Hash  plumbing.Hash
}

// Commit is the compact record the store keeps for every loaded commit.
type Commit struct {
	ID        ID
	Hash      plumbing.Hash
	TreeHash  plumbing.Hash
	Parents   []Parent
	Author    object.Signature
	Committer object.Signature
	Message   string
	// Depth is 1 + max(depth of known parents), or 1 for roots. It is
	// monotone along known edges but need not equal the graph's longest
	// path when a parent is unresolved.
	Depth int
}

// CommitMap is the result of collecting one repository's reachable history.
type CommitMap struct {
	byID   map[ID]*Commit
	byHash map[plumbing.Hash]*Commit
	nextID ID
}

// New returns an empty CommitMap.
func New() *CommitMap {
	return &CommitMap{
		byID:   make(map[ID]*Commit),
		byHash: make(map[plumbing.Hash]*Commit),
	}
}

// ByHash looks up a commit by its original hash.
func (m *CommitMap) ByHash(h plumbing.Hash) (*Commit, bool) {
	c, ok := m.byHash[h]
	return c, ok
}

// ByID looks up a commit by local id.
func (m *CommitMap) ByID(id ID) (*Commit, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// Len returns the number of commits held.
func (m *CommitMap) Len() int { return len(m.byID) }

// Hashes returns every commit hash present, in an arbitrary but stable order.
func (m *CommitMap) Hashes() []plumbing.Hash {
	out := make([]plumbing.Hash, 0, len(m.byHash))
	for h := range m.byHash {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// CommitSource is the minimal repository access the collector needs. It is
// satisfied by *gitrepo.Repo and by test doubles.
type CommitSource interface {
	ResolveRevision(rev plumbing.Revision) (*plumbing.Hash, error)
	CommitObject(h plumbing.Hash) (*object.Commit, error)
}

// Collect streams every commit reachable from refs and assigns each a local
// id, parents before children. A parent that cannot be read from src (e.g.
// a shallow-clone boundary) is recorded as unresolved (Parent.Known ==
// false) and is not materialized.
//
// The walk uses an explicit worklist instead of recursing through
// object.Commit.Parents() so histories deeper than the Go call stack can be
// collected safely.
func Collect(src CommitSource, refs []plumbing.ReferenceName) (*CommitMap, error) {
	m := New()

	var heads []plumbing.Hash
	for _, ref := range refs {
		h, err := src.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return nil, errors.Wrapf(err, "resolving ref %s", ref)
		}
		heads = append(heads, *h)
	}

	// Post-order worklist: push the commit, then push its unsealed parents;
	// when a commit's parents are all sealed (or unreadable) we can assign
	// it a depth and seal it. A commit pushed more than once is sealed only
	// the first time it is reached, so a diamond isn't processed twice.
	pending := map[plumbing.Hash]bool{}
	missing := map[plumbing.Hash]bool{}
	var stack []plumbing.Hash
	for _, h := range heads {
		if !pending[h] && m.byHash[h] == nil {
			stack = append(stack, h)
			pending[h] = true
		}
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		if _, done := m.byHash[h]; done {
			stack = stack[:len(stack)-1]
			continue
		}

		co, err := src.CommitObject(h)
		if err != nil {
			// Unresolvable: treat as a shallow boundary, not an error,
			// by simply not materializing it; referrers keep it as an
			// unresolved Parent.
			stack = stack[:len(stack)-1]
			delete(pending, h)
			missing[h] = true
			continue
		}

		allParentsReady := true
		for _, ph := range co.ParentHashes {
			if _, ok := m.byHash[ph]; ok {
				continue
			}
			if missing[ph] {
				continue
			}
			// Pushed even if already pending lower on the stack, so that
			// it is sealed before h.
			allParentsReady = false
			stack = append(stack, ph)
			pending[ph] = true
		}
		if !allParentsReady {
			continue
		}

		stack = stack[:len(stack)-1]
		delete(pending, h)

		id := m.nextID
		m.nextID++

		depth := 1
		var parents []Parent
		for _, ph := range co.ParentHashes {
			if pc, ok := m.byHash[ph]; ok {
				parents = append(parents, Parent{Known: true, ID: pc.ID})
				if pc.Depth+1 > depth {
					depth = pc.Depth + 1
				}
			} else {
				parents = append(parents, Parent{Known: false, Hash: ph})
			}
		}

		tree, err := co.Tree()
		if err != nil {
			return nil, errors.Wrapf(err, "reading tree for commit %s", h)
		}

		c := &Commit{
			ID:        id,
			Hash:      h,
			TreeHash:  tree.Hash,
			Parents:   parents,
			Author:    co.Author,
			Committer: co.Committer,
			Message:   co.Message,
			Depth:     depth,
		}
		m.byID[id] = c
		m.byHash[h] = c
	}

	return m, nil
}

// Join re-keys and concatenates several CommitMaps built for distinct
// repositories into one namespace, keeping each map's id order.
func Join(maps ...*CommitMap) *CommitMap {
	out := New()
	for _, m := range maps {
		remap := make(map[ID]ID, len(m.byID))
		// Insert in id order so depth-derived relationships stay
		// legible when debugging joined output.
		ids := make([]ID, 0, len(m.byID))
		for id := range m.byID {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, oldID := range ids {
			remap[oldID] = out.nextID
			out.nextID++
		}
		for _, oldID := range ids {
			c := m.byID[oldID]
			nc := *c
			nc.ID = remap[oldID]
			newParents := make([]Parent, len(c.Parents))
			for i, p := range c.Parents {
				if p.Known {
					newParents[i] = Parent{Known: true, ID: remap[p.ID]}
				} else {
					newParents[i] = p
				}
			}
			nc.Parents = newParents
			out.byID[nc.ID] = &nc
			out.byHash[nc.Hash] = &nc
		}
	}
	return out
}
