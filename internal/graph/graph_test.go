package graph

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// writeCommit builds a single commit object directly against the storer,
// bypassing a worktree (none of these tests need file contents, only the
// commit graph shape).
func writeCommit(t *testing.T, repo *git.Repository, msg string, parents []plumbing.Hash) plumbing.Hash {
	t.Helper()

	empty := &object.Tree{}
	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, empty.Encode(obj))
	treeHash, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	sig := object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(0, 0).UTC()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      msg,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	cObj := repo.Storer.NewEncodedObject()
	require.NoError(t, commit.Encode(cObj))
	h, err := repo.Storer.SetEncodedObject(cObj)
	require.NoError(t, err)
	return h
}

func newMemRepo(t *testing.T) *git.Repository {
	t.Helper()
	repo, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)
	return repo
}

func TestCollectLinearHistory(t *testing.T) {
	repo := newMemRepo(t)

	c1 := writeCommit(t, repo, "first", nil)
	c2 := writeCommit(t, repo, "second", []plumbing.Hash{c1})
	c3 := writeCommit(t, repo, "third", []plumbing.Hash{c2})

	ref := plumbing.NewHashReference("refs/heads/main", c3)
	require.NoError(t, repo.Storer.SetReference(ref))

	m, err := Collect(repo, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	first, ok := m.ByHash(c1)
	require.True(t, ok)
	require.Equal(t, 1, first.Depth)

	third, ok := m.ByHash(c3)
	require.True(t, ok)
	require.Equal(t, 3, third.Depth)

	require.Len(t, third.Parents, 1)
	require.True(t, third.Parents[0].Known)

	second, _ := m.ByHash(c2)
	require.Equal(t, second.ID, third.Parents[0].ID)
}

func TestCollectMergeCommitDepth(t *testing.T) {
	repo := newMemRepo(t)

	root := writeCommit(t, repo, "root", nil)
	left := writeCommit(t, repo, "left", []plumbing.Hash{root})
	right1 := writeCommit(t, repo, "right1", []plumbing.Hash{root})
	right2 := writeCommit(t, repo, "right2", []plumbing.Hash{right1})
	merge := writeCommit(t, repo, "merge", []plumbing.Hash{left, right2})

	ref := plumbing.NewHashReference("refs/heads/main", merge)
	require.NoError(t, repo.Storer.SetReference(ref))

	m, err := Collect(repo, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)
	require.Equal(t, 5, m.Len())

	mergeCommit, ok := m.ByHash(merge)
	require.True(t, ok)
	// merge's depth = 1 + max(depth(left)=2, depth(right2)=3) = 4.
	require.Equal(t, 4, mergeCommit.Depth)
	require.Len(t, mergeCommit.Parents, 2)
}

func TestCollectUnresolvedParentIsShallowBoundary(t *testing.T) {
	repo := newMemRepo(t)

	// A parent hash that was never written to the store: simulates a
	// shallow-clone boundary.
	phantom := plumbing.NewHash("1111111111111111111111111111111111111111")
	tip := writeCommit(t, repo, "tip", []plumbing.Hash{phantom})

	ref := plumbing.NewHashReference("refs/heads/main", tip)
	require.NoError(t, repo.Storer.SetReference(ref))

	m, err := Collect(repo, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len(), "the phantom parent should not be materialized")

	c, ok := m.ByHash(tip)
	require.True(t, ok)
	require.Len(t, c.Parents, 1)
	require.False(t, c.Parents[0].Known)
	require.Equal(t, phantom, c.Parents[0].Hash)
	require.Equal(t, 1, c.Depth, "unresolved parents don't contribute depth")
}

func TestJoinRemapsIDsWithoutCollision(t *testing.T) {
	repoA := newMemRepo(t)
	a1 := writeCommit(t, repoA, "a1", nil)
	refA := plumbing.NewHashReference("refs/heads/main", a1)
	require.NoError(t, repoA.Storer.SetReference(refA))
	mapA, err := Collect(repoA, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)

	repoB := newMemRepo(t)
	b1 := writeCommit(t, repoB, "b1", nil)
	b2 := writeCommit(t, repoB, "b2", []plumbing.Hash{b1})
	refB := plumbing.NewHashReference("refs/heads/main", b2)
	require.NoError(t, repoB.Storer.SetReference(refB))
	mapB, err := Collect(repoB, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)

	joined := Join(mapA, mapB)
	require.Equal(t, 3, joined.Len())

	ca, ok := joined.ByHash(a1)
	require.True(t, ok)
	cb2, ok := joined.ByHash(b2)
	require.True(t, ok)
	require.NotEqual(t, ca.ID, cb2.ID, "Join() assigned colliding IDs")

	// b2's parent ID must have been remapped to point at the joined b1, not
	// at whatever ID happened to collide from mapA.
	cb1, _ := joined.ByHash(b1)
	require.Len(t, cb2.Parents, 1)
	require.True(t, cb2.Parents[0].Known)
	require.Equal(t, cb1.ID, cb2.Parents[0].ID)
}

func TestHashesIsSortedAndStable(t *testing.T) {
	repo := newMemRepo(t)
	c1 := writeCommit(t, repo, "c1", nil)
	c2 := writeCommit(t, repo, "c2", []plumbing.Hash{c1})
	ref := plumbing.NewHashReference("refs/heads/main", c2)
	require.NoError(t, repo.Storer.SetReference(ref))

	m, err := Collect(repo, []plumbing.ReferenceName{"refs/heads/main"})
	require.NoError(t, err)

	h1 := m.Hashes()
	h2 := m.Hashes()
	require.Len(t, h1, 2)
	require.True(t, h1[0].String() < h1[1].String(), "Hashes() = %v, want sorted ascending", h1)
	require.Equal(t, h1, h2, "Hashes() is not stable across calls")
}
