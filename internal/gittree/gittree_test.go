package gittree

import (
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *gitrepo.Repo {
	t.Helper()
	raw, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)
	return gitrepo.Open("test", raw)
}

func writeBlob(t *testing.T, store *gitrepo.Repo, content string) plumbing.Hash {
	t.Helper()
	underlying := store.Underlying()
	obj := underlying.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h, err := underlying.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return h
}

func TestMountSubtreeCreatesIntermediateDirs(t *testing.T) {
	store := newStore(t)
	blob := writeBlob(t, store, "hello")

	root := &object.Tree{Entries: []object.TreeEntry{
		{Name: "README.md", Mode: filemode.Regular, Hash: blob},
	}}
	rootHash, err := store.WriteTree(root)
	require.NoError(t, err)

	subtree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "main.go", Mode: filemode.Regular, Hash: blob},
	}}
	subtreeHash, err := store.WriteTree(subtree)
	require.NoError(t, err)

	newRoot, err := MountSubtree(store, rootHash, "libs/foo", subtreeHash)
	require.NoError(t, err)

	got, ok, err := SubtreeAt(store, newRoot, "libs/foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, subtreeHash, got)

	// README.md at the root must survive untouched.
	tree, err := store.TreeObject(newRoot)
	require.NoError(t, err)
	require.NotNil(t, findEntry(tree.Entries, "README.md"), "MountSubtree() dropped the sibling README.md entry")
}

func TestMountGitlinkSetsSubmoduleMode(t *testing.T) {
	store := newStore(t)
	commitHash := plumbing.NewHash("1111111111111111111111111111111111111111")

	newRoot, err := MountGitlink(store, plumbing.ZeroHash, "libs/foo", commitHash)
	require.NoError(t, err)
	tree, err := store.TreeObject(newRoot)
	require.NoError(t, err)

	libsEntry := findEntry(tree.Entries, "libs")
	require.NotNil(t, libsEntry)
	require.Equal(t, filemode.Dir, libsEntry.Mode)

	libsTree, err := store.TreeObject(libsEntry.Hash)
	require.NoError(t, err)
	fooEntry := findEntry(libsTree.Entries, "foo")
	require.NotNil(t, fooEntry)
	require.Equal(t, filemode.Submodule, fooEntry.Mode)
	require.Equal(t, commitHash, fooEntry.Hash)
}

func TestRemovePath(t *testing.T) {
	store := newStore(t)
	commitHash := plumbing.NewHash("1111111111111111111111111111111111111111")
	blob := writeBlob(t, store, "hello")

	root := &object.Tree{Entries: []object.TreeEntry{
		{Name: "README.md", Mode: filemode.Regular, Hash: blob},
	}}
	rootHash, err := store.WriteTree(root)
	require.NoError(t, err)
	withGitlink, err := MountGitlink(store, rootHash, "libs/foo", commitHash)
	require.NoError(t, err)

	removed, err := RemovePath(store, withGitlink, "libs/foo")
	require.NoError(t, err)
	_, ok, err := SubtreeAt(store, removed, "libs/foo")
	require.NoError(t, err)
	require.False(t, ok)

	tree, err := store.TreeObject(removed)
	require.NoError(t, err)
	require.NotNil(t, findEntry(tree.Entries, "README.md"), "RemovePath() dropped an unrelated sibling entry")
}

func TestSubtreeAtMissingPath(t *testing.T) {
	store := newStore(t)
	root := &object.Tree{}
	rootHash, err := store.WriteTree(root)
	require.NoError(t, err)
	_, ok, err := SubtreeAt(store, rootHash, "does/not/exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExtractOnlyMissingPathIsError(t *testing.T) {
	store := newStore(t)
	root := &object.Tree{}
	rootHash, err := store.WriteTree(root)
	require.NoError(t, err)
	_, err = ExtractOnly(store, rootHash, "missing")
	require.Error(t, err)
}

func TestJoinSkipsEmptySegments(t *testing.T) {
	require.Equal(t, "libs/foo", Join("libs", "", "foo"))
	require.Equal(t, "", Join(""))
}

func findEntry(entries []object.TreeEntry, name string) *object.TreeEntry {
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i]
		}
	}
	return nil
}
