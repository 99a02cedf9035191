// Package gittree implements the tree surgery the expander and splitter
// need: replacing a gitlink entry with the submodule's tree mounted at
// that path (expander), and extracting only the entries under one
// subdirectory (splitter).
package gittree

import (
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// Store is the minimal object access tree surgery needs.
type Store interface {
	TreeObject(h plumbing.Hash) (*object.Tree, error)
	WriteTree(t *object.Tree) (plumbing.Hash, error)
}

// MountSubtree returns the hash of a tree equal to rootTree but with the
// entry at dirPath (a '/'-separated path) set to a directory entry for
// subtreeHash. Intermediate directories are created or rewritten as
// needed. An existing leaf entry is replaced whatever its mode (gitlink,
// tree or file); submodule rename detection is the caller's job, not this
// function's.
func MountSubtree(store Store, rootTree plumbing.Hash, dirPath string, subtreeHash plumbing.Hash) (plumbing.Hash, error) {
	segments := strings.Split(strings.Trim(dirPath, "/"), "/")
	return mountAt(store, rootTree, segments, subtreeHash, filemode.Dir)
}

// MountGitlink is MountSubtree's counterpart for the splitter: it sets
// the leaf entry at dirPath to a 160000 gitlink pointing at commitHash,
// rather than a tree, restoring the pointer representation the top
// repository expects.
func MountGitlink(store Store, rootTree plumbing.Hash, dirPath string, commitHash plumbing.Hash) (plumbing.Hash, error) {
	segments := strings.Split(strings.Trim(dirPath, "/"), "/")
	return mountAt(store, rootTree, segments, commitHash, filemode.Submodule)
}

func mountAt(store Store, treeHash plumbing.Hash, segments []string, leafHash plumbing.Hash, leafMode filemode.FileMode) (plumbing.Hash, error) {
	var t object.Tree
	if treeHash != plumbing.ZeroHash {
		existing, err := store.TreeObject(treeHash)
		if err != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "reading tree %s", treeHash)
		}
		t.Entries = append([]object.TreeEntry(nil), existing.Entries...)
	}

	name := segments[0]
	idx := -1
	for i, e := range t.Entries {
		if e.Name == name {
			idx = i
			break
		}
	}

	if len(segments) == 1 {
		newEntry := object.TreeEntry{Name: name, Mode: leafMode, Hash: leafHash}
		if idx >= 0 {
			t.Entries[idx] = newEntry
		} else {
			t.Entries = append(t.Entries, newEntry)
		}
	} else {
		var childHash plumbing.Hash
		if idx >= 0 {
			childHash = t.Entries[idx].Hash
		}
		newChildHash, err := mountAt(store, childHash, segments[1:], leafHash, leafMode)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		newEntry := object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newChildHash}
		if idx >= 0 {
			t.Entries[idx] = newEntry
		} else {
			t.Entries = append(t.Entries, newEntry)
		}
	}

	sortEntries(t.Entries)
	return store.WriteTree(&t)
}

// RemovePath returns the hash of a tree equal to rootTree but with the
// entry at dirPath removed, used when a bump deletes a submodule.
func RemovePath(store Store, rootTree plumbing.Hash, dirPath string) (plumbing.Hash, error) {
	segments := strings.Split(strings.Trim(dirPath, "/"), "/")
	return removeAt(store, rootTree, segments)
}

func removeAt(store Store, treeHash plumbing.Hash, segments []string) (plumbing.Hash, error) {
	if treeHash == plumbing.ZeroHash {
		return plumbing.ZeroHash, nil
	}
	existing, err := store.TreeObject(treeHash)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "reading tree %s", treeHash)
	}
	entries := append([]object.TreeEntry(nil), existing.Entries...)

	name := segments[0]
	idx := -1
	for i, e := range entries {
		if e.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return treeHash, nil
	}

	if len(segments) == 1 {
		entries = append(entries[:idx], entries[idx+1:]...)
	} else {
		newChildHash, err := removeAt(store, entries[idx].Hash, segments[1:])
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries[idx] = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newChildHash}
	}

	sortEntries(entries)
	return store.WriteTree(&object.Tree{Entries: entries})
}

// SubtreeAt returns the hash of the tree found at dirPath inside
// rootTree, or plumbing.ZeroHash, false if no such path exists.
func SubtreeAt(store Store, rootTree plumbing.Hash, dirPath string) (plumbing.Hash, bool, error) {
	dirPath = strings.Trim(dirPath, "/")
	if dirPath == "" {
		return rootTree, true, nil
	}
	segments := strings.Split(dirPath, "/")
	h := rootTree
	for _, seg := range segments {
		if h == plumbing.ZeroHash {
			return plumbing.ZeroHash, false, nil
		}
		t, err := store.TreeObject(h)
		if err != nil {
			return plumbing.ZeroHash, false, errors.Wrapf(err, "reading tree %s", h)
		}
		found := false
		for _, e := range t.Entries {
			if e.Name == seg {
				h = e.Hash
				found = true
				break
			}
		}
		if !found {
			return plumbing.ZeroHash, false, nil
		}
	}
	return h, true, nil
}

// ExtractOnly returns the hash of a tree containing only the subtree
// rooted at dirPath, itself mounted at the root (used by the splitter to
// produce a per-subrepo commit tree from the mono tree). If dirPath is
// "" (the top repository), rootTree itself is returned unchanged; turning
// submodule subdirs back into gitlinks for the top repository is the
// caller's job.
func ExtractOnly(store Store, rootTree plumbing.Hash, dirPath string) (plumbing.Hash, error) {
	sub, ok, err := SubtreeAt(store, rootTree, dirPath)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok {
		return plumbing.ZeroHash, errors.Errorf("path %q not found in tree %s", dirPath, rootTree)
	}
	return sub, nil
}

func sortEntries(entries []object.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entryKey(entries[i]) < entryKey(entries[j])
	})
}

// entryKey reproduces git's tree entry ordering: directory names sort as
// if they had a trailing slash.
func entryKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Join joins path segments with '/', skipping empty ones, matching the
// subdir paths used throughout (e.g. "" for the top repository vs "lib/sub").
func Join(elems ...string) string {
	var nonEmpty []string
	for _, e := range elems {
		if e != "" {
			nonEmpty = append(nonEmpty, e)
		}
	}
	return path.Join(nonEmpty...)
}
