// Package gitrepo wraps a go-git repository with the handful of
// operations the translator needs: resolving revisions, reading commits
// and trees, writing new commit/tree objects, and moving refs. It is the
// one place that touches go-git's storer directly, synthesizing commits
// via Storer.SetEncodedObject.
package gitrepo

import (
	"io"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// Repo wraps *git.Repository with a write mutex: the mono object database
// is the only shared mutable resource, so every write path serializes
// through writeMu even when fetches run concurrently.
type Repo struct {
	Name string
	repo *git.Repository

	writeMu sync.Mutex
}

// Open wraps an already-open go-git repository.
func Open(name string, r *git.Repository) *Repo {
	return &Repo{Name: name, repo: r}
}

// PlainOpen opens a repository on disk.
func PlainOpen(name, path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening repository %s at %s", name, path)
	}
	return Open(name, r), nil
}

// PlainInit creates a new repository on disk.
func PlainInit(name, path string, bare bool) (*Repo, error) {
	r, err := git.PlainInit(path, bare)
	if err != nil {
		return nil, errors.Wrapf(err, "initializing repository %s at %s", name, path)
	}
	return Open(name, r), nil
}

// Underlying exposes the go-git repository for callers that need wider
// API surface (e.g. the CLI's remote management) than this wrapper
// provides.
func (r *Repo) Underlying() *git.Repository { return r.repo }

// ResolveRevision resolves a revision string (ref name, short hash, etc.)
// to a commit hash.
func (r *Repo) ResolveRevision(rev plumbing.Revision) (*plumbing.Hash, error) {
	return r.repo.ResolveRevision(rev)
}

// CommitObject loads a commit by hash.
func (r *Repo) CommitObject(h plumbing.Hash) (*object.Commit, error) {
	return r.repo.CommitObject(h)
}

// TreeObject loads a tree by hash.
func (r *Repo) TreeObject(h plumbing.Hash) (*object.Tree, error) {
	return r.repo.TreeObject(h)
}

// BlobAt reads a path out of the tree of the given commit, erroring if the
// path doesn't exist or isn't a regular file.
func (r *Repo) BlobAt(commitHash plumbing.Hash, path string) ([]byte, error) {
	c, err := r.CommitObject(commitHash)
	if err != nil {
		return nil, err
	}
	f, err := c.File(path)
	if err != nil {
		return nil, err
	}
	content, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// WriteTree stores a tree object and returns its hash.
func (r *Repo) WriteTree(t *object.Tree) (plumbing.Hash, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	obj := r.repo.Storer.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "encoding tree")
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// CommitSpec describes a commit to be written by WriteCommit.
type CommitSpec struct {
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Author    object.Signature
	Committer object.Signature
	Message   string
}

// WriteCommit stores a commit object built from spec and returns its hash.
// Parent hashes must already be resolvable in the object database: callers
// (the expander) must write injected subrepo commits before the mono
// commit that references them as parents.
func (r *Repo) WriteCommit(spec CommitSpec) (plumbing.Hash, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	c := &object.Commit{
		Author:       spec.Author,
		Committer:    spec.Committer,
		TreeHash:     spec.Tree,
		ParentHashes: spec.Parents,
		Message:      spec.Message,
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "encoding commit")
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// SetRef creates or updates a reference to point at hash.
func (r *Repo) SetRef(name plumbing.ReferenceName, hash plumbing.Hash) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.repo.Storer.SetReference(plumbing.NewHashReference(name, hash))
}

// DeleteRef removes a reference.
func (r *Repo) DeleteRef(name plumbing.ReferenceName) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.repo.Storer.RemoveReference(name)
}

// Ref resolves a reference by name.
func (r *Repo) Ref(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	return r.repo.Reference(name, true)
}

// Refs lists every reference matching prefix (e.g. "refs/heads/").
func (r *Repo) Refs(prefix string) ([]*plumbing.Reference, error) {
	iter, err := r.repo.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if prefix == "" || hasPrefix(string(ref.Name()), prefix) {
			out = append(out, ref)
		}
		return nil
	})
	return out, err
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Fetch fetches refSpecs from a named remote URL into this repository by
// creating an anonymous remote and fetching directly into the given
// local ref names, without registering a persistent remote.
func (r *Repo) Fetch(remoteName, url string, refSpecs []config.RefSpec) error {
	remote, err := r.repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})
	if err != nil {
		return errors.Wrapf(err, "creating remote for %s", url)
	}
	err = remote.Fetch(&git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   refSpecs,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrapf(err, "fetching from %s", url)
	}
	return nil
}

// CopyTree recursively copies a tree object, and every blob and nested
// tree reachable from it, from src into dst. Submodule gitlink entries
// are left alone: they reference a commit in a different repository
// entirely and are not part of this tree's own object set. Objects dst
// already has are skipped. Mono commit objects referencing injected
// subrepo trees must have those trees actually present in the mono
// object database, not merely referenced by hash.
func CopyTree(src, dst *Repo, hash plumbing.Hash) error {
	if hash == plumbing.ZeroHash {
		return nil
	}
	if _, err := dst.repo.Storer.EncodedObject(plumbing.AnyObject, hash); err == nil {
		return nil // already present
	}

	if err := copyObject(src, dst, hash); err != nil {
		return errors.Wrapf(err, "copying tree object %s", hash)
	}

	t, err := src.TreeObject(hash)
	if err != nil {
		return errors.Wrapf(err, "reading tree %s", hash)
	}
	for _, e := range t.Entries {
		if e.Mode == filemode.Submodule {
			continue
		}
		if e.Mode == filemode.Dir {
			if err := CopyTree(src, dst, e.Hash); err != nil {
				return err
			}
		} else {
			if _, err := dst.repo.Storer.EncodedObject(plumbing.AnyObject, e.Hash); err == nil {
				continue
			}
			if err := copyObject(src, dst, e.Hash); err != nil {
				return errors.Wrapf(err, "copying blob %s", e.Hash)
			}
		}
	}
	return nil
}

func copyObject(src, dst *Repo, hash plumbing.Hash) error {
	srcObj, err := src.repo.Storer.EncodedObject(plumbing.AnyObject, hash)
	if err != nil {
		return err
	}
	dst.writeMu.Lock()
	defer dst.writeMu.Unlock()
	dstObj := dst.repo.Storer.NewEncodedObject()
	dstObj.SetType(srcObj.Type())
	dstObj.SetSize(srcObj.Size())

	r, err := srcObj.Reader()
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := dstObj.Writer()
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	_, err = dst.repo.Storer.SetEncodedObject(dstObj)
	return err
}

// Push pushes refSpecs to a named remote URL.
func (r *Repo) Push(remoteName, url string, refSpecs []config.RefSpec) error {
	remote, err := r.repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})
	if err != nil {
		return errors.Wrapf(err, "creating remote for %s", url)
	}
	err = remote.Push(&git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   refSpecs,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrapf(err, "pushing to %s", url)
	}
	return nil
}
