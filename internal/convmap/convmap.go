// Package convmap implements the Conversion Map: the persistent,
// injective mapping from (subrepo, source hash) to translated mono hash,
// and its inverse.
package convmap

import "github.com/go-git/go-git/v5/plumbing"

// key identifies a source commit within one source repository.
type key struct {
	repo string
	hash plumbing.Hash
}

// Origin records where a translated commit came from.
type Origin struct {
	Repo string
	Hash plumbing.Hash
}

// Map is single-writer: only the expander or splitter that owns a Map
// instance may call Set; readers elsewhere only look up.
type Map struct {
	forward map[key]plumbing.Hash
	inverse map[plumbing.Hash]Origin
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		forward: make(map[key]plumbing.Hash),
		inverse: make(map[plumbing.Hash]Origin),
	}
}

// Set records that (repo, srcHash) translated to monoHash. The first
// write for a given (repo, srcHash) wins: setting it again, with the same
// or a different monoHash, is silently ignored.
func (m *Map) Set(repo string, srcHash, monoHash plumbing.Hash) {
	k := key{repo: repo, hash: srcHash}
	if _, exists := m.forward[k]; exists {
		return
	}
	m.forward[k] = monoHash
	m.inverse[monoHash] = Origin{Repo: repo, Hash: srcHash}
}

// Lookup returns the mono hash a source commit translated to, if known.
func (m *Map) Lookup(repo string, srcHash plumbing.Hash) (plumbing.Hash, bool) {
	h, ok := m.forward[key{repo: repo, hash: srcHash}]
	return h, ok
}

// Has reports whether (repo, srcHash) has already been converted.
func (m *Map) Has(repo string, srcHash plumbing.Hash) bool {
	_, ok := m.Lookup(repo, srcHash)
	return ok
}

// Origin returns the source (repo, hash) a translated mono commit came
// from, if known.
func (m *Map) Origin(monoHash plumbing.Hash) (Origin, bool) {
	o, ok := m.inverse[monoHash]
	return o, ok
}

// Len returns the number of recorded translations.
func (m *Map) Len() int { return len(m.forward) }
