package expand

import "github.com/go-git/go-git/v5/plumbing"

// BumpInfo records, for one subdir, which subrepo commit is currently
// installed there and the mono commit that first installed it.
type BumpInfo struct {
	SubrepoCommit   plumbing.Hash
	SubrepoDepth    int
	FirstMonoCommit plumbing.Hash
}

// BumpState is the per-subdir BumpInfo set inherited along a mono
// commit's first-parent chain: each commit starts from a Clone of its
// first parent's state, so unchanged subdirs carry the parent's BumpInfo
// by value; a subdir is deleted from the map entirely when its submodule
// is removed.
type BumpState map[string]BumpInfo

// Clone returns a copy safe for independent mutation.
func (s BumpState) Clone() BumpState {
	out := make(BumpState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
