package expand

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/graph"
	"github.com/meroton/git-toprepo/internal/ledger"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/stretchr/testify/require"
)

func libfooConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		TopFetchURL: "https://example.com/top.git",
		TopPushURL:  "https://example.com/top.git",
		Repos: map[string]*config.RepoConfig{
			"libfoo": {
				Name:     "libfoo",
				URLs:     []string{"https://example.com/libfoo.git"},
				FetchURL: "https://example.com/libfoo.git",
				PushURL:  "https://example.com/libfoo.git",
				Enabled:  true,
			},
		},
		RawURLToRepos: map[string][]*config.RepoConfig{},
		Ledger:        ledger.New(),
	}
	cfg.RawURLToRepos["https://example.com/libfoo.git"] = []*config.RepoConfig{cfg.Repos["libfoo"]}
	return cfg
}

// TestRehydrateRebuildsConversionMapAndBumpState simulates two separate
// CLI invocations sharing the same mono object database: the first
// Expander translates a top branch and the resulting mono tip is recorded
// under refs/remotes/origin/main (as Session.RefilterAll does), then a
// second, freshly constructed Expander (expander == nil at process start,
// exactly like a new OS process) must recover the same Conversion Map and
// BumpInfo state by walking that ref's history, rather than starting from
// an empty state and retranslating everything.
func TestRehydrateRebuildsConversionMapAndBumpState(t *testing.T) {
	mono, topRepo, subRepo := newSharedStore(t)

	subFileBlob := writeBlob(t, subRepo, "package foo\n")
	subTree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "foo.go", Mode: filemode.Regular, Hash: subFileBlob},
	}}
	subTreeHash, err := subRepo.WriteTree(subTree)
	require.NoError(t, err)
	subCommitHash, err := subRepo.WriteCommit(gitrepo.CommitSpec{
		Tree: subTreeHash, Author: sig(), Committer: sig(), Message: "Add foo.go",
	})
	require.NoError(t, err)
	require.NoError(t, subRepo.SetRef("refs/repos/libfoo/heads/main", subCommitHash))

	gitmodulesHash := writeBlob(t, topRepo, gitmodulesBlob)
	libsTree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "foo", Mode: filemode.Submodule, Hash: subCommitHash},
	}}
	libsTreeHash, err := topRepo.WriteTree(libsTree)
	require.NoError(t, err)
	topTree := &object.Tree{Entries: []object.TreeEntry{
		{Name: ".gitmodules", Mode: filemode.Regular, Hash: gitmodulesHash},
		{Name: "libs", Mode: filemode.Dir, Hash: libsTreeHash},
	}}
	topTreeHash, err := topRepo.WriteTree(topTree)
	require.NoError(t, err)
	topCommitHash, err := topRepo.WriteCommit(gitrepo.CommitSpec{
		Tree: topTreeHash, Author: sig(), Committer: sig(), Message: "Add libfoo submodule",
	})
	require.NoError(t, err)
	require.NoError(t, topRepo.SetRef("refs/repos/top/heads/main", topCommitHash))

	cfg := libfooConfig()

	topGraph, err := graph.Collect(topRepo, []plumbing.ReferenceName{"refs/repos/top/heads/main"})
	require.NoError(t, err)
	subGraph, err := graph.Collect(subRepo, []plumbing.ReferenceName{"refs/repos/libfoo/heads/main"})
	require.NoError(t, err)

	e1 := New(logging.Nop(), mono, topRepo, cfg)
	e1.SubrepoRepos["libfoo"] = subRepo
	e1.SubrepoGraphs["libfoo"] = subGraph

	monoTip, err := e1.ExpandRef(topGraph, topCommitHash, "main")
	require.NoError(t, err)
	require.NoError(t, mono.SetRef("refs/remotes/origin/main", monoTip))

	// A fresh Expander, as a new OS process would construct via
	// expand.New, with no prior in-memory state at all.
	e2 := New(logging.Nop(), mono, topRepo, cfg)
	e2.SubrepoRepos["libfoo"] = subRepo
	e2.SubrepoGraphs["libfoo"] = subGraph

	require.NoError(t, e2.Rehydrate())
	require.True(t, e2.Rehydrated)

	gotMono, ok := e2.Conv.Lookup(config.TopName, topCommitHash)
	require.True(t, ok, "want the top commit recovered into the Conversion Map")
	require.Equal(t, monoTip, gotMono)
	require.True(t, e2.Conv.Has("libfoo", subCommitHash), "want the subrepo commit recovered into the Conversion Map")

	bumpState, ok := e2.bumpStates[monoTip]
	require.True(t, ok, "want BumpState recovered for the mono tip")
	info, ok := bumpState["libs/foo"]
	require.True(t, ok)
	require.Equal(t, subCommitHash, info.SubrepoCommit)
	require.Equal(t, monoTip, info.FirstMonoCommit)

	// A subsequent call must be a no-op rather than re-walking history.
	require.NoError(t, e2.Rehydrate())

	// ExpandRef on the rehydrated Expander must recognize topCommitHash as
	// already translated instead of retranslating it from the root.
	again, err := e2.ExpandRef(topGraph, topCommitHash, "main")
	require.NoError(t, err)
	require.Equal(t, monoTip, again)
}

// TestRehydrateIsNoOpWhenAlreadyMarked confirms the from-scratch path
// (which sets Rehydrated true up front) leaves a genuinely empty Expander
// empty, even though matching history exists to rehydrate from.
func TestRehydrateIsNoOpWhenAlreadyMarked(t *testing.T) {
	mono, topRepo, _ := newSharedStore(t)
	cfg := libfooConfig()
	e := New(logging.Nop(), mono, topRepo, cfg)
	e.Rehydrated = true

	require.NoError(t, e.Rehydrate())
	require.Empty(t, e.bumpStates)
	require.Equal(t, 0, e.Conv.Len())
}
