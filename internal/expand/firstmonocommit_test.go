package expand

import (
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/graph"
	"github.com/meroton/git-toprepo/internal/ledger"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/stretchr/testify/require"
)

const twoSubReposGitmodulesBlob = `[submodule "libfoo"]
	path = libs/foo
	url = https://example.com/libfoo.git
[submodule "libbar"]
	path = libs/bar
	url = https://example.com/libbar.git
`

// TestTranslateCommitOnlyMovesFirstMonoCommitForTouchedSubdirs builds two
// top commits: the first pins both libfoo and libbar, the second bumps
// only libfoo. libbar's BumpInfo is carried over unchanged by
// BumpState.Clone, and its FirstMonoCommit landmark must still point at
// the mono commit that first installed it, not the later commit that
// merely inherited it untouched.
func TestTranslateCommitOnlyMovesFirstMonoCommitForTouchedSubdirs(t *testing.T) {
	raw, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)
	mono := gitrepo.Open("mono", raw)
	topRepo := gitrepo.Open("top", raw)
	fooRepo := gitrepo.Open("libfoo", raw)
	barRepo := gitrepo.Open("libbar", raw)

	writeSingleFileCommit := func(repo *gitrepo.Repo, name, content string, parents []plumbing.Hash) plumbing.Hash {
		blob := writeBlob(t, repo, content)
		tree := &object.Tree{Entries: []object.TreeEntry{{Name: name, Mode: filemode.Regular, Hash: blob}}}
		treeHash, err := repo.WriteTree(tree)
		require.NoError(t, err)
		hash, err := repo.WriteCommit(gitrepo.CommitSpec{
			Tree: treeHash, Parents: parents, Author: sig(), Committer: sig(), Message: "commit",
		})
		require.NoError(t, err)
		return hash
	}

	fooC1 := writeSingleFileCommit(fooRepo, "foo.go", "v1\n", nil)
	fooC2 := writeSingleFileCommit(fooRepo, "foo.go", "v2\n", []plumbing.Hash{fooC1})
	barC1 := writeSingleFileCommit(barRepo, "bar.go", "v1\n", nil)
	require.NoError(t, fooRepo.SetRef("refs/repos/libfoo/heads/main", fooC2))
	require.NoError(t, barRepo.SetRef("refs/repos/libbar/heads/main", barC1))

	gitmodulesHash := writeBlob(t, topRepo, twoSubReposGitmodulesBlob)
	writeTop := func(fooPin, barPin plumbing.Hash, parents []plumbing.Hash) plumbing.Hash {
		libsTree := &object.Tree{Entries: []object.TreeEntry{
			{Name: "bar", Mode: filemode.Submodule, Hash: barPin},
			{Name: "foo", Mode: filemode.Submodule, Hash: fooPin},
		}}
		libsTreeHash, err := topRepo.WriteTree(libsTree)
		require.NoError(t, err)
		topTree := &object.Tree{Entries: []object.TreeEntry{
			{Name: ".gitmodules", Mode: filemode.Regular, Hash: gitmodulesHash},
			{Name: "libs", Mode: filemode.Dir, Hash: libsTreeHash},
		}}
		topTreeHash, err := topRepo.WriteTree(topTree)
		require.NoError(t, err)
		hash, err := topRepo.WriteCommit(gitrepo.CommitSpec{
			Tree: topTreeHash, Parents: parents, Author: sig(), Committer: sig(), Message: "bump",
		})
		require.NoError(t, err)
		return hash
	}
	firstTop := writeTop(fooC1, barC1, nil)
	secondTop := writeTop(fooC2, barC1, []plumbing.Hash{firstTop})
	require.NoError(t, topRepo.SetRef("refs/repos/top/heads/main", secondTop))

	cfg := &config.AppConfig{
		TopFetchURL: "https://example.com/top.git",
		TopPushURL:  "https://example.com/top.git",
		Repos: map[string]*config.RepoConfig{
			"libfoo": {Name: "libfoo", URLs: []string{"https://example.com/libfoo.git"}, Enabled: true},
			"libbar": {Name: "libbar", URLs: []string{"https://example.com/libbar.git"}, Enabled: true},
		},
		RawURLToRepos: map[string][]*config.RepoConfig{},
		Ledger:        ledger.New(),
	}
	cfg.RawURLToRepos["https://example.com/libfoo.git"] = []*config.RepoConfig{cfg.Repos["libfoo"]}
	cfg.RawURLToRepos["https://example.com/libbar.git"] = []*config.RepoConfig{cfg.Repos["libbar"]}

	e := New(logging.Nop(), mono, topRepo, cfg)
	e.SubrepoRepos["libfoo"] = fooRepo
	e.SubrepoRepos["libbar"] = barRepo

	topGraph, err := graph.Collect(topRepo, []plumbing.ReferenceName{"refs/repos/top/heads/main"})
	require.NoError(t, err)
	fooGraph, err := graph.Collect(fooRepo, []plumbing.ReferenceName{"refs/repos/libfoo/heads/main"})
	require.NoError(t, err)
	barGraph, err := graph.Collect(barRepo, []plumbing.ReferenceName{"refs/repos/libbar/heads/main"})
	require.NoError(t, err)
	e.SubrepoGraphs["libfoo"] = fooGraph
	e.SubrepoGraphs["libbar"] = barGraph

	monoTip, err := e.ExpandRef(topGraph, secondTop, "main")
	require.NoError(t, err)

	firstMono, ok := e.Conv.Lookup(config.TopName, firstTop)
	require.True(t, ok)

	state := e.bumpStates[monoTip]
	fooInfo, ok := state["libs/foo"]
	require.True(t, ok)
	require.Equal(t, monoTip, fooInfo.FirstMonoCommit, "libfoo was bumped by this commit")

	barInfo, ok := state["libs/bar"]
	require.True(t, ok)
	require.Equal(t, firstMono, barInfo.FirstMonoCommit, "libbar was inherited unchanged and must keep its original landmark")
	require.NotEqual(t, monoTip, barInfo.FirstMonoCommit)
}
