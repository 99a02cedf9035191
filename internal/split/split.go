// Package split implements the Splitter: walking new mono commits and
// producing one push-ready commit per subrepo (and the top repository
// itself) they touch.
package split

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/meroton/git-toprepo/internal/annotate"
	"github.com/meroton/git-toprepo/internal/config"
	"github.com/meroton/git-toprepo/internal/errs"
	"github.com/meroton/git-toprepo/internal/gitmodules"
	"github.com/meroton/git-toprepo/internal/gitrepo"
	"github.com/meroton/git-toprepo/internal/gittree"
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/pkg/errors"
)

// PushInstruction is one commit ready to be pushed to one destination
// repository.
type PushInstruction struct {
	RepoName   string
	CommitHash plumbing.Hash
	ExtraArgs  []string
}

// Splitter reconstructs per-repository history out of mono commits.
type Splitter struct {
	Log     logging.Logger
	Mono    *gitrepo.Repo
	TopRepo *gitrepo.Repo
	// Repos holds every destination object store the splitter writes
	// into: config.TopName for the top repository plus one entry per
	// configured subrepo.
	Repos  map[string]*gitrepo.Repo
	Config *config.AppConfig

	monoModules *gitmodules.Cache
	topModules  *gitmodules.Cache

	// subdirParents memoizes, for every mono commit already processed
	// (new or pre-existing), the resolved parent hash set for every
	// known subdir.
	subdirParents map[plumbing.Hash]map[string][]plumbing.Hash
}

// New returns a Splitter ready to split commits out of mono.
func New(log logging.Logger, mono, topRepo *gitrepo.Repo, repos map[string]*gitrepo.Repo, cfg *config.AppConfig) *Splitter {
	warnings := &errs.Warnings{}
	return &Splitter{
		Log:           log,
		Mono:          mono,
		TopRepo:       topRepo,
		Repos:         repos,
		Config:        cfg,
		monoModules:   gitmodules.NewCache(mono, warnings),
		topModules:    gitmodules.NewCache(topRepo, warnings),
		subdirParents: map[plumbing.Hash]map[string][]plumbing.Hash{},
	}
}

// SplitRef walks every mono commit reachable from monoRef but not
// reachable from any hash in upstreamRefs, and returns the
// PushInstructions needed to bring every affected repository up to
// date, coalescing adjacent commits that land on the same destination.
func (s *Splitter) SplitRef(monoRef plumbing.ReferenceName, upstreamRefs map[string]plumbing.Hash) ([]PushInstruction, error) {
	head, err := s.Mono.Ref(monoRef)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", monoRef)
	}

	excluded := map[plumbing.Hash]bool{}
	for _, h := range upstreamRefs {
		excluded[h] = true
	}

	order, err := collectNew(s.Mono, head.Hash(), excluded)
	if err != nil {
		return nil, err
	}

	var instructions []PushInstruction
	for _, h := range order {
		produced, err := s.splitCommit(h)
		if err != nil {
			return nil, errors.Wrapf(err, "splitting %s", h)
		}
		instructions = append(instructions, produced...)
	}

	return coalesce(instructions), nil
}

// collectNew returns every commit hash reachable from head but not from
// (and not recursing past) any hash in excluded, oldest first.
func collectNew(mono *gitrepo.Repo, head plumbing.Hash, excluded map[plumbing.Hash]bool) ([]plumbing.Hash, error) {
	if excluded[head] {
		return nil, nil
	}
	sealed := map[plumbing.Hash]bool{}
	var order []plumbing.Hash
	stack := []plumbing.Hash{head}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		if sealed[h] {
			stack = stack[:len(stack)-1]
			continue
		}
		co, err := mono.CommitObject(h)
		if err != nil {
			return nil, errors.Wrapf(err, "reading mono commit %s", h)
		}
		allReady := true
		for _, ph := range co.ParentHashes {
			if excluded[ph] || sealed[ph] {
				continue
			}
			// Pushed even if already waiting lower on the stack, so that
			// it is sealed before h.
			allReady = false
			stack = append(stack, ph)
		}
		if !allReady {
			continue
		}
		stack = stack[:len(stack)-1]
		sealed[h] = true
		order = append(order, h)
	}
	return order, nil
}

// splitCommit processes one new mono commit, producing a PushInstruction
// for every subrepo (or the top repository) it touches.
func (s *Splitter) splitCommit(h plumbing.Hash) ([]PushInstruction, error) {
	commit, err := s.Mono.CommitObject(h)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	modules, err := s.monoModules.ConfigAt(commit)
	if err != nil {
		return nil, err
	}
	subdirs := modules.Paths()
	sort.Strings(subdirs)

	touched, err := s.touchedSubdirs(commit, subdirs)
	if err != nil {
		return nil, err
	}

	full := map[string][]plumbing.Hash{}
	for _, subdir := range append([]string{""}, subdirs...) {
		parents, err := s.parentsFor(commit, subdir)
		if err != nil {
			return nil, err
		}
		full[subdir] = parents
	}

	var topic string
	var hasTopic bool
	if len(touched) > 1 {
		topic, hasTopic, err = annotate.ParseTopic([]byte(commit.Message))
		if err != nil {
			return nil, err
		}
		if !hasTopic {
			var names []string
			for name := range touched {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, &errs.TopicRequiredError{CommitHash: h.String(), Repos: names}
		}
	}

	strippedMsg := annotate.StripFooters([]byte(commit.Message))
	if annotate.HasFooter(strippedMsg) {
		return nil, &errs.CherryPickResidueError{CommitHash: h.String()}
	}

	touchedNames := make([]string, 0, len(touched))
	topTouched := false
	for name := range touched {
		if name == "" {
			topTouched = true
			continue
		}
		touchedNames = append(touchedNames, name)
	}
	sort.Strings(touchedNames)
	// Subrepos first: the top repository's own commit (if touched) needs
	// every other touched subdir's freshly produced hash to set its
	// gitlinks to, so it must be processed last.
	if topTouched {
		touchedNames = append(touchedNames, "")
	}

	var instructions []PushInstruction
	for _, subdir := range touchedNames {
		destRepoName, dest, err := s.destFor(subdir, modules)
		if err != nil {
			return nil, err
		}

		var subtreeHash plumbing.Hash
		if subdir == "" {
			subtreeHash, err = s.topOnlyTree(tree.Hash, subdirs, full)
		} else {
			subtreeHash, err = gittree.ExtractOnly(s.Mono, tree.Hash, subdir)
		}
		if err != nil {
			return nil, err
		}
		if err := gitrepo.CopyTree(s.Mono, dest, subtreeHash); err != nil {
			return nil, err
		}

		msg := string(strippedMsg)
		produced, err := dest.WriteCommit(gitrepo.CommitSpec{
			Tree:      subtreeHash,
			Parents:   full[subdir],
			Author:    commit.Author,
			Committer: commit.Committer,
			Message:   msg,
		})
		if err != nil {
			return nil, err
		}

		full[subdir] = []plumbing.Hash{produced}

		var extraArgs []string
		if hasTopic {
			extraArgs = append(extraArgs, "-o", "topic="+topic)
		}
		if err := dest.SetRef(plumbing.ReferenceName("refs/repos/"+destRepoName+"/toprepo/push"), produced); err != nil {
			return nil, err
		}
		instructions = append(instructions, PushInstruction{
			RepoName:   destRepoName,
			CommitHash: produced,
			ExtraArgs:  extraArgs,
		})
	}

	s.subdirParents[h] = full
	return instructions, nil
}

func (s *Splitter) destFor(subdir string, modules *gitmodules.Modules) (string, *gitrepo.Repo, error) {
	if subdir == "" {
		return config.TopName, s.Repos[config.TopName], nil
	}
	entry, ok := modules.Get(subdir)
	if !ok {
		return "", nil, fmt.Errorf("subdir %q has no .gitmodules entry", subdir)
	}
	repos := s.Config.ReposForURL(entry.URL)
	if len(repos) == 0 {
		return "", nil, fmt.Errorf("no configured repo for subdir %q (url %s)", subdir, entry.URL)
	}
	if len(repos) > 1 {
		names := make([]string, len(repos))
		for i, r := range repos {
			names[i] = r.Name
		}
		return "", nil, &errs.AmbiguousPushTargetError{Path: subdir, Names: names}
	}
	name := repos[0].Name
	return name, s.Repos[name], nil
}

// touchedSubdirs determines which configured subdirs (plus "" for the
// top repository) commit's own file changes, diffed against its first
// parent, fall under.
func (s *Splitter) touchedSubdirs(commit *object.Commit, subdirs []string) (map[string]bool, error) {
	touched := map[string]bool{}
	if commit.NumParents() == 0 {
		touched[""] = true
		return touched, nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, err
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		name := c.To.Name
		if name == "" {
			name = c.From.Name
		}
		touched[routeToSubdir(name, subdirs)] = true
	}
	return touched, nil
}

// routeToSubdir returns the longest configured subdir prefix matching
// path, or "" (the top repository) if none matches.
func routeToSubdir(path string, subdirs []string) string {
	best := ""
	for _, subdir := range subdirs {
		if path == subdir || strings.HasPrefix(path, subdir+"/") {
			if len(subdir) > len(best) {
				best = subdir
			}
		}
	}
	return best
}

// parentsFor resolves the subrepo-side parent hash set for subdir at
// commit.
func (s *Splitter) parentsFor(commit *object.Commit, subdir string) ([]plumbing.Hash, error) {
	var out []plumbing.Hash
	for i := 0; i < commit.NumParents(); i++ {
		p, err := commit.Parent(i)
		if err != nil {
			return nil, err
		}
		resolved, err := s.resolveSubdirParents(p)
		if err != nil {
			return nil, err
		}
		for _, h := range resolved[subdir] {
			out = appendUnique(out, h)
		}
	}
	return out, nil
}

// resolveSubdirParents returns, for every known subdir, the parent hash
// set a child commit should use if it doesn't itself touch that subdir.
// For a mono commit this Splitter already processed, that's exactly what
// splitCommit recorded. For a pre-existing commit (already known
// upstream), it's derived from the top commit hash in its annotation
// footer and that top commit's own submodule pins.
func (s *Splitter) resolveSubdirParents(commit *object.Commit) (map[string][]plumbing.Hash, error) {
	if full, ok := s.subdirParents[commit.Hash]; ok {
		return full, nil
	}

	topHashStr, ok, err := annotate.ParseFooter([]byte(commit.Message), annotate.TopSentinel)
	if err != nil {
		return nil, err
	}
	full := map[string][]plumbing.Hash{}
	if !ok {
		s.subdirParents[commit.Hash] = full
		return full, nil
	}
	topHash := plumbing.NewHash(topHashStr)
	full[""] = []plumbing.Hash{topHash}

	topCommit, err := s.TopRepo.CommitObject(topHash)
	if err != nil {
		return nil, errors.Wrapf(err, "reading top commit %s referenced by %s", topHash, commit.Hash)
	}
	topModules, err := s.topModules.ConfigAt(topCommit)
	if err != nil {
		return nil, err
	}
	topTree, err := topCommit.Tree()
	if err != nil {
		return nil, err
	}
	for _, subdir := range topModules.Paths() {
		entry, err := topTree.FindEntry(subdir)
		if err != nil {
			continue
		}
		full[subdir] = []plumbing.Hash{entry.Hash}
	}

	s.subdirParents[commit.Hash] = full
	return full, nil
}

// topOnlyTree returns rootTree with every configured subdir path
// restored to the gitlink (160000) entry it would have had in the top
// repository, pointed at resolved[subdir]'s current value; subdirs not
// actually present at this commit (resolved has no entry, or the path
// doesn't exist in rootTree) are left untouched.
func (s *Splitter) topOnlyTree(rootTree plumbing.Hash, subdirs []string, resolved map[string][]plumbing.Hash) (plumbing.Hash, error) {
	tree := rootTree
	for _, subdir := range subdirs {
		if _, ok, err := gittree.SubtreeAt(s.Mono, rootTree, subdir); err != nil {
			return plumbing.ZeroHash, err
		} else if !ok {
			continue
		}
		hashes := resolved[subdir]
		if len(hashes) == 0 {
			continue
		}
		var err error
		tree, err = gittree.MountGitlink(s.Mono, tree, subdir, hashes[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	return tree, nil
}

func appendUnique(hashes []plumbing.Hash, h plumbing.Hash) []plumbing.Hash {
	for _, existing := range hashes {
		if existing == h {
			return hashes
		}
	}
	return append(hashes, h)
}

// coalesce groups PushInstructions by repository, preserving each
// repository's first-seen order, and within each repository collapses
// contiguous runs of instructions sharing the same extra args down to the
// last instruction of each run. This avoids pushing every intermediate
// commit in a long chain while still pushing the last instruction of every
// run, even if an identical extra-args value recurs later after an
// instruction for the same repository with different extra args.
// Instructions for other repositories do not break a run.
func coalesce(instructions []PushInstruction) []PushInstruction {
	var repoOrder []string
	grouped := map[string][]PushInstruction{}
	for _, ins := range instructions {
		if _, ok := grouped[ins.RepoName]; !ok {
			repoOrder = append(repoOrder, ins.RepoName)
		}
		grouped[ins.RepoName] = append(grouped[ins.RepoName], ins)
	}

	var out []PushInstruction
	for _, repo := range repoOrder {
		var run []PushInstruction
		for _, ins := range grouped[repo] {
			if len(run) > 0 && strings.Join(run[len(run)-1].ExtraArgs, " ") != strings.Join(ins.ExtraArgs, " ") {
				out = append(out, run[len(run)-1])
				run = run[:0]
			}
			run = append(run, ins)
		}
		if len(run) > 0 {
			out = append(out, run[len(run)-1])
		}
	}
	return out
}
