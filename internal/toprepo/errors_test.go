package toprepo

import (
	"errors"
	"testing"

	"github.com/meroton/git-toprepo/internal/errs"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestClassifyExit(t *testing.T) {
	require.Equal(t, 0, ClassifyExit(nil))
	require.Equal(t, 1, ClassifyExit(errors.New("boom")))
	require.Equal(t, 1, ClassifyExit(&errs.UnknownRemoteError{Remote: "foo"}))
}

func TestIsUserErrorRecognizesEveryNamedKind(t *testing.T) {
	require.True(t, IsUserError(&errs.ConfigError{Key: "k", Cause: errors.New("x")}))
	require.True(t, IsUserError(&errs.UnknownRemoteError{Remote: "foo"}))
	require.True(t, IsUserError(&errs.MissingCommitError{URL: "u", Hash: "h"}))
	require.True(t, IsUserError(&errs.AmbiguousPushTargetError{Path: "p"}))
	require.True(t, IsUserError(&errs.TopicRequiredError{CommitHash: "h"}))
	require.True(t, IsUserError(&errs.CherryPickResidueError{CommitHash: "h"}))
	require.True(t, IsUserError(&errs.SubmoduleRenameError{OldPath: "a", NewPath: "b"}))
}

func TestIsUserErrorFalseForPlainError(t *testing.T) {
	require.False(t, IsUserError(errors.New("unexpected")))
}

func TestIsUserErrorFollowsCauserChain(t *testing.T) {
	wrapped := pkgerrors.Wrap(&errs.UnknownRemoteError{Remote: "foo"}, "fetching")
	require.True(t, IsUserError(wrapped))

	doublyWrapped := pkgerrors.Wrap(wrapped, "refilter")
	require.True(t, IsUserError(doublyWrapped))
}

func TestIsUserErrorFalseWhenWrappedCauseIsPlain(t *testing.T) {
	wrapped := pkgerrors.Wrap(errors.New("disk full"), "writing commit")
	require.False(t, IsUserError(wrapped))
}
