package toprepo

import "github.com/meroton/git-toprepo/internal/errs"

// causer is implemented by github.com/pkg/errors' wrapped errors.
type causer interface {
	Cause() error
}

// ClassifyExit maps an error returned by a Session operation to its exit
// code: every user-visible error coming out of a Session method is a
// fatal condition for the current operation (exit 1). Usage errors (exit
// 2) never reach here — cmd/git-toprepo's cobra wiring reports those
// itself, before a Session method is ever called, via cobra's own
// argument validation.
func ClassifyExit(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// IsUserError reports whether err is one of the named business-logic
// error kinds, as opposed to an unexpected internal failure. Both still
// exit 1, but the CLI formats the former without a stack trace.
func IsUserError(err error) bool {
	for err != nil {
		switch err.(type) {
		case *errs.ConfigError, *errs.UnknownRemoteError, *errs.MissingCommitError,
			*errs.AmbiguousPushTargetError, *errs.TopicRequiredError,
			*errs.CherryPickResidueError, *errs.SubmoduleRenameError:
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}
