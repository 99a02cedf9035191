// Package errs defines the translator's error kinds as concrete types, so
// the CLI's top-level handler can classify them into exit codes without
// string matching.
package errs

import "fmt"

// ConfigError reports a malformed or conflicting configuration key.
type ConfigError struct {
	Key   string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for %q: %v", e.Key, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// UnknownRemoteError reports a remote name that doesn't resolve to any
// configured repository.
type UnknownRemoteError struct {
	Remote string
}

func (e *UnknownRemoteError) Error() string {
	return fmt.Sprintf("unknown remote %q", e.Remote)
}

// MissingCommitError reports a submodule commit that is neither fetchable
// nor present in the missing-commit ledger.
type MissingCommitError struct {
	URL  string
	Hash string
}

func (e *MissingCommitError) Error() string {
	return fmt.Sprintf("missing commit %s for %s; to acknowledge, add:\n"+
		"\ttoprepo.missing-commits.rev-%s = %s", e.Hash, e.URL, e.Hash, e.URL)
}

// AmbiguousPushTargetError reports a subrepo path matching more than one
// configured repository.
type AmbiguousPushTargetError struct {
	Path  string
	Names []string
}

func (e *AmbiguousPushTargetError) Error() string {
	return fmt.Sprintf("path %q matches multiple configured repos: %v", e.Path, e.Names)
}

// TopicRequiredError reports a multi-subrepo mono commit lacking a
// `Topic:` footer.
type TopicRequiredError struct {
	CommitHash string
	Repos      []string
}

func (e *TopicRequiredError) Error() string {
	return fmt.Sprintf("commit %s touches multiple repos %v but has no 'Topic:' footer", e.CommitHash, e.Repos)
}

// CherryPickResidueError reports an outgoing split commit whose message
// still contains a `^-- ` footer after stripping.
type CherryPickResidueError struct {
	CommitHash string
}

func (e *CherryPickResidueError) Error() string {
	return fmt.Sprintf("commit %s still contains '^-- ' footers after stripping; refusing to push", e.CommitHash)
}

// SubmoduleRenameError reports a submodule rename, which the expander does
// not support and surfaces as fatal rather than silently mishandling.
type SubmoduleRenameError struct {
	OldPath, NewPath string
}

func (e *SubmoduleRenameError) Error() string {
	return fmt.Sprintf("submodule rename from %q to %q is not supported", e.OldPath, e.NewPath)
}

// Warning is a non-fatal condition collected during translation and
// flushed to the logger after the run, never returned as an error.
type Warning struct {
	Message string
}

func (w Warning) String() string { return w.Message }

// Warnings accumulates Warning values across a translation run.
type Warnings struct {
	items []Warning
}

// Add records a warning.
func (w *Warnings) Add(format string, args ...interface{}) {
	w.items = append(w.items, Warning{Message: fmt.Sprintf(format, args...)})
}

// Items returns every warning recorded so far.
func (w *Warnings) Items() []Warning {
	return w.items
}
