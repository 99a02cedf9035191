// Package ledger implements the missing-commit ledger: submodule commits
// explicitly declared absent on the server so expansion does not abort.
package ledger

import "github.com/meroton/git-toprepo/internal/errs"

// Ledger maps a raw submodule URL to the set of commit hashes declared
// missing for it.
type Ledger struct {
	missing map[string]map[string]bool
	// checked tracks which (url, hash) pairs have been confirmed present
	// despite being listed, to avoid emitting the overspecified warning
	// more than once per pair.
	checked map[string]map[string]bool
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		missing: make(map[string]map[string]bool),
		checked: make(map[string]map[string]bool),
	}
}

// Declare records (url, hash) as explicitly missing, per a
// `toprepo.missing-commits.rev-<hash> = <url>` config entry.
func (l *Ledger) Declare(url, hash string) {
	if l.missing[url] == nil {
		l.missing[url] = make(map[string]bool)
	}
	l.missing[url][hash] = true
}

// IsDeclaredMissing reports whether (url, hash) was declared missing.
func (l *Ledger) IsDeclaredMissing(url, hash string) bool {
	return l.missing[url][hash]
}

// MarkChecked records that (url, hash) was found to actually be present
// in some enabled subrepo. If it had been declared missing, this returns
// an "overspecified" warning exactly once for that pair; otherwise it
// returns nil.
func (l *Ledger) MarkChecked(url, hash string) *errs.Warning {
	if !l.IsDeclaredMissing(url, hash) {
		return nil
	}
	if l.checked[url] == nil {
		l.checked[url] = make(map[string]bool)
	}
	if l.checked[url][hash] {
		return nil
	}
	l.checked[url][hash] = true
	return &errs.Warning{Message: "commit " + hash + " for " + url +
		" is listed in toprepo.missing-commits but is actually present (overspecified)"}
}
