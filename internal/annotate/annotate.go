// Package annotate embeds and parses the provenance footer that lets the
// splitter invert what the expander did.
package annotate

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// TopSentinel is the subdir name used to annotate the top repository
// itself, as opposed to a submodule subdirectory.
const TopSentinel = "<top>"

const footerPrefix = "^-- "

// updateSubmodulesSubject is the boilerplate subject line produced by
// Gerrit-style submodule-bump bots; messages starting with it are sorted
// after every other annotated message when joined.
const updateSubmodulesSubject = "Update git submodules\n\n"

// Annotate appends a `^-- <subdir> <hash>` footer to msg, after ensuring a
// blank line separates subject from body.
func Annotate(msg []byte, subdir string, hash string) []byte {
	out := bytes.TrimRight(msg, "\n")
	out = append(out, '\n')
	if !bytes.Contains(out, []byte("\n\n")) {
		// Subject only: add a blank line so `git log --oneline` doesn't
		// fold the footer into the subject.
		out = append(out, '\n')
	}
	out = append(out, []byte(fmt.Sprintf("%s%s %s\n", footerPrefix, subdir, hash))...)
	return out
}

func footerRegexp(subdir string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^\^-- ` + regexp.QuoteMeta(subdir) + ` ([0-9a-f]+)$`)
}

// ParseFooter returns the hash recorded for subdir, if any. It is an error
// for more than one footer to exist for the same subdir.
func ParseFooter(msg []byte, subdir string) (string, bool, error) {
	matches := footerRegexp(subdir).FindAllSubmatch(msg, -1)
	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return string(matches[0][1]), true, nil
	default:
		return "", false, fmt.Errorf("multiple ^-- %s footers in message", subdir)
	}
}

// ParseAllFooters returns every `^-- <subdir> <hash>` footer present,
// keyed by subdir, erroring if any subdir repeats.
func ParseAllFooters(msg []byte) (map[string]string, error) {
	re := regexp.MustCompile(`(?m)^\^-- (\S+) ([0-9a-f]+)$`)
	out := map[string]string{}
	for _, m := range re.FindAllSubmatch(msg, -1) {
		subdir := string(m[1])
		hash := string(m[2])
		if _, ok := out[subdir]; ok {
			return nil, fmt.Errorf("multiple ^-- %s footers in message", subdir)
		}
		out[subdir] = hash
	}
	return out, nil
}

// StripFooters removes every `^-- ` line from msg. Used by the splitter,
// which refuses to push a message still containing one after stripping
// (cherry-pick residue).
func StripFooters(msg []byte) []byte {
	lines := bytes.Split(msg, []byte("\n"))
	out := lines[:0]
	for _, line := range lines {
		if bytes.HasPrefix(line, []byte(footerPrefix)) {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

// HasFooter reports whether msg contains any `^-- ` line.
func HasFooter(msg []byte) bool {
	return bytes.Contains(msg, []byte("\n"+footerPrefix)) || bytes.HasPrefix(msg, []byte(footerPrefix))
}

// Join concatenates several already-annotated messages, moving boilerplate
// "Update git submodules" subjects to the bottom so the most informative
// message (typically the submodule's own) becomes the subject in `git log`.
func Join(messages [][]byte) []byte {
	var top, bottom [][]byte
	for _, msg := range messages {
		if bytes.HasPrefix(msg, []byte(updateSubmodulesSubject)) {
			bottom = append(bottom, msg)
		} else {
			top = append(top, msg)
		}
	}
	return bytes.Join(append(top, bottom...), nil)
}

// topicRegexp matches a `Topic: <value>` footer line.
var topicRegexp = regexp.MustCompile(`(?m)^Topic: (.+)$`)

// ParseTopic extracts the single `Topic: <value>` footer, if present. More
// than one occurrence is an error.
func ParseTopic(msg []byte) (string, bool, error) {
	matches := topicRegexp.FindAllStringSubmatch(string(msg), -1)
	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return strings.TrimSpace(matches[0][1]), true, nil
	default:
		return "", false, fmt.Errorf("expected a single 'Topic: <topic>' footer, found %d", len(matches))
	}
}
