// Package giturl resolves the raw URLs that appear in .gitmodules against
// a parent URL, and normalizes URLs for comparison.
package giturl

import "strings"

// Join resolves other against parent the way git resolves a relative
// submodule URL: "./" and "../" prefixes (and the bare ".") are relative
// to parent, respecting parent's scheme prefix; anything else is already
// absolute and passes through unchanged. Excess "../" past the host
// collapses to literal ".." path segments rather than erroring.
func Join(parent, other string) string {
	if !strings.HasPrefix(other, "./") && !strings.HasPrefix(other, "../") && other != "." {
		return other
	}

	scheme := ""
	rest := parent
	if idx := strings.Index(parent, "://"); idx != -1 {
		scheme = parent[:idx+3]
		rest = parent[idx+3:]
	}
	rest = strings.TrimRight(rest, "/")

	for {
		switch {
		case strings.HasPrefix(other, "/"):
			// Ignore a doubled slash.
			other = other[1:]
		case strings.HasPrefix(other, "./"):
			other = other[2:]
		case strings.HasPrefix(other, "../"):
			if idx := strings.LastIndex(rest, "/"); idx != -1 {
				rest = rest[:idx]
			} else {
				// Too many "../": move the escape from other to rest.
				rest += "/.."
			}
			other = other[3:]
		default:
			goto join
		}
	}
join:
	if other == "" || other == "." {
		return scheme + rest
	}
	return scheme + rest + "/" + other
}

// Normalize strips a trailing ".git" suffix and trailing slash, for
// comparing URLs that refer to the same repository.
func Normalize(url string) string {
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, ".git")
	return url
}
