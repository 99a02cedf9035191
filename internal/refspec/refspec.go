// Package refspec parses the simple "<src>[:<dst>]" refspec strings
// accepted by the CLI's fetch/push commands.
package refspec

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Parse splits s into a source and destination reference name. A bare
// name is expanded to refs/heads/<name> unless it already starts with
// "refs/". "a:b" yields (a, b) unexpanded. More than one colon is an
// error.
func Parse(s string) (src, dst plumbing.ReferenceName, err error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		r := expand(parts[0])
		return r, r, nil
	case 2:
		// Only a bare single-sided refspec gets refs/heads/ expansion;
		// once the caller names both sides explicitly, both are taken
		// literally.
		return plumbing.ReferenceName(parts[0]), plumbing.ReferenceName(parts[1]), nil
	default:
		return "", "", fmt.Errorf("invalid refspec %q: too many ':'", s)
	}
}

func expand(name string) plumbing.ReferenceName {
	if strings.HasPrefix(name, "refs/") {
		return plumbing.ReferenceName(name)
	}
	return plumbing.NewBranchReferenceName(name)
}
