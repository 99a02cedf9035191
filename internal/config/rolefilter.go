package config

import (
	"fmt"
	"regexp"
	"strings"
)

// roleRule is one `+<regex>` / `-<regex>` pattern from
// `toprepo.role.<role>.repos`.
type roleRule struct {
	include bool
	re      *regexp.Regexp
}

// RoleFilter decides, for a configured role, whether a given repo name is
// enabled: an ordered list of include/exclude regex rules where the last
// matching rule wins; a name matched by no rule is a configuration error.
type RoleFilter struct {
	rules []roleRule
}

// ParseRoleFilter parses the ordered pattern list for one role.
func ParseRoleFilter(patterns []string) (*RoleFilter, error) {
	f := &RoleFilter{}
	for _, p := range patterns {
		if len(p) < 2 || (p[0] != '+' && p[0] != '-') {
			return nil, fmt.Errorf("invalid role pattern %q: must start with '+' or '-'", p)
		}
		re, err := regexp.Compile(p[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid role pattern %q: %w", p, err)
		}
		f.rules = append(f.rules, roleRule{include: p[0] == '+', re: re})
	}
	return f, nil
}

// Enabled reports whether name is enabled under this role. An error is
// returned if no rule matches name at all.
func (f *RoleFilter) Enabled(name string) (bool, error) {
	matched := false
	enabled := false
	for _, r := range f.rules {
		if r.re.MatchString(name) {
			matched = true
			enabled = r.include
		}
	}
	if !matched {
		return false, fmt.Errorf("repo %q does not match any pattern in toprepo.role.*.repos", name)
	}
	return enabled, nil
}

// RoleName normalizes a role key component: a blank role becomes
// "default", anything else is returned unchanged.
func RoleName(role string) string {
	if strings.TrimSpace(role) == "" {
		return "default"
	}
	return role
}
