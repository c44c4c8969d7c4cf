// Package filter decides which relative paths take part in a sync. Paths a
// chain excludes are neither mirrored into the replica nor removed from it.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern string
	Include bool // true=include, false=exclude
	dirOnly bool
}

// Chain holds an ordered list of filter rules. The zero value and a nil
// *Chain both include everything.
type Chain struct {
	rules []Rule
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

// compile turns an rsync-style pattern into a doublestar pattern.
// A trailing / restricts the rule to directories. A pattern containing a /
// is anchored to the sync root; one without matches at any depth.
func compile(pattern string) (glob string, dirOnly bool, err error) {
	if pattern == "" || pattern == "/" {
		return "", false, fmt.Errorf("empty filter pattern")
	}
	if strings.HasSuffix(pattern, "/") {
		dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	switch {
	case strings.HasPrefix(pattern, "/"):
		glob = strings.TrimPrefix(pattern, "/")
	case strings.Contains(pattern, "/"):
		glob = pattern
	default:
		glob = "**/" + pattern
	}

	if !doublestar.ValidatePattern(glob) {
		return "", false, fmt.Errorf("invalid filter pattern %q", pattern)
	}
	return glob, dirOnly, nil
}

func (c *Chain) add(pattern string, include bool) error {
	glob, dirOnly, err := compile(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: glob, Include: include, dirOnly: dirOnly})
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return c == nil || len(c.rules) == 0
}

// Len returns the number of rules in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Match returns true if the path should be INCLUDED (not filtered out).
// relPath is relative to the sync root and isDir indicates directories.
func (c *Chain) Match(relPath string, isDir bool) bool {
	if c.Empty() {
		return true
	}
	name := filepath.ToSlash(relPath)

	// First matching rule wins.
	for _, rule := range c.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if doublestar.MatchUnvalidated(rule.Pattern, name) {
			return rule.Include
		}
	}

	// No match → include (default).
	return true
}
