package manifest

import (
	"github.com/bmatcuk/doublestar/v4"
)

// ExclusionPredicate reports whether a root-relative path should be
// excluded from a scan (spec §4.2: "Exclusion predicate over relative
// paths (provided by external config)"). The predicate itself is always
// supplied by an external caller; this package only defines the contract
// and a convenience implementation.
type ExclusionPredicate func(path string) bool

// ExclusionMatcher is a convenience ExclusionPredicate backed by a list of
// glob patterns. It is a pure mechanism: which patterns to use remains an
// external, out-of-scope policy decision (spec §1's "Policy code for
// exclusion globs… treated as an input predicate"); this type only
// supplies the matching algorithm, using the same double-star glob syntax
// the teacher's core/ignore package supports.
type ExclusionMatcher struct {
	patterns []string
}

// NewExclusionMatcher builds an ExclusionMatcher from a list of doublestar
// glob patterns, matched against forward-slash root-relative paths.
func NewExclusionMatcher(patterns []string) *ExclusionMatcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &ExclusionMatcher{patterns: cleaned}
}

// Matches reports whether path matches any of the matcher's patterns. A
// malformed pattern never matches (it is treated as excluding nothing)
// rather than aborting the scan.
func (m *ExclusionMatcher) Matches(path string) bool {
	if m == nil {
		return false
	}
	for _, pattern := range m.patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Predicate adapts the matcher to the ExclusionPredicate contract.
func (m *ExclusionMatcher) Predicate() ExclusionPredicate {
	return m.Matches
}
