package runner

import (
	"path"
	"strings"

	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// caseFilter selects top-level cases by id or name and by tag.
type caseFilter struct {
	patterns []string // shell globs; a case matches any of them
	include  []string // a case needs at least one of these tags
	exclude  []string // a case with any of these tags is dropped
}

// newCaseFilter builds a filter from a comma-separated pattern list and
// tag lists whose entries may themselves be comma-joined.
func newCaseFilter(pattern string, tags, excludeTags []string) caseFilter {
	return caseFilter{
		patterns: splitList(pattern),
		include:  splitList(tags...),
		exclude:  splitList(excludeTags...),
	}
}

func (f caseFilter) apply(cases []*loader.TestCase) []*loader.TestCase {
	var kept []*loader.TestCase
	for _, tc := range cases {
		if f.keep(tc) {
			kept = append(kept, tc)
		}
	}
	return kept
}

func (f caseFilter) keep(tc *loader.TestCase) bool {
	if len(f.patterns) > 0 && !f.matchesName(tc) {
		return false
	}
	if len(f.include) > 0 && !anyTag(tc.Tags, f.include) {
		return false
	}
	return !anyTag(tc.Tags, f.exclude)
}

func (f caseFilter) matchesName(tc *loader.TestCase) bool {
	for _, p := range f.patterns {
		if globMatch(p, tc.ID) || (tc.Name != "" && globMatch(p, tc.Name)) {
			return true
		}
	}
	return false
}

// globMatch reports whether name matches the shell glob p. A malformed
// glob only matches itself.
func globMatch(p, name string) bool {
	ok, err := path.Match(p, name)
	if err != nil {
		return p == name
	}
	return ok
}

// anyTag reports whether have and want share a tag, ignoring case.
func anyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func splitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
