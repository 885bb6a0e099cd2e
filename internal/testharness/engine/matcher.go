package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/dlclark/regexp2"
)

// regexMatchTimeout bounds a single regex evaluation against one line.
const regexMatchTimeout = 250 * time.Millisecond

// Matcher decides whether a received line matches a pattern. Regex
// patterns are compiled once and reused for every line.
type Matcher struct {
	pattern string
	mode    loader.MatchMode
	re      *regexp2.Regexp
}

// NewMatcher compiles pattern for mode. The empty mode means contains. A
// malformed regex returns a configuration error.
func NewMatcher(pattern string, mode loader.MatchMode) (*Matcher, error) {
	if mode == "" {
		mode = loader.MatchContains
	}
	m := &Matcher{pattern: pattern, mode: mode}
	switch mode {
	case loader.MatchContains, loader.MatchExact, loader.MatchStartsWith, loader.MatchEndsWith:
	case loader.MatchRegex:
		re, err := compileRegex(pattern)
		if err != nil {
			return nil, err
		}
		m.re = re
	default:
		return nil, Configuration(fmt.Errorf("unknown match mode %q", mode))
	}
	return m, nil
}

// Match reports whether line matches. Regex evaluation errors (such as a
// match timeout) count as no match.
func (m *Matcher) Match(line string) bool {
	switch m.mode {
	case loader.MatchContains:
		return strings.Contains(line, m.pattern)
	case loader.MatchExact:
		return strings.TrimSpace(line) == strings.TrimSpace(m.pattern)
	case loader.MatchStartsWith:
		return strings.HasPrefix(line, m.pattern)
	case loader.MatchEndsWith:
		return strings.HasSuffix(line, m.pattern)
	case loader.MatchRegex:
		ok, err := m.re.MatchString(line)
		return err == nil && ok
	}
	return false
}

// Pattern returns the pattern text.
func (m *Matcher) Pattern() string { return m.pattern }

// Regexp returns the compiled regex, or nil for non-regex modes.
func (m *Matcher) Regexp() *regexp2.Regexp { return m.re }

// Match is a one-shot form of NewMatcher followed by Matcher.Match. A
// malformed pattern never matches.
func Match(line, pattern string, mode loader.MatchMode) bool {
	m, err := NewMatcher(pattern, mode)
	if err != nil {
		return false
	}
	return m.Match(line)
}

// NewResponseMatcher builds the predicate for an execution command's
// expected response. It returns nil when no response is expected.
func NewResponseMatcher(method loader.ValidationMethod, expected string) (*Matcher, error) {
	switch method {
	case "", loader.ValidateNone:
		return nil, nil
	case loader.ValidateContains:
		return NewMatcher(expected, loader.MatchContains)
	case loader.ValidateEquals:
		return NewMatcher(expected, loader.MatchExact)
	case loader.ValidateRegex:
		return NewMatcher(expected, loader.MatchRegex)
	default:
		return nil, Configuration(fmt.Errorf("unknown validation method %q", method))
	}
}

func compileRegex(expr string) (*regexp2.Regexp, error) {
	if expr == "" {
		return nil, Configuration(fmt.Errorf("empty regular expression"))
	}
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, Configuration(fmt.Errorf("invalid regular expression %q: %w", expr, err))
	}
	re.MatchTimeout = regexMatchTimeout
	return re, nil
}
