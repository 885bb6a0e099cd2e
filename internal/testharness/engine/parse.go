package engine

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/dlclark/regexp2"
)

// Extractor applies a parse rule to matched text and produces variables.
type Extractor struct {
	rule *loader.ParseRule
	re   *regexp2.Regexp
}

// NewExtractor prepares rule. For regex rules an empty pattern, or one
// equal to the command's match pattern, reuses match's compiled regex.
func NewExtractor(rule *loader.ParseRule, match *Matcher) (*Extractor, error) {
	if rule == nil {
		return nil, nil
	}
	x := &Extractor{rule: rule}

	switch rule.Kind {
	case loader.ParseRegex:
		expr := rule.Pattern
		if match != nil && (expr == "" || expr == match.Pattern()) && match.Regexp() != nil {
			x.re = match.Regexp()
			return x, nil
		}
		if expr == "" && match != nil {
			expr = match.Pattern()
		}
		re, err := compileRegex(expr)
		if err != nil {
			return nil, err
		}
		x.re = re
	case loader.ParseSplit:
		if rule.Pattern == "" {
			return nil, Configuration(fmt.Errorf("split rule has no delimiter"))
		}
	default:
		return nil, Configuration(fmt.Errorf("unknown parse kind %q", rule.Kind))
	}
	return x, nil
}

// Extract returns the variables found in text. Map entries whose group or
// index is absent produce no variable. Keys are applied in sorted order,
// so when two keys name the same variable the last key in that order wins.
func (x *Extractor) Extract(text string) (map[string]string, error) {
	if x == nil {
		return nil, nil
	}
	switch x.rule.Kind {
	case loader.ParseRegex:
		return x.extractRegex(text)
	default:
		return x.extractSplit(text), nil
	}
}

func (x *Extractor) extractRegex(text string) (map[string]string, error) {
	m, err := x.re.FindStringMatch(text)
	if err != nil {
		return nil, Configuration(fmt.Errorf("regex evaluation failed: %w", err))
	}
	if m == nil {
		return nil, nil
	}

	out := make(map[string]string)
	for _, key := range slices.Sorted(maps.Keys(x.rule.Params)) {
		name := x.rule.Params[key]
		if name == "" {
			continue
		}
		var g *regexp2.Group
		if n, ok := groupNumber(key); ok {
			g = m.GroupByNumber(n)
		} else {
			g = m.GroupByName(key)
		}
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		out[name] = g.String()
	}
	return out, nil
}

func (x *Extractor) extractSplit(text string) map[string]string {
	parts := strings.Split(text, x.rule.Pattern)
	out := make(map[string]string)
	for _, key := range slices.Sorted(maps.Keys(x.rule.Params)) {
		name := x.rule.Params[key]
		if name == "" {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, "index"))
		if err != nil || idx < 0 || idx >= len(parts) {
			continue
		}
		out[name] = strings.TrimSpace(parts[idx])
	}
	return out
}

// groupNumber parses "3" or "group3".
func groupNumber(key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "group"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
