package engine

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// placeholderPattern matches {name}, {name|default} and the port-qualified
// forms {P1.name} / {P2.name}. A name is any run of characters other than
// braces, bars, quotes and whitespace, so JSON payloads stay literal.
var placeholderPattern = regexp.MustCompile(`\{([^{}|"\s]+)(?:\|([^{}]*))?\}`)

// quantifierPattern matches names that read as regex repetition counts,
// such as {2} or {1,3}. Unset, they are left in place.
var quantifierPattern = regexp.MustCompile(`^\d+(?:,\d*)?$`)

// Variable is one extracted value.
type Variable struct {
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// VariableStore holds the variables of one run. Later writes to the same
// name overwrite earlier ones. It is safe for concurrent use.
type VariableStore struct {
	mu   sync.RWMutex
	vars map[string]Variable
	now  func() time.Time
}

// NewVariableStore creates an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{
		vars: make(map[string]Variable),
		now:  time.Now,
	}
}

// Set stores value under name.
func (s *VariableStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = Variable{Value: value, Timestamp: s.now()}
}

// Merge stores every entry of values. Names not in values are kept.
func (s *VariableStore) Merge(values map[string]string) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now()
	for name, value := range values {
		s.vars[name] = Variable{Value: value, Timestamp: ts}
	}
}

// Get returns the variable stored under name.
func (s *VariableStore) Get(name string) (Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Len returns the number of stored variables.
func (s *VariableStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Clear removes every variable.
func (s *VariableStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]Variable)
}

// Snapshot returns a copy of the store contents.
func (s *VariableStore) Snapshot() map[string]Variable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Variable, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Resolve substitutes placeholders in template. A placeholder whose
// variable is missing takes its default, or the empty string when it has
// none; the names of such variables are returned sorted and deduplicated.
func (s *VariableStore) Resolve(template string) (string, []string) {
	if !strings.ContainsRune(template, '{') {
		return template, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	missing := make(map[string]bool)
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		sub := placeholderPattern.FindStringSubmatch(token)
		name := sub[1]
		if v, ok := s.lookup(name); ok {
			return v.Value
		}
		if strings.Contains(token, "|") {
			return sub[2]
		}
		if quantifierPattern.MatchString(name) {
			return token
		}
		missing[name] = true
		return ""
	})

	if len(missing) == 0 {
		return out, nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names
}

// lookup finds name, falling back to the unqualified name for P1./P2.
// references. Callers hold s.mu.
func (s *VariableStore) lookup(name string) (Variable, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	if len(name) > 3 && (strings.HasPrefix(name, "P1.") || strings.HasPrefix(name, "P2.")) {
		v, ok := s.vars[name[3:]]
		return v, ok
	}
	return Variable{}, false
}
