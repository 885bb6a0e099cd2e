package loader

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseTestCase parses a single test case from YAML bytes. Runtime state
// is reset on the returned tree.
func ParseTestCase(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := decodeStrict(data, &tc); err != nil {
		return nil, err
	}

	if err := checkRequired(&tc); err != nil {
		return nil, err
	}

	resetRuntime(&tc)
	return &tc, nil
}

// ParseSuite parses a suite file. A file holding a single case (an "id" at
// the top level) is accepted as a one-case suite.
func ParseSuite(data []byte) (*TestSuite, error) {
	var probe struct {
		ID    string      `yaml:"id"`
		Cases []yaml.Node `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	if probe.Cases == nil && probe.ID != "" {
		tc, err := ParseTestCase(data)
		if err != nil {
			return nil, err
		}
		return &TestSuite{Name: tc.Name, Cases: []*TestCase{tc}}, nil
	}

	var suite TestSuite
	if err := decodeStrict(data, &suite); err != nil {
		return nil, err
	}
	if len(suite.Cases) == 0 {
		return nil, &LoadError{Message: "suite must have at least one case"}
	}
	for _, tc := range suite.Cases {
		if err := checkRequired(tc); err != nil {
			return nil, err
		}
		resetRuntime(tc)
	}
	return &suite, nil
}

// LoadTestCase loads a test case from a file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	tc, err := ParseTestCase(data)
	if err != nil {
		return nil, withFile(err, path)
	}
	return tc, nil
}

// LoadFile loads every case in a case or suite file.
func LoadFile(path string) ([]*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	suite, err := ParseSuite(data)
	if err != nil {
		return nil, withFile(err, path)
	}
	return suite.Cases, nil
}

// LoadDirectory loads all cases from a directory.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*TestCase, error) {
	var cases []*TestCase

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}

	return cases, nil
}

// LoadDirectoryRecursive loads all cases from a directory and its subdirectories.
func LoadDirectoryRecursive(dir string) ([]*TestCase, error) {
	var cases []*TestCase

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}

		loaded, err := LoadFile(path)
		if err != nil {
			return err
		}
		cases = append(cases, loaded...)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return cases, nil
}

// LoadPath loads a file, or a directory tree when path is a directory.
func LoadPath(path string) ([]*TestCase, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to stat path", Cause: err}
	}
	if info.IsDir() {
		return LoadDirectoryRecursive(path)
	}
	return LoadFile(path)
}

// FilterCases returns the cases whose ID matches pattern (a shell glob,
// empty matches all) and that carry every tag in tags.
func FilterCases(cases []*TestCase, pattern string, tags []string) []*TestCase {
	var filtered []*TestCase
	for _, tc := range cases {
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, tc.ID); !ok {
				continue
			}
		}
		if !hasAllTags(tc, tags) {
			continue
		}
		filtered = append(filtered, tc)
	}
	return filtered
}

func hasAllTags(tc *TestCase, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range tc.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &LoadError{Message: "empty document"}
		}
		return &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	return nil
}

func checkRequired(tc *TestCase) error {
	if tc.ID == "" {
		return &LoadError{Message: "test case ID is required"}
	}
	if len(tc.Commands) == 0 && len(tc.SubCases) == 0 {
		return &LoadError{Message: "test case " + tc.ID + " must have at least one command or sub-case"}
	}
	for _, sub := range tc.SubCases {
		if sub.ID == "" {
			return &LoadError{Message: "sub-case of " + tc.ID + " has no ID"}
		}
	}
	return nil
}

func withFile(err error, path string) error {
	var le *LoadError
	if errors.As(err, &le) {
		le.File = path
		return le
	}
	return &LoadError{File: path, Message: err.Error()}
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
