package loader

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Marshal serializes a case tree in the persisted format. Runtime state
// (status, current command, running and selection flags) is not written.
func Marshal(tc *TestCase) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(tc); err != nil {
		return nil, fmt.Errorf("marshal case %s: %w", tc.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveTestCase writes a case tree to path.
func SaveTestCase(path string, tc *TestCase) error {
	data, err := Marshal(tc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &LoadError{File: path, Message: "failed to write file", Cause: err}
	}
	return nil
}
