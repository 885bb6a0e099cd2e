package mock

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is the YAML description of a simulated device.
type Script struct {
	// Name identifies the device.
	Name string `yaml:"name"`

	// Echo repeats every request before answering.
	Echo bool `yaml:"echo,omitempty"`

	// Greeting lines are sent to every client that connects.
	Greeting []string `yaml:"greeting,omitempty"`

	// Rules are tried in order for each request.
	Rules []Rule `yaml:"rules"`
}

// ParseScript decodes a script document.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if len(s.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidScript)
	}
	return &s, nil
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// NewDeviceFromScript builds a device from a script.
func NewDeviceFromScript(s *Script) (*Device, error) {
	d := NewDevice(s.Name)
	d.Echo = s.Echo
	d.greeting = append([]string(nil), s.Greeting...)
	for i, r := range s.Rules {
		if err := d.AddRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return d, nil
}
