package runner

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Config configures the test runner.
type Config struct {
	// Target is the address of the serial bridge (host:port).
	Target string `yaml:"target"`

	// Discover finds the bridge via mDNS when Target is empty.
	Discover bool `yaml:"discover"`

	// DiscoverModel restricts discovery to bridges whose model contains
	// this text.
	DiscoverModel string `yaml:"discover_model"`

	// DiscoverTimeout bounds the mDNS browse.
	DiscoverTimeout loader.Duration `yaml:"discover_timeout"`

	// ConnectAttempts is the number of dial attempts (default 3).
	ConnectAttempts int `yaml:"connect_attempts"`

	// Paths lists case files and directories.
	Paths []string `yaml:"paths"`

	// Pattern filters cases by id or name (comma-separated globs).
	Pattern string `yaml:"pattern"`

	// Tags includes only cases with at least one of these tags.
	Tags []string `yaml:"tags"`

	// ExcludeTags excludes cases with any of these tags.
	ExcludeTags []string `yaml:"exclude_tags"`

	// Select limits each case to the named commands. Other commands stay
	// reachable by jumps only.
	Select []string `yaml:"select"`

	// OutputFormat is "text", "json", or "junit".
	OutputFormat string `yaml:"output"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose"`

	// CaptureLog is the path of the protocol capture file (empty disables).
	CaptureLog string `yaml:"capture_log"`

	// Trace mirrors every capture event into Logger at debug level.
	Trace bool `yaml:"trace"`

	// HistoryDB is the path of the run history database (empty disables).
	HistoryDB string `yaml:"history_db"`

	// Timeout is the default response timeout.
	Timeout loader.Duration `yaml:"timeout"`

	// ListenTimeout is the default once-URC timeout.
	ListenTimeout loader.Duration `yaml:"listen_timeout"`

	// RetryDelay is the default delay between attempts.
	RetryDelay loader.Duration `yaml:"retry_delay"`

	// FailurePatterns replaces the terminal failure patterns when set.
	FailurePatterns []string `yaml:"failure_patterns"`

	// AutoConfirm answers every operator decision with confirm.
	AutoConfirm bool `yaml:"auto_confirm"`

	// StopOnFirstFailure stops the suite after the first unsuccessful run.
	StopOnFirstFailure bool `yaml:"stop_on_first_failure"`

	// Output is where to write results (default os.Stdout).
	Output io.Writer `yaml:"-"`

	// Logger receives operational logs (default discards).
	Logger *slog.Logger `yaml:"-"`

	// Prompter answers operator decisions when AutoConfirm is off.
	Prompter Prompter `yaml:"-"`

	// Transport replaces the dialed link, for example with a mock device.
	Transport engine.Transport `yaml:"-"`

	// OnTreeChange is called with the runtime tree after every update.
	OnTreeChange func(*loader.TestCase) `yaml:"-"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	def := engine.DefaultConfig()
	return &Config{
		ConnectAttempts: 3,
		DiscoverTimeout: loader.Duration(5 * time.Second),
		OutputFormat:    "text",
		Timeout:         loader.Duration(def.DefaultTimeout),
		ListenTimeout:   loader.Duration(def.DefaultListenTimeout),
		RetryDelay:      loader.Duration(def.DefaultRetryDelay),
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data on top of DefaultConfig. Unknown
// keys are errors.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the runner settings onto an engine configuration.
func (c *Config) engineConfig() *engine.EngineConfig {
	ec := engine.DefaultConfig()
	if c.Timeout > 0 {
		ec.DefaultTimeout = c.Timeout.D()
	}
	if c.ListenTimeout > 0 {
		ec.DefaultListenTimeout = c.ListenTimeout.D()
	}
	if c.RetryDelay > 0 {
		ec.DefaultRetryDelay = c.RetryDelay.D()
	}
	if len(c.FailurePatterns) > 0 {
		ec.FailurePatterns = c.FailurePatterns
	}
	ec.StopOnFirstFailure = c.StopOnFirstFailure
	ec.Logger = c.Logger
	return ec
}
