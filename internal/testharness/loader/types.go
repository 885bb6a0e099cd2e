// Package loader provides YAML loading of AT command test cases.
package loader

import (
	"fmt"
	"strconv"
	"time"

	"github.com/atcase/atcase-go/pkg/transport"
	"gopkg.in/yaml.v3"
)

// TestCase is a node of the case tree: an ordered list of commands followed
// by an ordered list of sub-cases.
type TestCase struct {
	// ID is the unique case identifier (e.g., "TC-NET-001").
	ID string `yaml:"id"`

	// Name is a human-readable name for the case.
	Name string `yaml:"name"`

	// Description explains what the case validates.
	Description string `yaml:"description,omitempty"`

	// Commands are the steps of this case, in order.
	Commands []*Command `yaml:"commands,omitempty"`

	// SubCases run after this case's commands, in order.
	SubCases []*TestCase `yaml:"sub_cases,omitempty"`

	// FailureStrategy applies to any failed command unless a
	// severity-specific override is set. Defaults to stop.
	FailureStrategy Strategy `yaml:"failure_strategy,omitempty"`

	// OnWarningFailure overrides FailureStrategy for warning-severity failures.
	OnWarningFailure Strategy `yaml:"on_warning_failure,omitempty"`

	// OnErrorFailure overrides FailureStrategy for error-severity failures.
	OnErrorFailure Strategy `yaml:"on_error_failure,omitempty"`

	// ValidationLevel decides whether warning failures count as failing.
	ValidationLevel ValidationLevel `yaml:"validation_level,omitempty"`

	// RunMode selects continuous or single-step execution.
	RunMode RunMode `yaml:"run_mode,omitempty"`

	// RepeatCount is how many times the case runs (default 1).
	RepeatCount int `yaml:"repeat_count,omitempty"`

	// Tags for filtering.
	Tags []string `yaml:"tags,omitempty"`

	// Runtime state; never persisted.
	Status         Status `yaml:"-"`
	CurrentCommand int    `yaml:"-"`
	IsRunning      bool   `yaml:"-"`
	Selected       bool   `yaml:"-"`
}

// Command is a leaf step of a case.
type Command struct {
	// ID is unique across the whole case tree.
	ID string `yaml:"id"`

	// Kind is execution or urc.
	Kind CommandKind `yaml:"kind"`

	// Description is shown in reports.
	Description string `yaml:"description,omitempty"`

	// Command is the text template sent for execution commands. It may
	// contain {name} and {name|default} placeholders.
	Command string `yaml:"command,omitempty"`

	// Encoding of the rendered text (text or hex).
	Encoding transport.Encoding `yaml:"encoding,omitempty"`

	// LineEnding appended after the payload (default crlf).
	LineEnding transport.Terminator `yaml:"line_ending,omitempty"`

	// Validation selects the expected-response predicate.
	Validation ValidationMethod `yaml:"validation,omitempty"`

	// Expected is the text or pattern the response must satisfy.
	Expected string `yaml:"expected,omitempty"`

	// Timeout bounds each attempt's wait for the expected response.
	Timeout Duration `yaml:"timeout,omitempty"`

	// MaxAttempts is the attempt budget (default 1).
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// RetryDelay is the pause between attempts (default 1s).
	RetryDelay *Duration `yaml:"retry_delay,omitempty"`

	// WaitAfter is the pause after a successful step.
	WaitAfter Duration `yaml:"wait_after,omitempty"`

	// Severity classifies a failure of this command (default error).
	Severity Severity `yaml:"severity,omitempty"`

	// FailureMessage replaces the generated failure text.
	FailureMessage string `yaml:"failure_message,omitempty"`

	// RequiresConfirmation asks the operator before the step runs.
	RequiresConfirmation bool `yaml:"requires_confirmation,omitempty"`

	// ConfirmationPrompt is the text shown when asking.
	ConfirmationPrompt string `yaml:"confirmation_prompt,omitempty"`

	// Pattern is the URC match pattern.
	Pattern string `yaml:"pattern,omitempty"`

	// MatchMode selects how Pattern is compared to a line.
	MatchMode MatchMode `yaml:"match_mode,omitempty"`

	// ListenMode is once (with ListenTimeout) or permanent.
	ListenMode ListenMode `yaml:"listen_mode,omitempty"`

	// ListenTimeout bounds a once-mode URC wait.
	ListenTimeout Duration `yaml:"listen_timeout,omitempty"`

	// Parse extracts variables from the matched line.
	Parse *ParseRule `yaml:"parse,omitempty"`

	// Jump redirects control flow after a URC match.
	Jump *JumpConfig `yaml:"jump,omitempty"`

	// OnTimeout overrides the case strategy when a URC times out.
	OnTimeout Strategy `yaml:"on_timeout,omitempty"`

	// Runtime state; never persisted.
	Selected bool   `yaml:"-"`
	Status   Status `yaml:"-"`
}

// ParseRule extracts variables from matched text.
type ParseRule struct {
	// Kind is regex or split.
	Kind ParseKind `yaml:"kind"`

	// Pattern is the regular expression or the literal delimiter. An empty
	// regex pattern reuses the command's match pattern.
	Pattern string `yaml:"pattern,omitempty"`

	// Params maps a group or index key ("1", "group1", a group name,
	// "0", "index0") to a variable name.
	Params map[string]string `yaml:"params"`
}

// JumpConfig controls where execution continues after a URC match.
type JumpConfig struct {
	// OnReceived is continue or jump.
	OnReceived JumpAction `yaml:"on_received"`

	// Target is the command id to continue at.
	Target string `yaml:"target,omitempty"`
}

// TestSuite is a named collection of top-level cases.
type TestSuite struct {
	// Name of the suite.
	Name string `yaml:"name"`

	// Description of what the suite covers.
	Description string `yaml:"description,omitempty"`

	// Cases are the top-level cases.
	Cases []*TestCase `yaml:"cases"`
}

// CommandKind distinguishes sent commands from awaited URCs.
type CommandKind string

const (
	KindExecution CommandKind = "execution"
	KindURC       CommandKind = "urc"
)

// ValidationMethod is the expected-response predicate of an execution command.
type ValidationMethod string

const (
	ValidateNone     ValidationMethod = "none"
	ValidateContains ValidationMethod = "contains"
	ValidateEquals   ValidationMethod = "equals"
	ValidateRegex    ValidationMethod = "regex"
)

// MatchMode is how a URC pattern is compared with a line.
type MatchMode string

const (
	MatchContains   MatchMode = "contains"
	MatchExact      MatchMode = "exact"
	MatchStartsWith MatchMode = "startsWith"
	MatchEndsWith   MatchMode = "endsWith"
	MatchRegex      MatchMode = "regex"
)

// ListenMode is the lifetime of a URC listener.
type ListenMode string

const (
	ListenOnce      ListenMode = "once"
	ListenPermanent ListenMode = "permanent"
)

// ParseKind selects a parse rule implementation.
type ParseKind string

const (
	ParseRegex ParseKind = "regex"
	ParseSplit ParseKind = "split"
)

// JumpAction is what happens after a URC match.
type JumpAction string

const (
	JumpContinue JumpAction = "continue"
	JumpTo       JumpAction = "jump"
)

// Severity classifies the impact of a failed command.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Strategy is the reaction to a failure.
type Strategy string

const (
	StrategyStop     Strategy = "stop"
	StrategyContinue Strategy = "continue"
	StrategyPrompt   Strategy = "prompt"
)

// ValidationLevel decides which failures make a run unsuccessful.
type ValidationLevel string

const (
	// ValidationLevelError counts only error-severity failures as failing.
	ValidationLevelError ValidationLevel = "error"
	// ValidationLevelWarning counts warning and error failures as failing.
	ValidationLevelWarning ValidationLevel = "warning"
	// ValidationLevelInfo is used for informational validation findings.
	ValidationLevelInfo ValidationLevel = "info"
)

// RunMode selects continuous or single-step execution.
type RunMode string

const (
	RunModeAuto   RunMode = "auto"
	RunModeSingle RunMode = "single"
)

// Status is the runtime state of a case or command.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
)

// Duration is a YAML duration. It accepts Go duration strings ("500ms",
// "2s") and bare integers, which are milliseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ValidationError represents a case validation issue.
type ValidationError struct {
	// Field is the path of the offending element (e.g., "TC-1/cmd_3.pattern").
	Field string
	// Message describes the validation issue.
	Message string
	// Level indicates the severity of the issue.
	Level ValidationLevel
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// LoadError provides details about a test case loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Line > 0 {
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + msg
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
