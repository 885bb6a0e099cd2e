// Package engine executes AT command test cases against a device.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/pkg/log"
	"github.com/atcase/atcase-go/pkg/transport"
)

// Transport is the device link consumed by the engine. *transport.Conn
// satisfies it.
type Transport interface {
	// Send writes encoded bytes to the device.
	Send(ctx context.Context, data []byte) error

	// Subscribe returns the stream of decoded lines received from now on
	// and a function that ends the subscription. The channel is closed
	// when the link goes down.
	Subscribe(buffer int) (<-chan transport.Line, func())
}

// RunResult is the outcome of one ExecuteCase call. It is not modified
// after being returned.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// CaseID and CaseName identify the top-level case.
	CaseID   string `json:"case_id"`
	CaseName string `json:"case_name"`

	// Status is success, failed or partial.
	Status loader.Status `json:"status"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Iterations is the number of repeat iterations started.
	Iterations int `json:"iterations"`

	// Total is the number of executed steps; Passed + Failed == Total.
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// Warnings and Errors split Failed by command severity.
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`

	// Aborted is set when the run ended before its last step.
	Aborted     bool   `json:"aborted,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`

	// Failures is the failure log, in order of occurrence.
	Failures []FailureRecord `json:"failures,omitempty"`

	// Steps holds one entry per executed step.
	Steps []StepResult `json:"steps,omitempty"`

	// Variables is the variable store at the end of the run.
	Variables map[string]Variable `json:"variables,omitempty"`
}

// FailureRecord is one entry of the failure log.
type FailureRecord struct {
	CaseID       string          `json:"case_id"`
	CommandID    string          `json:"command_id"`
	CommandIndex int             `json:"command_index"`
	CommandText  string          `json:"command_text"`
	Error        string          `json:"error"`
	Kind         ErrorKind       `json:"kind"`
	Severity     loader.Severity `json:"severity,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// StepResult describes one executed step.
type StepResult struct {
	CaseID       string             `json:"case_id"`
	CommandID    string             `json:"command_id"`
	CommandIndex int                `json:"command_index"`
	Kind         loader.CommandKind `json:"kind"`
	Iteration    int                `json:"iteration"`
	Passed       bool               `json:"passed"`
	Attempts     int                `json:"attempts"`
	Sent         string             `json:"sent,omitempty"`
	Response     string             `json:"response,omitempty"`
	Error        string             `json:"error,omitempty"`
	Duration     time.Duration      `json:"duration"`
}

// SuiteResult aggregates the runs of several top-level cases.
type SuiteResult struct {
	// SuiteName identifies the suite.
	SuiteName string

	// Results contains one run per case, in execution order.
	Results []*RunResult

	// Errors holds cases that could not be run at all, keyed by case id.
	Errors map[string]error

	PassCount    int
	PartialCount int
	FailCount    int

	// Duration is the total time for all runs.
	Duration time.Duration
}

// Add records a run in the suite totals.
func (s *SuiteResult) Add(r *RunResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case loader.StatusSuccess:
		s.PassCount++
	case loader.StatusPartial:
		s.PartialCount++
	default:
		s.FailCount++
	}
}

// CommandUpdate is a partial runtime update for one command.
type CommandUpdate struct {
	Status   loader.Status
	Attempt  int
	Response string
	Error    string
}

// CaseUpdate is a partial runtime update for one case.
type CaseUpdate struct {
	Status         loader.Status
	CurrentCommand int
	IsRunning      bool
}

// StatusLevel grades an operator status message.
type StatusLevel string

const (
	StatusInfo    StatusLevel = "info"
	StatusWarning StatusLevel = "warning"
	StatusError   StatusLevel = "error"
)

// Host is the operator-facing collaborator. Callbacks may arrive from the
// run goroutine and from the line listener goroutine, so implementations
// must be safe for concurrent use and must not block.
type Host interface {
	OnCommandUpdate(caseID string, index int, update CommandUpdate)
	OnCaseUpdate(caseID string, update CaseUpdate)
	OnStatusMessage(text string, level StatusLevel)

	// OnUserActionRequired hands a decision to the operator. The engine
	// waits until it is confirmed or declined, or the run is paused.
	OnUserActionRequired(d *PendingDecision)
}

// NopHost ignores updates and confirms every decision.
type NopHost struct{}

func (NopHost) OnCommandUpdate(string, int, CommandUpdate) {}
func (NopHost) OnCaseUpdate(string, CaseUpdate)            {}
func (NopHost) OnStatusMessage(string, StatusLevel)        {}
func (NopHost) OnUserActionRequired(d *PendingDecision)    { d.Confirm() }

// EngineConfig configures the test engine.
type EngineConfig struct {
	// Transport is the device link. Required.
	Transport Transport

	// Host receives runtime updates and decisions (default NopHost).
	Host Host

	// Logger receives operational logs (default discards).
	Logger *slog.Logger

	// Capture receives ENGINE layer capture events (default none).
	Capture log.Logger

	// DefaultTimeout bounds a response wait when a command sets none.
	DefaultTimeout time.Duration

	// DefaultListenTimeout bounds a once-mode URC wait when a command sets none.
	DefaultListenTimeout time.Duration

	// DefaultRetryDelay separates attempts when a command sets none.
	DefaultRetryDelay time.Duration

	// FailurePatterns are line prefixes that fail an execution attempt
	// immediately.
	FailurePatterns []string

	// MaxJumps bounds the jumps taken in one run.
	MaxJumps int

	// LineBuffer is the subscription buffer size.
	LineBuffer int

	// StopOnFirstFailure makes RunSuite stop after the first run that is
	// not successful.
	StopOnFirstFailure bool

	// OnRunStart is called with the authored tree before each run.
	OnRunStart func(*loader.TestCase)

	// OnRunComplete is called after each run.
	OnRunComplete func(*RunResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout:       5 * time.Second,
		DefaultListenTimeout: 10 * time.Second,
		DefaultRetryDelay:    time.Second,
		FailurePatterns:      []string{"ERROR", "+CME ERROR:", "+CMS ERROR:"},
		MaxJumps:             100,
		LineBuffer:           64,
	}
}

func (c *EngineConfig) withDefaults() *EngineConfig {
	out := *c
	def := DefaultConfig()
	if out.Host == nil {
		out.Host = NopHost{}
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	out.Capture = log.OrNoop(out.Capture)
	if out.DefaultTimeout <= 0 {
		out.DefaultTimeout = def.DefaultTimeout
	}
	if out.DefaultListenTimeout <= 0 {
		out.DefaultListenTimeout = def.DefaultListenTimeout
	}
	if out.DefaultRetryDelay == 0 {
		out.DefaultRetryDelay = def.DefaultRetryDelay
	}
	if out.FailurePatterns == nil {
		out.FailurePatterns = def.FailurePatterns
	}
	if out.MaxJumps <= 0 {
		out.MaxJumps = def.MaxJumps
	}
	if out.LineBuffer <= 0 {
		out.LineBuffer = def.LineBuffer
	}
	return &out
}
