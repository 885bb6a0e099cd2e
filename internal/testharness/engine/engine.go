package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Engine executes test cases. Runs of different cases may proceed
// concurrently and share the transport; a case id runs at most once at a
// time.
type Engine struct {
	config *EngineConfig

	mu   sync.Mutex
	runs map[string]*run
}

// New creates an engine. A nil config uses DefaultConfig.
func New(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		config: config.withDefaults(),
		runs:   make(map[string]*run),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() *EngineConfig { return e.config }

// ExecuteCase runs tc to completion and returns its result. The authored
// tree is not modified; runtime state is reported through the Host.
//
// If tc's id is already running, no second run starts: the running one is
// paused and ErrRunInProgress is returned.
func (e *Engine) ExecuteCase(ctx context.Context, tc *loader.TestCase) (*RunResult, error) {
	if tc == nil {
		return nil, errors.New("nil test case")
	}
	if e.config.Transport == nil {
		return nil, ErrNoTransport
	}

	e.mu.Lock()
	if active, ok := e.runs[tc.ID]; ok {
		e.mu.Unlock()
		active.pause()
		return nil, ErrRunInProgress
	}
	r := newRun(ctx, e.config, tc)
	e.runs[tc.ID] = r
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.runs, tc.ID)
		e.mu.Unlock()
		r.cancel()
	}()

	if e.config.OnRunStart != nil {
		e.config.OnRunStart(tc)
	}
	result := r.execute()
	if e.config.OnRunComplete != nil {
		e.config.OnRunComplete(result)
	}
	return result, nil
}

// Pause stops the run of caseID at its next step boundary or wait. It
// returns false if the case is not running.
func (e *Engine) Pause(caseID string) bool {
	e.mu.Lock()
	r, ok := e.runs[caseID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	r.pause()
	return true
}

// IsRunning reports whether caseID has a run in progress.
func (e *Engine) IsRunning(caseID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[caseID]
	return ok
}

// RunSuite executes cases one after another.
func (e *Engine) RunSuite(ctx context.Context, name string, cases []*loader.TestCase) *SuiteResult {
	result := &SuiteResult{SuiteName: name}
	if result.SuiteName == "" {
		result.SuiteName = "Test Suite"
	}

	startTime := time.Now()
	defer func() { result.Duration = time.Since(startTime) }()

	for _, tc := range cases {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		r, err := e.ExecuteCase(ctx, tc)
		if err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]error)
			}
			result.Errors[tc.ID] = err
			result.FailCount++
			if e.config.StopOnFirstFailure {
				break
			}
			continue
		}
		result.Add(r)

		if r.Status != loader.StatusSuccess && e.config.StopOnFirstFailure {
			break
		}
	}

	return result
}
