// Package runner loads test cases, connects to the device under test, and
// runs the cases through the engine with reporting, capture and history.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/atcase/atcase-go/internal/history"
	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/internal/testharness/reporter"
	"github.com/atcase/atcase-go/pkg/discovery"
	"github.com/atcase/atcase-go/pkg/log"
	"github.com/atcase/atcase-go/pkg/transport"
)

// Errors returned by the runner.
var (
	ErrNoTarget      = errors.New("no target: set a bridge address or enable discovery")
	ErrNoCases       = errors.New("no test cases found")
	ErrInvalidCases  = errors.New("test cases failed validation")
	ErrUnknownSelect = errors.New("selected command ids not found")
)

// summaryReporter streams runs as they complete and prints a summary at the
// end instead of one suite report.
type summaryReporter interface {
	ReportSuiteStart(name string)
	ReportSummary(result *engine.SuiteResult)
}

// Runner executes test cases against a device reached over a serial bridge.
type Runner struct {
	config   *Config
	logger   *slog.Logger
	host     *TreeHost
	reporter reporter.Reporter
	capture  *log.FileLogger
	history  *history.Store

	engine *engine.Engine
	conn   *transport.Conn
}

// New creates a runner. It opens the capture file and history database
// when configured.
func New(config *Config) (*Runner, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	rep, err := reporter.New(config.OutputFormat, config.Output, config.Verbose)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config:   config,
		logger:   config.Logger,
		host:     NewTreeHost(config.Logger, config.Prompter, config.AutoConfirm),
		reporter: rep,
	}
	if config.OnTreeChange != nil {
		r.host.OnChange(config.OnTreeChange)
	}

	if config.CaptureLog != "" {
		r.capture, err = log.NewFileLogger(config.CaptureLog)
		if err != nil {
			return nil, fmt.Errorf("open capture log: %w", err)
		}
	}

	if config.HistoryDB != "" {
		r.history, err = history.Open(config.HistoryDB)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
	}

	return r, nil
}

// Host returns the runner's tree-state host.
func (r *Runner) Host() *TreeHost { return r.host }

// Engine returns the engine, or nil before Connect.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// captureLogger returns the capture sink, or nil when neither the capture
// file nor tracing is on.
func (r *Runner) captureLogger() log.Logger {
	var sinks []log.Logger
	if r.capture != nil {
		sinks = append(sinks, r.capture)
	}
	if r.config.Trace {
		sinks = append(sinks, log.NewSlogAdapter(r.logger))
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return log.NewMultiLogger(sinks...)
}

// Connect establishes the device link and creates the engine. An injected
// Transport is used as is; otherwise the target is dialed, after mDNS
// discovery when no address is configured.
func (r *Runner) Connect(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	tr := r.config.Transport
	if tr == nil {
		target, err := r.resolveTarget(ctx)
		if err != nil {
			return err
		}

		r.logger.Info("connecting", "target", target)
		cfg := transport.ClientConfig{Conn: transport.ConnConfig{Logger: r.captureLogger()}}
		conn, err := newDialBackoff(r.config.ConnectAttempts).connect(ctx, r.logger, func(ctx context.Context) (*transport.Conn, error) {
			return transport.Dial(ctx, target, cfg)
		})
		if err != nil {
			return fmt.Errorf("connect %s: %w", target, err)
		}
		r.conn = conn
		tr = conn
	}

	ec := r.config.engineConfig()
	ec.Transport = tr
	ec.Host = r.host
	ec.Capture = r.captureLogger()
	ec.OnRunStart = func(tc *loader.TestCase) {
		r.host.Track(ctx, tc)
	}
	ec.OnRunComplete = r.runComplete
	r.engine = engine.New(ec)
	return nil
}

func (r *Runner) resolveTarget(ctx context.Context) (string, error) {
	if r.config.Target != "" {
		return r.config.Target, nil
	}
	if !r.config.Discover {
		return "", ErrNoTarget
	}

	bc := discovery.DefaultBrowserConfig()
	if r.config.DiscoverTimeout > 0 {
		bc.BrowseTimeout = r.config.DiscoverTimeout.D()
	}
	if r.config.DiscoverModel != "" {
		bc.Filter = discovery.FilterByModel(r.config.DiscoverModel)
	}

	br, err := discovery.NewBrowser(bc).FindFirst(ctx)
	if err != nil {
		return "", fmt.Errorf("discover bridge: %w", err)
	}
	r.logger.Info("discovered bridge", "instance", br.Instance, "model", br.Model(), "address", br.Address())
	return br.Address(), nil
}

func (r *Runner) runComplete(result *engine.RunResult) {
	if _, ok := r.reporter.(summaryReporter); ok {
		r.reporter.ReportRun(result)
	}
	if r.history != nil {
		if err := r.history.SaveRun(result); err != nil {
			r.logger.Warn("failed to save run", "case", result.CaseID, "error", err)
		}
	}
}

// LoadCases loads, filters, validates and applies the command selection.
func (r *Runner) LoadCases() ([]*loader.TestCase, error) {
	var cases []*loader.TestCase
	for _, p := range r.config.Paths {
		loaded, err := loader.LoadPath(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load tests: %w", err)
		}
		cases = append(cases, loaded...)
	}

	cases = newCaseFilter(r.config.Pattern, r.config.Tags, r.config.ExcludeTags).apply(cases)

	if len(cases) == 0 {
		return nil, fmt.Errorf("%w (paths=%v, pattern=%q, tags=%v, exclude-tags=%v)",
			ErrNoCases, r.config.Paths, r.config.Pattern, r.config.Tags, r.config.ExcludeTags)
	}

	var problems []string
	for _, tc := range cases {
		for _, ve := range loader.Validate(tc) {
			if ve.Level == loader.ValidationLevelError {
				problems = append(problems, ve.Error())
			}
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w:\n  %s", ErrInvalidCases, strings.Join(problems, "\n  "))
	}

	if len(r.config.Select) > 0 {
		return selectCommands(cases, r.config.Select)
	}
	return cases, nil
}

// selectCommands applies the selection to every case. An id is unknown
// only if no case contains it.
func selectCommands(cases []*loader.TestCase, ids []string) ([]*loader.TestCase, error) {
	missing := make(map[string]int, len(ids))
	out := make([]*loader.TestCase, len(cases))
	for i, tc := range cases {
		selected, unknown := loader.SelectCommands(tc, ids)
		for _, id := range unknown {
			missing[id]++
		}
		out[i] = selected
	}

	var notFound []string
	for _, id := range ids {
		if missing[id] == len(cases) {
			notFound = append(notFound, id)
		}
	}
	if len(notFound) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelect, strings.Join(notFound, ", "))
	}
	return out, nil
}

// Run loads the cases, connects and runs them as one suite.
func (r *Runner) Run(ctx context.Context) (*engine.SuiteResult, error) {
	cases, err := r.LoadCases()
	if err != nil {
		return nil, err
	}
	return r.RunCases(ctx, cases)
}

// RunCases connects and runs cases as one suite.
func (r *Runner) RunCases(ctx context.Context, cases []*loader.TestCase) (*engine.SuiteResult, error) {
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	name := "AT Test Suite"
	if r.config.Target != "" {
		name = fmt.Sprintf("AT Test Suite (%s)", r.config.Target)
	}
	sr, streaming := r.reporter.(summaryReporter)
	if streaming {
		sr.ReportSuiteStart(name)
	}
	result := r.engine.RunSuite(ctx, name, cases)

	if streaming {
		// Individual runs were already streamed via OnRunComplete.
		sr.ReportSummary(result)
	} else {
		r.reporter.ReportSuite(result)
	}

	if r.capture != nil {
		if err := r.capture.Flush(); err != nil {
			r.logger.Warn("failed to flush capture log", "error", err)
		}
	}

	return result, nil
}

// Pause pauses the running case.
func (r *Runner) Pause(caseID string) bool {
	if r.engine == nil {
		return false
	}
	return r.engine.Pause(caseID)
}

// Close releases the connection, capture file and history database.
func (r *Runner) Close() error {
	var errs []error
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
		r.conn = nil
	}
	if r.capture != nil {
		errs = append(errs, r.capture.Close())
		r.capture = nil
	}
	if r.history != nil {
		errs = append(errs, r.history.Close())
		r.history = nil
	}
	return errors.Join(errs...)
}
