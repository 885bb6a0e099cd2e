package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/pkg/log"
	"github.com/atcase/atcase-go/pkg/transport"
	"github.com/google/uuid"
)

// run is the state of one ExecuteCase call.
type run struct {
	id      string
	cfg     *EngineConfig
	root    *loader.TestCase
	ctx     context.Context
	cancel  context.CancelFunc
	host    Host
	logger  *slog.Logger
	capture log.Logger

	store      *VariableStore
	dispatcher *Dispatcher
	plan       *plan
	jumps      *jumpResolver
	router     *lineRouter

	mu          sync.Mutex
	result      *RunResult
	failing     int
	triggered   map[string]bool
	armed       map[string]bool
	pendingJump int
	jumpsTaken  int
	tallies     map[string]*tally
	iteration   int
	paused      bool
}

// tally counts verdicts of one case's own commands.
type tally struct {
	passed, failed, failing int
}

// outcome is the verdict of one step.
type outcome struct {
	passed   bool
	counted  bool
	err      error
	sent     string
	response string
	attempts int
	next     int
}

func newRun(parent context.Context, cfg *EngineConfig, tc *loader.TestCase) *run {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	root := loader.ResetRuntime(tc)
	p := buildPlan(root)
	return &run{
		id:          id,
		cfg:         cfg,
		root:        root,
		ctx:         ctx,
		cancel:      cancel,
		host:        cfg.Host,
		logger:      cfg.Logger.With("run_id", id, "case", tc.ID),
		capture:     cfg.Capture,
		store:       NewVariableStore(),
		dispatcher:  NewDispatcher(cfg.Transport, cfg.Capture, id),
		plan:        p,
		jumps:       &jumpResolver{plan: p},
		triggered:   make(map[string]bool),
		armed:       make(map[string]bool),
		pendingJump: -1,
		tallies:     make(map[string]*tally),
	}
}

func (r *run) pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	r.cancel()
}

func (r *run) execute() *RunResult {
	r.result = &RunResult{
		RunID:     r.id,
		CaseID:    r.root.ID,
		CaseName:  r.root.Name,
		StartTime: time.Now(),
	}

	r.logger.Info("run started", "steps", len(r.plan.steps), "runnable", r.plan.runnableCount())
	r.logState(log.StateEntityRun, "", string(loader.StatusRunning), "started")
	r.host.OnCaseUpdate(r.root.ID, CaseUpdate{Status: loader.StatusRunning, CurrentCommand: -1, IsRunning: true})

	lines, unsubscribe := r.cfg.Transport.Subscribe(r.cfg.LineBuffer)
	r.router = newLineRouter(lines, unsubscribe, r.onPermanentMatch)
	go r.router.run()

	repeat := r.root.RepeatCount
	if repeat < 1 {
		repeat = 1
	}
	for it := 0; it < repeat && !r.result.Aborted; it++ {
		if it == 0 {
			r.store.Clear()
			r.mu.Lock()
			r.triggered = make(map[string]bool)
			r.mu.Unlock()
		}
		r.mu.Lock()
		r.iteration = it + 1
		r.result.Iterations = it + 1
		r.mu.Unlock()
		r.runPlan()
	}

	r.router.stop()
	return r.finalize()
}

func (r *run) runPlan() {
	pc := 0
	landed := false
	for {
		if target, ok := r.takePendingJump(); ok {
			pc, landed = target, true
		}
		if pc >= len(r.plan.steps) {
			return
		}
		if r.ctx.Err() != nil {
			r.abortCancelled()
			return
		}

		st := &r.plan.steps[pc]
		if !st.runnable && !landed {
			pc++
			continue
		}
		landed = false

		next, stop := r.runStep(st)
		if stop {
			return
		}
		if next >= 0 {
			pc, landed = next, true
		} else {
			pc++
		}
	}
}

// runStep executes one plan step. It returns the plan position to jump
// to (-1 for sequential) and whether the run must end.
func (r *run) runStep(st *step) (int, bool) {
	cmd, owner := st.cmd, st.owner

	r.host.OnCaseUpdate(owner.ID, CaseUpdate{Status: loader.StatusRunning, CurrentCommand: st.cmdIndex, IsRunning: true})

	if cmd.Kind == loader.KindURC && cmd.ListenMode == loader.ListenPermanent {
		r.mu.Lock()
		skip := r.triggered[cmd.ID] || r.armed[cmd.ID]
		r.mu.Unlock()
		if skip {
			return -1, false
		}
	}

	if prompt, reason, ok := confirmationFor(st); ok {
		confirmed, err := r.ask(st, prompt, reason)
		if err != nil {
			r.abortCancelled()
			return -1, true
		}
		if !confirmed {
			r.recordOperatorCancel(st, "operator declined to run step")
			return -1, true
		}
	}

	r.host.OnCommandUpdate(owner.ID, st.cmdIndex, CommandUpdate{Status: loader.StatusRunning})
	start := time.Now()

	var out outcome
	switch {
	case cmd.Kind == loader.KindExecution:
		out = r.runExecution(st)
	case cmd.Kind == loader.KindURC && cmd.ListenMode == loader.ListenPermanent:
		out = r.armPermanent(st)
	case cmd.Kind == loader.KindURC:
		out = r.runOnceURC(st)
	default:
		out = outcome{counted: true, attempts: 1, next: -1,
			err: Configuration(fmt.Errorf("unknown command kind %q", cmd.Kind))}
	}

	if out.err != nil && r.ctx.Err() != nil && errors.Is(out.err, r.ctx.Err()) {
		r.host.OnCommandUpdate(owner.ID, st.cmdIndex, CommandUpdate{Status: loader.StatusPending})
		r.abortCancelled()
		return -1, true
	}

	if out.counted {
		r.recordStep(st, out, time.Since(start))
	}

	next := out.next
	if out.counted && !out.passed {
		if stop := r.applyPolicy(st, out); stop {
			return -1, true
		}
		next = -1
	}

	if wait := cmd.WaitAfter.D(); wait > 0 {
		if !r.sleep(wait) {
			r.abortCancelled()
			return -1, true
		}
	}
	return next, false
}

func confirmationFor(st *step) (string, DecisionReason, bool) {
	cmd := st.cmd
	if cmd.RequiresConfirmation {
		prompt := cmd.ConfirmationPrompt
		if prompt == "" {
			prompt = fmt.Sprintf("Confirm before running %s (%s)", cmd.ID, describe(cmd))
		}
		return prompt, ReasonConfirmation, true
	}
	if st.owner.RunMode == loader.RunModeSingle {
		return fmt.Sprintf("Run step %s (%s)?", cmd.ID, describe(cmd)), ReasonSingleStep, true
	}
	return "", "", false
}

func describe(cmd *loader.Command) string {
	if cmd.Kind == loader.KindURC {
		return "wait for " + cmd.Pattern
	}
	return cmd.Command
}

// runExecution sends an execution command and waits for its expected
// response, retrying up to the attempt budget.
func (r *run) runExecution(st *step) outcome {
	cmd := st.cmd
	out := outcome{counted: true, next: -1}

	text, missing := r.store.Resolve(cmd.Command)
	if len(missing) > 0 {
		r.warnUnresolved(st, missing)
	}
	out.sent = text

	expected := cmd.Expected
	if cmd.Validation != loader.ValidateRegex {
		expected, _ = r.store.Resolve(expected)
	}
	matcher, err := NewResponseMatcher(cmd.Validation, expected)
	if err != nil {
		out.attempts = 1
		out.err = err
		r.captureStep(st, 1, log.VerdictFail, err.Error())
		return out
	}

	attempts := maxAttempts(cmd)
	timeout := cmd.Timeout.D()
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if !r.sleep(r.retryDelay(cmd)) {
				out.err = r.ctx.Err()
				return out
			}
		}
		out.attempts = attempt

		resp, err := r.attemptExecution(st, text, matcher, timeout)
		out.response = resp
		if err == nil {
			out.passed = true
			out.err = nil
			r.captureStep(st, attempt, log.VerdictPass, resp)
			r.logger.Debug("step passed", "command", cmd.ID, "attempt", attempt)
			return out
		}

		out.err = err
		if r.ctx.Err() != nil {
			return out
		}
		r.captureStep(st, attempt, log.VerdictFail, err.Error())
		r.logger.Debug("attempt failed", "command", cmd.ID, "attempt", attempt, "error", err)
		r.host.OnCommandUpdate(st.owner.ID, st.cmdIndex, CommandUpdate{
			Status: loader.StatusRunning, Attempt: attempt, Response: resp, Error: err.Error(),
		})
		if KindOf(err) == ErrKindConfiguration {
			return out
		}
	}
	return out
}

func (r *run) attemptExecution(st *step, text string, matcher *Matcher, timeout time.Duration) (string, error) {
	cmd := st.cmd

	var w *waiter
	if matcher != nil {
		w = newWaiter(func(line string) (bool, error) {
			if matcher.Match(line) {
				return true, nil
			}
			if r.isFailureLine(line) {
				return true, Assertion(fmt.Errorf("%w: %s", ErrTerminalResponse, line))
			}
			return false, nil
		})
		if err := r.router.arm(w); err != nil {
			return "", err
		}
		defer r.router.disarm(w)
	}

	if err := r.dispatcher.Send(r.ctx, st.owner.ID, text, cmd.Encoding, cmd.LineEnding); err != nil {
		return "", err
	}
	if w == nil {
		return "", nil
	}
	return r.await(w, timeout, ErrTimeout)
}

// runOnceURC waits for a single matching URC within the listen timeout.
func (r *run) runOnceURC(st *step) outcome {
	cmd := st.cmd
	out := outcome{counted: true, next: -1, sent: "wait " + cmd.Pattern}

	matcher, err := NewMatcher(cmd.Pattern, cmd.MatchMode)
	if err == nil && cmd.Pattern == "" {
		err = Configuration(errors.New("URC has no pattern"))
	}
	var extractor *Extractor
	if err == nil {
		extractor, err = NewExtractor(cmd.Parse, matcher)
	}
	if err != nil {
		out.attempts = 1
		out.err = err
		r.captureStep(st, 1, log.VerdictFail, err.Error())
		return out
	}

	timeout := cmd.ListenTimeout.D()
	if timeout <= 0 {
		timeout = r.cfg.DefaultListenTimeout
	}
	attempts := maxAttempts(cmd)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if !r.sleep(r.retryDelay(cmd)) {
				out.err = r.ctx.Err()
				return out
			}
		}
		out.attempts = attempt

		w := newWaiter(func(line string) (bool, error) { return matcher.Match(line), nil })
		if err := r.router.arm(w); err != nil {
			out.err = err
			return out
		}
		resp, err := r.await(w, timeout, ErrURCTimeout)
		r.router.disarm(w)

		out.response = resp
		if err == nil {
			out.passed = true
			out.err = nil
			r.applyExtraction(st, extractor, resp)
			r.captureStep(st, attempt, log.VerdictPass, resp)
			out.next = r.resolveJump(st)
			return out
		}

		out.err = err
		if r.ctx.Err() != nil {
			return out
		}
		r.captureStep(st, attempt, log.VerdictFail, err.Error())
		r.host.OnCommandUpdate(st.owner.ID, st.cmdIndex, CommandUpdate{
			Status: loader.StatusRunning, Attempt: attempt, Error: err.Error(),
		})
	}
	return out
}

// armPermanent registers a permanent URC listener. The step itself is
// not counted; the listener counts when it fires.
func (r *run) armPermanent(st *step) outcome {
	cmd := st.cmd

	matcher, err := NewMatcher(cmd.Pattern, cmd.MatchMode)
	if err == nil && cmd.Pattern == "" {
		err = Configuration(errors.New("URC has no pattern"))
	}
	var extractor *Extractor
	if err == nil {
		extractor, err = NewExtractor(cmd.Parse, matcher)
	}
	if err != nil {
		r.captureStep(st, 1, log.VerdictFail, err.Error())
		return outcome{counted: true, attempts: 1, next: -1, err: err, sent: "listen " + cmd.Pattern}
	}

	r.mu.Lock()
	r.armed[cmd.ID] = true
	r.mu.Unlock()
	r.router.addPermanent(&permanentListener{st: st, matcher: matcher, extractor: extractor})

	r.captureStep(st, 0, log.VerdictArm, cmd.Pattern)
	r.logger.Debug("permanent listener armed", "command", cmd.ID, "pattern", cmd.Pattern)
	return outcome{next: -1}
}

// onPermanentMatch runs on the router goroutine when a permanent
// listener matches a line.
func (r *run) onPermanentMatch(l *permanentListener, line transport.Line) {
	st := l.st
	r.mu.Lock()
	if r.triggered[st.cmd.ID] {
		r.mu.Unlock()
		return
	}
	r.triggered[st.cmd.ID] = true
	r.mu.Unlock()

	r.applyExtraction(st, l.extractor, line.Text)
	r.captureStep(st, 0, log.VerdictPass, line.Text)
	r.recordStep(st, outcome{passed: true, counted: true, attempts: 1, response: line.Text, sent: "listen " + st.cmd.Pattern}, 0)

	if next := r.resolveJump(st); next >= 0 {
		r.mu.Lock()
		r.pendingJump = next
		r.mu.Unlock()
	}
}

func (r *run) takePendingJump() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingJump < 0 {
		return 0, false
	}
	next := r.pendingJump
	r.pendingJump = -1
	return next, true
}

// resolveJump returns the plan position to continue at after st matched,
// or -1. Unresolvable jumps are logged as configuration errors.
func (r *run) resolveJump(st *step) int {
	next, err := r.jumps.next(st.owner, st.cmd)
	if err != nil {
		r.recordConfigError(st, err)
		return -1
	}
	if next < 0 {
		return -1
	}

	r.mu.Lock()
	if r.jumpsTaken >= r.cfg.MaxJumps {
		r.mu.Unlock()
		r.recordConfigError(st, Configuration(fmt.Errorf("%w (%d)", ErrTooManyJumps, r.cfg.MaxJumps)))
		return -1
	}
	r.jumpsTaken++
	r.mu.Unlock()

	r.captureStep(st, 0, log.VerdictJump, st.cmd.Jump.Target)
	r.logger.Debug("jump", "command", st.cmd.ID, "target", st.cmd.Jump.Target)
	return next
}

func (r *run) applyExtraction(st *step, x *Extractor, text string) {
	vars, err := x.Extract(text)
	if err != nil {
		r.recordConfigError(st, err)
		return
	}
	r.store.Merge(vars)
}

// applyPolicy consults the execution policy after a failed step and
// reports whether the run must end.
func (r *run) applyPolicy(st *step, out outcome) bool {
	if KindOf(out.err) == ErrKindOperator {
		r.abort("operator cancelled")
		return true
	}
	if KindOf(out.err) == ErrKindConfiguration {
		r.logger.Warn("continuing after configuration error", "command", st.cmd.ID, "error", out.err)
		return false
	}

	switch ResolvePolicy(st.owner, st.cmd) {
	case DecisionContinue:
		return false
	case DecisionAwait:
		prompt := fmt.Sprintf("%s failed: %s. Continue?", st.cmd.ID, failureText(st.cmd, out.err))
		confirmed, err := r.ask(st, prompt, ReasonFailure)
		if err != nil {
			r.abortCancelled()
			return true
		}
		if confirmed {
			return false
		}
		r.recordOperatorCancel(st, "operator stopped the run after failure")
		return true
	default:
		r.abort(fmt.Sprintf("stopped after failure of %s", st.cmd.ID))
		return true
	}
}

// ask hands a decision to the host and waits for it.
func (r *run) ask(st *step, prompt string, reason DecisionReason) (bool, error) {
	d := newPendingDecision(prompt, reason)
	d.RunID = r.id
	d.CaseID = st.owner.ID
	d.CommandID = st.cmd.ID
	d.CommandIndex = st.cmdIndex

	r.logger.Debug("awaiting operator", "command", st.cmd.ID, "reason", string(reason))
	r.host.OnUserActionRequired(d)
	return d.Wait(r.ctx)
}

func (r *run) await(w *waiter, timeout time.Duration, timeoutErr error) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.result:
		return res.line.Text, res.err
	case <-timer.C:
		return "", Assertion(fmt.Errorf("%w after %v", timeoutErr, timeout))
	case <-r.ctx.Done():
		return "", r.ctx.Err()
	}
}

// sleep waits for d or until the run is cancelled. It reports whether
// the full duration elapsed.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *run) isFailureLine(line string) bool {
	for _, p := range r.cfg.FailurePatterns {
		if p == "ERROR" {
			if strings.TrimSpace(line) == p {
				return true
			}
			continue
		}
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func (r *run) retryDelay(cmd *loader.Command) time.Duration {
	if cmd.RetryDelay != nil {
		return cmd.RetryDelay.D()
	}
	return r.cfg.DefaultRetryDelay
}

func maxAttempts(cmd *loader.Command) int {
	if cmd.MaxAttempts < 1 {
		return 1
	}
	return cmd.MaxAttempts
}

func (r *run) warnUnresolved(st *step, names []string) {
	msg := fmt.Sprintf("%s: unresolved variables %s", st.cmd.ID, strings.Join(names, ", "))
	r.logger.Warn("unresolved variables", "command", st.cmd.ID, "names", names)
	r.host.OnStatusMessage(msg, StatusWarning)
}

func (r *run) abortCancelled() {
	r.mu.Lock()
	paused := r.paused
	r.mu.Unlock()
	if paused {
		r.abort("paused")
		return
	}
	r.abort("cancelled")
}

func (r *run) abort(reason string) {
	r.mu.Lock()
	if r.result.Aborted {
		r.mu.Unlock()
		return
	}
	r.result.Aborted = true
	r.result.AbortReason = reason
	r.mu.Unlock()

	r.logger.Info("run aborted", "reason", reason)
	r.host.OnStatusMessage(fmt.Sprintf("%s: %s", r.root.ID, reason), StatusWarning)
}
