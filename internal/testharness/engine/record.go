package engine

import (
	"fmt"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/pkg/log"
)

// recordStep adds the verdict of an executed step to the result.
func (r *run) recordStep(st *step, out outcome, dur time.Duration) {
	cmd, owner := st.cmd, st.owner

	sr := StepResult{
		CaseID:       owner.ID,
		CommandID:    cmd.ID,
		CommandIndex: st.cmdIndex,
		Kind:         cmd.Kind,
		Passed:       out.passed,
		Attempts:     out.attempts,
		Sent:         out.sent,
		Response:     out.response,
		Duration:     dur,
	}
	if !out.passed && out.err != nil {
		sr.Error = failureText(cmd, out.err)
	}

	r.mu.Lock()
	sr.Iteration = r.iteration
	res := r.result
	res.Steps = append(res.Steps, sr)
	res.Total++
	t := r.tallyFor(owner.ID)
	if out.passed {
		res.Passed++
		t.passed++
	} else {
		res.Failed++
		t.failed++
		sev := severityOf(cmd.Severity)
		if sev == loader.SeverityWarning {
			res.Warnings++
		} else {
			res.Errors++
		}
		if countsAsFailing(owner, sev) {
			r.failing++
			t.failing++
		}
		res.Failures = append(res.Failures, FailureRecord{
			CaseID:       owner.ID,
			CommandID:    cmd.ID,
			CommandIndex: st.cmdIndex,
			CommandText:  commandText(cmd, out.sent),
			Error:        sr.Error,
			Kind:         KindOf(out.err),
			Severity:     sev,
			Timestamp:    time.Now(),
		})
	}
	r.mu.Unlock()

	update := CommandUpdate{Status: loader.StatusSuccess, Attempt: out.attempts, Response: out.response}
	if !out.passed {
		update.Status = loader.StatusFailed
		update.Error = sr.Error
		r.logger.Warn("step failed", "command", cmd.ID, "index", st.cmdIndex, "attempts", out.attempts, "error", out.err)
		r.host.OnStatusMessage(fmt.Sprintf("%s failed: %s", cmd.ID, sr.Error), StatusError)
	}
	r.host.OnCommandUpdate(owner.ID, st.cmdIndex, update)
}

// recordConfigError logs a configuration problem in the failure log
// without changing any counts.
func (r *run) recordConfigError(st *step, err error) {
	r.appendFailure(st, err.Error(), ErrKindConfiguration)
	r.logger.Warn("configuration error", "command", st.cmd.ID, "error", err)
	r.host.OnStatusMessage(fmt.Sprintf("%s: %v", st.cmd.ID, err), StatusWarning)
	r.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionNone,
		Layer:     log.LayerEngine,
		Category:  log.CategoryError,
		RunID:     r.id,
		CaseID:    st.owner.ID,
		Error:     &log.ErrorEventData{Layer: log.LayerEngine, Message: err.Error(), Context: st.cmd.ID},
	})
}

// recordOperatorCancel logs an operator cancellation and ends the run.
func (r *run) recordOperatorCancel(st *step, msg string) {
	r.appendFailure(st, "operator cancellation: "+msg, ErrKindOperator)
	r.abort("operator cancelled")
}

func (r *run) appendFailure(st *step, msg string, kind ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Failures = append(r.result.Failures, FailureRecord{
		CaseID:       st.owner.ID,
		CommandID:    st.cmd.ID,
		CommandIndex: st.cmdIndex,
		CommandText:  commandText(st.cmd, ""),
		Error:        msg,
		Kind:         kind,
		Severity:     severityOf(st.cmd.Severity),
		Timestamp:    time.Now(),
	})
}

// tallyFor returns the tally of a case. Callers hold r.mu.
func (r *run) tallyFor(caseID string) *tally {
	t, ok := r.tallies[caseID]
	if !ok {
		t = &tally{}
		r.tallies[caseID] = t
	}
	return t
}

func (r *run) finalize() *RunResult {
	r.mu.Lock()
	res := r.result
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Variables = r.store.Snapshot()
	res.Status = computeStatus(res.Passed, r.failing, res.Aborted)
	tallies := make(map[string]tally, len(r.tallies))
	for id, t := range r.tallies {
		tallies[id] = *t
	}
	r.mu.Unlock()

	loader.Walk(r.root, func(tc *loader.TestCase, depth int) bool {
		if depth == 0 {
			return true
		}
		if t, ok := tallies[tc.ID]; ok {
			r.host.OnCaseUpdate(tc.ID, CaseUpdate{
				Status:         computeStatus(t.passed, t.failing, false),
				CurrentCommand: -1,
			})
		}
		return true
	})
	r.host.OnCaseUpdate(r.root.ID, CaseUpdate{Status: res.Status, CurrentCommand: -1})

	r.logState(log.StateEntityRun, string(loader.StatusRunning), string(res.Status), res.AbortReason)
	r.logger.Info("run finished",
		"status", res.Status,
		"passed", res.Passed,
		"failed", res.Failed,
		"duration", res.Duration,
		"listeners_left", r.router.armedCount(),
	)
	return res
}

// computeStatus applies the run status rules: success iff nothing is
// failing, failed iff nothing passed, partial otherwise. An aborted run
// is never successful.
func computeStatus(passed, failing int, aborted bool) loader.Status {
	if aborted {
		if passed == 0 {
			return loader.StatusFailed
		}
		return loader.StatusPartial
	}
	if failing == 0 {
		return loader.StatusSuccess
	}
	if passed == 0 {
		return loader.StatusFailed
	}
	return loader.StatusPartial
}

func failureText(cmd *loader.Command, err error) string {
	if err == nil {
		return cmd.FailureMessage
	}
	if cmd.FailureMessage != "" {
		return fmt.Sprintf("%s (%v)", cmd.FailureMessage, err)
	}
	return err.Error()
}

func commandText(cmd *loader.Command, sent string) string {
	if sent != "" {
		return sent
	}
	if cmd.Kind == loader.KindURC {
		return cmd.Pattern
	}
	return cmd.Command
}

func (r *run) captureStep(st *step, attempt int, verdict log.Verdict, msg string) {
	r.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionNone,
		Layer:     log.LayerEngine,
		Category:  log.CategoryStep,
		RunID:     r.id,
		CaseID:    st.owner.ID,
		Step: &log.StepEvent{
			CommandID:    st.cmd.ID,
			CommandIndex: st.cmdIndex,
			Kind:         string(st.cmd.Kind),
			Attempt:      attempt,
			Verdict:      verdict,
			Message:      msg,
		},
	})
}

func (r *run) logState(entity log.StateEntity, old, new, reason string) {
	r.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionNone,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		RunID:     r.id,
		CaseID:    r.root.ID,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}
