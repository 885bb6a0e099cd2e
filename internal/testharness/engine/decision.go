package engine

import (
	"context"
	"sync"
)

// DecisionReason says why the engine is asking the operator.
type DecisionReason string

const (
	// ReasonConfirmation is a command's requires_confirmation prompt.
	ReasonConfirmation DecisionReason = "confirmation"
	// ReasonSingleStep is the per-step prompt of single-step run mode.
	ReasonSingleStep DecisionReason = "single_step"
	// ReasonFailure is a prompt-on-failure decision.
	ReasonFailure DecisionReason = "failure"
)

// PendingDecision is a question the engine waits on. The host answers
// with Confirm or Decline; only the first answer counts.
type PendingDecision struct {
	RunID        string
	CaseID       string
	CommandID    string
	CommandIndex int
	Reason       DecisionReason
	Prompt       string

	once   sync.Once
	answer chan bool
}

func newPendingDecision(prompt string, reason DecisionReason) *PendingDecision {
	return &PendingDecision{
		Prompt: prompt,
		Reason: reason,
		answer: make(chan bool, 1),
	}
}

// Confirm answers yes (continue).
func (d *PendingDecision) Confirm() { d.resolve(true) }

// Decline answers no (stop the run).
func (d *PendingDecision) Decline() { d.resolve(false) }

func (d *PendingDecision) resolve(ok bool) {
	d.once.Do(func() { d.answer <- ok })
}

// Wait blocks until the decision is answered or ctx ends.
func (d *PendingDecision) Wait(ctx context.Context) (bool, error) {
	select {
	case ok := <-d.answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
