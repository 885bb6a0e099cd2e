package engine

import (
	"fmt"

	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Location identifies a command inside a case tree.
type Location struct {
	CaseID       string
	CommandIndex int
}

// ResolveTarget searches tree depth-first for the command targetID. The
// search covers tree and its sub-cases only.
func ResolveTarget(tree *loader.TestCase, targetID string) (Location, bool) {
	owner, idx, ok := loader.FindCommand(tree, targetID)
	if !ok {
		return Location{}, false
	}
	return Location{CaseID: owner.ID, CommandIndex: idx}, true
}

// jumpResolver maps a URC's jump configuration to a plan position.
type jumpResolver struct {
	plan *plan
}

// next returns the plan position to continue at after cmd (owned by
// owner) matched, or -1 for sequential continuation. An unresolved target
// returns -1 and a configuration error.
func (j *jumpResolver) next(owner *loader.TestCase, cmd *loader.Command) (int, error) {
	if cmd.Jump == nil || cmd.Jump.OnReceived != loader.JumpTo {
		return -1, nil
	}
	if cmd.Jump.Target == "" {
		return -1, Configuration(fmt.Errorf("%w: %s has no jump target", ErrJumpTarget, cmd.ID))
	}

	loc, ok := ResolveTarget(owner, cmd.Jump.Target)
	if !ok {
		return -1, Configuration(fmt.Errorf("%w: %q is not in case %s or its sub-cases", ErrJumpTarget, cmd.Jump.Target, owner.ID))
	}
	target := loader.FindCase(owner, loc.CaseID).Commands[loc.CommandIndex]
	pos, ok := j.plan.indexOf(target)
	if !ok {
		return -1, Configuration(fmt.Errorf("%w: %q is not part of this run", ErrJumpTarget, cmd.Jump.Target))
	}
	return pos, nil
}
