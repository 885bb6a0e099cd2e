package runner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f PrompterFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// TreeHost is the runner's engine.Host. It keeps an observable copy of the
// running case tree; every update produces a new tree through
// loader.UpdateCase, so snapshots handed out earlier never change.
type TreeHost struct {
	logger      *slog.Logger
	prompter    Prompter
	autoConfirm bool
	onChange    func(*loader.TestCase)

	mu   sync.Mutex
	tree *loader.TestCase
	ctx  context.Context
}

// NewTreeHost creates a host. With autoConfirm set, or without a prompter,
// every decision is confirmed.
func NewTreeHost(logger *slog.Logger, prompter Prompter, autoConfirm bool) *TreeHost {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TreeHost{
		logger:      logger,
		prompter:    prompter,
		autoConfirm: autoConfirm,
		ctx:         context.Background(),
	}
}

// OnChange registers fn to receive the tree after every update.
func (h *TreeHost) OnChange(fn func(*loader.TestCase)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Track starts observing a fresh runtime copy of root. Prompts started
// while tracking are bound to ctx.
func (h *TreeHost) Track(ctx context.Context, root *loader.TestCase) {
	h.update(func(*loader.TestCase) *loader.TestCase { return loader.ResetRuntime(root) })
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
}

// Tree returns the current runtime tree.
func (h *TreeHost) Tree() *loader.TestCase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tree
}

func (h *TreeHost) update(fn func(*loader.TestCase) *loader.TestCase) {
	h.mu.Lock()
	next := fn(h.tree)
	changed := next != h.tree
	h.tree = next
	onChange := h.onChange
	h.mu.Unlock()

	if changed && onChange != nil {
		onChange(next)
	}
}

// OnCommandUpdate implements engine.Host.
func (h *TreeHost) OnCommandUpdate(caseID string, index int, u engine.CommandUpdate) {
	h.update(func(tree *loader.TestCase) *loader.TestCase {
		return loader.UpdateCommand(tree, caseID, index, func(c loader.Command) loader.Command {
			c.Status = u.Status
			return c
		})
	})
	if u.Error != "" {
		h.logger.Debug("command failed", "case", caseID, "index", index, "attempt", u.Attempt, "error", u.Error)
	}
}

// OnCaseUpdate implements engine.Host.
func (h *TreeHost) OnCaseUpdate(caseID string, u engine.CaseUpdate) {
	h.update(func(tree *loader.TestCase) *loader.TestCase {
		return loader.UpdateCase(tree, caseID, func(tc loader.TestCase) loader.TestCase {
			tc.Status = u.Status
			tc.CurrentCommand = u.CurrentCommand
			tc.IsRunning = u.IsRunning
			return tc
		})
	})
}

// OnStatusMessage implements engine.Host.
func (h *TreeHost) OnStatusMessage(text string, level engine.StatusLevel) {
	switch level {
	case engine.StatusError:
		h.logger.Error(text)
	case engine.StatusWarning:
		h.logger.Warn(text)
	default:
		h.logger.Info(text)
	}
}

// OnUserActionRequired implements engine.Host. The prompt runs on its own
// goroutine; the engine waits on the decision.
func (h *TreeHost) OnUserActionRequired(d *engine.PendingDecision) {
	if h.autoConfirm || h.prompter == nil {
		d.Confirm()
		return
	}

	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()

	go func() {
		ok, err := h.prompter.Confirm(ctx, d.Prompt)
		if err != nil {
			h.logger.Warn("prompt failed", "case", d.CaseID, "command", d.CommandID, "error", err)
			d.Decline()
			return
		}
		if ok {
			d.Confirm()
		} else {
			d.Decline()
		}
	}()
}

var _ engine.Host = (*TreeHost)(nil)
