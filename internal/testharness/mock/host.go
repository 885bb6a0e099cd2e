package mock

import (
	"sync"

	"github.com/atcase/atcase-go/internal/testharness/engine"
)

// CommandUpdate is a recorded engine.CommandUpdate.
type CommandUpdate struct {
	CaseID string
	Index  int
	engine.CommandUpdate
}

// CaseUpdate is a recorded engine.CaseUpdate.
type CaseUpdate struct {
	CaseID string
	engine.CaseUpdate
}

// StatusMessage is a recorded operator message.
type StatusMessage struct {
	Text  string
	Level engine.StatusLevel
}

// Host is an engine.Host that records every callback.
type Host struct {
	// Handlers are callbacks for host operations.
	Handlers HostHandlers

	mu        sync.Mutex
	commands  []CommandUpdate
	cases     []CaseUpdate
	messages  []StatusMessage
	decisions []*engine.PendingDecision
}

// HostHandlers holds callbacks for host operations.
type HostHandlers struct {
	// OnDecision answers a pending decision. When nil every decision is
	// confirmed.
	OnDecision func(d *engine.PendingDecision)
}

var _ engine.Host = (*Host)(nil)

// NewHost creates a recording host.
func NewHost() *Host {
	return &Host{}
}

// OnCommandUpdate records a command update.
func (h *Host) OnCommandUpdate(caseID string, index int, update engine.CommandUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, CommandUpdate{CaseID: caseID, Index: index, CommandUpdate: update})
}

// OnCaseUpdate records a case update.
func (h *Host) OnCaseUpdate(caseID string, update engine.CaseUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cases = append(h.cases, CaseUpdate{CaseID: caseID, CaseUpdate: update})
}

// OnStatusMessage records a status message.
func (h *Host) OnStatusMessage(text string, level engine.StatusLevel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, StatusMessage{Text: text, Level: level})
}

// OnUserActionRequired records the decision and answers it.
func (h *Host) OnUserActionRequired(d *engine.PendingDecision) {
	h.mu.Lock()
	h.decisions = append(h.decisions, d)
	handler := h.Handlers.OnDecision
	h.mu.Unlock()

	if handler != nil {
		handler(d)
		return
	}
	d.Confirm()
}

// CommandUpdates returns the recorded command updates.
func (h *Host) CommandUpdates() []CommandUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]CommandUpdate, len(h.commands))
	copy(result, h.commands)
	return result
}

// CaseUpdates returns the recorded case updates.
func (h *Host) CaseUpdates() []CaseUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]CaseUpdate, len(h.cases))
	copy(result, h.cases)
	return result
}

// Messages returns the recorded status messages.
func (h *Host) Messages() []StatusMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]StatusMessage, len(h.messages))
	copy(result, h.messages)
	return result
}

// Decisions returns the decisions handed to the host.
func (h *Host) Decisions() []*engine.PendingDecision {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]*engine.PendingDecision, len(h.decisions))
	copy(result, h.decisions)
	return result
}

// LastCaseStatus returns the most recent status reported for caseID.
func (h *Host) LastCaseStatus(caseID string) (CaseUpdate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.cases) - 1; i >= 0; i-- {
		if h.cases[i].CaseID == caseID {
			return h.cases[i], true
		}
	}
	return CaseUpdate{}, false
}
