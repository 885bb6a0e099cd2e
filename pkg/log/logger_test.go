package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type collectingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectingLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}
	logger.Log(Event{})
	logger.Log(Event{Frame: &FrameEvent{Size: 4, Data: []byte("AT\r\n")}})
	logger.Log(Event{Step: &StepEvent{CommandID: "cmd1"}})
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	c := &collectingLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should return the given logger")
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &collectingLogger{}, &collectingLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", m.Len())
	}

	m.Log(Event{Line: &LineEvent{Text: "OK"}})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected one event per logger, got %d and %d", len(a.events), len(b.events))
	}
}

func TestSlogAdapterLogsStepEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionNone,
		Layer:        LayerEngine,
		Category:     CategoryStep,
		CaseID:       "case1",
		Step: &StepEvent{
			CommandID:    "cmd2",
			CommandIndex: 1,
			Kind:         "execution",
			Attempt:      2,
			Verdict:      VerdictFail,
			Message:      "timeout",
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	checks := map[string]any{
		"layer":   "ENGINE",
		"case":    "case1",
		"command": "cmd2",
		"verdict": "FAIL",
		"attempt": float64(2),
		"message": "timeout",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %v", k, entry[k], want)
		}
	}
}

func TestSlogAdapterLogsLineEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Direction: DirectionOut,
		Layer:     LayerLine,
		Line:      &LineEvent{Text: "AT+CSQ", Encoding: "text"},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["line"] != "AT+CSQ" {
		t.Errorf("line: got %v", entry["line"])
	}
	if entry["direction"] != "OUT" {
		t.Errorf("direction: got %v", entry["direction"])
	}
}

func TestParseLayer(t *testing.T) {
	if l, ok := ParseLayer("line"); !ok || l != LayerLine {
		t.Errorf("ParseLayer(line) = %v, %v", l, ok)
	}
	if _, ok := ParseLayer("wire"); ok {
		t.Error("ParseLayer(wire) should fail")
	}
}
