package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atcase/atcase-go/pkg/log"
	"github.com/atcase/atcase-go/pkg/transport"
)

// Dispatcher sends rendered command text to the transport. It does not
// wait for any response.
type Dispatcher struct {
	transport Transport
	capture   log.Logger
	runID     string
}

// NewDispatcher creates a Dispatcher. capture may be nil.
func NewDispatcher(t Transport, capture log.Logger, runID string) *Dispatcher {
	return &Dispatcher{transport: t, capture: log.OrNoop(capture), runID: runID}
}

// Send encodes text, appends the terminator and writes the bytes. An
// encoding problem is a configuration error; a write failure is a
// transport error.
func (d *Dispatcher) Send(ctx context.Context, caseID, text string, enc transport.Encoding, term transport.Terminator) error {
	data, err := transport.Encode(text, enc, term)
	if err != nil {
		return Configuration(fmt.Errorf("encode %q: %w", text, err))
	}

	if enc == "" {
		enc = transport.EncodingText
	}
	d.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerLine,
		Category:  log.CategoryMessage,
		RunID:     d.runID,
		CaseID:    caseID,
		Line:      &log.LineEvent{Text: text, Encoding: string(enc)},
	})

	if err := d.transport.Send(ctx, data); err != nil {
		return TransportError(fmt.Errorf("send %q: %w", text, err))
	}
	return nil
}
