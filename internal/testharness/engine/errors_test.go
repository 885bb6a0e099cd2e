package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/pkg/log"
	"github.com/atcase/atcase-go/pkg/transport"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, ErrKindConfiguration, KindOf(Configuration(base)))
	assert.Equal(t, ErrKindTransport, KindOf(TransportError(base)))
	assert.Equal(t, ErrKindOperator, KindOf(OperatorCancellation(base)))
	assert.Equal(t, ErrKindAssertion, KindOf(Assertion(base)))
	assert.Equal(t, ErrKindAssertion, KindOf(base))
	assert.Equal(t, ErrKindTransport, KindOf(fmt.Errorf("read: %w", io.EOF)))
	assert.Equal(t, ErrKindTransport, KindOf(transport.ErrConnectionClosed))

	wrapped := fmt.Errorf("step cmd_1: %w", Configuration(ErrJumpTarget))
	assert.Equal(t, ErrKindConfiguration, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrJumpTarget)
}

func TestErrorKindText(t *testing.T) {
	for _, k := range []ErrorKind{ErrKindAssertion, ErrKindConfiguration, ErrKindTransport, ErrKindOperator} {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back ErrorKind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	assert.Equal(t, "unknown", ErrorKind(42).String())
	assert.Equal(t, ErrKindAssertion, ParseErrorKind("nonsense"))

	data, err := json.Marshal(FailureRecord{Kind: ErrKindOperator})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"operator"`)
}

type recordingTransport struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (r *recordingTransport) Send(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, append([]byte(nil), data...))
	return nil
}

func (r *recordingTransport) Subscribe(int) (<-chan transport.Line, func()) {
	ch := make(chan transport.Line)
	return ch, func() {}
}

type captureLog struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLog) Log(e log.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestDispatcherSend(t *testing.T) {
	tr := &recordingTransport{}
	capture := &captureLog{}
	d := NewDispatcher(tr, capture, "run-1")

	require.NoError(t, d.Send(context.Background(), "TC-1", "AT+CGMR", "", ""))
	require.NoError(t, d.Send(context.Background(), "TC-1", "41 54", transport.EncodingHex, transport.TerminatorCR))

	require.Len(t, tr.sent, 2)
	assert.Equal(t, "AT+CGMR\r\n", string(tr.sent[0]))
	assert.Equal(t, "AT\r", string(tr.sent[1]))

	require.Len(t, capture.events, 2)
	e := capture.events[0]
	assert.Equal(t, log.DirectionOut, e.Direction)
	assert.Equal(t, log.LayerLine, e.Layer)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "TC-1", e.CaseID)
	assert.Equal(t, "AT+CGMR", e.Line.Text)
	assert.Equal(t, "text", e.Line.Encoding)
	assert.Equal(t, "hex", capture.events[1].Line.Encoding)
}

func TestDispatcherErrors(t *testing.T) {
	tr := &recordingTransport{}
	d := NewDispatcher(tr, nil, "run-1")

	err := d.Send(context.Background(), "TC-1", "ZZ", transport.EncodingHex, "")
	assert.Equal(t, ErrKindConfiguration, KindOf(err))
	assert.ErrorIs(t, err, transport.ErrInvalidHex)
	assert.Empty(t, tr.sent)

	tr.err = transport.ErrNotConnected
	err = d.Send(context.Background(), "TC-1", "AT", "", "")
	assert.Equal(t, ErrKindTransport, KindOf(err))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}
