package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/atcase/atcase-go/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (s *syncLogger) Log(e log.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *syncLogger) snapshot() []log.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]log.Event(nil), s.events...)
}

func recvLine(t *testing.T, ch <-chan Line) Line {
	t.Helper()
	select {
	case l, ok := <-ch:
		require.True(t, ok, "line channel closed")
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return Line{}
	}
}

func TestConnSendAndReceive(t *testing.T) {
	local, remote := net.Pipe()
	rec := &syncLogger{}
	conn := NewConn(local, ConnConfig{Logger: rec})
	defer conn.Close()

	lines, unsubscribe := conn.Subscribe(8)
	defer unsubscribe()

	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		if string(buf[:n]) == "AT\r\n" {
			_, _ = remote.Write([]byte("\r\nOK\r\n"))
		}
	}()

	data, err := Encode("AT", EncodingText, TerminatorCRLF)
	require.NoError(t, err)
	require.NoError(t, conn.Send(context.Background(), data))

	assert.Equal(t, "OK", recvLine(t, lines).Text)
	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, StateConnected, conn.State())

	var sawOut bool
	for _, e := range rec.snapshot() {
		if e.Frame != nil && e.Direction == log.DirectionOut {
			sawOut = true
			assert.Equal(t, 4, e.Frame.Size)
		}
	}
	assert.True(t, sawOut, "expected an outgoing frame event")
}

func TestConnFanOut(t *testing.T) {
	local, remote := net.Pipe()
	conn := NewConn(local, ConnConfig{})
	defer conn.Close()

	a, unsubA := conn.Subscribe(4)
	defer unsubA()
	b, unsubB := conn.Subscribe(4)
	defer unsubB()

	go func() { _, _ = remote.Write([]byte("+CREG: 1\r\n")) }()

	assert.Equal(t, "+CREG: 1", recvLine(t, a).Text)
	assert.Equal(t, "+CREG: 1", recvLine(t, b).Text)
}

func TestConnRemoteClose(t *testing.T) {
	local, remote := net.Pipe()
	var gotErr error
	var mu sync.Mutex
	conn := NewConn(local, ConnConfig{OnError: func(err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	}})

	lines, unsubscribe := conn.Subscribe(1)
	defer unsubscribe()

	require.NoError(t, remote.Close())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}

	_, ok := <-lines
	assert.False(t, ok, "line channel should be closed")
	assert.ErrorIs(t, conn.Err(), ErrConnectionClosed)
	mu.Lock()
	assert.ErrorIs(t, gotErr, ErrConnectionClosed)
	mu.Unlock()
	assert.Equal(t, StateDisconnected, conn.State())
	assert.ErrorIs(t, conn.Send(context.Background(), []byte("AT\r")), ErrConnectionClosed)
}

func TestConnCloseIdempotent(t *testing.T) {
	local, _ := net.Pipe()
	conn := NewConn(local, ConnConfig{})

	require.NoError(t, conn.Close())
	_ = conn.Close()

	assert.Equal(t, StateDisconnected, conn.State())
	assert.NoError(t, conn.Err())
}

func TestConnSendCancelledContext(t *testing.T) {
	local, _ := net.Pipe()
	conn := NewConn(local, ConnConfig{})
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := conn.Send(ctx, []byte("AT\r"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBroadcasterUnsubscribeUnblocksPublish(t *testing.T) {
	b := NewBroadcaster()
	_, unsubscribe := b.Subscribe(0)

	done := make(chan struct{})
	go func() {
		b.Publish(Line{Text: "RING"})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	unsubscribe()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not return after unsubscribe")
	}
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe(1)
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 16)
		if _, err := c.Read(buf); err != nil {
			return
		}
		_, _ = c.Write([]byte("READY\r\n"))
		time.Sleep(100 * time.Millisecond)
	}()

	conn, err := Dial(context.Background(), ln.Addr().String(), ClientConfig{ConnectTimeout: time.Second})
	require.NoError(t, err)
	defer conn.Close()

	lines, unsubscribe := conn.Subscribe(1)
	defer unsubscribe()
	require.NoError(t, conn.Send(context.Background(), []byte("AT\r\n")))
	assert.Equal(t, "READY", recvLine(t, lines).Text)
	assert.Equal(t, ln.Addr().String(), conn.RemoteAddr())
}
