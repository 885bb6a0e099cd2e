package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atcase/atcase-go/pkg/log"
	"github.com/google/uuid"
)

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int

const (
	// StateConnected indicates an open link.
	StateConnected ConnectionState = iota
	// StateClosing indicates Close is in progress.
	StateClosing
	// StateDisconnected indicates the link is closed.
	StateDisconnected
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnConfig configures a Conn.
type ConnConfig struct {
	// MaxLineSize bounds a received line (default 8 KB).
	MaxLineSize int

	// WriteTimeout bounds a single write when the link is a net.Conn
	// (0 = only the context deadline applies).
	WriteTimeout time.Duration

	// DisablePrompt turns off "> " prompt detection.
	DisablePrompt bool

	// Logger receives capture events. Nil disables capture.
	Logger log.Logger

	// OnStateChange is called on state transitions.
	OnStateChange func(old, new ConnectionState)

	// OnError is called once when the read loop stops on an error other
	// than a local Close.
	OnError func(err error)
}

// Conn is an open line link to a device. Lines read from the link are
// broadcast to subscribers by a single read goroutine.
type Conn struct {
	id     string
	rwc    io.ReadWriteCloser
	remote string
	config ConnConfig
	logger log.Logger

	lines *Broadcaster

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// NewConn wraps an open byte stream and starts reading lines from it.
func NewConn(rwc io.ReadWriteCloser, config ConnConfig) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		rwc:    rwc,
		config: config,
		logger: log.OrNoop(config.Logger),
		lines:  NewBroadcaster(),
		done:   make(chan struct{}),
	}
	if nc, ok := rwc.(net.Conn); ok && nc.RemoteAddr() != nil {
		c.remote = nc.RemoteAddr().String()
	}
	c.state.Store(int32(StateConnected))
	c.logState("", StateConnected.String(), "opened")

	reader := NewLineReader(rwc)
	reader.SetMaxLineSize(config.MaxLineSize)
	reader.SetEmitPrompt(!config.DisablePrompt)
	reader.SetLogger(c.logger, c.id)

	go c.readLoop(reader)
	return c
}

// ID returns the connection identifier used in capture events.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address, or "" if the link is not a socket.
func (c *Conn) RemoteAddr() string { return c.remote }

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Done is closed when the read loop has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Subscribe returns a channel of received lines. See Broadcaster.Subscribe.
func (c *Conn) Subscribe(buffer int) (<-chan Line, func()) {
	return c.lines.Subscribe(buffer)
}

// Send writes data to the link. A write that has started is never
// interrupted; ctx is checked before writing and its deadline bounds the
// write on socket links.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.State() != StateConnected {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if nc, ok := c.rwc.(net.Conn); ok {
		deadline, hasDeadline := ctx.Deadline()
		if c.config.WriteTimeout > 0 {
			if d := time.Now().Add(c.config.WriteTimeout); !hasDeadline || d.Before(deadline) {
				deadline, hasDeadline = d, true
			}
		}
		if hasDeadline {
			_ = nc.SetWriteDeadline(deadline)
			defer nc.SetWriteDeadline(time.Time{})
		}
	}

	if _, err := c.rwc.Write(data); err != nil {
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			RemoteAddr:   c.remote,
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: "write"},
		})
		return fmt.Errorf("write failed: %w", err)
	}
	c.logger.Log(frameEvent(c.id, data, log.DirectionOut))
	return nil
}

// Close closes the link. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosing, "close requested")
		err = c.rwc.Close()
		<-c.done
	})
	return err
}

func (c *Conn) readLoop(reader *LineReader) {
	defer func() {
		c.lines.Close()
		c.setState(StateDisconnected, "read loop stopped")
		close(c.done)
	}()

	for {
		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				c.reportError(err, "read")
				continue
			}
			if c.State() == StateClosing {
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrConnectionClosed
			}
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			c.reportError(err, "read")
			if c.config.OnError != nil {
				c.config.OnError(err)
			}
			return
		}
		c.lines.Publish(line)
	}
}

func (c *Conn) reportError(err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		RemoteAddr:   c.remote,
		Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: context},
	})
}

func (c *Conn) setState(s ConnectionState, reason string) {
	old := ConnectionState(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.logState(old.String(), s.String(), reason)
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(old, s)
	}
}

func (c *Conn) logState(old, new, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}
