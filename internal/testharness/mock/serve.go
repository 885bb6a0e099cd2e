package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/atcase/atcase-go/pkg/transport"
)

// Serve runs the device over a byte stream until ctx ends or the peer
// closes. Requests are read as CR/LF terminated lines and every line the
// device emits is written back framed as "\r\n<line>\r\n". A ">" line is
// written as the bare "> " prompt.
func (d *Device) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	lines, unsubscribe := d.Subscribe(64)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(text string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		frame := "\r\n" + text + "\r\n"
		if text == ">" {
			frame = "\r\n> "
		}
		_, err := io.WriteString(conn, frame)
		return err
	}

	for _, g := range d.greeting {
		if err := write(g); err != nil {
			return err
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					conn.Close()
					return
				}
				if err := write(line.Text); err != nil {
					d.logger.Debug("write failed", "device", d.ID, "error", err)
					cancel()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reader := transport.NewLineReader(conn)
	reader.SetEmitPrompt(false)
	var err error
	for {
		var line transport.Line
		line, err = reader.ReadLine()
		if err != nil {
			break
		}
		d.Handle(line.Text)
	}
	cancel()
	<-writerDone

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Server accepts TCP connections and serves a device on each of them.
// All clients share the device's rules and see its URCs.
type Server struct {
	device   *Device
	address  string
	listener net.Listener

	conns   map[net.Conn]struct{}
	connsMu sync.Mutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server for device listening on address.
func NewServer(device *Device, address string) *Server {
	return &Server{
		device:  device,
		address: address,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.device.logger.Warn("accept failed", "error", err)
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()
		s.device.logger.Info("client connected", "device", s.device.ID, "remote", conn.RemoteAddr().String())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.device.Serve(s.ctx, conn); err != nil {
				s.device.logger.Warn("serve failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			s.connsMu.Lock()
			delete(s.conns, conn)
			s.connsMu.Unlock()
			s.device.logger.Info("client disconnected", "device", s.device.ID, "remote", conn.RemoteAddr().String())
		}()
	}
}
