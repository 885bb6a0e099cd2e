package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultConnectTimeout bounds the TCP connect to a serial bridge.
const DefaultConnectTimeout = 10 * time.Second

// ClientConfig configures Dial.
type ClientConfig struct {
	// ConnectTimeout bounds the TCP connect (default 10s).
	ConnectTimeout time.Duration

	// Conn configures the resulting connection.
	Conn ConnConfig
}

// Dial connects to a serial bridge at address ("host:port").
func Dial(ctx context.Context, address string, config ClientConfig) (*Conn, error) {
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	nc, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
	}
	return NewConn(nc, config.Conn), nil
}
