package runner

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/mock"
	"github.com/atcase/atcase-go/pkg/transport"
)

var quietLogger = slog.New(slog.DiscardHandler)

func fastBackoff(attempts int) dialBackoff {
	return dialBackoff{attempts: attempts, base: 20 * time.Millisecond, ceiling: 80 * time.Millisecond}
}

// closedAddress returns a loopback address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestDialBackoffWait(t *testing.T) {
	b := dialBackoff{attempts: 6, base: 50 * time.Millisecond, ceiling: 150 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, b.wait(1))
	assert.Equal(t, 100*time.Millisecond, b.wait(2))
	assert.Equal(t, 150*time.Millisecond, b.wait(3))
	assert.Equal(t, 150*time.Millisecond, b.wait(10))

	assert.Equal(t, 1, newDialBackoff(0).attempts)
	assert.Equal(t, 4, newDialBackoff(4).attempts)
}

func TestConnectWaitsForBridgeRestart(t *testing.T) {
	device := testDevice()
	defer device.Close()

	// A bridge that was up, went down, and comes back on the same port.
	first := mock.NewServer(device, "127.0.0.1:0")
	require.NoError(t, first.Start(context.Background()))
	addr := first.Addr().String()
	require.NoError(t, first.Stop())

	restarted := make(chan *mock.Server, 1)
	go func() {
		time.Sleep(120 * time.Millisecond)
		s := mock.NewServer(device, addr)
		if err := s.Start(context.Background()); err != nil {
			restarted <- nil
			return
		}
		restarted <- s
	}()

	dials := 0
	conn, err := fastBackoff(20).connect(context.Background(), quietLogger, func(ctx context.Context) (*transport.Conn, error) {
		dials++
		return transport.Dial(ctx, addr, transport.ClientConfig{ConnectTimeout: time.Second})
	})
	server := <-restarted
	require.NotNil(t, server, "bridge could not be restarted on %s", addr)
	defer server.Stop()
	require.NoError(t, err)
	defer conn.Close()
	assert.Greater(t, dials, 1, "the first dial should hit the stopped bridge")

	lines, unsubscribe := conn.Subscribe(4)
	defer unsubscribe()
	require.NoError(t, conn.Send(context.Background(), []byte("AT\r\n")))
	select {
	case line := <-lines:
		assert.Equal(t, "OK", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from the restarted bridge")
	}
}

func TestConnectGivesUp(t *testing.T) {
	addr := closedAddress(t)

	dials := 0
	_, err := fastBackoff(3).connect(context.Background(), quietLogger, func(ctx context.Context) (*transport.Conn, error) {
		dials++
		return transport.Dial(ctx, addr, transport.ClientConfig{ConnectTimeout: time.Second})
	})
	require.Error(t, err)
	assert.Equal(t, 3, dials)
	assert.Contains(t, err.Error(), "gave up after 3 attempt(s)")
	assert.Equal(t, engine.ErrKindTransport, engine.KindOf(err))
}

func TestConnectStopsOnConfigurationError(t *testing.T) {
	dials := 0
	_, err := fastBackoff(5).connect(context.Background(), quietLogger, func(context.Context) (*transport.Conn, error) {
		dials++
		return nil, engine.Configuration(errors.New("bad target"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, dials)
	assert.Equal(t, engine.ErrKindConfiguration, engine.KindOf(err))
}

func TestConnectHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := dialBackoff{attempts: 10, base: time.Second, ceiling: time.Second}

	start := time.Now()
	_, err := b.connect(ctx, quietLogger, func(context.Context) (*transport.Conn, error) {
		cancel()
		return nil, errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
