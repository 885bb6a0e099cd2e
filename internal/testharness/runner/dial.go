package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/pkg/transport"
)

// dialBackoff spaces out dial attempts to a serial bridge that is still
// booting or restarting its TCP server.
type dialBackoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
}

func newDialBackoff(attempts int) dialBackoff {
	return dialBackoff{attempts: max(attempts, 1), base: 200 * time.Millisecond, ceiling: 2 * time.Second}
}

// wait returns the pause after the given failed attempt (1-based). It
// doubles from base up to ceiling.
func (b dialBackoff) wait(failed int) time.Duration {
	d := b.base
	for i := 1; i < failed && d < b.ceiling; i++ {
		d *= 2
	}
	return min(d, b.ceiling)
}

// connect calls dial until a link is up. It gives up when the attempts
// are used, when ctx ends, or when dial returns a classified error that
// is not a transport error.
func (b dialBackoff) connect(ctx context.Context, logger *slog.Logger, dial func(context.Context) (*transport.Conn, error)) (*transport.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		var ce *engine.ClassifiedError
		if errors.As(err, &ce) && ce.Kind != engine.ErrKindTransport {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == b.attempts {
			break
		}

		pause := b.wait(attempt)
		logger.Info("bridge not reachable", "attempt", attempt, "retry_in", pause, "error", err)
		timer := time.NewTimer(pause)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("gave up after %d attempt(s): %w", b.attempts, engine.TransportError(lastErr))
}
