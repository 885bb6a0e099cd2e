package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors capture events into an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as a single "capture" record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.CaseID != "" {
		attrs = append(attrs, slog.String("case", event.CaseID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Line != nil:
		attrs = append(attrs, slog.String("line", event.Line.Text))
		if event.Line.Encoding != "" {
			attrs = append(attrs, slog.String("encoding", event.Line.Encoding))
		}
	case event.Step != nil:
		attrs = append(attrs,
			slog.String("command", event.Step.CommandID),
			slog.Int("index", event.Step.CommandIndex),
			slog.String("kind", event.Step.Kind),
			slog.String("verdict", event.Step.Verdict.String()),
		)
		if event.Step.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", event.Step.Attempt))
		}
		if event.Step.Message != "" {
			attrs = append(attrs, slog.String("message", event.Step.Message))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "capture", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
