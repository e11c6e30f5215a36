package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter writes diagnostic events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Transport != "" {
		attrs = append(attrs, slog.String("transport", event.Transport))
	}
	if event.SocketID != "" {
		attrs = append(attrs, slog.String("socket_id", event.SocketID))
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("ctrl_type", event.ControlMsg.Type.String()),
		)
		if event.ControlMsg.CloseCode != nil {
			attrs = append(attrs, slog.Int("close_code", *event.ControlMsg.CloseCode))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
		if event.Error.Details != nil {
			attrs = append(attrs, detailsAttr(event.Error.Details))
		}
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("event", event.Message.Name),
			slog.Int("size", event.Message.Size),
		)
		if event.Message.Channel != "" {
			attrs = append(attrs, slog.String("channel", event.Message.Channel))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "diagnostic", attrs...)
}

func detailsAttr(details any) slog.Attr {
	m, ok := details.(map[string]any)
	if !ok {
		return slog.String("error_details", fmt.Sprint(details))
	}
	group := make([]any, 0, len(m))
	for _, k := range SortedKeys(m) {
		group = append(group, slog.Any(k, m[k]))
	}
	return slog.Group("error_details", group...)
}

var _ Logger = (*SlogAdapter)(nil)
