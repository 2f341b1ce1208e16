// Package notify dispatches renewal notifications to external channels.
// Dispatch is fire-and-forget: a failed notification is logged and never
// fails the operation that triggered it.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Message is one notification to a set of recipients over a set of
// channels (e.g. "email", "in_app").
type Message struct {
	TenantID   string         `json:"tenant_id"`
	Template   string         `json:"template"`
	Channels   []string       `json:"channels"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Notifier delivers a message. Implementations must be non-blocking with
// respect to the caller's success path.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. The default
// when no delivery backend is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification dispatched",
		"tenant_id", msg.TenantID,
		"template", msg.Template,
		"channels", msg.Channels,
		"recipients", len(msg.Recipients),
	)
	return nil
}
