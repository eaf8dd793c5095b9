// Package notification delivers operator-facing notifications (health
// degradation of the exchange or store dependency) to external channels, independent of
// the per-rule alert dispatch in internal/alert: this channel pages a human
// about infrastructure state and never carries rule data.
package notification

import (
	"context"
	"log/slog"
)

// Severity grades an operator event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one operator notification.
type Event struct {
	Severity Severity
	Title    string
	Detail   string
}

// Notifier is implemented by every notification backend.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log. It is the fallback backend
// when no external channel is configured, so a dev setup still surfaces
// degradations somewhere visible.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	n.log.Warn("operator notification",
		"severity", string(ev.Severity),
		"title", ev.Title,
		"detail", ev.Detail,
	)
	return nil
}
