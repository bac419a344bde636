// Package notify sends desktop notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Notifier shows a notification when a run finishes. A disabled notifier does nothing.
type Notifier struct {
	enabled bool
	logger  *slog.Logger
	send    func(title, message string, icon any) error
}

func New(enabled bool, logger *slog.Logger) *Notifier {
	return &Notifier{enabled: enabled, logger: logger, send: beeep.Notify}
}

// Send shows a notification. Failures are logged at debug level.
func (n *Notifier) Send(title, message string) {
	if n == nil || !n.enabled {
		return
	}
	if err := n.send(title, message, ""); err != nil && n.logger != nil {
		n.logger.Debug("desktop notification failed", "error", err)
	}
}
