// Package notify carries best-effort user notifications out of the
// core. The default implementation writes them to the log; embedders
// substitute a platform notifier.
package notify

import "github.com/haltgate/haltgate/internal/gate/common/log"

// LogNotifier emits notifications as info-level log lines.
type LogNotifier struct {
	Logger log.Logger
}

// New returns a LogNotifier on the given logger.
func New(logger log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &LogNotifier{Logger: logger}
}

// Notify writes the notification to the log. Never fails.
func (n *LogNotifier) Notify(title, body string) error {
	n.Logger.Info(map[string]any{"title": title, "body": body}, "Notification")
	return nil
}
