package host

import (
	"sync"

	"github.com/dshills/mdsync/internal/logging"
)

// LogNotifier shows messages by logging them.
type LogNotifier struct {
	Logger *logging.Logger
}

func (n LogNotifier) ShowError(msg string) { n.logger().Error("%s", msg) }
func (n LogNotifier) ShowInfo(msg string)  { n.logger().Info("%s", msg) }

func (n LogNotifier) logger() *logging.Logger {
	if n.Logger == nil {
		return logging.Default()
	}
	return n.Logger
}

// RecordingNotifier keeps every message for inspection.
type RecordingNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (n *RecordingNotifier) ShowError(msg string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func (n *RecordingNotifier) ShowInfo(msg string) {
	n.mu.Lock()
	n.infos = append(n.infos, msg)
	n.mu.Unlock()
}

// Errors returns the error messages shown so far.
func (n *RecordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

// Infos returns the informational messages shown so far.
func (n *RecordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

var (
	_ Notifier = LogNotifier{}
	_ Notifier = (*RecordingNotifier)(nil)
)
