// Package watcher notifies subscribers about on-disk changes to individual
// files.
//
// FSNotifyWatcher watches the parent directory of every registered file so
// that editors replacing a file through rename are still observed. A
// DebouncedWatcher coalesces bursts of events per path, and Hub fans events
// out to per-path subscribers with reference-counted registration.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op is a bit set of file system operations.
type Op uint32

const (
	// OpCreate indicates the file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates the file was written.
	OpWrite
	// OpRemove indicates the file was removed.
	OpRemove
	// OpRename indicates the file was renamed away.
	OpRename
	// OpChmod indicates the file mode changed.
	OpChmod
)

// String returns a readable form such as "WRITE|CHMOD".
func (op Op) String() string {
	if op == 0 {
		return "NONE"
	}
	names := []struct {
		op   Op
		name string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
	}
	s := ""
	for _, n := range names {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// ContentChanged reports whether the operation may have changed the file
// contents. Pure mode changes do not.
func (op Op) ContentChanged() bool {
	return op&(OpCreate|OpWrite|OpRemove|OpRename) != 0
}

// Event is a change to a watched file.
type Event struct {
	// Path is the absolute, cleaned path of the file.
	Path string
	// Op is the set of operations observed.
	Op Op
	// Timestamp is when the change was seen.
	Timestamp time.Time
}

// Watcher monitors individual files.
type Watcher interface {
	// Watch starts watching the file at path. The file must exist.
	Watch(path string) error

	// Unwatch stops watching path.
	Unwatch(path string) error

	// Events returns the event channel. It is closed by Close.
	Events() <-chan Event

	// Errors returns the error channel. It is closed by Close.
	Errors() <-chan error

	// Close stops the watcher and releases its resources.
	Close() error
}

// Handler receives events for one subscription.
type Handler func(Event)

// Config holds watcher options.
type Config struct {
	// DebounceDelay is the coalescing window used by NewDebounced.
	DebounceDelay time.Duration

	// BufferSize is the size of the event and error channels.
	BufferSize int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		BufferSize:    100,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounceDelay sets the coalescing window.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Config) {
		c.DebounceDelay = d
	}
}
