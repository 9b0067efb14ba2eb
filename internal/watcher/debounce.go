package watcher

import (
	"sync"
	"time"

	"github.com/dshills/mdsync/internal/debounce"
)

// DebouncedWatcher wraps a Watcher and coalesces rapid changes to the same
// path into one event carrying the union of the observed operations.
type DebouncedWatcher struct {
	inner Watcher
	deb   *debounce.Debouncer

	mu       sync.Mutex
	pending  map[string]Event
	events   chan Event
	errors   chan error
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewDebouncedWatcher wraps inner. A non-positive delay uses 100ms.
func NewDebouncedWatcher(inner Watcher, delay time.Duration) *DebouncedWatcher {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	dw := &DebouncedWatcher{
		inner:   inner,
		deb:     debounce.New(delay),
		pending: make(map[string]Event),
		events:  make(chan Event, 100),
		errors:  make(chan error, 100),
		closeCh: make(chan struct{}),
	}

	dw.closedWg.Add(1)
	go dw.processLoop()

	return dw
}

// NewDebounced creates an fsnotify watcher wrapped with the configured
// debounce delay.
func NewDebounced(opts ...Option) (*DebouncedWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	inner, err := NewFSNotifyWatcher(opts...)
	if err != nil {
		return nil, err
	}
	return NewDebouncedWatcher(inner, config.DebounceDelay), nil
}

// Watch starts watching path.
func (dw *DebouncedWatcher) Watch(path string) error {
	return dw.inner.Watch(path)
}

// Unwatch stops watching path and drops any pending event for it.
func (dw *DebouncedWatcher) Unwatch(path string) error {
	if err := dw.inner.Unwatch(path); err != nil {
		return err
	}
	if abs, err := normalize(path); err == nil {
		dw.mu.Lock()
		delete(dw.pending, abs)
		dw.mu.Unlock()
		dw.deb.Cancel(abs)
	}
	return nil
}

// Events returns the debounced event channel.
func (dw *DebouncedWatcher) Events() <-chan Event {
	return dw.events
}

// Errors returns the error channel.
func (dw *DebouncedWatcher) Errors() <-chan error {
	return dw.errors
}

// Close stops the watcher and the wrapped watcher.
func (dw *DebouncedWatcher) Close() error {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return nil
	}
	dw.closed = true
	close(dw.closeCh)
	dw.pending = make(map[string]Event)
	dw.mu.Unlock()

	dw.deb.Stop()
	err := dw.inner.Close()
	dw.closedWg.Wait()

	// A timer that raced Stop may still be delivering; take the lock the
	// deliverer holds before closing.
	dw.mu.Lock()
	close(dw.events)
	close(dw.errors)
	dw.mu.Unlock()

	return err
}

// Flush delivers every pending event immediately.
func (dw *DebouncedWatcher) Flush() {
	dw.deb.Flush()
}

// PendingCount returns the number of paths with a pending event.
func (dw *DebouncedWatcher) PendingCount() int {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return len(dw.pending)
}

func (dw *DebouncedWatcher) processLoop() {
	defer dw.closedWg.Done()

	for {
		select {
		case <-dw.closeCh:
			return

		case event, ok := <-dw.inner.Events():
			if !ok {
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.inner.Errors():
			if !ok {
				return
			}
			select {
			case dw.errors <- err:
			default:
			}
		}
	}
}

func (dw *DebouncedWatcher) handleEvent(event Event) {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return
	}
	if prev, ok := dw.pending[event.Path]; ok {
		event.Op |= prev.Op
	}
	dw.pending[event.Path] = event
	dw.mu.Unlock()

	path := event.Path
	dw.deb.Trigger(path, func() { dw.fire(path) })
}

func (dw *DebouncedWatcher) fire(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	event, ok := dw.pending[path]
	if !ok || dw.closed {
		return
	}
	delete(dw.pending, path)

	select {
	case dw.events <- event:
	default:
	}
}

var _ Watcher = (*DebouncedWatcher)(nil)
