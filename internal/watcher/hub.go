package watcher

import (
	"sync"
)

// Hub fans events from one Watcher out to per-path subscribers. The first
// subscription for a path starts watching it; the last cancellation stops.
type Hub struct {
	w Watcher

	mu      sync.Mutex
	subs    map[string]map[uint64]Handler
	nextID  uint64
	onError func(error)
	closed  bool

	done chan struct{}
}

// NewHub creates a hub over w and starts dispatching. onError may be nil.
func NewHub(w Watcher, onError func(error)) *Hub {
	h := &Hub{
		w:       w,
		subs:    make(map[string]map[uint64]Handler),
		onError: onError,
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe calls fn for every change to path until the returned cancel
// function is called. Cancel is idempotent.
func (h *Hub) Subscribe(path string, fn Handler) (cancel func(), err error) {
	abs, err := normalize(path)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrWatcherClosed
	}

	set, ok := h.subs[abs]
	if !ok {
		if err := h.w.Watch(abs); err != nil && err != ErrAlreadyWatching {
			return nil, err
		}
		set = make(map[uint64]Handler)
		h.subs[abs] = set
	}

	h.nextID++
	id := h.nextID
	set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(abs, id) })
	}, nil
}

func (h *Hub) unsubscribe(path string, id uint64) {
	h.mu.Lock()
	set, ok := h.subs[path]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(set, id)
	var err error
	if len(set) == 0 {
		delete(h.subs, path)
		if !h.closed {
			err = h.w.Unwatch(path)
		}
	}
	h.mu.Unlock()

	if err != nil && err != ErrNotWatching {
		h.reportError(err)
	}
}

// Subscribers returns the number of subscriptions for path.
func (h *Hub) Subscribers(path string) int {
	abs, err := normalize(path)
	if err != nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[abs])
}

// Close stops the hub and the underlying watcher.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.subs = make(map[string]map[uint64]Handler)
	h.mu.Unlock()

	err := h.w.Close()
	<-h.done
	return err
}

func (h *Hub) run() {
	defer close(h.done)

	events := h.w.Events()
	errs := h.w.Errors()
	for events != nil || errs != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.dispatch(event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			h.reportError(err)
		}
	}
}

func (h *Hub) dispatch(event Event) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.subs[event.Path]))
	for _, fn := range h.subs[event.Path] {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

func (h *Hub) reportError(err error) {
	if h.onError != nil {
		h.onError(err)
	}
}
