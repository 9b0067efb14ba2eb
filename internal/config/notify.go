package config

import (
	"sort"
	"sync"
)

// Change describes one configuration update.
type Change struct {
	// Paths are the sorted leaf paths whose effective value changed.
	Paths []string
	// Source is the layer that triggered the update.
	Source Source
}

// Affects reports whether the change touches section or anything below
// it. "vsc-markdown" is affected by "vsc-markdown.hideToolbar", and
// "editor.scrollBeyondLastLine" by exactly that path.
func (c Change) Affects(section string) bool {
	for _, p := range c.Paths {
		if section == "" || p == section || isParentPath(section, p) || isParentPath(p, section) {
			return true
		}
	}
	return false
}

// Observer is called when configuration changes occur.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *notifier
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type observer struct {
	section string
	fn      Observer
}

// notifier delivers changes synchronously, outside its lock, in
// subscription order.
type notifier struct {
	mu        sync.RWMutex
	observers map[uint64]observer
	nextID    uint64
	closed    bool
}

func newNotifier() *notifier {
	return &notifier{observers: make(map[uint64]observer)}
}

func (n *notifier) subscribe(section string, fn Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.observers[id] = observer{section: section, fn: fn}
	return &Subscription{id: id, notifier: n}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

func (n *notifier) notify(change Change) {
	if len(change.Paths) == 0 {
		return
	}

	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	matched := make([]Observer, 0, len(ids))
	for _, id := range ids {
		obs := n.observers[id]
		if change.Affects(obs.section) {
			matched = append(matched, obs.fn)
		}
	}
	n.mu.RUnlock()

	for _, fn := range matched {
		fn(change)
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.observers = make(map[uint64]observer)
}
