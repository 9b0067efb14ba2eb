package session

import "sync"

// State is the lifecycle stage of a session.
type State int

const (
	// StateResolving is the stage between binding the channel and the
	// surface's init message.
	StateResolving State = iota
	// StateOpen means the surface received its content.
	StateOpen
	// StateActive means the session is visible and the command target.
	StateActive
	// StateBackground means the session is open but hidden.
	StateBackground
	// StateDisposed means the channel is gone.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateBackground:
		return "background"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Live reports whether the surface has content and receives pushes.
func (s State) Live() bool {
	return s == StateOpen || s == StateActive || s == StateBackground
}

// Dispatcher tracks the session feature commands are sent to. At most
// one session is active at a time.
type Dispatcher struct {
	mu     sync.RWMutex
	active *Session
}

// NewDispatcher creates a dispatcher with no target.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Active returns the current target, or nil.
func (d *Dispatcher) Active() *Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// activate makes s the target and returns the previous one.
func (d *Dispatcher) activate(s *Session) *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.active
	d.active = s
	if prev == s {
		return nil
	}
	return prev
}

// clear drops s as the target. It reports whether s was the target.
func (d *Dispatcher) clear(s *Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != s {
		return false
	}
	d.active = nil
	return true
}
