package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Serve was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates the application is shut down.
	ErrNotRunning = errors.New("application not running")

	// ErrMissingPath indicates a request named no document.
	ErrMissingPath = errors.New("missing document path")

	// ErrShutdownTimeout indicates shutdown timed out.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// OperationError reports a failed document operation.
type OperationError struct {
	Op   string // "open" or "render"
	Path string // document path
	Err  error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, path string, err error) *OperationError {
	return &OperationError{Op: op, Path: path, Err: err}
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches both the wrapper itself and the wrapped error.
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*OperationError); ok {
		return e == t
	}
	return errors.Is(e.Err, target)
}

// ComponentError represents a failure to start or stop a component.
type ComponentError struct {
	Component string // Component name (e.g., "config", "watcher", "controller")
	Action    string // Action being performed
	Err       error  // Underlying error
}

// NewComponentError creates a new ComponentError.
func NewComponentError(component, action string, err error) *ComponentError {
	return &ComponentError{
		Component: component,
		Action:    action,
		Err:       err,
	}
}

func (e *ComponentError) Error() string {
	if e == nil {
		return ""
	}

	if e.Action != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Component, e.Action)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}

	return e.Component
}

func (e *ComponentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches both the wrapper itself and the wrapped error.
func (e *ComponentError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*ComponentError); ok {
		return e == t
	}
	return errors.Is(e.Err, target)
}

// ErrorList collects shutdown errors. It is not safe for concurrent use.
type ErrorList []error

// Add appends err unless it is nil.
func (l *ErrorList) Add(err error) {
	if err != nil {
		*l = append(*l, err)
	}
}

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return ""
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%d errors: first: %v", len(l), l[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error { return l }

// AsError returns nil for an empty list.
func (l ErrorList) AsError() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
