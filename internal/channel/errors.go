package channel

import (
	"errors"
	"fmt"
)

// Errors returned by channels and transports.
var (
	// ErrClosed indicates the channel or transport has been closed.
	ErrClosed = errors.New("channel closed")

	// ErrUnknownType indicates a message type with no payload mapping.
	ErrUnknownType = errors.New("unknown message type")

	// ErrAlreadyBound indicates Bind was called twice.
	ErrAlreadyBound = errors.New("channel already bound")

	// ErrFrame indicates a malformed stream frame.
	ErrFrame = errors.New("malformed frame")
)

// DecodeError is a message whose content does not match its type.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HandlerError is a failure raised by a message handler, including a
// recovered panic.
type HandlerError struct {
	Type  Type
	Err   error
	Panic bool
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("handler %s panicked: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("handler %s: %v", e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
