package packet

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolState is the error all state machine violations wrap: a
	// packet used out of order, or a pool asked to do something its
	// contents don't allow. These are programming errors, not I/O errors.
	ErrProtocolState = errors.New("protocol state violation")
	// ErrTooLarge is returned by Read when the bytes don't fit in the packet.
	ErrTooLarge = errors.New("packet: data exceeds packet capacity")
)

// StateError describes a protocol state violation.
type StateError struct {
	// Op is the operation that was refused, eg. "clear" or "resize".
	Op string
	// State is the packet state at the time, if the operation was on a
	// packet.
	State State
	// Detail says what was wrong, when the state alone doesn't.
	Detail string
}

func (e *StateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s: %s", ErrProtocolState, e.Op, e.Detail)
	}
	return fmt.Sprintf("%v: %s in state %v", ErrProtocolState, e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrProtocolState }

// NewStateError reports a state violation found outside this package, such
// as a packet handed over in the wrong state. Like the packet's own checks it
// panics in debug builds.
func NewStateError(op string, s State, detail string) error {
	return stateError(op, s, detail)
}

// stateError builds a StateError, panicking instead in debug builds so the
// violation fails loudly where it happened.
func stateError(op string, s State, detail string) error {
	err := &StateError{Op: op, State: s, Detail: detail}
	if panicOnStateError {
		panic(err)
	}
	return err
}
