// ABOUTME: Error taxonomy shared by the state cache, agents and correlation engine
// ABOUTME: Sentinel kinds plus a structured Error that unwraps to kind and cause

package state

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	// ErrNotFound means the id is absent from both the cache and durable storage.
	ErrNotFound = errors.New("state record not found")

	// ErrPersistenceUnavailable means durable storage could not be used.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrSerialization means the nested parameters block could not be encoded or decoded.
	ErrSerialization = errors.New("serialization error")

	// ErrLockContention means an in-process lock could not be acquired in time.
	ErrLockContention = errors.New("lock contention")

	// ErrRoutingMismatch means a message was addressed to a different agent.
	ErrRoutingMismatch = errors.New("routing mismatch")

	// ErrInvalidRecord means a record or prediction violates a field invariant.
	ErrInvalidRecord = errors.New("invalid record")
)

// Error describes a failed state operation.
type Error struct {
	Op   string // operation name, e.g. "get", "put"
	ID   int64  // state record id, 0 when not applicable
	Kind error  // one of the sentinel kinds above
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != 0 {
		msg = fmt.Sprintf("%s %d", e.Op, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind carried by err, or nil if err is not a
// state error.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrPersistenceUnavailable,
		ErrSerialization,
		ErrLockContention,
		ErrRoutingMismatch,
		ErrInvalidRecord,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// classify wraps a Backend error. Backends signal missing rows and corrupt
// blocks with ErrNotFound and ErrSerialization; everything else means the
// storage connection could not be used.
func classify(op string, id int64, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &Error{Op: op, ID: id, Kind: ErrNotFound, Err: err}
	case errors.Is(err, ErrSerialization):
		return &Error{Op: op, ID: id, Kind: ErrSerialization, Err: err}
	default:
		return &Error{Op: op, ID: id, Kind: ErrPersistenceUnavailable, Err: err}
	}
}

// lockError wraps a failed lock acquisition. Context cancellation while
// waiting is reported as contention as well; the caller may retry.
func lockError(op string, id int64, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, ID: id, Kind: ErrLockContention, Err: err}
	}
	return &Error{Op: op, ID: id, Kind: ErrLockContention}
}
