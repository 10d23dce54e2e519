// Package kernel holds the error, logging and command-line types shared
// by every AeroKernel core subsystem (cpu, sched, ksync, mm, device).
package kernel

import (
	"errors"
	"fmt"
)

// Kind identifies one of the recoverable error categories a core entry
// point can return, per the error handling design.
type Kind int

const (
	// OutOfMemory: boot allocator or buddy allocator exhausted.
	OutOfMemory Kind = iota
	// BadParameter: invalid IRQ, invalid thread id, null handler, region
	// out of an address space's range.
	BadParameter
	// NotInitialized: operation requires a subsystem that has not been
	// brought up yet.
	NotInitialized
	// Conflict: two owners registered for one IRQ, or a singleton created
	// twice.
	Conflict
	// Busy: barrier destroy with waiters, try-lock contended, or
	// non-blocking I/O with no data.
	Busy
	// NotSupported: base aspace rejecting mutation, driver lacking a
	// requested callback.
	NotSupported
	// Timeout: AP bring-up or watchdog deadline exceeded.
	Timeout
	// Fatal: unhandled exception, double fault, or corrupt page tables.
	// Fatal errors stop the world; see Panic.
	Fatal
	// NotJoinable: Join called on a thread that was created detached.
	// Named explicitly by spec.md's thread-lifecycle operations rather
	// than folded into the general taxonomy above.
	NotJoinable
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "OutOfMemory"
	case BadParameter:
		return "BadParameter"
	case NotInitialized:
		return "NotInitialized"
	case Conflict:
		return "Conflict"
	case Busy:
		return "Busy"
	case NotSupported:
		return "NotSupported"
	case Timeout:
		return "Timeout"
	case Fatal:
		return "Fatal"
	case NotJoinable:
		return "NotJoinable"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned from core entry points. It
// carries a Kind so callers can branch with errors.As without parsing
// strings.
type Error struct {
	Kind Kind
	Op   string // entry point that failed, e.g. "sched.Create"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, kernel.New(op, kernel.Busy)) matches any Busy error
// whatever its Op.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error wrapping an existing error.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
