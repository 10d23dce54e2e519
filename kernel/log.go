package kernel

import (
	"log"
	"os"
	"runtime/debug"
)

// Logger wraps a stdlib *log.Logger with the subsystem-prefix
// convention the teacher project uses throughout its diagnostic
// output (e.g. "future: ", "waitqueue: " in the original C sources).
type Logger struct {
	*log.Logger
}

// NewLogger returns a Logger that prefixes every line with
// "subsystem: " and writes to stderr, matching the boot console's
// line-oriented behavior.
func NewLogger(subsystem string) *Logger {
	return &Logger{log.New(os.Stderr, subsystem+": ", log.Lmicroseconds)}
}

// Warn logs a non-fatal condition (e.g. a driver error propagated to
// the calling thread, an IRQ delivered to a null handler).
func (l *Logger) Warn(format string, args ...any) {
	l.Printf("WARN "+format, args...)
}

// Panic stops the world: it prints the failing operation, the current
// goroutine stack (standing in for the register + backtrace dump the
// real kernel performs before halting every CPU) and then panics so
// the caller's recover-based top level can halt cleanly.
func (l *Logger) Panic(format string, args ...any) {
	l.Printf("FATAL "+format, args...)
	l.Printf("%s", debug.Stack())
	panic(&Error{Op: "panic", Kind: Fatal})
}
