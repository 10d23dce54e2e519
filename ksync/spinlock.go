// Package ksync implements the AeroKernel's synchronization
// primitives: spinlocks, a reader-preferred rwlock, condition
// variables, thread and core barriers, wait queues, futures, and
// group scheduling.
package ksync

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a 32-bit test-and-set spinlock with a pause between
// attempts, matching the original
// __sync_lock_test_and_set-based implementation.
type SpinLock struct {
	word atomic.Uint32
}

// Lock spins until the lock is acquired.
func (s *SpinLock) Lock() {
	for !s.word.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the lock. Calling Unlock on an unheld lock is
// undefined, as in the original.
func (s *SpinLock) Unlock() {
	s.word.Store(0)
}

// TryLock attempts to acquire the lock without spinning, returning
// true on success and false if contended — the Go analogue of the
// original's 0/-1 return convention.
func (s *SpinLock) TryLock() bool {
	return s.word.CompareAndSwap(0, 1)
}

// IRQFlags is an opaque token returned by LockIRQSave, threaded back
// into UnlockIRQRestore. It stands in for the saved RFLAGS.IF bit on
// real hardware; here it records whether this critical section is
// the one that actually disabled delivery, via the shared IRQState.
type IRQFlags struct {
	wasEnabled bool
}

// IRQState models a single logical interrupt-enable flag, shared by
// every lock that is taken with IRQs disabled. A real kernel has one
// such flag per CPU; tests and single-goroutine callers create their
// own with NewIRQState.
type IRQState struct {
	enabled atomic.Bool
}

// NewIRQState returns an IRQState initialized to "interrupts
// enabled", the steady-state condition during normal thread
// execution.
func NewIRQState() *IRQState {
	s := &IRQState{}
	s.enabled.Store(true)
	return s
}

// DisableSave disables interrupt delivery and returns whether it was
// previously enabled.
func (s *IRQState) DisableSave() IRQFlags {
	was := s.enabled.Swap(false)
	return IRQFlags{wasEnabled: was}
}

// EnableRestore re-enables interrupt delivery only if the matching
// DisableSave call found it enabled, so nested save/restore pairs
// compose correctly.
func (s *IRQState) EnableRestore(f IRQFlags) {
	if f.wasEnabled {
		s.enabled.Store(true)
	}
}

// Enabled reports the current interrupt-enable state.
func (s *IRQState) Enabled() bool { return s.enabled.Load() }

// LockIRQSave disables interrupts via irqs, then spins for the lock.
// Order matters: interrupts are disabled before spinning starts.
func (s *SpinLock) LockIRQSave(irqs *IRQState) IRQFlags {
	f := irqs.DisableSave()
	s.Lock()
	return f
}

// UnlockIRQRestore releases the lock, then conditionally re-enables
// interrupts.
func (s *SpinLock) UnlockIRQRestore(irqs *IRQState, f IRQFlags) {
	s.Unlock()
	irqs.EnableRestore(f)
}

// TryLockIRQSave disables interrupts, attempts the lock without
// spinning, and restores interrupts on failure. Returns ok=false
// (and already-restored IRQs) on contention.
func (s *SpinLock) TryLockIRQSave(irqs *IRQState) (f IRQFlags, ok bool) {
	f = irqs.DisableSave()
	if s.TryLock() {
		return f, true
	}
	irqs.EnableRestore(f)
	return IRQFlags{}, false
}
