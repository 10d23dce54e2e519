package ksync

// RWLock is a reader-preferred read/write lock: readers never block
// behind a waiting writer unless a writer already holds the lock.
// Built directly on SpinLock rather than channels so it
// composes with the same IRQState discipline as the rest of ksync.
type RWLock struct {
	lock    SpinLock
	irqs    *IRQState
	readers int
	writer  bool
}

// NewRWLock creates an unlocked reader-preferred lock.
func NewRWLock(irqs *IRQState) *RWLock {
	return &RWLock{irqs: irqs}
}

// RLock acquires the lock for reading, spinning only while a writer
// currently holds it.
func (l *RWLock) RLock() {
	for {
		f := l.lock.LockIRQSave(l.irqs)
		if !l.writer {
			l.readers++
			l.lock.UnlockIRQRestore(l.irqs, f)
			return
		}
		l.lock.UnlockIRQRestore(l.irqs, f)
	}
}

// RUnlock releases a read hold.
func (l *RWLock) RUnlock() {
	f := l.lock.LockIRQSave(l.irqs)
	l.readers--
	l.lock.UnlockIRQRestore(l.irqs, f)
}

// Lock acquires the lock for writing, spinning while any reader or
// writer currently holds it.
func (l *RWLock) Lock() {
	for {
		f := l.lock.LockIRQSave(l.irqs)
		if !l.writer && l.readers == 0 {
			l.writer = true
			l.lock.UnlockIRQRestore(l.irqs, f)
			return
		}
		l.lock.UnlockIRQRestore(l.irqs, f)
	}
}

// Unlock releases a write hold.
func (l *RWLock) Unlock() {
	f := l.lock.LockIRQSave(l.irqs)
	l.writer = false
	l.lock.UnlockIRQRestore(l.irqs, f)
}

// RdLockIRQSave disables interrupts for the reader's entire critical
// section (not just the brief spin to record the read), returning the
// token RdUnlockIRQRestore needs to restore them — the read-side half
// of the rd_lock_irq_save/wr_lock_irq_save pair.
func (l *RWLock) RdLockIRQSave() IRQFlags {
	f := l.irqs.DisableSave()
	l.RLock()
	return f
}

// RdUnlockIRQRestore releases a read hold acquired with
// RdLockIRQSave and restores interrupts.
func (l *RWLock) RdUnlockIRQRestore(f IRQFlags) {
	l.RUnlock()
	l.irqs.EnableRestore(f)
}

// WrLockIRQSave disables interrupts for the writer's entire critical
// section and acquires the write lock, returning the token
// WrUnlockIRQRestore needs to restore them.
func (l *RWLock) WrLockIRQSave() IRQFlags {
	f := l.irqs.DisableSave()
	l.Lock()
	return f
}

// WrUnlockIRQRestore releases a write hold acquired with
// WrLockIRQSave and restores interrupts.
func (l *RWLock) WrUnlockIRQRestore(f IRQFlags) {
	l.Unlock()
	l.irqs.EnableRestore(f)
}
