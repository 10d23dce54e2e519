package ksync

import "github.com/HExSA-Lab/nautilus-sub004/kernel"

// Barrier is a reusable thread barrier: n threads calling Wait block
// until all n have arrived, then all are released together and the
// barrier resets for its next generation.
type Barrier struct {
	lock SpinLock
	irqs *IRQState
	q    *WaitQueue

	n       int
	arrived int
	gen     uint64
}

// NewBarrier creates a barrier that releases once n threads have
// called Wait.
func NewBarrier(n int, irqs *IRQState) (*Barrier, error) {
	if n <= 0 {
		return nil, kernel.New("ksync.NewBarrier", kernel.BadParameter)
	}
	return &Barrier{n: n, irqs: irqs, q: NewWaitQueue("barrier", irqs)}, nil
}

// Wait blocks until n threads (across all callers sharing this
// Barrier) have called Wait, then releases all of them and advances
// to the next generation.
func (b *Barrier) Wait(w Waiter) {
	flags := b.lock.LockIRQSave(b.irqs)
	myGen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.lock.UnlockIRQRestore(b.irqs, flags)
		b.q.WakeAll()
		return
	}
	b.lock.UnlockIRQRestore(b.irqs, flags)

	b.q.SleepExtended(w, func() bool {
		// Re-checked under the wait queue's own lock: if another
		// arrival already advanced the generation, don't sleep.
		flags := b.lock.LockIRQSave(b.irqs)
		defer b.lock.UnlockIRQRestore(b.irqs, flags)
		return b.gen != myGen
	})
}

// Destroy fails with Busy if any thread has arrived but not yet been
// released in the barrier's current generation, matching the
// original's refusal to tear down a barrier with pending waiters.
func (b *Barrier) Destroy() error {
	flags := b.lock.LockIRQSave(b.irqs)
	defer b.lock.UnlockIRQRestore(b.irqs, flags)
	if b.arrived != 0 {
		return kernel.New("ksync.Barrier.Destroy", kernel.Busy)
	}
	return nil
}
