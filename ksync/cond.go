package ksync

// CondVar is a condition variable built on a four-counter protocol
// that is load-bearing and must not be altered: mainSeq counts
// waiters that have entered, Signal/Broadcast advance how many of
// them are allowed to wake (wakeupSeq), each waiter snapshots
// wakeupSeq on entry and is admitted once wakeupSeq has moved past
// that snapshot and not every granted wakeup has been consumed yet,
// each admitted waiter acknowledges by advancing wokenSeq, and
// bcastSeq distinguishes which broadcast generation a waiter belongs
// to so a broadcast that starts after a waiter enters can never be
// mistaken for the one that woke it. This mirrors the old NPTL condvar algorithm, which the original
// kernel's condition variable is itself modeled on.
type CondVar struct {
	q    *WaitQueue
	lock SpinLock
	irqs *IRQState

	mainSeq   uint64
	wakeupSeq uint64
	wokenSeq  uint64
	bcastSeq  uint64
}

// NewCondVar creates an empty condition variable.
func NewCondVar(name string, irqs *IRQState) *CondVar {
	return &CondVar{q: NewWaitQueue(name, irqs), irqs: irqs}
}

// Wait atomically releases extLock (held under extFlags), blocks until
// Signal or Broadcast admits this waiter, then
// reacquires extLock and returns the new IRQFlags token for the
// caller's eventual unlock — exactly as pthread_cond_wait releases and
// reacquires its external mutex.
func (c *CondVar) Wait(w Waiter, extLock *SpinLock, extIRQs *IRQState, extFlags IRQFlags) IRQFlags {
	flags := c.lock.LockIRQSave(c.irqs)
	wakeup := c.wakeupSeq
	bcast := c.bcastSeq
	c.mainSeq++
	c.lock.UnlockIRQRestore(c.irqs, flags)

	extLock.UnlockIRQRestore(extIRQs, extFlags)

	for {
		c.q.Sleep(w)

		flags = c.lock.LockIRQSave(c.irqs)
		if bcast != c.bcastSeq {
			// A broadcast admitted us regardless of wakeupSeq/wokenSeq.
			c.lock.UnlockIRQRestore(c.irqs, flags)
			break
		}
		admitted := c.wakeupSeq != wakeup && c.wokenSeq != c.wakeupSeq
		if admitted {
			c.wokenSeq++
			c.lock.UnlockIRQRestore(c.irqs, flags)
			break
		}
		c.lock.UnlockIRQRestore(c.irqs, flags)
		// Spuriously woken or raced with another waiter's admission;
		// go back to sleep.
	}

	return extLock.LockIRQSave(extIRQs)
}

// Signal grants one more wakeup if some entered waiter has not yet
// been granted one, and wakes the longest-queued waiter to claim it.
func (c *CondVar) Signal() {
	flags := c.lock.LockIRQSave(c.irqs)
	if c.mainSeq > c.wakeupSeq {
		c.wakeupSeq++
		c.lock.UnlockIRQRestore(c.irqs, flags)
		c.q.WakeOne()
		return
	}
	c.lock.UnlockIRQRestore(c.irqs, flags)
}

// Broadcast admits and wakes every currently waiting thread, bumping
// bcastSeq so each one recognizes it was woken by this broadcast
// regardless of its individual sequence number.
func (c *CondVar) Broadcast() {
	flags := c.lock.LockIRQSave(c.irqs)
	if c.mainSeq > c.wakeupSeq {
		c.wakeupSeq = c.mainSeq
		c.bcastSeq++
		c.lock.UnlockIRQRestore(c.irqs, flags)
		c.q.WakeAll()
		return
	}
	c.lock.UnlockIRQRestore(c.irqs, flags)
}
