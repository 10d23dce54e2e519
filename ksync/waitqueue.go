package ksync

import (
	"sync/atomic"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// MaxWaiters bounds the number of simultaneously queued waiters on a
// single WaitQueue, mirroring NAUT_CONFIG_MAX_THREADS-sized
// preallocated entry slots in the original waitqueue.h: sleeping must
// never allocate.
const MaxWaiters = 4096

// Waiter is the minimal identity and control surface a WaitQueue needs
// from a parked thread. Park blocks the calling goroutine until a
// matching Unpark; Unpark must be safe to call even if the waiter is
// not currently parked (it then primes the next Park to return
// immediately), matching the original's use of a one-shot flag thread
// rather than a true semaphore. EnterWait/ExitWait let the waiter
// track its own status=WAITING/num_wait bookkeeping (spec.md §3/§8)
// as it is enqueued on and removed from a WaitQueue; a single waiter
// may be enqueued on several wait queues at once, so these must
// compose as a counter rather than a flag.
type Waiter interface {
	WaiterID() uint64
	Park()
	Unpark()
	EnterWait(q *WaitQueue)
	ExitWait()
}

type waitEntry struct {
	used   atomic.Bool
	waiter Waiter
}

// WaitQueue is a FIFO parking lot for threads, grounded on
// include/nautilus/waitqueue.h: a lock-free entry-slot allocator
// (here, a fixed array of CAS-guarded slots rather than the
// original's intrusive list nodes) feeding an ordered wait list
// protected by a spinlock, plus a num_wait counter threads consult
// before deciding to sleep.
type WaitQueue struct {
	Name string

	lock SpinLock
	irqs *IRQState

	slots   [MaxWaiters]waitEntry
	order   []*waitEntry // FIFO order of currently-queued entries
	numWait atomic.Int64
}

// NewWaitQueue creates an empty wait queue. irqs is the IRQState
// shared with whatever lock composition (havelock) callers use.
func NewWaitQueue(name string, irqs *IRQState) *WaitQueue {
	return &WaitQueue{Name: name, irqs: irqs}
}

// NumWaiting returns the number of threads currently parked, matching
// nk_wait_queue_t.num_wait: callers use this to skip waking an empty
// queue.
func (q *WaitQueue) NumWaiting() int64 { return q.numWait.Load() }

func (q *WaitQueue) allocEntry(w Waiter) (*waitEntry, error) {
	for i := range q.slots {
		e := &q.slots[i]
		if e.used.CompareAndSwap(false, true) {
			e.waiter = w
			return e, nil
		}
	}
	return nil, kernel.New("ksync.WaitQueue.allocEntry", kernel.OutOfMemory)
}

func (q *WaitQueue) freeEntry(e *waitEntry) {
	e.waiter = nil
	e.used.Store(false)
}

// Enqueue adds w to the tail of the queue. havelock true means the
// caller already holds q.lock (and has already disabled IRQs),
// mirroring the _extended variants in the original that let callers
// compose a wait-queue operation with an external lock.
func (q *WaitQueue) Enqueue(w Waiter, havelock bool) error {
	var flags IRQFlags
	if !havelock {
		flags = q.lock.LockIRQSave(q.irqs)
		defer q.lock.UnlockIRQRestore(q.irqs, flags)
	}
	e, err := q.allocEntry(w)
	if err != nil {
		return err
	}
	q.order = append(q.order, e)
	q.numWait.Add(1)
	w.EnterWait(q)
	return nil
}

// Dequeue removes and returns the waiter at the head of the queue, or
// nil if empty.
func (q *WaitQueue) Dequeue(havelock bool) Waiter {
	var flags IRQFlags
	if !havelock {
		flags = q.lock.LockIRQSave(q.irqs)
		defer q.lock.UnlockIRQRestore(q.irqs, flags)
	}
	if len(q.order) == 0 {
		return nil
	}
	e := q.order[0]
	q.order = q.order[1:]
	w := e.waiter
	q.freeEntry(e)
	q.numWait.Add(-1)
	w.ExitWait()
	return w
}

// RemoveSpecific removes w from wherever it sits in the queue, used
// when a timed or condition-checked sleep needs to abandon its spot
// without being woken first.
func (q *WaitQueue) RemoveSpecific(w Waiter, havelock bool) bool {
	var flags IRQFlags
	if !havelock {
		flags = q.lock.LockIRQSave(q.irqs)
		defer q.lock.UnlockIRQRestore(q.irqs, flags)
	}
	for i, e := range q.order {
		if e.waiter == w {
			q.order = append(q.order[:i], q.order[i+1:]...)
			q.freeEntry(e)
			q.numWait.Add(-1)
			w.ExitWait()
			return true
		}
	}
	return false
}

// Sleep parks the calling thread on the queue until woken. It is the
// Go rendition of nk_wait_queue_sleep: enqueue, then block.
func (q *WaitQueue) Sleep(w Waiter) {
	_ = q.Enqueue(w, false)
	w.Park()
}

// SleepExtended is nk_wait_queue_sleep_extended: the caller supplies a
// condition check performed under the queue's own lock so the
// check-and-enqueue is atomic with respect to a concurrent WakeOne /
// WakeAll. If cond already holds, SleepExtended returns immediately
// without enqueuing.
func (q *WaitQueue) SleepExtended(w Waiter, cond func() bool) {
	flags := q.lock.LockIRQSave(q.irqs)
	if cond() {
		q.lock.UnlockIRQRestore(q.irqs, flags)
		return
	}
	_ = q.Enqueue(w, true)
	q.lock.UnlockIRQRestore(q.irqs, flags)
	w.Park()
}

// WakeOne wakes the single longest-waiting thread, if any.
func (q *WaitQueue) WakeOne() {
	w := q.Dequeue(false)
	if w != nil {
		w.Unpark()
	}
}

// WakeAll wakes every currently queued thread.
func (q *WaitQueue) WakeAll() {
	flags := q.lock.LockIRQSave(q.irqs)
	woken := make([]Waiter, 0, len(q.order))
	for _, e := range q.order {
		woken = append(woken, e.waiter)
		q.freeEntry(e)
	}
	q.order = q.order[:0]
	q.numWait.Store(0)
	q.lock.UnlockIRQRestore(q.irqs, flags)
	for _, w := range woken {
		w.ExitWait()
		w.Unpark()
	}
}

// EnqueueMultiple enqueues w on every queue in qs, rolling back all
// prior enqueues if any one fails — the original's
// enqueue_multiple_extended guard against partial membership.
func EnqueueMultiple(qs []*WaitQueue, w Waiter) error {
	done := make([]*WaitQueue, 0, len(qs))
	for _, q := range qs {
		if err := q.Enqueue(w, false); err != nil {
			for _, d := range done {
				d.RemoveSpecific(w, false)
			}
			return err
		}
		done = append(done, q)
	}
	return nil
}

// DequeueMultiple removes w from every queue in qs that currently
// holds it, used after a multi-queue wait wakes on one of several
// queues and must leave none of the others.
func DequeueMultiple(qs []*WaitQueue, w Waiter) {
	for _, q := range qs {
		q.RemoveSpecific(w, false)
	}
}
