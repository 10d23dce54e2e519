// Package sched implements thread and task execution: thread
// lifecycle, per-CPU runqueues, thread-local storage, and the
// fork-join task layer.
package sched

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/HExSA-Lab/nautilus-sub004/ksync"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
)

// Status is a thread's lifecycle state, mirroring nk_thread_status_t.
type Status int

const (
	StatusInit Status = iota
	StatusRunning
	StatusRunnable
	StatusWaiting
	StatusSuspended
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusRunning:
		return "running"
	case StatusRunnable:
		return "runnable"
	case StatusWaiting:
		return "waiting"
	case StatusSuspended:
		return "suspended"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// TID is a thread identifier.
type TID uint64

// EntryFunc is a thread body: it receives the input value passed to
// Create/Fork and returns the value Join hands back to the caller,
// collapsing the original's separate input/output-pointer convention
// into ordinary Go values.
type EntryFunc func(t *Thread, input any) any

// fxsaveSize matches FXSAVE_SIZE from thread.h: 512 bytes, 16-byte
// aligned. fpuSaveRaw is a [512+15]byte buffer and Thread.FPUSave
// returns the aligned sub-slice, the Go rendition of the C struct's
// __align(16) attribute applied via unsafe.
const fxsaveSize = 512

// Thread is the Go rendition of struct nk_thread: everything needed
// to suspend and resume a unit of execution, plus the bookkeeping
// fields a thread needs (parent/child links, wait-queue
// membership, TLS, FPU save area, home-CPU affinity).
type Thread struct {
	mu sync.Mutex

	tid       TID
	name      string
	status    Status
	stackSize uint64
	homeCPU   int // -1 => not bound, CPU_ANY
	detached  bool

	entry  EntryFunc
	input  any
	output any

	parent   *Thread
	children map[TID]*Thread

	waitingOn *ksync.WaitQueue
	numWait   int

	quantum atomic.Int32

	tls [tlsMaxKeys]any

	aspace any // mm.Aspace; any avoids import cycle concerns if aspace moves

	fpuSaveRaw [fxsaveSize + 15]byte

	parkCh chan struct{}
	doneCh chan struct{}

	constraints ksync.Constraints
}

var nextTID atomic.Uint64

// newThread allocates a Thread in the INIT state. It does not start
// the entry function; Run does. A detached thread can never be
// Join-ed: Scheduler.Join rejects it with kernel.NotJoinable.
func newThread(entry EntryFunc, input any, stackSize uint64, boundCPU int, detached bool, parent *Thread) *Thread {
	t := &Thread{
		tid:       TID(nextTID.Add(1)),
		status:    StatusInit,
		entry:     entry,
		input:     input,
		stackSize: stackSize,
		homeCPU:   boundCPU,
		detached:  detached,
		parent:    parent,
		children:  make(map[TID]*Thread),
		parkCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	t.quantum.Store(DefaultQuantumTicks)
	return t
}

// ThreadID satisfies mm.Thread and ksync.Waiter/ksync.Member.
func (t *Thread) ThreadID() uint64 { return uint64(t.tid) }

// WaiterID satisfies ksync.Waiter.
func (t *Thread) WaiterID() uint64 { return uint64(t.tid) }

// Park blocks the calling goroutine until Unpark is called, modeling
// this thread's goroutine blocking on sleep. A pending Unpark (sent
// before Park is reached) is consumed immediately thanks to parkCh's
// 1-deep buffer, matching a wait-queue wake racing a sleeper's
// enqueue.
func (t *Thread) Park() {
	<-t.parkCh
}

// Unpark wakes a parked thread, or primes the next Park to return
// immediately if none is currently parked.
func (t *Thread) Unpark() {
	select {
	case t.parkCh <- struct{}{}:
	default:
	}
}

// TID returns the thread's identifier.
func (t *Thread) TID() TID { return t.tid }

// Name returns the thread's debug name.
func (t *Thread) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName sets the thread's debug name, truncated to MAX_THREAD_NAME's
// Go equivalent.
func (t *Thread) SetName(name string) {
	const maxLen = 32
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// Status returns the thread's current lifecycle state.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Thread) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Parent returns the thread that created this one, or nil if it was
// created with no parent.
func (t *Thread) Parent() *Thread { return t.parent }

// HomeCPU returns the CPU this thread is bound to, or -1 (CPU_ANY).
func (t *Thread) HomeCPU() int { return t.homeCPU }

// Detached reports whether this thread was created detached, the
// Go analogue of the original's THREAD_DETACHED flag: a detached
// thread's exit status is never observable via Join.
func (t *Thread) Detached() bool { return t.detached }

// EnterWait satisfies ksync.Waiter: it records that this thread has
// just been enqueued on q, matching spec.md §3/§8's invariant that a
// thread on any wait queue has status=WAITING and num_wait >= 1. A
// thread may be enqueued on several wait queues at once, so numWait is
// a counter rather than a flag.
func (t *Thread) EnterWait(q *ksync.WaitQueue) {
	t.mu.Lock()
	t.waitingOn = q
	t.numWait++
	t.status = StatusWaiting
	t.mu.Unlock()
}

// ExitWait satisfies ksync.Waiter: it reverses EnterWait once this
// thread has been dequeued from a wait queue, whether by waking or by
// RemoveSpecific. Status only leaves WAITING once numWait drops back
// to zero, i.e. the thread is no longer a member of any wait queue.
func (t *Thread) ExitWait() {
	t.mu.Lock()
	if t.numWait > 0 {
		t.numWait--
	}
	if t.numWait == 0 {
		t.waitingOn = nil
		t.status = StatusRunning
	}
	t.mu.Unlock()
}

// NumWait reports how many wait queues this thread currently occupies.
func (t *Thread) NumWait() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numWait
}

// FPUSave returns this thread's 512-byte FXSAVE area, 16-byte aligned
// within the underlying array via a pointer-arithmetic slice offset —
// the Go analogue of the original's __align(16) struct attribute.
func (t *Thread) FPUSave() []byte {
	addr := uintptr(unsafe.Pointer(&t.fpuSaveRaw[0]))
	pad := (16 - addr%16) % 16
	return t.fpuSaveRaw[pad : pad+fxsaveSize]
}

// Output returns the value the entry function returned, valid only
// after the thread has exited.
func (t *Thread) Output() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

// ApplyConstraints satisfies ksync.Member for group scheduling.
func (t *Thread) ApplyConstraints(c ksync.Constraints) error {
	t.mu.Lock()
	t.constraints = c
	t.mu.Unlock()
	return nil
}

// TickQuantum decrements the thread's remaining timer ticks and
// reports whether it has just been exhausted, matching
// preempt_disable_level's companion concept in spec.md §4.2: the
// quantum the scheduler's timer-tick handler consults before deciding
// the current thread must be preempted.
func (t *Thread) TickQuantum() bool {
	return t.quantum.Add(-1) <= 0
}

// ResetQuantum refills the thread's timer-tick budget, called both
// when it is first scheduled and whenever it yields.
func (t *Thread) ResetQuantum() {
	t.quantum.Store(DefaultQuantumTicks)
}

var _ mm.Thread = (*Thread)(nil)
var _ ksync.Waiter = (*Thread)(nil)
var _ ksync.Member = (*Thread)(nil)
