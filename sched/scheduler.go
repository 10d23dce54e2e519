package sched

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/kernel"
	"github.com/HExSA-Lab/nautilus-sub004/ksync"
)

// HZ is the simulated periodic timer-tick frequency spec.md §4.2 names
// as one of the scheduler's context-switch points. DefaultQuantumTicks
// is how many ticks a thread is allowed to run before Tick requests a
// reschedule; both are deliberately small, HZ-scale constants rather
// than tuned values, matching the original's own fixed CONFIG_HZ.
const (
	HZ                  = 100
	DefaultQuantumTicks = 10
)

// Scheduler owns the process-wide thread table and one runqueue per
// CPU. Each Thread's entry function runs on its own goroutine; the
// runqueues and status fields are bookkeeping that mirrors the
// original's per-CPU run_q so CPU occupancy and preemption decisions
// can be inspected and tested, even though the underlying execution is
// handed to the Go runtime's own scheduler rather than a single
// cooperative loop per CPU.
type Scheduler struct {
	mu        sync.Mutex
	threads   map[TID]*Thread
	runqueues map[int][]*Thread
	cpus      map[int]*cpu.CPU

	irqs *ksync.IRQState
	join map[TID]*ksync.WaitQueue
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		threads:   make(map[TID]*Thread),
		runqueues: make(map[int][]*Thread),
		cpus:      make(map[int]*cpu.CPU),
		irqs:      ksync.NewIRQState(),
		join:      make(map[TID]*ksync.WaitQueue),
	}
}

// RegisterCPU associates a cpu.CPU record with the runqueue id threads
// bind to via boundCPU, so execute can publish each thread in the
// CPU's current-thread slot (which Tick reads), Yield can clear its
// reschedule request, and exit's bookkeeping can bracket itself with
// PreemptDisable/PreemptEnable.
func (s *Scheduler) RegisterCPU(c *cpu.CPU) {
	s.mu.Lock()
	s.cpus[c.ID] = c
	s.mu.Unlock()
}

func (s *Scheduler) cpuFor(id int) *cpu.CPU {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpus[id]
}

// Create allocates a new thread in the INIT state without starting it,
// the analogue of nk_thread_create. A detached thread can never be
// Join-ed.
func (s *Scheduler) Create(entry EntryFunc, input any, stackSize uint64, boundCPU int, detached bool, parent *Thread) (*Thread, error) {
	if stackSize == 0 {
		stackSize = 4096
	}
	t := newThread(entry, input, stackSize, boundCPU, detached, parent)

	s.mu.Lock()
	s.threads[t.tid] = t
	s.join[t.tid] = ksync.NewWaitQueue("join", s.irqs)
	s.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		parent.children[t.tid] = t
		parent.mu.Unlock()
	}
	return t, nil
}

// Run transitions t from INIT to RUNNABLE, enqueues it on its home
// CPU's runqueue (or CPU 0 if unbound), and starts its goroutine.
func (s *Scheduler) Run(t *Thread) error {
	t.mu.Lock()
	if t.status != StatusInit {
		t.mu.Unlock()
		return kernel.New("sched.Scheduler.Run", kernel.Conflict)
	}
	t.status = StatusRunnable
	t.mu.Unlock()

	id := runqueueCPU(t)
	s.mu.Lock()
	s.runqueues[id] = append(s.runqueues[id], t)
	s.mu.Unlock()

	go s.execute(t)
	return nil
}

// Start is the Create+Run convenience matching nk_thread_start.
func (s *Scheduler) Start(entry EntryFunc, input any, stackSize uint64, boundCPU int, detached bool, parent *Thread) (*Thread, error) {
	t, err := s.Create(entry, input, stackSize, boundCPU, detached, parent)
	if err != nil {
		return nil, err
	}
	if err := s.Run(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Scheduler) execute(t *Thread) {
	if c := s.cpuFor(runqueueCPU(t)); c != nil {
		c.SetCurrentThread(t)
	}
	t.ResetQuantum()
	t.setStatus(StatusRunning)
	out := t.entry(t, t.input)
	s.exit(t, out)
}

// exit finalizes a thread that has returned from its entry function or
// called Exit explicitly: records the output, runs TLS destructors,
// marks it EXITED, dequeues it, and wakes every joiner. The whole
// sequence runs with preemption disabled on the thread's CPU, the
// analogue of the original's preempt_disable/preempt_enable pair
// around its own exit-path bookkeeping.
func (s *Scheduler) exit(t *Thread, output any) {
	c := s.cpuFor(runqueueCPU(t))
	if c != nil {
		c.PreemptDisable()
		defer c.PreemptEnable()
	}

	t.runTLSDestructors()

	t.mu.Lock()
	t.output = output
	t.status = StatusExited
	t.mu.Unlock()

	s.dequeue(t)
	if c != nil {
		c.SetCurrentThread(nil)
	}

	close(t.doneCh)
	s.mu.Lock()
	q := s.join[t.tid]
	s.mu.Unlock()
	if q != nil {
		q.WakeAll()
	}
}

// runqueueCPU normalizes an unbound thread (-1) onto runqueue 0, the
// same rule Run and dequeue already apply.
func runqueueCPU(t *Thread) int {
	if t.homeCPU < 0 {
		return 0
	}
	return t.homeCPU
}

func (s *Scheduler) dequeue(t *Thread) {
	id := runqueueCPU(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	rq := s.runqueues[id]
	for i, rt := range rq {
		if rt.tid == t.tid {
			s.runqueues[id] = append(rq[:i], rq[i+1:]...)
			break
		}
	}
}

// Exit is called from within a running thread's own entry function to
// terminate early with a return value, the Go analogue of
// nk_thread_exit. It never returns: the caller's goroutine unwinds via
// runtime.Goexit after the scheduler has recorded the exit.
func (s *Scheduler) Exit(t *Thread, output any) {
	s.exit(t, output)
	runtime.Goexit()
}

// Join blocks until t has exited, then returns its output. Calling
// Join on an already-exited thread returns immediately. Join fails
// with kernel.NotJoinable if t was created detached, matching
// spec.md §4.2 exactly: a detached thread's exit status is never
// observable through Join.
func (s *Scheduler) Join(caller *Thread, t *Thread) (any, error) {
	if t.Detached() {
		return nil, kernel.New("sched.Scheduler.Join", kernel.NotJoinable)
	}
	select {
	case <-t.doneCh:
		return t.Output(), nil
	default:
	}
	s.mu.Lock()
	q := s.join[t.tid]
	s.mu.Unlock()
	if q == nil {
		<-t.doneCh
		return t.Output(), nil
	}
	q.SleepExtended(caller, func() bool {
		select {
		case <-t.doneCh:
			return true
		default:
			return false
		}
	})
	return t.Output(), nil
}

// JoinAllChildren joins every child of self for which filter returns
// true (or every child if filter is nil), matching
// nk_join_all_children.
func (s *Scheduler) JoinAllChildren(self *Thread, filter func(*Thread) bool) error {
	self.mu.Lock()
	kids := make([]*Thread, 0, len(self.children))
	for _, c := range self.children {
		if filter == nil || filter(c) {
			kids = append(kids, c)
		}
	}
	self.mu.Unlock()

	for _, c := range kids {
		if _, err := s.Join(self, c); err != nil {
			return err
		}
		self.mu.Lock()
		delete(self.children, c.tid)
		self.mu.Unlock()
	}
	return nil
}

// Destroy forcibly removes a thread from the scheduler's tables. It
// does not stop an already-running goroutine; it is meant for threads
// still in INIT or already EXITED, matching the original's
// documented restriction that destroying a running thread is the
// caller's responsibility to have already stopped.
func (s *Scheduler) Destroy(t *Thread) error {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if status == StatusRunning || status == StatusRunnable {
		return kernel.New("sched.Scheduler.Destroy", kernel.Busy)
	}
	s.dequeue(t)
	s.mu.Lock()
	delete(s.threads, t.tid)
	delete(s.join, t.tid)
	s.mu.Unlock()
	return nil
}

// Fork is the Go rendition of nk_thread_fork's contract. Go cannot
// duplicate a live goroutine stack page-for-page the way fork()
// duplicates a call stack — precisely the kind of architecture-
// specific operation that needs isolation
// behind a narrow contract — so Fork instead takes the remaining work
// as an explicit continuation: it creates and runs a child thread that
// invokes cont(child, true), and returns the child so the caller can
// invoke cont(parent, false) itself immediately after. Both branches
// observe the same two facts the original contract guarantees: the
// child's branch is told it is the child, and the parent's branch
// receives the child's Thread (in place of its raw TID).
func (s *Scheduler) Fork(parent *Thread, cont func(self *Thread, isChild bool)) (*Thread, error) {
	child, err := s.Create(func(t *Thread, input any) any {
		cont(t, true)
		return nil
	}, nil, parent.stackSize, parent.homeCPU, false, parent)
	if err != nil {
		return nil, err
	}
	if err := s.Run(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Yield relinquishes the calling thread's turn, the Go analogue of
// nk_yield: since Thread bodies already run as ordinary goroutines
// under the Go runtime's own preemptive scheduler, the simulated
// yield is runtime.Gosched. It also refills t's quantum and
// acknowledges any pending timer-tick reschedule request on its CPU,
// the same bookkeeping a real context switch performs on the way out.
func (s *Scheduler) Yield(t *Thread) {
	if c := s.cpuFor(runqueueCPU(t)); c != nil {
		c.ClearResched()
	}
	t.ResetQuantum()
	runtime.Gosched()
}

// Tick is the scheduler-side body of the periodic timer interrupt
// spec.md §4.2 names as a context-switch point: a per-CPU ticker calls
// this at HZ. Preemption is gated exactly as §4.2/§5 describe — a
// thread runs to completion across this tick if c's
// preempt_disable_level is nonzero or an interrupt is already nesting
// — so Tick only ever requests a reschedule, it never forces one.
func (s *Scheduler) Tick(c *cpu.CPU) {
	c.RecordInterrupt()
	c.EnterInterrupt()
	defer c.ExitInterrupt()

	if c.InterruptNesting() > 1 || !c.PreemptAllowed() {
		return
	}
	t, ok := c.CurrentThread().(*Thread)
	if !ok || t == nil {
		return
	}
	if t.TickQuantum() {
		c.RequestResched()
	}
}

// StartTicker launches a goroutine that calls Tick on c at HZ until
// ctx is done, the analogue of programming the APIC timer for
// periodic interrupts. The caller owns ctx's lifetime.
func (s *Scheduler) StartTicker(ctx context.Context, c *cpu.CPU) {
	go func() {
		ticker := time.NewTicker(time.Second / HZ)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(c)
			}
		}
	}()
}

// RunqueueLen reports how many threads are currently queued on the
// runqueue for cpuID.
func (s *Scheduler) RunqueueLen(cpuID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runqueues[cpuID])
}

// ThreadByID looks up a thread by id.
func (s *Scheduler) ThreadByID(tid TID) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[tid]
	return t, ok
}
