package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

func TestSchedulerCreateRunJoin(t *testing.T) {
	s := NewScheduler()
	th, err := s.Start(func(_ *Thread, input any) any {
		return input.(int) * 2
	}, 21, 0, -1, false, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := s.Join(newCaller(s), th)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if out != 42 {
		t.Fatalf("Join output = %v, want 42", out)
	}
	if got := th.Status(); got != StatusExited {
		t.Fatalf("Status = %v, want exited", got)
	}
}

func TestSchedulerJoinOnAlreadyExitedReturnsImmediately(t *testing.T) {
	s := NewScheduler()
	th, _ := s.Start(func(*Thread, any) any { return "done" }, nil, 0, -1, false, nil)
	<-th.doneCh // wait out-of-band so the thread has genuinely exited
	out, err := s.Join(newCaller(s), th)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if out != "done" {
		t.Fatalf("Join on exited thread = %v, want \"done\"", out)
	}
}

func TestSchedulerExitEarlyReturn(t *testing.T) {
	s := NewScheduler()
	th, err := s.Start(func(self *Thread, _ any) any {
		s.Exit(self, "early")
		panic("unreachable: Exit must not return")
	}, nil, 0, -1, false, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := s.Join(newCaller(s), th)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if out != "early" {
		t.Fatalf("Join output = %v, want \"early\"", out)
	}
}

// TestSchedulerJoinRejectsDetachedThread mirrors spec.md §4.2's
// documented join() failure: a detached thread's exit value is never
// observable through Join.
func TestSchedulerJoinRejectsDetachedThread(t *testing.T) {
	s := NewScheduler()
	th, err := s.Start(func(*Thread, any) any { return "ignored" }, nil, 0, -1, true, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-th.doneCh

	if !th.Detached() {
		t.Fatalf("Detached() = false, want true")
	}
	_, err = s.Join(newCaller(s), th)
	if err == nil {
		t.Fatalf("Join on a detached thread should fail")
	}
	if kind, ok := kernel.KindOf(err); !ok || kind != kernel.NotJoinable {
		t.Fatalf("Join error kind = %v, want NotJoinable", err)
	}
}

func TestSchedulerDestroyRejectsRunningThread(t *testing.T) {
	s := NewScheduler()
	release := make(chan struct{})
	th, _ := s.Start(func(*Thread, any) any {
		<-release
		return nil
	}, nil, 0, -1, false, nil)

	if err := s.Destroy(th); err == nil {
		t.Fatalf("Destroy on a running thread should fail")
	}
	close(release)
	<-th.doneCh
	if err := s.Destroy(th); err != nil {
		t.Fatalf("Destroy on an exited thread: %v", err)
	}
}

func TestSchedulerJoinAllChildren(t *testing.T) {
	s := NewScheduler()
	parent, err := s.Create(func(*Thread, any) any { return nil }, nil, 4096, -1, false, nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}

	const n = 5
	var ran atomic.Int32
	for i := 0; i < n; i++ {
		if _, err := s.Start(func(*Thread, any) any {
			ran.Add(1)
			return nil
		}, nil, 0, -1, false, parent); err != nil {
			t.Fatalf("Start child: %v", err)
		}
	}

	if err := s.JoinAllChildren(parent, nil); err != nil {
		t.Fatalf("JoinAllChildren: %v", err)
	}
	if got := ran.Load(); got != n {
		t.Fatalf("ran = %d, want %d", got, n)
	}
	if len(parent.children) != 0 {
		t.Fatalf("JoinAllChildren left %d children behind", len(parent.children))
	}
}

// TestSchedulerRoundRobinStress mirrors spec.md §8 scenario 1: ten
// passes of 512 threads bound round-robin across a small set of CPUs,
// each just returning its own TID, confirming every thread reaches
// StatusExited with the right output and the runqueues drain back to
// empty after each pass.
func TestSchedulerRoundRobinStress(t *testing.T) {
	s := NewScheduler()
	const cpus = 4
	const perPass = 512
	const passes = 10

	for pass := 0; pass < passes; pass++ {
		threads := make([]*Thread, perPass)
		for i := 0; i < perPass; i++ {
			cpuID := i % cpus
			th, err := s.Start(func(self *Thread, _ any) any {
				return self.TID()
			}, nil, 0, cpuID, false, nil)
			if err != nil {
				t.Fatalf("pass %d: Start: %v", pass, err)
			}
			threads[i] = th
		}

		caller := newCaller(s)
		for _, th := range threads {
			out, err := s.Join(caller, th)
			if err != nil {
				t.Fatalf("pass %d: Join: %v", pass, err)
			}
			if out != th.TID() {
				t.Fatalf("pass %d: thread %d returned %v, want its own TID", pass, th.TID(), out)
			}
			if got := th.Status(); got != StatusExited {
				t.Fatalf("pass %d: thread %d status = %v, want exited", pass, th.TID(), got)
			}
		}

		for cpuID := 0; cpuID < cpus; cpuID++ {
			if got := s.RunqueueLen(cpuID); got != 0 {
				t.Fatalf("pass %d: cpu %d runqueue not drained, len=%d", pass, cpuID, got)
			}
		}
	}
}

// TestSchedulerRecursiveForkDepth8 mirrors spec.md §8 scenario 2: fork
// recursively to depth 8 and join back up, confirming the fork/join
// tree both executes in full and reassembles the expected leaf count
// (2^8 = 256, one per leaf of the binary fork tree).
func TestSchedulerRecursiveForkDepth8(t *testing.T) {
	s := NewScheduler()
	const maxDepth = 8

	var recurse func(self *Thread, depth int) int
	recurse = func(self *Thread, depth int) int {
		if depth == 0 {
			return 1
		}
		child, err := s.Fork(self, func(childSelf *Thread, isChild bool) {
			if isChild {
				out := recurse(childSelf, depth-1)
				s.Exit(childSelf, out)
			}
		})
		if err != nil {
			t.Fatalf("Fork at depth %d: %v", depth, err)
		}
		parentCount := recurse(self, depth-1)
		childOut, err := s.Join(self, child)
		if err != nil {
			t.Fatalf("Join at depth %d: %v", depth, err)
		}
		return parentCount + childOut.(int)
	}

	root, err := s.Start(func(self *Thread, _ any) any {
		return recurse(self, maxDepth)
	}, nil, 0, -1, false, nil)
	if err != nil {
		t.Fatalf("Start root: %v", err)
	}

	out, err := s.Join(newCaller(s), root)
	if err != nil {
		t.Fatalf("Join root: %v", err)
	}
	want := 1 << maxDepth
	if out != want {
		t.Fatalf("recursive fork total = %v, want %d", out, want)
	}
}

// TestSchedulerTickRequestsReschedOnlyWhenPreemptAllowed exercises
// spec.md §4.2/§5's preemption gate: Tick must request a reschedule
// once a thread's quantum is exhausted, but never while preemption is
// disabled on that CPU.
func TestSchedulerTickRequestsReschedOnlyWhenPreemptAllowed(t *testing.T) {
	s := NewScheduler()
	c := cpu.NewCPU(0, 0, true)
	s.RegisterCPU(c)

	release := make(chan struct{})
	th, err := s.Start(func(*Thread, any) any {
		<-release
		return nil
	}, nil, 0, 0, false, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for execute() to publish the thread as this CPU's current
	// thread before ticking it.
	deadline := time.After(time.Second)
	for c.CurrentThread() == nil {
		select {
		case <-deadline:
			t.Fatalf("thread never became current on cpu 0")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	c.PreemptDisable()
	for i := 0; i < DefaultQuantumTicks+1; i++ {
		s.Tick(c)
	}
	if c.NeedsResched() {
		t.Fatalf("Tick requested a reschedule while preemption was disabled")
	}
	c.PreemptEnable()

	for i := 0; i < DefaultQuantumTicks; i++ {
		s.Tick(c)
	}
	if !c.NeedsResched() {
		t.Fatalf("Tick did not request a reschedule after the quantum was exhausted")
	}

	s.Yield(th)
	if c.NeedsResched() {
		t.Fatalf("Yield should acknowledge the pending reschedule request")
	}

	close(release)
	<-th.doneCh
}

// TestSchedulerTickSkipsNestedInterrupt confirms Tick does nothing
// when it is itself invoked while another interrupt is already
// nesting on the same CPU, matching spec.md §4.2/§5's "interrupt
// nesting level is nonzero" half of the preemption gate.
func TestSchedulerTickSkipsNestedInterrupt(t *testing.T) {
	s := NewScheduler()
	c := cpu.NewCPU(1, 0, false)
	s.RegisterCPU(c)
	// Give the CPU a current thread so that, without the nesting gate,
	// these ticks would exhaust its quantum and request a reschedule.
	c.SetCurrentThread(newThread(func(*Thread, any) any { return nil }, nil, 4096, 1, false, nil))

	c.EnterInterrupt()
	defer c.ExitInterrupt()

	for i := 0; i < DefaultQuantumTicks+5; i++ {
		s.Tick(c)
	}
	if c.NeedsResched() {
		t.Fatalf("Tick should not act while nested inside another interrupt")
	}
}

func TestSchedulerStartTickerCallsTick(t *testing.T) {
	s := NewScheduler()
	c := cpu.NewCPU(2, 0, false)
	s.RegisterCPU(c)

	ctx, cancel := context.WithCancel(context.Background())
	s.StartTicker(ctx, c)

	deadline := time.After(time.Second)
	for c.InterruptCount() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("StartTicker never invoked Tick")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
}
