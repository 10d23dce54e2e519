// Package cpu implements CPU bring-up and interrupt delivery: the
// per-CPU record, SMP discovery and AP bring-up, the IDT/IRQ
// dispatch contract, and cross-CPU IPI/cross-call delivery.
package cpu

import (
	"sync/atomic"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
)

// CurrentThread is the minimal identity a CPU record needs from the
// thread it is currently running, mirroring mm.Thread: a narrow
// interface so package cpu never has to import package sched.
type CurrentThread interface {
	ThreadID() uint64
}

// CPU is the per-CPU record, mirroring struct cpu in
// cpu_state.h: everything the kernel keeps about one logical
// processor. The hot fields the original reserves at fixed
// GS-relative offsets (id, current thread, interrupt-nesting and
// preempt-disable counters) are plain atomics here — a single-address-
// space Go process has no segment-register trick to exploit, so the
// offsets collapse to ordinary struct fields accessed with atomic
// operations for the counters that are mutated from interrupt
// context.
type CPU struct {
	ID           int
	LogicalAPIC  uint32
	IsBSP        bool
	Enabled      bool
	Signature    uint32
	FeatureFlags uint64

	booted atomic.Bool

	current          atomic.Pointer[currentThreadBox]
	interruptNesting atomic.Int32
	preemptDisable   atomic.Int32

	interruptCount atomic.Uint64
	exceptionCount atomic.Uint64

	needResched atomic.Bool

	aspace atomic.Pointer[mm.Aspace]

	IDT        *IDT
	IOAPIC     *IOAPIC
	crossCalls *CrossCallQueue
}

type currentThreadBox struct {
	t CurrentThread
}

// NewCPU constructs a CPU record in the not-yet-booted state.
func NewCPU(id int, logicalAPIC uint32, isBSP bool) *CPU {
	c := &CPU{
		ID:          id,
		LogicalAPIC: logicalAPIC,
		IsBSP:       isBSP,
		IDT:         newIDT(),
		IOAPIC:      newIOAPIC(),
		crossCalls:  newCrossCallQueue(),
	}
	return c
}

// Booted reports whether this CPU has completed bring-up.
func (c *CPU) Booted() bool { return c.booted.Load() }

// MarkBooted records that this CPU has finished its init sequence and
// is ready to run threads. Called once, from the AP's own bring-up
// goroutine.
func (c *CPU) MarkBooted() { c.booted.Store(true) }

// CurrentThread returns the thread presently assigned to this CPU, or
// nil.
func (c *CPU) CurrentThread() CurrentThread {
	box := c.current.Load()
	if box == nil {
		return nil
	}
	return box.t
}

// SetCurrentThread records the thread presently assigned to this CPU.
func (c *CPU) SetCurrentThread(t CurrentThread) {
	c.current.Store(&currentThreadBox{t: t})
}

// EnterInterrupt and ExitInterrupt bracket interrupt handling,
// tracking nesting depth the way the original's per_cpu interrupt
// counter does so a handler can tell whether it preempted another
// handler.
func (c *CPU) EnterInterrupt() int32 { return c.interruptNesting.Add(1) }
func (c *CPU) ExitInterrupt() int32  { return c.interruptNesting.Add(-1) }
func (c *CPU) InterruptNesting() int32 { return c.interruptNesting.Load() }

// PreemptDisable and PreemptEnable implement the preempt_disable_level
// counter: nested disables compose, and preemption is
// only actually permitted again once the level returns to zero.
func (c *CPU) PreemptDisable() int32 { return c.preemptDisable.Add(1) }
func (c *CPU) PreemptEnable() int32 {
	n := c.preemptDisable.Add(-1)
	if n < 0 {
		panic(kernel.New("cpu.CPU.PreemptEnable", kernel.Conflict))
	}
	return n
}
func (c *CPU) PreemptAllowed() bool { return c.preemptDisable.Load() == 0 }

// RequestResched flags that this CPU's current thread should be
// switched out at the next safe point, set by the scheduler's
// timer-tick handler when a thread's quantum is exhausted while
// PreemptAllowed is true.
func (c *CPU) RequestResched() { c.needResched.Store(true) }

// NeedsResched reports whether a reschedule was requested since the
// last ClearResched.
func (c *CPU) NeedsResched() bool { return c.needResched.Load() }

// ClearResched acknowledges a pending reschedule request, called once
// the scheduler has actually switched threads off this CPU.
func (c *CPU) ClearResched() { c.needResched.Store(false) }

// RecordInterrupt and RecordException bump per-CPU diagnostic
// counters, read back through InterruptCount and ExceptionCount.
func (c *CPU) RecordInterrupt() { c.interruptCount.Add(1) }
func (c *CPU) RecordException() { c.exceptionCount.Add(1) }

func (c *CPU) InterruptCount() uint64 { return c.interruptCount.Load() }
func (c *CPU) ExceptionCount() uint64 { return c.exceptionCount.Load() }

// CurrentAspace and SetCurrentAspace track the address space active on
// this CPU.
func (c *CPU) CurrentAspace() mm.Aspace {
	p := c.aspace.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (c *CPU) SetCurrentAspace(a mm.Aspace) {
	c.aspace.Store(&a)
}
