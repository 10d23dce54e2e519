package cpu

import (
	"fmt"
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// NumIDTEntries matches the 256-entry x86 IDT.
const NumIDTEntries = 256

// legacyPIC vectors 0-31 are reserved for CPU exceptions (#DE, #GP,
// #PF, ...); IRQs start at 32, matching the original's vector layout.
const (
	FirstExceptionVector = 0
	LastExceptionVector  = 31
	FirstIRQVector       = 32
	// HighPriorityBand reserves the top of the vector space for IPIs
	// and cross-calls, which must preempt ordinary device IRQs.
	HighPriorityBand = 240
	DoubleFaultVector = 8
)

// ExceptionState is the register snapshot handed to a handler,
// trimmed from struct nk_regs to the fields a Go handler can usefully
// act on.
type ExceptionState struct {
	Vector    int
	ErrorCode uint64
	RIP       uint64
}

// HandlerFunc is the generic exception/IRQ stub contract: every IDT
// entry, whether it is a CPU exception or a device IRQ, is dispatched
// through the same signature.
type HandlerFunc func(cpu *CPU, state ExceptionState) error

// IDT is the 256-entry interrupt descriptor table.
type IDT struct {
	mu       sync.Mutex
	handlers [NumIDTEntries]HandlerFunc
}

func newIDT() *IDT {
	return &IDT{}
}

// Register installs fn at vector, replacing whatever was previously
// there.
func (t *IDT) Register(vector int, fn HandlerFunc) error {
	if vector < 0 || vector >= NumIDTEntries {
		return kernel.New("cpu.IDT.Register", kernel.BadParameter)
	}
	t.mu.Lock()
	t.handlers[vector] = fn
	t.mu.Unlock()
	return nil
}

// Unregister removes whatever handler is installed at vector.
func (t *IDT) Unregister(vector int) error {
	return t.Register(vector, nil)
}

// Dispatch delivers state to the handler installed at state.Vector. A
// null handler on an exception vector is fatal (the null-handler
// default the original's idt.c installs panics the kernel); a null
// handler on an IRQ vector only logs a warning, since a spurious or
// unexpected device interrupt should not be able to take the whole
// machine down. Vector 8 (#DF) is unconditionally fatal regardless of
// what is registered, matching x86's own double-fault semantics.
func (t *IDT) Dispatch(c *CPU, log *kernel.Logger, state ExceptionState) {
	c.EnterInterrupt()
	defer c.ExitInterrupt()

	if state.Vector == DoubleFaultVector {
		log.Panic("double fault on cpu %d: %+v", c.ID, state)
	}

	t.mu.Lock()
	fn := t.handlers[state.Vector]
	t.mu.Unlock()

	isException := state.Vector <= LastExceptionVector

	if fn == nil {
		if isException {
			log.Panic("unhandled exception vector %d on cpu %d", state.Vector, c.ID)
		}
		c.RecordInterrupt()
		log.Warn("spurious IRQ vector %d on cpu %d", state.Vector, c.ID)
		return
	}

	if isException {
		c.RecordException()
	} else {
		c.RecordInterrupt()
	}

	if err := fn(c, state); err != nil {
		log.Warn("handler for vector %d on cpu %d returned error: %v", state.Vector, c.ID, err)
	}
}

func (s ExceptionState) String() string {
	return fmt.Sprintf("vector=%d err=%#x rip=%#x", s.Vector, s.ErrorCode, s.RIP)
}
