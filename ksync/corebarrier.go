package ksync

import (
	"runtime"
	"sync/atomic"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// CoreBarrier is the cross-CPU stop-the-world primitive: one CPU
// raises the barrier, every other CPU's interrupt path calls Wait and
// spins until the raiser calls Lower. Unlike Barrier, membership is
// not fixed in advance — any CPU that observes the raised flag must
// join before the raiser can proceed, so Wait is driven by a target
// participant count supplied at Raise time.
//
// The original kernel silently ignores a second concurrent Raise; a
// cleaner contract is adopted here instead: a Raise while
// already raised returns a Conflict error so a caller cannot
// mistakenly believe it owns the barrier.
type CoreBarrier struct {
	raised     atomic.Bool
	target     atomic.Int64
	arrived    atomic.Int64
	generation atomic.Uint64
}

// NewCoreBarrier returns an unraised core barrier.
func NewCoreBarrier() *CoreBarrier {
	return &CoreBarrier{}
}

// Raise arms the barrier for nParticipants callers (including the
// raiser itself, if it also calls Wait). Returns Conflict if the
// barrier is already raised.
func (c *CoreBarrier) Raise(nParticipants int) error {
	if !c.raised.CompareAndSwap(false, true) {
		return kernel.New("ksync.CoreBarrier.Raise", kernel.Conflict)
	}
	c.target.Store(int64(nParticipants))
	c.arrived.Store(0)
	return nil
}

// Wait spins until the barrier is lowered. Every CPU whose interrupt
// path observes Raised() must call Wait before the raiser calls Lower,
// or the world is not actually stopped.
func (c *CoreBarrier) Wait() {
	gen := c.generation.Load()
	c.arrived.Add(1)
	for c.generation.Load() == gen && c.raised.Load() {
		pause()
	}
}

// Raised reports whether the barrier is currently raised, polled from
// each CPU's interrupt-return path.
func (c *CoreBarrier) Raised() bool { return c.raised.Load() }

// Arrived returns how many CPUs have called Wait so far in the
// current raise.
func (c *CoreBarrier) Arrived() int64 { return c.arrived.Load() }

// WaitForAll spins on the raiser's side until every raised participant
// has called Wait, the usual precondition before the raiser performs
// whatever stop-the-world work it raised the barrier for.
func (c *CoreBarrier) WaitForAll() {
	for c.arrived.Load() < c.target.Load() {
		pause()
	}
}

// Lower releases every CPU blocked in Wait and re-arms the barrier for
// its next generation.
func (c *CoreBarrier) Lower() {
	c.generation.Add(1)
	c.raised.Store(false)
}

func pause() {
	runtime.Gosched()
}
