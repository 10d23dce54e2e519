package ksync

import (
	"runtime"
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// FutureState is the tri-state lifecycle from include/nautilus/future.h.
type FutureState int

const (
	FutureFree FutureState = iota
	FutureInProgress
	FutureDone
)

// FutureWaitMode selects how Wait blocks: spinning (for short,
// latency-sensitive waits) or parking on the future's wait queue (for
// long waits where burning a CPU is wasteful), per future.h's
// nk_future_wait_t.
type FutureWaitMode int

const (
	FutureWaitSpin FutureWaitMode = iota
	FutureWaitBlock
)

// Future is a single-slot producer/consumer handoff: a task produces
// one result, any number of waiters observe it. Futures are
// pool-allocated and recycled rather than freed individually, matching
// the free-list discipline in future.h.
type Future struct {
	mu     sync.Mutex
	state  FutureState
	result any
	err    error
	q      *WaitQueue
}

// FuturePool hands out Futures from a preallocated free list, avoiding
// allocation on the hot produce/consume path.
type FuturePool struct {
	mu   sync.Mutex
	free []*Future
}

// NewFuturePool preallocates n Futures, each backed by its own wait
// queue.
func NewFuturePool(n int, irqs *IRQState) *FuturePool {
	p := &FuturePool{free: make([]*Future, 0, n)}
	for i := 0; i < n; i++ {
		p.free = append(p.free, &Future{q: NewWaitQueue("future", irqs)})
	}
	return p
}

// Get removes a free future from the pool, or allocates a fresh one if
// the pool is exhausted (mirroring the original's fallback to
// malloc when the static array is empty).
func (p *FuturePool) Get(irqs *IRQState) *Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		return f
	}
	return &Future{q: NewWaitQueue("future", irqs)}
}

// Recycle returns f to the pool for reuse without deallocating it,
// the Go analogue of nk_future_recycle.
func (p *FuturePool) Recycle(f *Future) {
	f.mu.Lock()
	f.state = FutureFree
	f.result = nil
	f.err = nil
	f.mu.Unlock()

	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}

// Start transitions a free future to in-progress. Returns Conflict if
// the future is already in progress or done.
func (f *Future) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FutureFree {
		return kernel.New("ksync.Future.Start", kernel.Conflict)
	}
	f.state = FutureInProgress
	return nil
}

// Finish records the result, marks the future done, and wakes every
// waiter — nk_future_finish.
func (f *Future) Finish(result any, err error) {
	f.mu.Lock()
	f.result = result
	f.err = err
	f.state = FutureDone
	f.mu.Unlock()
	f.q.WakeAll()
}

// Check is the non-blocking nk_future_check: it reports the current
// state and, if done, the stored result and error.
func (f *Future) Check() (state FutureState, result any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.result, f.err
}

// Wait blocks the caller until the future is done, then returns its
// result. mode selects spinning versus parking on the wait queue.
func (f *Future) Wait(w Waiter, mode FutureWaitMode) (any, error) {
	for {
		f.mu.Lock()
		state, result, err := f.state, f.result, f.err
		f.mu.Unlock()
		if state == FutureDone {
			return result, err
		}
		switch mode {
		case FutureWaitSpin:
			runtime.Gosched()
		default:
			// Re-check under the wait queue's lock so a Finish that lands
			// between the check above and the enqueue is not missed.
			f.q.SleepExtended(w, func() bool {
				f.mu.Lock()
				defer f.mu.Unlock()
				return f.state == FutureDone
			})
		}
	}
}
