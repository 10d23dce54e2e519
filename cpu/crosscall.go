package cpu

import "sync"

// CrossCallVector is the fixed IPI vector every cross-call is
// delivered on, matching the original's single dedicated
// cross-call/IPI vector rather than allocating one per call site.
const CrossCallVector = HighPriorityBand

// CrossCallFunc runs on the destination CPU in IPI-handler context.
type CrossCallFunc func(c *CPU)

type crossCallRequest struct {
	fn   CrossCallFunc
	done chan struct{} // non-nil for blocking calls
}

// CrossCallQueue is a CPU's lock-free-in-spirit inbox for cross-calls:
// a slice guarded by a mutex stands in for the original's SPSC ring,
// since Go's scheduler makes a literal lock-free ring far less
// valuable than it is on bare hardware.
type CrossCallQueue struct {
	mu      sync.Mutex
	pending []crossCallRequest
}

func newCrossCallQueue() *CrossCallQueue {
	return &CrossCallQueue{}
}

// Post appends a cross-call to the queue without waiting for it to
// run (the IPI-fire-and-forget form).
func (q *CrossCallQueue) Post(fn CrossCallFunc) {
	q.mu.Lock()
	q.pending = append(q.pending, crossCallRequest{fn: fn})
	q.mu.Unlock()
}

// PostBlocking appends a cross-call and blocks until the destination
// CPU's Drain has executed it: the "done flag" variant of a
// cross-call.
func (q *CrossCallQueue) PostBlocking(fn CrossCallFunc) {
	done := make(chan struct{})
	q.mu.Lock()
	q.pending = append(q.pending, crossCallRequest{fn: fn, done: done})
	q.mu.Unlock()
	<-done
}

// Drain runs every currently queued cross-call against c, in FIFO
// order, called from c's IPI handler for CrossCallVector.
func (c *CPU) Drain() {
	q := c.crossCalls
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range batch {
		req.fn(c)
		if req.done != nil {
			close(req.done)
		}
	}
}

// SendCrossCall posts fn to target's queue. Delivery (the IPI itself)
// is represented by target.Drain being invoked by whatever owns
// target's interrupt loop; tests typically call Drain directly after
// SendCrossCall.
func SendCrossCall(target *CPU, fn CrossCallFunc) {
	target.crossCalls.Post(fn)
}

// SendCrossCallBlocking posts fn to target's queue and blocks until it
// has run.
func SendCrossCallBlocking(target *CPU, fn CrossCallFunc) {
	target.crossCalls.PostBlocking(fn)
}
