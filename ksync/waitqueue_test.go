package ksync

import (
	"sync/atomic"
	"testing"
	"time"
)

type testWaiter struct {
	id     uint64
	parkCh chan struct{}
}

func newTestWaiter(id uint64) *testWaiter {
	return &testWaiter{id: id, parkCh: make(chan struct{}, 1)}
}

func (w *testWaiter) WaiterID() uint64 { return w.id }
func (w *testWaiter) Park()            { <-w.parkCh }
func (w *testWaiter) Unpark() {
	select {
	case w.parkCh <- struct{}{}:
	default:
	}
}

func (w *testWaiter) ApplyConstraints(c Constraints) error { return nil }

func (w *testWaiter) EnterWait(q *WaitQueue) {}
func (w *testWaiter) ExitWait()              {}

func TestWaitQueueSleepWake(t *testing.T) {
	irqs := NewIRQState()
	q := NewWaitQueue("test", irqs)
	w := newTestWaiter(1)

	done := make(chan struct{})
	go func() {
		q.Sleep(w)
		close(done)
	}()

	// Give the sleeper a chance to enqueue.
	time.Sleep(10 * time.Millisecond)
	if got := q.NumWaiting(); got != 1 {
		t.Fatalf("NumWaiting = %d, want 1 before wake", got)
	}

	q.WakeOne()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sleeper did not wake")
	}
	if got := q.NumWaiting(); got != 0 {
		t.Fatalf("NumWaiting = %d, want 0 after wake", got)
	}
}

func TestWaitQueueWakeAllWakesEveryone(t *testing.T) {
	irqs := NewIRQState()
	q := NewWaitQueue("test", irqs)

	const n = 20
	var woken atomic.Int64
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		w := newTestWaiter(uint64(i))
		go func() {
			q.Sleep(w)
			woken.Add(1)
			done <- struct{}{}
		}()
	}

	deadline := time.After(2 * time.Second)
	for {
		if q.NumWaiting() == n {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("not all waiters enqueued: %d/%d", q.NumWaiting(), n)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	q.WakeAll()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d/%d waiters woke", woken.Load(), n)
		}
	}
	if got := woken.Load(); got != n {
		t.Fatalf("woken = %d, want %d", got, n)
	}
}

func TestWaitQueueSleepExtendedSkipsSleepWhenConditionAlreadyTrue(t *testing.T) {
	irqs := NewIRQState()
	q := NewWaitQueue("test", irqs)
	w := newTestWaiter(1)

	done := make(chan struct{})
	go func() {
		q.SleepExtended(w, func() bool { return true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SleepExtended should return immediately when cond() is already true")
	}
	if got := q.NumWaiting(); got != 0 {
		t.Fatalf("NumWaiting = %d, want 0: condition was already satisfied, never enqueued", got)
	}
}

func TestEnqueueDequeueMultiple(t *testing.T) {
	irqs := NewIRQState()
	q1 := NewWaitQueue("q1", irqs)
	q2 := NewWaitQueue("q2", irqs)
	w := newTestWaiter(1)

	if err := EnqueueMultiple([]*WaitQueue{q1, q2}, w); err != nil {
		t.Fatalf("EnqueueMultiple: %v", err)
	}
	if q1.NumWaiting() != 1 || q2.NumWaiting() != 1 {
		t.Fatalf("expected w enqueued on both queues")
	}

	DequeueMultiple([]*WaitQueue{q1, q2}, w)
	if q1.NumWaiting() != 0 || q2.NumWaiting() != 0 {
		t.Fatalf("expected w removed from both queues")
	}
}
