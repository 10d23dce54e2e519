package ksync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBarrierReleasesAllArrivals(t *testing.T) {
	irqs := NewIRQState()
	const n = 10
	b, err := NewBarrier(n, irqs)
	if err != nil {
		t.Fatalf("NewBarrier: %v", err)
	}

	var arrived atomic.Int32
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		w := newTestWaiter(uint64(i))
		go func() {
			b.Wait(w)
			arrived.Add(1)
			done <- struct{}{}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d/%d threads released from the barrier", arrived.Load(), n)
		}
	}
}

func TestBarrierRejectsNonPositiveCount(t *testing.T) {
	irqs := NewIRQState()
	if _, err := NewBarrier(0, irqs); err == nil {
		t.Fatalf("NewBarrier(0, ...) should fail")
	}
	if _, err := NewBarrier(-1, irqs); err == nil {
		t.Fatalf("NewBarrier(-1, ...) should fail")
	}
}

func TestBarrierDestroyFailsWithPendingWaiters(t *testing.T) {
	irqs := NewIRQState()
	b, err := NewBarrier(2, irqs)
	if err != nil {
		t.Fatalf("NewBarrier: %v", err)
	}
	w := newTestWaiter(1)
	go b.Wait(w)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := b.Destroy(); err != nil {
			return // Busy, as expected, while the waiter is pending.
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Destroy never observed a pending waiter")
}

func TestBarrierDestroySucceedsWhenEmpty(t *testing.T) {
	irqs := NewIRQState()
	b, err := NewBarrier(2, irqs)
	if err != nil {
		t.Fatalf("NewBarrier: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy on an empty barrier should succeed: %v", err)
	}
}
