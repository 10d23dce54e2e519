package cpu

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSendCrossCallRequiresDrain(t *testing.T) {
	target := NewCPU(1, 1, false)
	var ran atomic.Bool
	SendCrossCall(target, func(c *CPU) { ran.Store(true) })

	if ran.Load() {
		t.Fatalf("cross-call ran before Drain was invoked")
	}
	target.Drain()
	if !ran.Load() {
		t.Fatalf("Drain did not run the posted cross-call")
	}
}

func TestSendCrossCallBlockingWaitsForDrain(t *testing.T) {
	target := NewCPU(1, 1, false)
	done := make(chan struct{})
	go func() {
		SendCrossCallBlocking(target, func(c *CPU) {})
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("SendCrossCallBlocking returned before the target drained")
	case <-time.After(50 * time.Millisecond):
	}

	target.Drain()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SendCrossCallBlocking never returned after Drain")
	}
}

// TestCrossCallBroadcast mirrors spec.md §8 scenario 5 at the cpu
// package's own level: one CPU posts a cross-call to N others and each
// drains it, all N observing the broadcast exactly once.
func TestCrossCallBroadcast(t *testing.T) {
	const n = 7
	targets := make([]*CPU, n)
	for i := range targets {
		targets[i] = NewCPU(i+1, uint32(i+1), false)
	}

	var counter atomic.Int64
	for _, c := range targets {
		SendCrossCall(c, func(*CPU) { counter.Add(1) })
	}
	for _, c := range targets {
		c.Drain()
	}

	if got := counter.Load(); got != n {
		t.Fatalf("counter = %d, want %d", got, n)
	}
}

func TestDrainRunsInFIFOOrderAndClearsQueue(t *testing.T) {
	target := NewCPU(1, 1, false)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		SendCrossCall(target, func(*CPU) { order = append(order, i) })
	}
	target.Drain()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing FIFO order", order)
		}
	}

	// A second Drain with nothing queued should be a no-op.
	order = nil
	target.Drain()
	if len(order) != 0 {
		t.Fatalf("second Drain re-ran stale cross-calls: %v", order)
	}
}
