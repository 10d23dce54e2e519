package sched

import (
	"testing"
)

func TestTLSSetGetPerThread(t *testing.T) {
	key, err := TLSKeyCreate(nil)
	if err != nil {
		t.Fatalf("TLSKeyCreate: %v", err)
	}
	defer TLSKeyDelete(key)

	th := newThread(func(*Thread, any) any { return nil }, nil, 4096, -1, false, nil)

	if got, err := th.TLSGet(key); err != nil || got != nil {
		t.Fatalf("TLSGet on a fresh key = (%v, %v), want (nil, nil)", got, err)
	}
	if err := th.TLSSet(key, "hello"); err != nil {
		t.Fatalf("TLSSet: %v", err)
	}
	if got, _ := th.TLSGet(key); got != "hello" {
		t.Fatalf("TLSGet = %v, want \"hello\"", got)
	}
}

func TestTLSGetSetRejectsOutOfRangeKey(t *testing.T) {
	th := newThread(func(*Thread, any) any { return nil }, nil, 4096, -1, false, nil)
	if _, err := th.TLSGet(TLSKey(tlsMaxKeys)); err == nil {
		t.Fatalf("TLSGet with an out-of-range key should fail")
	}
	if err := th.TLSSet(TLSKey(tlsMaxKeys), 1); err == nil {
		t.Fatalf("TLSSet with an out-of-range key should fail")
	}
}

func TestTLSKeyDeleteAllowsReuse(t *testing.T) {
	key, err := TLSKeyCreate(nil)
	if err != nil {
		t.Fatalf("TLSKeyCreate: %v", err)
	}
	if err := TLSKeyDelete(key); err != nil {
		t.Fatalf("TLSKeyDelete: %v", err)
	}

	// Exhaust every other slot, then confirm the deleted one is
	// available again: all tlsMaxKeys creations only succeed if it is.
	var reused bool
	held := []TLSKey{}
	for i := 0; i < tlsMaxKeys; i++ {
		k, err := TLSKeyCreate(nil)
		if err != nil {
			t.Fatalf("TLSKeyCreate exhausted the pool early: %v", err)
		}
		held = append(held, k)
		if k == key {
			reused = true
		}
	}
	for _, k := range held {
		TLSKeyDelete(k)
	}
	if !reused {
		t.Fatalf("deleted key %d was never handed back out", key)
	}
}

func TestTLSDestructorRunsOnThreadExit(t *testing.T) {
	destructed := make(chan any, 1)
	key, err := TLSKeyCreate(func(v any) { destructed <- v })
	if err != nil {
		t.Fatalf("TLSKeyCreate: %v", err)
	}
	defer TLSKeyDelete(key)

	s := NewScheduler()
	_, err = s.Start(func(th *Thread, input any) any {
		th.TLSSet(key, "cleanup-me")
		return nil
	}, nil, 0, -1, false, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case v := <-destructed:
		if v != "cleanup-me" {
			t.Fatalf("destructor ran with %v, want \"cleanup-me\"", v)
		}
	case <-timeoutCh():
		t.Fatalf("destructor never ran")
	}
}
