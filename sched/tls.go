package sched

import (
	"sync/atomic"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// tlsMaxKeys matches TLS_MAX_KEYS from thread.h, comfortably above
// the required minimum of 128 usable keys.
const tlsMaxKeys = 256

// TLSKey identifies one process-wide thread-local storage slot.
type TLSKey uint

type tlsSlot struct {
	inUse      atomic.Bool
	destructor func(any)
}

var tlsSlots [tlsMaxKeys]tlsSlot

// TLSKeyCreate allocates a TLS key with an optional exit-time
// destructor, called with the thread's stored value (if non-nil) when
// the owning thread exits.
func TLSKeyCreate(destructor func(any)) (TLSKey, error) {
	for i := range tlsSlots {
		if tlsSlots[i].inUse.CompareAndSwap(false, true) {
			tlsSlots[i].destructor = destructor
			return TLSKey(i), nil
		}
	}
	return 0, kernel.New("sched.TLSKeyCreate", kernel.OutOfMemory)
}

// TLSKeyDelete releases key for reuse. It does not clear or run
// destructors for any thread currently holding a value under it.
func TLSKeyDelete(key TLSKey) error {
	if int(key) >= tlsMaxKeys {
		return kernel.New("sched.TLSKeyDelete", kernel.BadParameter)
	}
	tlsSlots[key].destructor = nil
	tlsSlots[key].inUse.Store(false)
	return nil
}

// TLSGet returns the calling thread's value for key.
func (t *Thread) TLSGet(key TLSKey) (any, error) {
	if int(key) >= tlsMaxKeys {
		return nil, kernel.New("sched.Thread.TLSGet", kernel.BadParameter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tls[key], nil
}

// TLSSet sets the calling thread's value for key.
func (t *Thread) TLSSet(key TLSKey, val any) error {
	if int(key) >= tlsMaxKeys {
		return kernel.New("sched.Thread.TLSSet", kernel.BadParameter)
	}
	t.mu.Lock()
	t.tls[key] = val
	t.mu.Unlock()
	return nil
}

// runTLSDestructors runs every registered destructor over t's non-nil
// TLS values, repeating up to MIN_DESTRUCT_ITER times since a
// destructor may itself set a different key, matching the POSIX
// pthread_key semantics the original thread_exit path follows.
func (t *Thread) runTLSDestructors() {
	const minDestructIter = 4
	for iter := 0; iter < minDestructIter; iter++ {
		ran := false
		t.mu.Lock()
		vals := t.tls
		t.mu.Unlock()
		for i, v := range vals {
			if v == nil {
				continue
			}
			d := tlsSlots[i].destructor
			if d == nil {
				continue
			}
			t.mu.Lock()
			t.tls[i] = nil
			t.mu.Unlock()
			d(v)
			ran = true
		}
		if !ran {
			return
		}
	}
}
