package cpu

import (
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// NumIOAPICPins is a conservative standard IOAPIC redirection table
// size.
const NumIOAPICPins = 24

// RedirectionEntry is one IOAPIC redirection table entry: which
// vector a given interrupt pin is routed to, whether it is masked,
// and which CPU it targets.
type RedirectionEntry struct {
	Vector  int
	Masked  bool
	DestCPU int
}

// IOAPIC models I/O APIC interrupt redirection, replacing the legacy
// 8259 PIC's fixed pin-to-vector wiring with a programmable table.
type IOAPIC struct {
	mu           sync.Mutex
	table        [NumIOAPICPins]RedirectionEntry
	legacyMasked bool
}

func newIOAPIC() *IOAPIC {
	a := &IOAPIC{legacyMasked: true}
	for i := range a.table {
		a.table[i] = RedirectionEntry{Vector: FirstIRQVector + i, Masked: true}
	}
	return a
}

// MaskLegacyPIC records that the legacy 8259 has been fully masked off
// in favor of IOAPIC-routed interrupts, the standard SMP bring-up
// sequence.
func (a *IOAPIC) MaskLegacyPIC() { a.legacyMasked = true }

// LegacyPICMasked reports whether the legacy PIC has been masked.
func (a *IOAPIC) LegacyPICMasked() bool { return a.legacyMasked }

// Redirect programs pin to deliver vector to destCPU.
func (a *IOAPIC) Redirect(pin int, vector int, destCPU int) error {
	if pin < 0 || pin >= NumIOAPICPins {
		return kernel.New("cpu.IOAPIC.Redirect", kernel.BadParameter)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table[pin] = RedirectionEntry{Vector: vector, Masked: false, DestCPU: destCPU}
	return nil
}

// Mask and Unmask toggle delivery for a pin without disturbing its
// programmed vector/destination.
func (a *IOAPIC) Mask(pin int) error   { return a.setMasked(pin, true) }
func (a *IOAPIC) Unmask(pin int) error { return a.setMasked(pin, false) }

func (a *IOAPIC) setMasked(pin int, masked bool) error {
	if pin < 0 || pin >= NumIOAPICPins {
		return kernel.New("cpu.IOAPIC.setMasked", kernel.BadParameter)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.table[pin]
	e.Masked = masked
	a.table[pin] = e
	return nil
}

// Entry returns pin's current redirection entry.
func (a *IOAPIC) Entry(pin int) (RedirectionEntry, error) {
	if pin < 0 || pin >= NumIOAPICPins {
		return RedirectionEntry{}, kernel.New("cpu.IOAPIC.Entry", kernel.BadParameter)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table[pin], nil
}

// AllocVector finds the first free IRQ vector at or above
// FirstIRQVector, excluding the high-priority band reserved for IPIs.
func AllocVector(used map[int]bool) (int, error) {
	for v := FirstIRQVector; v < HighPriorityBand; v++ {
		if !used[v] {
			return v, nil
		}
	}
	return 0, kernel.New("cpu.AllocVector", kernel.OutOfMemory)
}
