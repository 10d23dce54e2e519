package mm

import (
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// Prot is the region protection bit field.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
	ProtPin
	ProtKernel
	ProtSwap
	ProtEager
)

// Region describes one mapped range within an address space.
type Region struct {
	VirtStart uint64
	PhysStart uint64
	Length    uint64
	Prot      Prot
}

// Thread is the minimal identity an address space needs from a
// scheduled thread: enough to add/remove it from its membership list
// without importing package sched (which itself imports mm to assert
// that its Thread satisfies this interface), avoiding an import cycle.
type Thread interface {
	ThreadID() uint64
}

// Aspace is the polymorphic address-space vtable. A
// distinguished "base" implementation (NewBaseAspace) rejects every
// region mutation; other implementations plug in by satisfying this
// interface, mirroring the function-pointer nk_aspace_impl table in
// the original C sources and the typed-device vtable pattern in the
// teacher's machine_bus.go.
type Aspace interface {
	Name() string
	Destroy() error
	AddThread(t Thread) error
	RemoveThread(t Thread) error
	AddRegion(r Region) error
	RemoveRegion(r Region) error
	ProtectRegion(r Region, prot Prot) error
	MoveRegion(old, new Region) error
	SwitchFrom() error
	SwitchTo() error
	Exception(vector int, errorCode uint64) error
	Print() string
}

// CPUPagingState is the saved control-register state a base aspace
// switch loads: CR3 (page table root) and the CR4 bits the kernel
// cares about masking in.
type CPUPagingState struct {
	CR3     uint64
	CR4Mask uint64
}

// BaseAspace is the single process-wide "base" address space that
// owns the identity mapping produced by boot paging. Exactly one
// instance may ever exist; NewBaseAspace fails on the second call.
type BaseAspace struct {
	mu      sync.Mutex
	name    string
	paging  CPUPagingState
	threads map[uint64]Thread
}

var (
	baseOnce sync.Mutex
	baseInst *BaseAspace
)

// NewBaseAspace creates the one and only base address space. A second
// call returns a Conflict error.
func NewBaseAspace(name string, paging CPUPagingState) (*BaseAspace, error) {
	baseOnce.Lock()
	defer baseOnce.Unlock()
	if baseInst != nil {
		return nil, kernel.New("mm.NewBaseAspace", kernel.Conflict)
	}
	if len(name) > 32 {
		return nil, kernel.New("mm.NewBaseAspace", kernel.BadParameter)
	}
	baseInst = &BaseAspace{name: name, paging: paging, threads: make(map[uint64]Thread)}
	return baseInst, nil
}

// resetBaseAspaceForTest clears the package-level singleton guard so
// tests can construct a fresh BaseAspace; it is not part of the
// kernel's runtime surface.
func resetBaseAspaceForTest() {
	baseOnce.Lock()
	baseInst = nil
	baseOnce.Unlock()
}

func (b *BaseAspace) Name() string { return b.name }

// Destroy always rejects: the base aspace is never torn down while
// the kernel runs.
func (b *BaseAspace) Destroy() error {
	return kernel.New("BaseAspace.Destroy", kernel.NotSupported)
}

func (b *BaseAspace) AddThread(t Thread) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads[t.ThreadID()] = t
	return nil
}

func (b *BaseAspace) RemoveThread(t Thread) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.threads, t.ThreadID())
	return nil
}

func (b *BaseAspace) AddRegion(Region) error {
	return kernel.New("BaseAspace.AddRegion", kernel.NotSupported)
}

func (b *BaseAspace) RemoveRegion(Region) error {
	return kernel.New("BaseAspace.RemoveRegion", kernel.NotSupported)
}

func (b *BaseAspace) ProtectRegion(Region, Prot) error {
	return kernel.New("BaseAspace.ProtectRegion", kernel.NotSupported)
}

func (b *BaseAspace) MoveRegion(Region, Region) error {
	return kernel.New("BaseAspace.MoveRegion", kernel.NotSupported)
}

// SwitchFrom is a no-op for the base aspace: there is no per-aspace
// state to flush beyond what SwitchTo on the incoming aspace will
// overwrite.
func (b *BaseAspace) SwitchFrom() error { return nil }

// SwitchTo stands for loading the base aspace's saved CR3 and masked
// CR4 bits (on real hardware, the MOV CR3 that changes the active
// page table). Here it changes no state and always succeeds; the saved
// values are only readable through Paging.
func (b *BaseAspace) SwitchTo() error { return nil }

// Exception always panics: no page fault should ever hit the identity
// map the base aspace represents.
func (b *BaseAspace) Exception(vector int, errorCode uint64) error {
	panic(kernel.New("BaseAspace.Exception", kernel.Fatal))
}

func (b *BaseAspace) Print() string {
	return "aspace " + b.name + " (base, identity-mapped, immutable)"
}

// Paging returns the aspace's saved control-register state.
func (b *BaseAspace) Paging() CPUPagingState { return b.paging }

// SwitchAspace enforces the invariant that switching
// between two address spaces is a no-op if they are the same object,
// otherwise SwitchFrom on the outgoing followed by SwitchTo on the
// incoming.
func SwitchAspace(from, to Aspace) error {
	if from == to {
		return nil
	}
	if from != nil {
		if err := from.SwitchFrom(); err != nil {
			return err
		}
	}
	return to.SwitchTo()
}
