package cpu

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// BringupTimeout bounds how long the BSP waits for an AP to set its
// booted flag, matching the original's bounded poll loop around the
// INIT/STARTUP IPI sequence rather than waiting forever for a dead
// core.
const BringupTimeout = 5 * time.Second

// APDescriptor is one entry discovered from the firmware hand-off
// table (the Multiboot2 or HRT hand-off, depending on platform — see
// package cpu/firmware; the Gem5 hand-off lists no APs): a logical
// APIC id and, separately, whether it is the bootstrap processor.
type APDescriptor struct {
	LogicalAPIC uint32
	IsBSP       bool
}

// Topology owns every discovered CPU, indexed by the logical id
// NewTopology assigns in descriptor order (the BSP is id 0 when it is
// listed first, as the firmware parsers list it).
type Topology struct {
	mu   sync.Mutex
	cpus []*CPU
}

// NewTopology constructs CPU records for every descriptor, in order.
func NewTopology(descs []APDescriptor) *Topology {
	t := &Topology{}
	for i, d := range descs {
		c := NewCPU(i, d.LogicalAPIC, d.IsBSP)
		if d.IsBSP {
			// The BSP is already running by the time the topology exists.
			c.MarkBooted()
		}
		t.cpus = append(t.cpus, c)
	}
	return t
}

// CPUs returns every CPU in discovery order.
func (t *Topology) CPUs() []*CPU {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*CPU, len(t.cpus))
	copy(out, t.cpus)
	return out
}

// BSP returns the bootstrap processor.
func (t *Topology) BSP() *CPU {
	for _, c := range t.cpus {
		if c.IsBSP {
			return c
		}
	}
	return nil
}

// BringUp runs the SMP bring-up sequence: the BSP is already running
// by construction; every AP is sent through init (simulating the
// INIT/STARTUP IPI pair and the AP init trampoline) concurrently via
// errgroup, each bounded by BringupTimeout. init is the per-AP
// bring-up body (IDT install, APIC enable, ...); it must call
// ap.MarkBooted before returning for BringUp to consider that AP
// successfully started.
//
// errgroup.Group fans the concurrent AP bring-up out and collects the
// first error, exactly the shape the original's sequential "send IPI,
// poll booted flag, timeout" loop takes when generalized to run every
// AP's bring-up concurrently instead of one at a time.
func (t *Topology) BringUp(ctx context.Context, init func(ctx context.Context, ap *CPU) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range t.cpus {
		if c.IsBSP {
			c.MarkBooted()
			continue
		}
		ap := c
		g.Go(func() error {
			apCtx, cancel := context.WithTimeout(gctx, BringupTimeout)
			defer cancel()
			if err := init(apCtx, ap); err != nil {
				return kernel.Wrap("cpu.Topology.BringUp", kernel.Timeout, err)
			}
			if !ap.Booted() {
				return kernel.New("cpu.Topology.BringUp", kernel.Timeout)
			}
			return nil
		})
	}
	return g.Wait()
}
