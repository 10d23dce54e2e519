// Command nautilus boots a single simulated AeroKernel instance: it
// brings up a topology of simulated CPUs, establishes the base
// address space and boot memory map, starts the thread scheduler and
// a handful of device-backed demo threads, then idles until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/device"
	"github.com/HExSA-Lab/nautilus-sub004/kernel"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
	"github.com/HExSA-Lab/nautilus-sub004/sched"
)

var log = kernel.NewLogger("nautilus")

func main() {
	numCPUs := flag.Int("cpus", 4, "number of simulated CPUs to bring up")
	cmdlineArg := flag.String("cmdline", "", "kernel command line, parsed with the same quoting rules as a real boot cmdline")
	flag.Parse()

	cl := kernel.NewCommandLine()
	var verbose bool
	_ = cl.Register("verbose", func(string) error { verbose = true; return nil })
	if *cmdlineArg != "" {
		if err := cl.Parse(*cmdlineArg); err != nil {
			log.Warn("cmdline parse error: %v", err)
		}
	}
	if verbose {
		log.Warn("verbose logging requested (no-op placeholder for a future log-level flag)")
	}

	if err := run(*numCPUs); err != nil {
		log.Warn("fatal startup error: %v", err)
		os.Exit(1)
	}
}

func run(numCPUs int) error {
	bootMem, err := setupBootMemory()
	if err != nil {
		return err
	}
	defer bootMem.Release()

	pool, err := mm.NewPool(0, 32, 12) // 4 GiB pool, 4 KiB min block
	if err != nil {
		return err
	}
	log.Warn("boot memory: usable=%d bytes across %d regions", bootMem.Info.UsableRAM, bootMem.Info.NumRegions)

	if _, err := mm.NewBaseAspace("base", mm.CPUPagingState{}); err != nil {
		return err
	}

	descs := make([]cpu.APDescriptor, numCPUs)
	for i := range descs {
		descs[i] = cpu.APDescriptor{LogicalAPIC: uint32(i), IsBSP: i == 0}
	}
	topo := cpu.NewTopology(descs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := topo.BringUp(ctx, bringUpAP); err != nil {
		return err
	}
	log.Warn("brought up %d cpus", len(topo.CPUs()))

	registry := device.NewRegistry()
	con := device.NewConsole("ttyS0")
	if err := registry.Insert(con); err != nil {
		return err
	}

	scheduler := sched.NewScheduler()
	for _, c := range topo.CPUs() {
		scheduler.RegisterCPU(c)
		scheduler.StartTicker(ctx, c)
	}

	tasks := sched.NewTaskQueue(numCPUs, 2)
	defer tasks.Close()

	_, _ = pool.Alloc(12) // exercise the buddy allocator at startup

	greeter, err := scheduler.Start(func(t *sched.Thread, input any) any {
		_, _ = con.Write([]byte("nautilus: hello from tid " + tidString(t) + "\n"))
		return nil
	}, nil, 0, -1, false, nil)
	if err != nil {
		return err
	}
	if _, err := scheduler.Join(nil, greeter); err != nil {
		return err
	}

	chore, err := tasks.Produce(0, 0, func(input any) any {
		_, _ = con.Write([]byte("nautilus: background chore ran\n"))
		return nil
	}, nil, false)
	if err != nil {
		return err
	}
	if _, err := tasks.Wait(chore); err != nil {
		return err
	}

	idleForever(ctx)
	return nil
}

func setupBootMemory() (*mm.BootMemory, error) {
	raw := []mm.Range{
		{Base: 0, Length: 0x100000000, Type: mm.Available}, // 4 GiB available
	}
	return mm.NewBootMemory(raw, nil)
}

func bringUpAP(ctx context.Context, ap *cpu.CPU) error {
	ap.IDT.Register(0, func(c *cpu.CPU, s cpu.ExceptionState) error {
		return kernel.New("nautilus.divideError", kernel.Fatal)
	})
	ap.MarkBooted()
	return nil
}

func idleForever(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
	}
}

func tidString(t *sched.Thread) string {
	return string(rune('0' + int(t.TID())%10))
}
