package device

import (
	"context"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// Loopback is a NetDevice that delivers every sent frame straight to
// its own receive queue, useful for exercising protocol stacks and
// tests without a real NIC.
type Loopback struct {
	name string
	mtu  int
	rx   chan []byte
	ctx  context.Context
	stop context.CancelFunc
}

// NewLoopback creates a Loopback device with the given MTU and a
// bounded receive queue.
func NewLoopback(name string, mtu, queueDepth int) *Loopback {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loopback{
		name: name,
		mtu:  mtu,
		rx:   make(chan []byte, queueDepth),
		ctx:  ctx,
		stop: cancel,
	}
}

func (l *Loopback) Name() string { return l.name }
func (l *Loopback) Type() Type   { return TypeNet }
func (l *Loopback) MTU() int     { return l.mtu }

func (l *Loopback) Send(frame []byte) error {
	if len(frame) > l.mtu {
		return kernel.New("device.Loopback.Send", kernel.BadParameter)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case l.rx <- cp:
		return nil
	case <-l.ctx.Done():
		return kernel.New("device.Loopback.Send", kernel.NotInitialized)
	default:
		return kernel.New("device.Loopback.Send", kernel.Busy)
	}
}

func (l *Loopback) Recv() ([]byte, error) {
	select {
	case f := <-l.rx:
		return f, nil
	case <-l.ctx.Done():
		return nil, kernel.New("device.Loopback.Recv", kernel.NotInitialized)
	}
}

// Close stops the device; any blocked Recv returns an error.
func (l *Loopback) Close() { l.stop() }

var _ NetDevice = (*Loopback)(nil)
