package mm

import (
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// freeBlock is one entry of an order's free list, identified by its
// offset from the pool base. The list itself is a plain slice acting
// as a set; order is small in practice (≤ ~40) so scans stay cheap.
type freeBlock struct {
	offset uint64
}

// Pool is a power-of-two buddy allocator over a single contiguous
// arena. base_addr/pool_order/min_order are fixed at
// creation; everything else is protected by mu.
type Pool struct {
	mu sync.Mutex

	base      uint64
	poolOrder uint
	minOrder  uint

	free   [][]freeBlock // free[order] = list of free blocks of that order
	tagBit []bool        // 1 bit per min-order block: true iff free
}

// NewPool creates a buddy pool of 2^poolOrder bytes starting at base.
// minOrder is clamped up if it is too small to hold a free-block
// header's worth of bookkeeping (the pool keeps no per-block header in
// this implementation, but the clamp is preserved for fidelity with
// the original allocator's contract).
func NewPool(base uint64, poolOrder, minOrder uint) (*Pool, error) {
	if minOrder < 4 {
		minOrder = 4
	}
	if minOrder > poolOrder {
		return nil, kernel.New("mm.NewPool", kernel.BadParameter)
	}

	p := &Pool{
		base:      base,
		poolOrder: poolOrder,
		minOrder:  minOrder,
		free:      make([][]freeBlock, poolOrder+1),
		tagBit:    make([]bool, uint64(1)<<(poolOrder-minOrder)),
	}
	p.free[poolOrder] = []freeBlock{{offset: 0}}
	for i := range p.tagBit {
		p.tagBit[i] = true
	}
	return p, nil
}

func (p *Pool) bitIndex(offset uint64) uint64 { return offset >> p.minOrder }

// Alloc reserves a block of at least 2^order bytes, returning its
// address. order is bumped up to minOrder if too small and rejected
// if it exceeds poolOrder.
func (p *Pool) Alloc(order uint) (uint64, error) {
	if order < p.minOrder {
		order = p.minOrder
	}
	if order > p.poolOrder {
		return 0, kernel.New("mm.Pool.Alloc", kernel.BadParameter)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o := order
	for o <= p.poolOrder && len(p.free[o]) == 0 {
		o++
	}
	if o > p.poolOrder {
		return 0, kernel.New("mm.Pool.Alloc", kernel.OutOfMemory)
	}

	block := p.popFree(o)
	// Split downward from o to order, pushing the unused half of each
	// split onto its own order's free list.
	for o > order {
		o--
		buddyOffset := block.offset + (uint64(1) << o)
		p.pushFree(o, freeBlock{offset: buddyOffset})
		p.markRange(buddyOffset, o, true)
	}
	p.markRange(block.offset, order, false)
	return p.base + block.offset, nil
}

// Free returns a previously allocated block of order order, merging
// with its buddy while the buddy is also free and of the same order.
func (p *Pool) Free(addr uint64, order uint) error {
	if order < p.minOrder {
		order = p.minOrder
	}
	if addr < p.base || addr >= p.base+(uint64(1)<<p.poolOrder) {
		return kernel.New("mm.Pool.Free", kernel.BadParameter)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	offset := addr - p.base
	o := order
	for o < p.poolOrder {
		buddyOffset := offset ^ (uint64(1) << o)
		if !p.blockFree(buddyOffset, o) {
			break
		}
		p.removeFree(o, buddyOffset)
		if buddyOffset < offset {
			offset = buddyOffset
		}
		o++
	}
	p.pushFree(o, freeBlock{offset: offset})
	p.markRange(offset, o, true)
	return nil
}

// blockFree reports whether the block at offset/order is entirely
// marked free in the tag bitmap (it is always either entirely free or
// entirely allocated, by the pool's invariant).
func (p *Pool) blockFree(offset uint64, order uint) bool {
	start := p.bitIndex(offset)
	count := uint64(1) << (order - p.minOrder)
	if order < p.minOrder {
		count = 1
	}
	if start+count > uint64(len(p.tagBit)) {
		return false
	}
	for i := uint64(0); i < count; i++ {
		if !p.tagBit[start+i] {
			return false
		}
	}
	return true
}

func (p *Pool) markRange(offset uint64, order uint, free bool) {
	start := p.bitIndex(offset)
	count := uint64(1)
	if order > p.minOrder {
		count = uint64(1) << (order - p.minOrder)
	}
	for i := uint64(0); i < count && start+i < uint64(len(p.tagBit)); i++ {
		p.tagBit[start+i] = free
	}
}

func (p *Pool) popFree(order uint) freeBlock {
	list := p.free[order]
	block := list[len(list)-1]
	p.free[order] = list[:len(list)-1]
	return block
}

func (p *Pool) pushFree(order uint, b freeBlock) {
	p.free[order] = append(p.free[order], b)
}

func (p *Pool) removeFree(order uint, offset uint64) {
	list := p.free[order]
	for i, b := range list {
		if b.offset == offset {
			p.free[order] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Stats reports the current free-list population, keyed by order, for
// testing the roundtrip invariant and computing used/free totals.
func (p *Pool) Stats() map[uint]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uint]int)
	for order, list := range p.free {
		if len(list) > 0 {
			out[uint(order)] = len(list)
		}
	}
	return out
}

// FreeBytes returns the sum of all free block sizes, which together
// with allocated bytes must equal 2^pool_order.
func (p *Pool) FreeBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint64
	for order, list := range p.free {
		total += uint64(len(list)) * (uint64(1) << uint(order))
	}
	return total
}

// PoolOrder and MinOrder expose the pool's fixed parameters.
func (p *Pool) PoolOrder() uint { return p.poolOrder }
func (p *Pool) MinOrder() uint  { return p.minOrder }
