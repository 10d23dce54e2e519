package mm

import "testing"

func TestPoolAllocFreeRoundtrip(t *testing.T) {
	// pool_order=20, min_order=12: matches spec.md §8 scenario 4.
	p, err := NewPool(0, 20, 12)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	var blocks []uint64
	for i := 0; i < 4; i++ {
		addr, err := p.Alloc(12)
		if err != nil {
			t.Fatalf("Alloc(12) #%d: %v", i, err)
		}
		blocks = append(blocks, addr)
	}

	big, err := p.Alloc(15)
	if err != nil {
		t.Fatalf("Alloc(15): %v", err)
	}

	if err := p.Free(big, 15); err != nil {
		t.Fatalf("Free(big): %v", err)
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		if err := p.Free(blocks[i], 12); err != nil {
			t.Fatalf("Free(blocks[%d]): %v", i, err)
		}
	}

	stats := p.Stats()
	if len(stats) != 1 || stats[20] != 1 {
		t.Fatalf("pool did not coalesce back to a single order-20 block: %v", stats)
	}
	if got := p.FreeBytes(); got != uint64(1)<<20 {
		t.Fatalf("FreeBytes = %d, want %d", got, uint64(1)<<20)
	}
}

func TestPoolAllocBumpsBelowMinOrder(t *testing.T) {
	p, err := NewPool(0, 16, 10)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	addr, err := p.Alloc(4) // below min_order, should be bumped to 10
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := p.Free(addr, 4); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if got := p.FreeBytes(); got != uint64(1)<<16 {
		t.Fatalf("FreeBytes after roundtrip = %d, want %d", got, uint64(1)<<16)
	}
}

func TestPoolAllocExceedsPoolOrder(t *testing.T) {
	p, err := NewPool(0, 12, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if _, err := p.Alloc(13); err == nil {
		t.Fatalf("Alloc(order > pool_order) should fail")
	}
}

func TestPoolExhaustion(t *testing.T) {
	p, err := NewPool(0, 14, 14)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if _, err := p.Alloc(14); err != nil {
		t.Fatalf("first Alloc: %v", err)
	}
	if _, err := p.Alloc(14); err == nil {
		t.Fatalf("second Alloc should fail with OutOfMemory")
	}
}

func TestPoolFreeRejectsOutOfRangeAddress(t *testing.T) {
	p, err := NewPool(0x1000, 12, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := p.Free(0, 8); err == nil {
		t.Fatalf("Free of out-of-range address should fail")
	}
}

func TestPoolInvariantAllocatedPlusFreeEqualsPool(t *testing.T) {
	p, err := NewPool(0, 16, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	var allocated uint64
	var addrs []uint64
	for i := 0; i < 5; i++ {
		addr, err := p.Alloc(8)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		addrs = append(addrs, addr)
		allocated += 1 << 8
	}
	if got, want := p.FreeBytes()+allocated, uint64(1)<<16; got != want {
		t.Fatalf("free+allocated = %d, want %d", got, want)
	}
	for _, a := range addrs {
		if err := p.Free(a, 8); err != nil {
			t.Fatalf("Free: %v", err)
		}
	}
}
