package mm

import "testing"

func TestNewBootMemoryRoundsAndReservesZeroPage(t *testing.T) {
	raw := []Range{
		{Base: 100, Length: 5000, Type: Available},
	}
	bm, err := NewBootMemory(raw, nil)
	if err != nil {
		t.Fatalf("NewBootMemory: %v", err)
	}

	var sawZeroPage bool
	for _, r := range bm.Ranges {
		if r.Base == 0 && r.Type == Reserved {
			sawZeroPage = true
		}
		if r.Base%PageSize != 0 || r.Length%PageSize != 0 {
			t.Fatalf("range %+v is not page-aligned", r)
		}
	}
	if !sawZeroPage {
		t.Fatalf("zero page was not reserved: %+v", bm.Ranges)
	}
	if bm.Info.NumRegions != len(bm.Ranges) {
		t.Fatalf("NumRegions = %d, want %d", bm.Info.NumRegions, len(bm.Ranges))
	}
}

func TestNewBootMemoryAppliesExtraReservations(t *testing.T) {
	raw := []Range{{Base: 0, Length: 0x100000, Type: Available}}
	extra := []Range{{Base: 0x8000, Length: 0x1000}} // AP trampoline window
	bm, err := NewBootMemory(raw, extra)
	if err != nil {
		t.Fatalf("NewBootMemory: %v", err)
	}
	for _, r := range bm.Ranges {
		if r.Base <= 0x8000 && r.end() > 0x8000 && r.Type == Available {
			t.Fatalf("trampoline window not carved out of available range: %+v", r)
		}
	}
	if bm.Info.UsableRAM >= bm.Info.TotalMem {
		t.Fatalf("UsableRAM (%d) should be less than TotalMem (%d) once reservations apply", bm.Info.UsableRAM, bm.Info.TotalMem)
	}
}

func TestNewBootMemoryRejectsEmptyMap(t *testing.T) {
	if _, err := NewBootMemory(nil, nil); err == nil {
		t.Fatalf("NewBootMemory with no ranges should fail")
	}
}

func TestLargestAvailable(t *testing.T) {
	raw := []Range{
		{Base: 0x100000, Length: 0x1000, Type: Available},
		{Base: 0x200000, Length: 0x10000, Type: Available},
		{Base: 0x300000, Length: 0x2000, Type: Reserved},
	}
	bm, err := NewBootMemory(raw, nil)
	if err != nil {
		t.Fatalf("NewBootMemory: %v", err)
	}
	best, ok := bm.LargestAvailable()
	if !ok {
		t.Fatalf("expected an available range")
	}
	if best.Base != 0x200000 {
		t.Fatalf("LargestAvailable = %+v, want base 0x200000", best)
	}
}

func TestMapArenaRoundtrip(t *testing.T) {
	bm, err := NewBootMemory([]Range{{Base: 0, Length: 0x100000, Type: Available}}, nil)
	if err != nil {
		t.Fatalf("NewBootMemory: %v", err)
	}
	arena, err := bm.MapArena(4096)
	if err != nil {
		t.Fatalf("MapArena: %v", err)
	}
	if len(arena) != 4096 {
		t.Fatalf("arena length = %d, want 4096", len(arena))
	}
	arena[0] = 0xAB
	if arena[0] != 0xAB {
		t.Fatalf("arena not writable")
	}
	bm.Release()
}
