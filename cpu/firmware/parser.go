// Package firmware normalizes the handful of boot-time hand-off
// formats the original kernel supports (Multiboot2 on x64, a
// synthetic e820-like map on Gem5, and the HRT co-kernel hand-off on
// Xeon Phi/k1om) into the platform-independent shape package mm and
// package cpu build on: a memory map and a list of CPUs. No IOAPIC
// information is extracted.
package firmware

import (
	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
)

// RawRegion is one entry exactly as the firmware reports it: unrounded
// and carrying the firmware's own type code rather than mm.RegionType.
type RawRegion struct {
	Addr uint64
	Len  uint64
	Type uint32
}

// HandOff is everything a Parser extracts from a boot-time descriptor
// table: the raw memory map and the discovered APs. IOAPIC
// redirection pins are not part of it.
type HandOff struct {
	Regions []RawRegion
	APs     []cpu.APDescriptor
}

// Parser normalizes one firmware hand-off format into a HandOff.
// Concrete parsers (Multiboot2, Gem5, HRT) each interpret their own
// wire format but return the same shape, mirroring
// arch_detect_mem_map's per-arch implementations behind one call site.
type Parser interface {
	Parse(blob []byte) (HandOff, error)
}

// Multiboot2TypeMap is the standard MULTIBOOT_MEMORY_* type table,
// assigning Multiboot2's region type codes to mm.RegionType. Parsers
// keep each firmware's own codes in RawRegion.Type; the other formats
// have their own tables (Gem5TypeMap, HRTTypeMap) for ToRanges.
var Multiboot2TypeMap = map[uint32]mm.RegionType{
	1: mm.Available,
	2: mm.Reserved,
	3: mm.ACPIReclaim,
	4: mm.NVS,
	5: mm.Bad,
}

// ToRanges converts a HandOff's raw regions into mm.Ranges using the
// given firmware-specific type table, rounding is left to
// mm.NewBootMemory so every parser shares identical rounding
// semantics regardless of source format.
func ToRanges(h HandOff, typeMap map[uint32]mm.RegionType) []mm.Range {
	out := make([]mm.Range, 0, len(h.Regions))
	for _, r := range h.Regions {
		t, ok := typeMap[r.Type]
		if !ok {
			t = mm.Reserved
		}
		out = append(out, mm.Range{Base: r.Addr, Length: r.Len, Type: t})
	}
	return out
}
