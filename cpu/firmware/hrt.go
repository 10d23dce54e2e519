package firmware

import (
	"encoding/binary"

	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/kernel"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
)

// HRTParser reads the Hobbes Runtime Co-Kernel hand-off block used on
// k1om/Xeon Phi: a fixed header naming the HRT's share of physical
// memory, followed by a list of logical APIC ids the co-kernel has
// been granted. Unlike Multiboot2 and Gem5, the HRT hands off exactly
// one region (its own carved-out slice of RAM), so the memory map it
// produces always has a single entry.
type HRTParser struct{}

const hrtHeaderSize = 16 // base(8) + length(8)

func (HRTParser) Parse(blob []byte) (HandOff, error) {
	if len(blob) < hrtHeaderSize {
		return HandOff{}, kernel.New("firmware.HRTParser.Parse", kernel.BadParameter)
	}
	base := binary.LittleEndian.Uint64(blob)
	length := binary.LittleEndian.Uint64(blob[8:])

	h := HandOff{
		Regions: []RawRegion{{Addr: base, Len: length, Type: 1}},
	}
	for off := hrtHeaderSize; off+4 <= len(blob); off += 4 {
		id := binary.LittleEndian.Uint32(blob[off:])
		h.APs = append(h.APs, cpu.APDescriptor{LogicalAPIC: id, IsBSP: off == hrtHeaderSize})
	}
	return h, nil
}

// HRTTypeMap: the HRT hand-off only ever describes available memory.
var HRTTypeMap = map[uint32]mm.RegionType{
	1: mm.Available,
}
