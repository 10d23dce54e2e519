package firmware

import (
	"encoding/binary"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
	"github.com/HExSA-Lab/nautilus-sub004/mm"
)

// Gem5Parser reads the simplified e820-style memory map the Gem5
// simulator hands off: a flat array of {addr, len, type} records with
// no tag framing, since Gem5's boot loader has no Multiboot2 stack to
// walk.
type Gem5Parser struct{}

const gem5EntrySize = 24 // addr(8) + len(8) + type(8)

func (Gem5Parser) Parse(blob []byte) (HandOff, error) {
	if len(blob)%gem5EntrySize != 0 {
		return HandOff{}, kernel.New("firmware.Gem5Parser.Parse", kernel.BadParameter)
	}
	var h HandOff
	for off := 0; off+gem5EntrySize <= len(blob); off += gem5EntrySize {
		addr := binary.LittleEndian.Uint64(blob[off:])
		length := binary.LittleEndian.Uint64(blob[off+8:])
		typ := binary.LittleEndian.Uint64(blob[off+16:])
		h.Regions = append(h.Regions, RawRegion{Addr: addr, Len: length, Type: uint32(typ)})
	}
	// Gem5 runs single-socket in every configuration this kernel
	// targets; there is no AP discovery tag to read.
	return h, nil
}

// Gem5TypeMap mirrors e820's own type numbering, which Gem5 copies.
var Gem5TypeMap = map[uint32]mm.RegionType{
	1: mm.Available,
	2: mm.Reserved,
	3: mm.ACPIReclaim,
	4: mm.NVS,
	5: mm.Bad,
}
