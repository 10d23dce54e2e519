package firmware

import (
	"encoding/binary"

	"github.com/HExSA-Lab/nautilus-sub004/cpu"
	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// Multiboot2 tag types this parser understands, per the Multiboot2
// specification's tag stream format.
const (
	tagEnd        = 0
	tagMMap       = 6
	tagSMPBase    = 9 // a kernel-specific extension tag carrying discovered APIC ids
)

// Multiboot2Parser walks a Multiboot2 boot information structure's tag
// stream, the hand-off format arch_detect_mem_map consumes on x64.
// Every multi-byte field is little-endian, per the spec.
type Multiboot2Parser struct{}

// Parse expects blob to start at the Multiboot2 info structure's total
// size/reserved header (offset 0) as the bootloader hands it to the
// kernel entry point.
func (Multiboot2Parser) Parse(blob []byte) (HandOff, error) {
	if len(blob) < 8 {
		return HandOff{}, kernel.New("firmware.Multiboot2Parser.Parse", kernel.BadParameter)
	}

	var h HandOff
	off := 8 // skip total_size + reserved
	for off+8 <= len(blob) {
		tagType := binary.LittleEndian.Uint32(blob[off:])
		tagSize := binary.LittleEndian.Uint32(blob[off+4:])
		if tagType == tagEnd {
			break
		}
		if tagSize < 8 || off+int(tagSize) > len(blob) {
			return HandOff{}, kernel.New("firmware.Multiboot2Parser.Parse", kernel.BadParameter)
		}
		body := blob[off+8 : off+int(tagSize)]

		switch tagType {
		case tagMMap:
			regions, err := parseMMapTag(body)
			if err != nil {
				return HandOff{}, err
			}
			h.Regions = append(h.Regions, regions...)
		case tagSMPBase:
			h.APs = append(h.APs, parseSMPTag(body)...)
		}

		// Tags are aligned to 8 bytes.
		off += (int(tagSize) + 7) &^ 7
	}
	return h, nil
}

// parseMMapTag reads a tag_mmap body: entry_size, entry_version,
// followed by entry_size-sized entries of {addr, len, type, reserved}.
func parseMMapTag(body []byte) ([]RawRegion, error) {
	if len(body) < 8 {
		return nil, kernel.New("firmware.parseMMapTag", kernel.BadParameter)
	}
	entrySize := binary.LittleEndian.Uint32(body)
	entries := body[8:]
	if entrySize < 24 {
		return nil, kernel.New("firmware.parseMMapTag", kernel.BadParameter)
	}

	var out []RawRegion
	for i := 0; i+int(entrySize) <= len(entries); i += int(entrySize) {
		e := entries[i:]
		addr := binary.LittleEndian.Uint64(e)
		length := binary.LittleEndian.Uint64(e[8:])
		typ := binary.LittleEndian.Uint32(e[16:])
		out = append(out, RawRegion{Addr: addr, Len: length, Type: typ})
	}
	return out, nil
}

// parseSMPTag reads a kernel-defined extension tag listing discovered
// logical APIC ids, one uint32 per entry, first entry is the BSP.
func parseSMPTag(body []byte) []cpu.APDescriptor {
	var out []cpu.APDescriptor
	for i := 0; i+4 <= len(body); i += 4 {
		id := binary.LittleEndian.Uint32(body[i:])
		out = append(out, cpu.APDescriptor{LogicalAPIC: id, IsBSP: i == 0})
	}
	return out
}
