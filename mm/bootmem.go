// Package mm implements the AeroKernel's memory management base: boot
// memory map normalization, the buddy allocator, and the base address
// space singleton.
package mm

import (
	"sort"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

const (
	// PageSize is the rounding granularity boot ranges are normalized
	// to, matching the kernel's 4 KiB page size.
	PageSize = 4096

	// pageMask clears the low bits of an address, rounding it down to
	// a page boundary.
	pageMask = ^uint64(PageSize - 1)
)

// RegionType classifies one entry of the platform-reported memory
// map.
type RegionType int

const (
	Available RegionType = iota
	Reserved
	NVS
	ACPIReclaim
	Bad
)

// Range is one entry of a normalized platform memory map: a
// [Base, Base+Length) byte range tagged with its RegionType.
type Range struct {
	Base   uint64
	Length uint64
	Type   RegionType
}

func (r Range) end() uint64 { return r.Base + r.Length }

// MMapInfo summarizes a normalized memory map. NewBootMemory computes
// it the same way whichever hand-off format the ranges came from.
type MMapInfo struct {
	TotalMem   uint64 // sum of the lengths of all reported ranges
	UsableRAM  uint64 // sum of the lengths of Available ranges after reservations
	LastPFN    uint64 // one past the highest page-frame number covered by any range
	NumRegions int
}

// BootMemory holds the normalized memory map plus the arena backing
// it. The arena is the contiguous byte slice every later buddy pool
// is carved out of.
type BootMemory struct {
	Ranges []Range
	Info   MMapInfo

	arena    []byte
	arenaErr error
	release  func()
}

// NewBootMemory rounds every range to 4 KiB boundaries (ranges are
// widened, never narrowed, so no usable byte is lost), reserves the
// zero page and any caller-supplied extra reservations (firmware
// windows, AP trampoline pages), and computes MMapInfo.
//
// extraReserved lets a caller punch out further windows (such as a
// low-memory AP init area) before the buddy allocator ever sees them.
func NewBootMemory(raw []Range, extraReserved []Range) (*BootMemory, error) {
	if len(raw) == 0 {
		return nil, kernel.New("mm.NewBootMemory", kernel.BadParameter)
	}

	ranges := make([]Range, 0, len(raw)+1+len(extraReserved))
	for _, r := range raw {
		ranges = append(ranges, roundOut(r))
	}
	// The zero page is always reserved: no allocator may ever hand out
	// address 0, and a null handler dereference must fault, not read
	// live data.
	ranges = append(ranges, Range{Base: 0, Length: PageSize, Type: Reserved})
	for _, r := range extraReserved {
		ranges = append(ranges, roundOut(Range{Base: r.Base, Length: r.Length, Type: Reserved}))
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Base < ranges[j].Base })
	ranges = applyReservations(ranges)

	info := MMapInfo{NumRegions: len(ranges)}
	for _, r := range ranges {
		info.TotalMem += r.Length
		if r.Type == Available {
			info.UsableRAM += r.Length
		}
		if pfn := r.end() / PageSize; pfn > info.LastPFN {
			info.LastPFN = pfn
		}
	}

	return &BootMemory{Ranges: ranges, Info: info}, nil
}

// roundOut widens a range outward to page boundaries: Base rounds
// down, the end rounds up.
func roundOut(r Range) Range {
	base := r.Base & pageMask
	end := (r.end() + PageSize - 1) &^ (PageSize - 1)
	return Range{Base: base, Length: end - base, Type: r.Type}
}

// applyReservations walks the sorted range list and marks any
// Available range overlapping a Reserved/NVS/ACPIReclaim/Bad range as
// split around the reservation, so no Available range straddles a
// reserved one.
func applyReservations(ranges []Range) []Range {
	reserved := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Type != Available {
			reserved = append(reserved, r)
		}
	}

	var out []Range
	for _, r := range ranges {
		if r.Type != Available {
			out = append(out, r)
			continue
		}
		segs := []Range{r}
		for _, res := range reserved {
			var next []Range
			for _, s := range segs {
				next = append(next, subtract(s, res)...)
			}
			segs = next
		}
		out = append(out, segs...)
	}
	return out
}

// subtract removes the overlap of res from s, returning zero, one, or
// two resulting Available sub-ranges.
func subtract(s, res Range) []Range {
	if res.end() <= s.Base || res.Base >= s.end() {
		return []Range{s}
	}
	var result []Range
	if res.Base > s.Base {
		result = append(result, Range{Base: s.Base, Length: res.Base - s.Base, Type: s.Type})
	}
	if res.end() < s.end() {
		result = append(result, Range{Base: res.end(), Length: s.end() - res.end(), Type: s.Type})
	}
	return result
}

// LargestAvailable returns the largest single Available range, the
// one a caller would carve a buddy pool's backing arena out of.
func (b *BootMemory) LargestAvailable() (Range, bool) {
	var best Range
	found := false
	for _, r := range b.Ranges {
		if r.Type == Available && (!found || r.Length > best.Length) {
			best = r
			found = true
		}
	}
	return best, found
}

// MapArena reserves a byte arena of the given length to back a buddy
// pool, using a real anonymous mapping where the platform supports
// one (see bootmem_unix.go) and a plain heap slice otherwise. The
// returned slice's address is used only as the pool's notion of
// "physical" base; callers never dereference raw pointers derived
// from it directly, matching the rest of the kernel's preference for
// offsets into a single backing slice (as the teacher's SystemBus
// does for its 16MB memory block).
func (b *BootMemory) MapArena(length uint64) ([]byte, error) {
	arena, release, err := mapArena(length)
	if err != nil {
		return nil, kernel.Wrap("mm.MapArena", kernel.OutOfMemory, err)
	}
	b.arena = arena
	b.release = release
	return arena, nil
}

// Release returns the arena obtained from MapArena to the host,
// unmapping it if it was a real mmap region.
func (b *BootMemory) Release() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
}
