package device

import (
	"sync"

	"github.com/HExSA-Lab/nautilus-sub004/kernel"
)

// RAMDisk is a BlockDevice backed by a single contiguous in-memory
// slice, the same contiguous-block-plus-mutex design the teacher's
// machine bus uses for its main memory array.
type RAMDisk struct {
	mu         sync.RWMutex
	name       string
	sectorSize int
	data       []byte
}

// NewRAMDisk allocates a RAMDisk of numSectors sectors of sectorSize
// bytes each.
func NewRAMDisk(name string, sectorSize int, numSectors uint64) (*RAMDisk, error) {
	if sectorSize <= 0 {
		return nil, kernel.New("device.NewRAMDisk", kernel.BadParameter)
	}
	return &RAMDisk{
		name:       name,
		sectorSize: sectorSize,
		data:       make([]byte, sectorSize*int(numSectors)),
	}, nil
}

func (d *RAMDisk) Name() string    { return d.name }
func (d *RAMDisk) Type() Type      { return TypeBlock }
func (d *RAMDisk) SectorSize() int { return d.sectorSize }
func (d *RAMDisk) NumSectors() uint64 {
	return uint64(len(d.data) / d.sectorSize)
}

func (d *RAMDisk) bounds(startSector uint64, n int) (int, int, error) {
	start := int(startSector) * d.sectorSize
	end := start + n
	if start < 0 || end > len(d.data) || n%d.sectorSize != 0 {
		return 0, 0, kernel.New("device.RAMDisk", kernel.BadParameter)
	}
	return start, end, nil
}

func (d *RAMDisk) ReadSectors(startSector uint64, buf []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start, end, err := d.bounds(startSector, len(buf))
	if err != nil {
		return err
	}
	copy(buf, d.data[start:end])
	return nil
}

func (d *RAMDisk) WriteSectors(startSector uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start, end, err := d.bounds(startSector, len(buf))
	if err != nil {
		return err
	}
	copy(d.data[start:end], buf)
	return nil
}

var _ BlockDevice = (*RAMDisk)(nil)
