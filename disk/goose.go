package disk

import (
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"
)

// SectorsPerBlock is the number of sectors in one goose disk block.
const SectorsPerBlock = goosedisk.BlockSize / SectorSize

var _ Device = (*GooseDevice)(nil)

// GooseDevice exposes a goose disk (4 KiB blocks) as a sector device. Sector
// writes read-modify-write the containing block.
type GooseDevice struct {
	d  goosedisk.Disk
	id uint64
}

func NewGooseDevice(d goosedisk.Disk) *GooseDevice {
	return &GooseDevice{d: d, id: nextId()}
}

// NewGooseMemDevice is a GooseDevice over a goose in-memory disk holding at
// least numSectors sectors.
func NewGooseMemDevice(numSectors uint64) *GooseDevice {
	nblocks := (numSectors + SectorsPerBlock - 1) / SectorsPerBlock
	return NewGooseDevice(goosedisk.NewMemDisk(nblocks))
}

func (g *GooseDevice) ReadSector(a uint64, buf Sector) error {
	if err := checkSector(a, g.NumSectors(), buf); err != nil {
		return fmt.Errorf("%w: read %d: %v", ErrIO, a, err)
	}
	blk := g.d.Read(a / SectorsPerBlock)
	off := (a % SectorsPerBlock) * SectorSize
	copy(buf, blk[off:off+SectorSize])
	return nil
}

func (g *GooseDevice) WriteSector(a uint64, v Sector) error {
	if err := checkSector(a, g.NumSectors(), v); err != nil {
		return fmt.Errorf("%w: write %d: %v", ErrIO, a, err)
	}
	blkno := a / SectorsPerBlock
	blk := g.d.Read(blkno)
	off := (a % SectorsPerBlock) * SectorSize
	copy(blk[off:off+SectorSize], v)
	g.d.Write(blkno, blk)
	return nil
}

func (g *GooseDevice) NumSectors() uint64 {
	return g.d.Size() * SectorsPerBlock
}

func (g *GooseDevice) Size() uint64 {
	return g.d.Size() * goosedisk.BlockSize
}

func (g *GooseDevice) Id() uint64 {
	return g.id
}

func (g *GooseDevice) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *GooseDevice) Close() error {
	g.d.Close()
	return nil
}
