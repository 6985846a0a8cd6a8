package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-clusterfs/util"
)

var _ Device = (*fileDevice)(nil)

type fileDevice struct {
	fd         int
	id         uint64
	numSectors uint64
}

// NewFileDevice opens (creating if needed) a disk image at path holding
// numSectors sectors.
func NewFileDevice(path string, numSectors uint64) (*fileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if (stat.Mode&unix.S_IFREG) != 0 && uint64(stat.Size) != numSectors*SectorSize {
		err = unix.Ftruncate(fd, int64(numSectors*SectorSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncating %s: %w", path, err)
		}
	}
	util.DPrintf(1, "NewFileDevice: %s %d sectors\n", path, numSectors)
	return &fileDevice{fd: fd, id: nextId(), numSectors: numSectors}, nil
}

// OpenFileDevice opens an existing disk image, sized by its length.
func OpenFileDevice(path string) (*fileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	numSectors := uint64(stat.Size) / SectorSize
	if numSectors == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: image is smaller than one sector", path)
	}
	util.DPrintf(1, "OpenFileDevice: %s %d sectors\n", path, numSectors)
	return &fileDevice{fd: fd, id: nextId(), numSectors: numSectors}, nil
}

func (d *fileDevice) ReadSector(a uint64, buf Sector) error {
	if err := checkSector(a, d.numSectors, buf); err != nil {
		return fmt.Errorf("%w: read %d: %v", ErrIO, a, err)
	}
	n, err := unix.Pread(d.fd, buf, int64(a*SectorSize))
	if err != nil {
		return fmt.Errorf("%w: read %d: %v", ErrIO, a, err)
	}
	if uint64(n) != SectorSize {
		return fmt.Errorf("%w: short read at %d (%d bytes)", ErrIO, a, n)
	}
	util.DPrintf(20, "read: %d\n", a)
	return nil
}

func (d *fileDevice) WriteSector(a uint64, v Sector) error {
	if err := checkSector(a, d.numSectors, v); err != nil {
		return fmt.Errorf("%w: write %d: %v", ErrIO, a, err)
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*SectorSize))
	if err != nil {
		return fmt.Errorf("%w: write %d: %v", ErrIO, a, err)
	}
	if uint64(n) != SectorSize {
		return fmt.Errorf("%w: short write at %d (%d bytes)", ErrIO, a, n)
	}
	util.DPrintf(20, "write: %d\n", a)
	return nil
}

func (d *fileDevice) NumSectors() uint64 {
	return d.numSectors
}

func (d *fileDevice) Size() uint64 {
	return d.numSectors * SectorSize
}

func (d *fileDevice) Id() uint64 {
	return d.id
}

func (d *fileDevice) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl with F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}
	util.DPrintf(10, "barrier\n")
	return nil
}

func (d *fileDevice) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////

var _ Device = (*memDevice)(nil)

type memDevice struct {
	l       *sync.RWMutex
	id      uint64
	sectors [][SectorSize]byte
}

func NewMemDevice(numSectors uint64) *memDevice {
	sectors := make([][SectorSize]byte, numSectors)
	return &memDevice{l: new(sync.RWMutex), id: nextId(), sectors: sectors}
}

func (d *memDevice) ReadSector(a uint64, buf Sector) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkSector(a, uint64(len(d.sectors)), buf); err != nil {
		return fmt.Errorf("%w: read %d: %v", ErrIO, a, err)
	}
	copy(buf, d.sectors[a][:])
	return nil
}

func (d *memDevice) WriteSector(a uint64, v Sector) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkSector(a, uint64(len(d.sectors)), v); err != nil {
		return fmt.Errorf("%w: write %d: %v", ErrIO, a, err)
	}
	copy(d.sectors[a][:], v)
	return nil
}

func (d *memDevice) NumSectors() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.sectors))
}

func (d *memDevice) Size() uint64 {
	return d.NumSectors() * SectorSize
}

func (d *memDevice) Id() uint64 {
	return d.id
}

func (d *memDevice) Barrier() error { return nil }

func (d *memDevice) Close() error { return nil }
