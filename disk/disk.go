package disk

import (
	"errors"
	"sync/atomic"
)

// Sector is a SectorSize-byte buffer
type Sector = []byte

const SectorSize uint64 = 512

var (
	// ErrIO wraps every failed sector transfer.
	ErrIO = errors.New("device I/O error")
	// ErrOutOfBounds is returned for a sector index >= NumSectors().
	ErrOutOfBounds = errors.New("sector out of bounds")
)

// Device provides access to a sector-addressed block device
type Device interface {
	// ReadSector reads sector a into b
	//
	// Expects a < NumSectors() and len(b) == SectorSize.
	ReadSector(a uint64, b Sector) error

	// WriteSector updates sector a with the contents of v
	//
	// Expects a < NumSectors() and len(v) == SectorSize.
	WriteSector(a uint64, v Sector) error

	// NumSectors reports how big the device is, in sectors
	NumSectors() uint64

	// Size reports how big the device is, in bytes
	Size() uint64

	// Id identifies the device for as long as the process runs
	Id() uint64

	// Barrier ensures data is persisted.
	Barrier() error

	// Close releases any resources used by the device and makes it unusable.
	Close() error
}

var lastId uint64

func nextId() uint64 {
	return atomic.AddUint64(&lastId, 1)
}

func checkSector(a uint64, n uint64, b Sector) error {
	if uint64(len(b)) != SectorSize {
		return errors.New("buffer is not sector-sized")
	}
	if a >= n {
		return ErrOutOfBounds
	}
	return nil
}
