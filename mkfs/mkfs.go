// Package mkfs computes a volume layout and writes a fresh filesystem.
//
// Layout, in sectors:
//
//	0                      superblock
//	[1, 1+inodeSectors)    inode table
//	[.., DataBegin)        padding up to a cluster boundary
//	[DataBegin, ...)       Clusters clusters of BlockSize bytes
//	tail                   sectors that do not fill a cluster, unused
package mkfs

import (
	"errors"
	"fmt"
	"math"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/inode"
	"github.com/mit-pdos/go-clusterfs/super"
	"github.com/mit-pdos/go-clusterfs/util"
)

var (
	ErrInvalidBlockSize      = errors.New("invalid block size")
	ErrDiskTooSmall          = errors.New("disk too small for inode table")
	ErrNoSpaceForData        = errors.New("no space for data after metadata")
	ErrInsufficientDataSpace = errors.New("fewer than two data clusters")
)

// LayoutError reports a device and block size that cannot be formatted.
type LayoutError struct {
	Err        error
	NumSectors uint64
	BlockSize  uint64
	Detail     string
}

func (e *LayoutError) Error() string {
	msg := fmt.Sprintf("layout of %d sectors with %d-byte blocks: %v",
		e.NumSectors, e.BlockSize, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *LayoutError) Unwrap() error {
	return e.Err
}

type Layout struct {
	BlockSize         uint64
	SectorsPerCluster uint64
	NumInodes         uint64
	InodeBegin        common.Sector
	InodeSectors      uint64
	DataBegin         common.Sector
	Clusters          uint64
}

// Plan computes the layout of a device of numSectors sectors. Every step is
// checked; nothing is written.
func Plan(numSectors uint64, blockSize uint64) (*Layout, error) {
	fail := func(err error, format string, a ...interface{}) (*Layout, error) {
		return nil, &LayoutError{
			Err:        err,
			NumSectors: numSectors,
			BlockSize:  blockSize,
			Detail:     fmt.Sprintf(format, a...),
		}
	}
	if blockSize == 0 || blockSize%disk.SectorSize != 0 {
		return fail(ErrInvalidBlockSize, "must be a positive multiple of %d",
			disk.SectorSize)
	}
	if blockSize > math.MaxUint32 {
		return fail(ErrInvalidBlockSize, "larger than %d", uint64(math.MaxUint32))
	}
	spc := blockSize / disk.SectorSize

	numInodes := (numSectors / spc) / common.INODERATIO
	if numInodes < common.MININODES {
		numInodes = common.MININODES
	}
	if numInodes > common.MAXINODES {
		numInodes = common.MAXINODES
	}

	inodeBegin := inode.AreaBeginSector()
	inodeSectors := inode.AreaSectors(numInodes)
	inodeEnd := inodeBegin + inodeSectors
	if inodeEnd > numSectors {
		return fail(ErrDiskTooSmall, "%d inodes need sectors up to %d",
			numInodes, inodeEnd)
	}

	if util.SumOverflows(inodeEnd, spc-1) {
		return fail(ErrNoSpaceForData, "data region start overflows")
	}
	dataBegin := util.AlignUp(inodeEnd, spc)
	if dataBegin >= numSectors {
		return fail(ErrNoSpaceForData, "data would start at sector %d", dataBegin)
	}

	clusters := (numSectors - dataBegin) / spc
	if clusters < 2 {
		return fail(ErrInsufficientDataSpace, "%d sectors left for data",
			numSectors-dataBegin)
	}

	return &Layout{
		BlockSize:         blockSize,
		SectorsPerCluster: spc,
		NumInodes:         numInodes,
		InodeBegin:        inodeBegin,
		InodeSectors:      inodeSectors,
		DataBegin:         dataBegin,
		Clusters:          clusters,
	}, nil
}

// DataEnd is the first sector past the last whole cluster.
func (l *Layout) DataEnd() common.Sector {
	return l.DataBegin + l.Clusters*l.SectorsPerCluster
}

// Superblock is the superblock of a freshly formatted volume: every cluster
// is free and the list starts at the first one.
func (l *Layout) Superblock() *super.Superblock {
	return &super.Superblock{
		BlockSize:       uint32(l.BlockSize),
		NumInodes:       uint32(l.NumInodes),
		DataBeginSector: l.DataBegin,
		TotalBlocks:     l.Clusters,
		FreeHead:        l.DataBegin,
	}
}

// next is the free-list successor of the cluster starting at a.
func (l *Layout) next(a common.Sector) common.Sector {
	n := a + l.SectorsPerCluster
	if n >= l.DataEnd() {
		return common.NULLSECTOR
	}
	return n
}

func writeSectors(d disk.Device, l *Layout) error {
	zero := make(disk.Sector, disk.SectorSize)
	for s := common.Sector(0); s < l.DataBegin; s++ {
		if err := d.WriteSector(s, zero); err != nil {
			return fmt.Errorf("zeroing metadata sector %d: %w", s, err)
		}
	}
	for s := l.DataBegin; s < d.NumSectors(); s++ {
		if s < l.DataEnd() && (s-l.DataBegin)%l.SectorsPerCluster == 0 {
			hdr := super.ClusterHeader{Next: l.next(s)}
			if err := hdr.Write(d, s); err != nil {
				return err
			}
			continue
		}
		if err := d.WriteSector(s, zero); err != nil {
			return fmt.Errorf("zeroing data sector %d: %w", s, err)
		}
	}
	return nil
}

func writeInodes(d disk.Device, l *Layout) error {
	store := inode.MkStore(d, l.NumInodes)
	var root *inode.Inode
	for i := uint64(1); i <= l.NumInodes; i++ {
		ip, err := store.Create(common.Inum(i))
		if err != nil {
			return err
		}
		if ip.Inum == common.ROOTINUM {
			root = ip
		}
	}
	root.SetType(inode.TypeDir)
	root.SetOwner(0)
	root.SetGroup(0)
	root.SetPermission(0)
	root.SetRefCount(1)
	if err := root.Save(); err != nil {
		return fmt.Errorf("saving root inode: %w", err)
	}
	return nil
}

// Format destroys the contents of d and writes an empty filesystem with
// blockSize-byte clusters. It returns the number of clusters available for
// file data. A failure part way leaves d unusable until it is formatted
// again.
func Format(d disk.Device, blockSize uint64) (uint64, error) {
	if d == nil {
		return 0, fmt.Errorf("format: %w: nil device", common.ErrInvalidArgument)
	}
	l, err := Plan(d.NumSectors(), blockSize)
	if err != nil {
		return 0, err
	}
	util.DPrintf(1, "Format: disk %d, %d bytes, block size %d\n",
		d.Id(), d.Size(), blockSize)
	util.DPrintf(1, "Format: %d inodes (sectors %d to %d), %d clusters from %d\n",
		l.NumInodes, l.InodeBegin, l.InodeBegin+l.InodeSectors-1,
		l.Clusters, l.DataBegin)

	if err := writeSectors(d, l); err != nil {
		return 0, err
	}
	if err := l.Superblock().Write(d); err != nil {
		return 0, err
	}
	if err := writeInodes(d, l); err != nil {
		return 0, err
	}
	if err := d.Barrier(); err != nil {
		return 0, err
	}
	util.DPrintf(1, "Format: done, %d blocks available\n", l.Clusters)
	return l.Clusters, nil
}
