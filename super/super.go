// Package super encodes the volume superblock and the free-cluster headers.
//
// Sector 0 holds the 4-byte signature "MYFS" followed by a packed
// little-endian record:
//
//	[4,8)   block size (bytes)
//	[8,12)  inode capacity
//	[12,20) first sector of the data region
//	[20,28) number of clusters in the data region
//	[28,36) first sector of the first free cluster (0 = none)
//
// The rest of the sector is zero. Every free cluster starts with a
// ClusterHeader, encoded the same way, naming the next free cluster.
package super

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-clusterfs/addr"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/util"
)

const (
	SIGSZ    uint64 = 4
	RECORDSZ uint64 = 4 + 4 + 8 + 8 + 8
	HDRSZ    uint64 = 8
)

var Signature = []byte("MYFS")

var (
	ErrNotFormatted = errors.New("volume is not formatted")
	ErrCorrupt      = errors.New("corrupt superblock")
)

type Superblock struct {
	BlockSize       uint32
	NumInodes       uint32
	DataBeginSector common.Sector
	TotalBlocks     uint64
	FreeHead        common.Sector
}

func (sb *Superblock) Encode() disk.Sector {
	enc := marshal.NewEnc(disk.SectorSize - SIGSZ)
	enc.PutInt32(sb.BlockSize)
	enc.PutInt32(sb.NumInodes)
	enc.PutInt(sb.DataBeginSector)
	enc.PutInt(sb.TotalBlocks)
	enc.PutInt(sb.FreeHead)
	s := make(disk.Sector, disk.SectorSize)
	copy(s, Signature)
	copy(s[SIGSZ:], enc.Finish())
	return s
}

// Decode parses a superblock sector. It only checks the signature; see
// Validate for the layout checks.
func Decode(s disk.Sector) (*Superblock, error) {
	if uint64(len(s)) < SIGSZ+RECORDSZ {
		return nil, fmt.Errorf("superblock sector too short (%d bytes)", len(s))
	}
	if !bytes.Equal(s[:SIGSZ], Signature) {
		return nil, ErrNotFormatted
	}
	dec := marshal.NewDec(s[SIGSZ:])
	sb := &Superblock{}
	sb.BlockSize = dec.GetInt32()
	sb.NumInodes = dec.GetInt32()
	sb.DataBeginSector = dec.GetInt()
	sb.TotalBlocks = dec.GetInt()
	sb.FreeHead = dec.GetInt()
	return sb, nil
}

func Read(d disk.Device) (*Superblock, error) {
	s := make(disk.Sector, disk.SectorSize)
	if err := d.ReadSector(common.SUPERBLOCKSECTOR, s); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	return Decode(s)
}

// Write persists the whole superblock in one sector write.
func (sb *Superblock) Write(d disk.Device) error {
	util.DPrintf(5, "super.Write: head %d\n", sb.FreeHead)
	if err := d.WriteSector(common.SUPERBLOCKSECTOR, sb.Encode()); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

func (sb *Superblock) SectorsPerCluster() uint64 {
	return uint64(sb.BlockSize) / disk.SectorSize
}

func (sb *Superblock) Clusters() addr.Cluster {
	return addr.Cluster{
		Begin: sb.DataBeginSector,
		Spc:   sb.SectorsPerCluster(),
		Count: sb.TotalBlocks,
	}
}

// Validate checks that the superblock describes a layout that fits a device
// of numSectors sectors.
func (sb *Superblock) Validate(numSectors uint64) error {
	bs := uint64(sb.BlockSize)
	if bs == 0 || bs%disk.SectorSize != 0 {
		return fmt.Errorf("%w: block size %d", ErrCorrupt, bs)
	}
	spc := sb.SectorsPerCluster()
	if sb.DataBeginSector == 0 || sb.DataBeginSector >= numSectors {
		return fmt.Errorf("%w: data region starts at %d of %d sectors",
			ErrCorrupt, sb.DataBeginSector, numSectors)
	}
	if sb.DataBeginSector%spc != 0 {
		return fmt.Errorf("%w: data region start %d not aligned to %d",
			ErrCorrupt, sb.DataBeginSector, spc)
	}
	if util.MulOverflows(sb.TotalBlocks, spc) ||
		sb.TotalBlocks*spc > numSectors-sb.DataBeginSector {
		return fmt.Errorf("%w: %d clusters do not fit the device",
			ErrCorrupt, sb.TotalBlocks)
	}
	if sb.FreeHead != common.NULLSECTOR {
		if _, ok := sb.Clusters().Number(sb.FreeHead); !ok {
			return fmt.Errorf("%w: free list head %d", ErrCorrupt, sb.FreeHead)
		}
	}
	return nil
}

// ClusterHeader is stored at the start of every free cluster.
type ClusterHeader struct {
	Next common.Sector
}

// Encode returns the header as the first sector of a free cluster.
func (h ClusterHeader) Encode() disk.Sector {
	enc := marshal.NewEnc(disk.SectorSize)
	enc.PutInt(h.Next)
	return enc.Finish()
}

func DecodeClusterHeader(s disk.Sector) ClusterHeader {
	dec := marshal.NewDec(s[:HDRSZ])
	return ClusterHeader{Next: dec.GetInt()}
}

func ReadClusterHeader(d disk.Device, a common.Sector) (ClusterHeader, error) {
	s := make(disk.Sector, disk.SectorSize)
	if err := d.ReadSector(a, s); err != nil {
		return ClusterHeader{}, fmt.Errorf("reading cluster header %d: %w", a, err)
	}
	return DecodeClusterHeader(s), nil
}

// Write stores h as the first sector of cluster a, zeroing the rest of that
// sector.
func (h ClusterHeader) Write(d disk.Device, a common.Sector) error {
	if err := d.WriteSector(a, h.Encode()); err != nil {
		return fmt.Errorf("writing cluster header %d: %w", a, err)
	}
	return nil
}
