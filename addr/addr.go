package addr

import (
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/util"
)

// Addr identifies a byte of a file.
//
// Index is the logical block containing the byte, and Off is the location of
// the byte within the block. The block size is determined by the volume in
// which Addr is used.
type Addr struct {
	Index uint64
	Off   uint64
}

func MkAddr(pos uint64, blockSize uint64) Addr {
	return Addr{Index: pos / blockSize, Off: pos % blockSize}
}

func (a Addr) Flatid(blockSize uint64) uint64 {
	return a.Index*blockSize + a.Off
}

// Chunk is how many of the next n bytes starting at a lie in a's block.
func (a Addr) Chunk(blockSize uint64, n uint64) uint64 {
	return util.Min(blockSize-a.Off, n)
}

// NumBlocks is the number of blocks a file of size bytes occupies.
func NumBlocks(size uint64, blockSize uint64) uint64 {
	return util.RoundUp(size, blockSize)
}

// Cluster maps data-region cluster numbers to first sectors and back.
type Cluster struct {
	Begin common.Sector // first sector of the data region
	Spc   uint64        // sectors per cluster
	Count uint64        // clusters in the data region
}

func (c Cluster) Addr(n uint64) common.Sector {
	return c.Begin + n*c.Spc
}

// Number returns the cluster number of a, if a is the first sector of a
// cluster inside the data region.
func (c Cluster) Number(a common.Sector) (uint64, bool) {
	if a < c.Begin || (a-c.Begin)%c.Spc != 0 {
		return 0, false
	}
	n := (a - c.Begin) / c.Spc
	if n >= c.Count {
		return 0, false
	}
	return n, true
}
