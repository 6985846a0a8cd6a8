package mkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/inode"
	"github.com/mit-pdos/go-clusterfs/super"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		sectors, blockSize                      uint64
		inodes, dataBegin, clusters, inodeSects uint64
	}{
		{128, 512, 16, 5, 123, 4},
		{128, 1024, 8, 4, 62, 2},
		{128, 4096, 8, 8, 15, 2},
		{128, 1536, 8, 3, 41, 2},
		{5, 512, 8, 3, 2, 2},
		{1 << 20, 512, 1024, 257, (1 << 20) - 257, 256},
	}
	for _, tt := range tests {
		l, err := Plan(tt.sectors, tt.blockSize)
		require.NoError(t, err, "%d sectors, %d bytes", tt.sectors, tt.blockSize)
		assert.Equal(t, tt.inodes, l.NumInodes, "inodes for %v", tt)
		assert.Equal(t, tt.inodeSects, l.InodeSectors, "inode sectors for %v", tt)
		assert.Equal(t, tt.dataBegin, l.DataBegin, "data begin for %v", tt)
		assert.Equal(t, tt.clusters, l.Clusters, "clusters for %v", tt)
		assert.Equal(t, uint64(0), l.DataBegin%l.SectorsPerCluster, "aligned")
		assert.LessOrEqual(t, l.DataEnd(), tt.sectors)
	}
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		sectors, blockSize uint64
		err                error
	}{
		{128, 0, ErrInvalidBlockSize},
		{128, 100, ErrInvalidBlockSize},
		{128, 768, ErrInvalidBlockSize},
		{1 << 20, 1 << 33, ErrInvalidBlockSize},
		{2, 512, ErrDiskTooSmall},
		{0, 512, ErrDiskTooSmall},
		{3, 512, ErrNoSpaceForData},
		{8, 4096, ErrNoSpaceForData},
		{4, 512, ErrInsufficientDataSpace},
		{16, 4096, ErrInsufficientDataSpace},
	}
	for _, tt := range tests {
		_, err := Plan(tt.sectors, tt.blockSize)
		assert.ErrorIs(t, err, tt.err, "%d sectors, %d bytes", tt.sectors, tt.blockSize)
		var lerr *LayoutError
		assert.ErrorAs(t, err, &lerr)
	}
}

func TestFormat(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDevice(130) // 2-sector tail past the last 4 KiB cluster
	junk := make(disk.Sector, disk.SectorSize)
	for i := range junk {
		junk[i] = 0xee
	}
	for s := uint64(0); s < d.NumSectors(); s++ {
		require.NoError(t, d.WriteSector(s, junk))
	}

	n, err := Format(d, 4096)
	require.NoError(t, err)
	assert.Equal(uint64(15), n)

	sb, err := super.Read(d)
	require.NoError(t, err)
	assert.Equal(uint32(4096), sb.BlockSize)
	assert.Equal(uint32(8), sb.NumInodes)
	assert.Equal(uint64(8), sb.DataBeginSector)
	assert.Equal(uint64(15), sb.TotalBlocks)
	assert.Equal(uint64(8), sb.FreeHead)
	assert.NoError(sb.Validate(d.NumSectors()))

	// the free list visits every cluster in address order
	next := sb.FreeHead
	for i := uint64(0); i < n; i++ {
		assert.Equal(sb.DataBeginSector+i*8, next)
		hdr, err := super.ReadClusterHeader(d, next)
		require.NoError(t, err)
		next = hdr.Next
	}
	assert.Equal(common.NULLSECTOR, next)

	// every other sector is zero
	s := make(disk.Sector, disk.SectorSize)
	zero := make([]byte, disk.SectorSize)
	for _, a := range []uint64{9, 15, 128, 129} {
		require.NoError(t, d.ReadSector(a, s))
		assert.Equal(zero, []byte(s), "sector %d", a)
	}

	store := inode.MkStore(d, uint64(sb.NumInodes))
	root, err := store.Load(common.ROOTINUM)
	require.NoError(t, err)
	assert.Equal(inode.TypeDir, root.Type())
	assert.Equal(uint32(1), root.RefCount())
	assert.Equal(uint32(0), root.Owner())
	assert.Equal(uint64(0), root.NumBlocks(), "root owns no clusters")
	for i := common.Inum(2); i <= 8; i++ {
		_, err := store.Load(i)
		assert.ErrorIs(err, inode.ErrFree, "inode %d", i)
	}
}

func TestFormatErrors(t *testing.T) {
	_, err := Format(nil, 512)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = Format(disk.NewMemDevice(4), 512)
	assert.ErrorIs(t, err, ErrInsufficientDataSpace)

	f := disk.NewFaultyDevice(disk.NewMemDevice(128))
	f.FailWritesAfter(10)
	_, err = Format(f, 512)
	assert.ErrorIs(t, err, disk.ErrIO)
}
