package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-clusterfs/alloc"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/mkfs"
	"github.com/mit-pdos/go-clusterfs/super"
)

func mkAlloc(t *testing.T, d disk.Device, blockSize uint64) (*alloc.Alloc, *super.Superblock, uint64) {
	n, err := mkfs.Format(d, blockSize)
	require.NoError(t, err)
	sb, err := super.Read(d)
	require.NoError(t, err)
	return alloc.MkAlloc(d, sb), sb, n
}

func TestAllocAll(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDevice(128)
	a, sb, n := mkAlloc(t, d, 1024)

	free, err := a.NumFree()
	require.NoError(t, err)
	assert.Equal(n, free, "everything should be initially free")

	seen := make(map[common.Sector]bool)
	for i := uint64(0); i < n; i++ {
		c, err := a.Allocate()
		require.NoError(t, err)
		assert.False(seen[c], "cluster %d allocated twice", c)
		seen[c] = true
		_, ok := sb.Clusters().Number(c)
		assert.True(ok, "%d is a cluster", c)
	}
	c, err := a.Allocate()
	assert.ErrorIs(err, alloc.ErrExhausted)
	assert.Equal(common.NULLSECTOR, c)
	assert.Equal(common.NULLSECTOR, sb.FreeHead)

	// the head was persisted on every step
	ondisk, err := super.Read(d)
	require.NoError(t, err)
	assert.Equal(common.NULLSECTOR, ondisk.FreeHead)
}

func TestAllocClearsHeader(t *testing.T) {
	d := disk.NewMemDevice(128)
	a, _, _ := mkAlloc(t, d, 512)
	c, err := a.Allocate()
	require.NoError(t, err)
	hdr, err := super.ReadClusterHeader(d, c)
	require.NoError(t, err)
	assert.Equal(t, common.NULLSECTOR, hdr.Next)
}

func TestAllocExhaustedNoIO(t *testing.T) {
	f := disk.NewFaultyDevice(disk.NewMemDevice(128))
	a, sb, _ := mkAlloc(t, f, 512)
	sb.FreeHead = common.NULLSECTOR
	f.FailWritesAfter(0)
	f.FailRead(0)
	_, err := a.Allocate()
	assert.ErrorIs(t, err, alloc.ErrExhausted)
}

func TestAllocSuperblockWriteFails(t *testing.T) {
	f := disk.NewFaultyDevice(disk.NewMemDevice(128))
	a, sb, _ := mkAlloc(t, f, 512)
	head := sb.FreeHead
	f.FailWritesAfter(0)
	_, err := a.Allocate()
	assert.ErrorIs(t, err, disk.ErrIO)
	assert.Equal(t, head, sb.FreeHead, "head unchanged when it cannot be persisted")

	f.Heal()
	c, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, head, c)
}

func TestAllocClearFails(t *testing.T) {
	f := disk.NewFaultyDevice(disk.NewMemDevice(128))
	a, sb, n := mkAlloc(t, f, 512)
	head := sb.FreeHead
	f.FailWritesAfter(1)
	c, err := a.Allocate()
	assert.ErrorIs(t, err, disk.ErrIO)
	assert.Equal(t, common.NULLSECTOR, c)
	assert.NotEqual(t, head, sb.FreeHead, "head already persisted")

	f.Heal()
	free, err := a.NumFree()
	require.NoError(t, err)
	assert.Equal(t, n-1, free, "cluster is leaked, never handed out twice")
	c, err = a.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, head, c)
}

func TestFree(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDevice(128)
	a, sb, n := mkAlloc(t, d, 512)

	c1, err := a.Allocate()
	require.NoError(t, err)
	c2, err := a.Allocate()
	require.NoError(t, err)

	require.NoError(t, a.Free(c1))
	assert.Equal(c1, sb.FreeHead)
	ondisk, err := super.Read(d)
	require.NoError(t, err)
	assert.Equal(c1, ondisk.FreeHead)

	free, err := a.NumFree()
	require.NoError(t, err)
	assert.Equal(n-1, free)

	c, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(c1, c, "freed cluster is reused first")

	require.NoError(t, a.Free(c2))
	err = a.Free(c2)
	assert.ErrorIs(err, alloc.ErrBadList, "double free at head")

	assert.ErrorIs(a.Free(0), alloc.ErrBadAddr)
	assert.ErrorIs(a.Free(sb.DataBeginSector+sb.TotalBlocks), alloc.ErrBadAddr)
}

func TestFreeThenExhaust(t *testing.T) {
	d := disk.NewMemDevice(64)
	a, _, n := mkAlloc(t, d, 512)
	var all []common.Sector
	for i := uint64(0); i < n; i++ {
		c, err := a.Allocate()
		require.NoError(t, err)
		all = append(all, c)
	}
	for _, c := range all {
		require.NoError(t, a.Free(c))
	}
	free, err := a.NumFree()
	require.NoError(t, err)
	assert.Equal(t, n, free)
}

func TestWalkDetectsCorruption(t *testing.T) {
	d := disk.NewMemDevice(128)
	a, sb, _ := mkAlloc(t, d, 512)

	// link the first cluster back to itself
	require.NoError(t, super.ClusterHeader{Next: sb.FreeHead}.Write(d, sb.FreeHead))
	_, err := a.NumFree()
	assert.ErrorIs(t, err, alloc.ErrBadList)

	// point outside the data region
	require.NoError(t, super.ClusterHeader{Next: 1}.Write(d, sb.FreeHead))
	_, err = a.NumFree()
	assert.ErrorIs(t, err, alloc.ErrBadList)
	_, err = a.Allocate()
	assert.ErrorIs(t, err, alloc.ErrBadList)
}
