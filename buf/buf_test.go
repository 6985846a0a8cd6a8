package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-clusterfs/disk"
)

func pattern(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestBlockRoundTrip(t *testing.T) {
	d := disk.NewMemDevice(16)
	blockSize := 2 * disk.SectorSize
	in := pattern(int(blockSize), 7)
	require.NoError(t, WriteBlock(d, 4, blockSize, in))

	out := make([]byte, blockSize)
	require.NoError(t, ReadBlock(d, 4, blockSize, out))
	assert.Equal(t, in, out)

	// the block spans exactly sectors 4 and 5
	s := make(disk.Sector, disk.SectorSize)
	require.NoError(t, d.ReadSector(5, s))
	assert.Equal(t, in[disk.SectorSize:], []byte(s))
	require.NoError(t, d.ReadSector(6, s))
	assert.Equal(t, make([]byte, disk.SectorSize), []byte(s))
}

func TestBlockBadSize(t *testing.T) {
	d := disk.NewMemDevice(16)
	assert.Error(t, ReadBlock(d, 0, 100, make([]byte, 100)))
	assert.Error(t, WriteBlock(d, 0, disk.SectorSize, make([]byte, 10)))
}

func TestBlockDeviceError(t *testing.T) {
	f := disk.NewFaultyDevice(disk.NewMemDevice(16))
	f.FailRead(3)
	err := ReadBlock(f, 2, 2*disk.SectorSize, make([]byte, 2*disk.SectorSize))
	assert.ErrorIs(t, err, disk.ErrIO)
}

func TestInstall(t *testing.T) {
	blk := make([]byte, 8)
	b := MkBuf(0, 3, []byte{1, 2})
	b.Install(blk)
	assert.Equal(t, []byte{0, 0, 0, 1, 2, 0, 0, 0}, blk)

	out := MkBuf(0, 2, make([]byte, 3))
	out.Load(blk)
	assert.Equal(t, []byte{0, 1, 2}, out.Data)
}

func TestWriteDirectPartial(t *testing.T) {
	d := disk.NewMemDevice(8)
	blockSize := disk.SectorSize
	scratch := make([]byte, blockSize)

	require.NoError(t, MkBuf(2, 0, pattern(20, 100)).WriteDirect(d, scratch))
	require.NoError(t, MkBuf(2, 5, pattern(10, 200)).WriteDirect(d, scratch))

	got := MkBuf(2, 0, make([]byte, 20))
	require.NoError(t, got.ReadDirect(d, scratch))
	want := pattern(20, 100)
	copy(want[5:], pattern(10, 200))
	assert.Equal(t, want, got.Data, "bytes outside [5,15) preserved")
}

func TestWriteDirectFull(t *testing.T) {
	d := disk.NewMemDevice(8)
	blockSize := disk.SectorSize
	f := disk.NewFaultyDevice(d)
	f.FailRead(1)
	full := pattern(int(blockSize), 1)
	// a full-block write never reads, so the injected read fault is not hit
	require.NoError(t, MkBuf(1, 0, full).WriteDirect(f, make([]byte, blockSize)))

	out := make([]byte, blockSize)
	require.NoError(t, ReadBlock(d, 1, blockSize, out))
	assert.Equal(t, full, out)

	err := MkBuf(1, 1, []byte{9}).WriteDirect(f, make([]byte, blockSize))
	assert.ErrorIs(t, err, disk.ErrIO, "partial write must read first")
}

func TestWriteDirectOverflow(t *testing.T) {
	d := disk.NewMemDevice(8)
	err := MkBuf(1, disk.SectorSize-1, []byte{1, 2}).WriteDirect(d, make([]byte, disk.SectorSize))
	assert.Error(t, err)
}

func TestWriteFresh(t *testing.T) {
	d := disk.NewFaultyDevice(disk.NewMemDevice(16))
	blockSize := 2 * disk.SectorSize
	require.NoError(t, WriteBlock(d, 2, blockSize, pattern(int(blockSize), 1)))

	// no read is needed, and old bytes do not survive
	d.FailRead(2)
	d.FailRead(3)
	b := MkBuf(2, 600, []byte{9, 9})
	require.NoError(t, b.WriteFresh(d, make([]byte, blockSize)))
	d.Heal()

	want := make([]byte, blockSize)
	want[600], want[601] = 9, 9
	out := make([]byte, blockSize)
	require.NoError(t, ReadBlock(d, 2, blockSize, out))
	assert.Equal(t, want, out)

	assert.Error(t, MkBuf(2, blockSize-1, []byte{1, 2}).WriteFresh(d, make([]byte, blockSize)))
}
