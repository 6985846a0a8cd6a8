// buf transfers whole blocks between memory and a sector device, and packs
// sub-block writes into them with read-modify-write.
package buf

import (
	"fmt"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/util"
)

func checkBlock(blockSize uint64, b []byte) error {
	if blockSize == 0 || blockSize%disk.SectorSize != 0 {
		return fmt.Errorf("block size %d is not a multiple of %d",
			blockSize, disk.SectorSize)
	}
	if uint64(len(b)) != blockSize {
		return fmt.Errorf("buffer is %d bytes, block is %d", len(b), blockSize)
	}
	return nil
}

// ReadBlock reads the blockSize bytes starting at sector first into out.
func ReadBlock(d disk.Device, first common.Sector, blockSize uint64, out []byte) error {
	if err := checkBlock(blockSize, out); err != nil {
		return err
	}
	n := blockSize / disk.SectorSize
	for i := uint64(0); i < n; i++ {
		s := out[i*disk.SectorSize : (i+1)*disk.SectorSize]
		if err := d.ReadSector(first+i, s); err != nil {
			return err
		}
	}
	util.DPrintf(15, "ReadBlock: %d (%d sectors)\n", first, n)
	return nil
}

// WriteBlock writes the blockSize bytes of in starting at sector first.
func WriteBlock(d disk.Device, first common.Sector, blockSize uint64, in []byte) error {
	if err := checkBlock(blockSize, in); err != nil {
		return err
	}
	n := blockSize / disk.SectorSize
	for i := uint64(0); i < n; i++ {
		s := in[i*disk.SectorSize : (i+1)*disk.SectorSize]
		if err := d.WriteSector(first+i, s); err != nil {
			return err
		}
	}
	util.DPrintf(15, "WriteBlock: %d (%d sectors)\n", first, n)
	return nil
}

// A Buf is a byte range inside the block that starts at sector Addr.
type Buf struct {
	Addr common.Sector
	Off  uint64 // byte offset within the block
	Data []byte
}

func MkBuf(addr common.Sector, off uint64, data []byte) *Buf {
	b := &Buf{
		Addr: addr,
		Off:  off,
		Data: data,
	}
	return b
}

// Covers reports whether the buf overwrites every byte of its block.
func (buf *Buf) Covers(blockSize uint64) bool {
	return buf.Off == 0 && uint64(len(buf.Data)) == blockSize
}

// Install the bytes of buf into blk
func (buf *Buf) Install(blk []byte) {
	util.DPrintf(20, "%d+%d: install %d bytes\n", buf.Addr, buf.Off, len(buf.Data))
	copy(blk[buf.Off:], buf.Data)
}

// Load the bytes of blk covered by buf into buf.Data
func (buf *Buf) Load(blk []byte) {
	copy(buf.Data, blk[buf.Off:buf.Off+uint64(len(buf.Data))])
}

func (buf *Buf) check(blockSize uint64) error {
	if buf.Off+uint64(len(buf.Data)) > blockSize {
		return fmt.Errorf("buf [%d,%d) exceeds block size %d",
			buf.Off, buf.Off+uint64(len(buf.Data)), blockSize)
	}
	return nil
}

// WriteDirect writes buf to its block, using scratch (one block) as the
// staging area. A partial buf reads the block first so the bytes outside
// [Off, Off+len(Data)) survive; a full buf skips the read.
func (buf *Buf) WriteDirect(d disk.Device, scratch []byte) error {
	blockSize := uint64(len(scratch))
	if err := buf.check(blockSize); err != nil {
		return err
	}
	if buf.Covers(blockSize) {
		util.Zero(scratch)
	} else {
		if err := ReadBlock(d, buf.Addr, blockSize, scratch); err != nil {
			return err
		}
	}
	buf.Install(scratch)
	return WriteBlock(d, buf.Addr, blockSize, scratch)
}

// WriteFresh writes buf into a block whose old contents are garbage: the
// bytes outside buf are written as zeros and nothing is read.
func (buf *Buf) WriteFresh(d disk.Device, scratch []byte) error {
	blockSize := uint64(len(scratch))
	if err := buf.check(blockSize); err != nil {
		return err
	}
	util.Zero(scratch)
	buf.Install(scratch)
	return WriteBlock(d, buf.Addr, blockSize, scratch)
}

// ReadDirect fills buf.Data from its block, using scratch as staging.
func (buf *Buf) ReadDirect(d disk.Device, scratch []byte) error {
	blockSize := uint64(len(scratch))
	if err := buf.check(blockSize); err != nil {
		return err
	}
	if err := ReadBlock(d, buf.Addr, blockSize, scratch); err != nil {
		return err
	}
	buf.Load(scratch)
	return nil
}
