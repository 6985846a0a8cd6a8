package fs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-clusterfs/addr"
	"github.com/mit-pdos/go-clusterfs/alloc"
	"github.com/mit-pdos/go-clusterfs/buf"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/inode"
	"github.com/mit-pdos/go-clusterfs/util"
)

// blockAt returns the first sector of logical block i of ip, checking that
// it is a cluster of this volume.
func (s *Session) blockAt(ip *inode.Inode, i uint64) (common.Sector, error) {
	a := ip.BlockAddr(i)
	if a == common.NULLSECTOR {
		return 0, fmt.Errorf("%w: inode %d block %d unmapped", ErrBrokenBlockChain, ip.Inum, i)
	}
	if _, ok := s.sb.Clusters().Number(a); !ok {
		return 0, fmt.Errorf("%w: inode %d block %d at %d", ErrBrokenBlockChain, ip.Inum, i, a)
	}
	return a, nil
}

// Read copies up to len(p) bytes starting at the cursor of fd into p and
// advances the cursor. It returns 0 at end of file.
func (s *Session) Read(fd int, p []byte) (int, error) {
	if err := s.checkMounted(); err != nil {
		return 0, err
	}
	desc, err := s.fds.get(fd)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("read: %w: nil buffer", common.ErrInvalidArgument)
	}
	if len(p) == 0 {
		return 0, nil
	}
	ip, err := s.inodes.Load(desc.inum)
	if err != nil {
		return 0, fmt.Errorf("read fd %d: %w", fd, err)
	}
	size := ip.FileSize()
	if desc.cursor >= size {
		return 0, nil
	}

	bs := s.blockSize()
	n := util.Min(uint64(len(p)), size-desc.cursor)
	scratch := make([]byte, bs)
	for done := uint64(0); done < n; {
		a := addr.MkAddr(desc.cursor+done, bs)
		chunk := a.Chunk(bs, n-done)
		blk, err := s.blockAt(ip, a.Index)
		if err != nil {
			return 0, err
		}
		b := buf.MkBuf(blk, a.Off, p[done:done+chunk])
		if err := b.ReadDirect(s.d, scratch); err != nil {
			return 0, fmt.Errorf("read fd %d: %w", fd, err)
		}
		done += chunk
	}
	desc.cursor += n
	util.DPrintf(10, "Read: fd %d %d bytes, cursor %d\n", fd, n, desc.cursor)
	return int(n), nil
}

// grow allocates clusters until ip maps at least want blocks.
func (s *Session) grow(ip *inode.Inode, want uint64) (uint64, error) {
	var added uint64
	for ip.NumBlocks() < want {
		a, err := s.alloc.Allocate()
		if err != nil {
			if errors.Is(err, alloc.ErrExhausted) {
				return added, ErrOutOfSpace
			}
			return added, err
		}
		if err := ip.AddBlock(a); err != nil {
			// a is off the free list but owned by nobody; hand it back.
			if ferr := s.alloc.Free(a); ferr != nil {
				util.DPrintf(1, "grow: leaked cluster %d: %v\n", a, ferr)
			}
			if errors.Is(err, inode.ErrNoInodes) {
				return added, ErrOutOfSpace
			}
			return added, err
		}
		added++
	}
	return added, nil
}

// Write copies p into the file behind fd at its cursor, allocating clusters
// as the write runs past the last mapped block. Partial blocks are
// read-modify-written.
//
// A failure part way through leaves the blocks already written on disk and
// the clusters already allocated linked into the inode, but neither the file
// size nor the cursor moves.
func (s *Session) Write(fd int, p []byte) (int, error) {
	if err := s.checkMounted(); err != nil {
		return 0, err
	}
	desc, err := s.fds.get(fd)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("write: %w: nil buffer", common.ErrInvalidArgument)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if util.SumOverflows(desc.cursor, uint64(len(p))) {
		return 0, fmt.Errorf("write: %w: %d bytes at %d", common.ErrInvalidArgument, len(p), desc.cursor)
	}
	ip, err := s.inodes.Load(desc.inum)
	if err != nil {
		return 0, fmt.Errorf("write fd %d: %w", fd, err)
	}

	bs := s.blockSize()
	n := uint64(len(p))
	var added uint64
	fail := func(err error) (int, error) {
		if added > 0 {
			if serr := ip.Save(); serr != nil {
				util.DPrintf(1, "Write: inode %d lost %d clusters: %v\n", ip.Inum, added, serr)
			}
		}
		return 0, fmt.Errorf("write fd %d: %w", fd, err)
	}

	// Blocks at or past had come off the free list in this call and still
	// hold whatever their previous owner left there.
	had := ip.NumBlocks()
	scratch := make([]byte, bs)
	if first := desc.cursor / bs; first > had {
		k, err := s.grow(ip, first)
		added += k
		if err != nil {
			return fail(err)
		}
		for i := had; i < first; i++ {
			blk, err := s.blockAt(ip, i)
			if err != nil {
				return fail(err)
			}
			util.Zero(scratch)
			if err := buf.WriteBlock(s.d, blk, bs, scratch); err != nil {
				return fail(err)
			}
		}
	}
	for done := uint64(0); done < n; {
		a := addr.MkAddr(desc.cursor+done, bs)
		chunk := a.Chunk(bs, n-done)
		k, err := s.grow(ip, a.Index+1)
		added += k
		if err != nil {
			return fail(err)
		}
		blk, err := s.blockAt(ip, a.Index)
		if err != nil {
			return fail(err)
		}
		b := buf.MkBuf(blk, a.Off, p[done:done+chunk])
		if a.Index >= had {
			err = b.WriteFresh(s.d, scratch)
		} else {
			err = b.WriteDirect(s.d, scratch)
		}
		if err != nil {
			return fail(err)
		}
		done += chunk
	}

	end := desc.cursor + n
	ip.SetFileSize(util.Max(ip.FileSize(), end))
	if err := ip.Save(); err != nil {
		return 0, fmt.Errorf("write fd %d: %w", fd, err)
	}
	desc.cursor = end
	util.DPrintf(10, "Write: fd %d %d bytes, %d new clusters, size %d\n",
		fd, n, added, ip.FileSize())
	return int(n), nil
}
