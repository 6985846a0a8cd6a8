// Package fs mounts a formatted volume and serves file descriptors on it.
//
// A Session is the mounted state of one device: the cached superblock, the
// free-cluster allocator and the descriptor table. Sessions do no locking;
// callers must serialize every call on a Session (see package vfs).
package fs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-clusterfs/alloc"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/inode"
	"github.com/mit-pdos/go-clusterfs/super"
	"github.com/mit-pdos/go-clusterfs/util"
)

var (
	ErrNotMounted        = errors.New("volume not mounted")
	ErrNotFormatted      = super.ErrNotFormatted
	ErrCorruptSuperblock = super.ErrCorrupt
	ErrTooManyOpenFiles  = errors.New("too many open files")
	ErrNoFreeInode       = errors.New("no free inode")
	ErrOutOfSpace        = errors.New("out of space")
	ErrBrokenBlockChain  = errors.New("broken block chain")
	ErrBadDescriptor     = errors.New("bad file descriptor")
	ErrNotFile           = errors.New("not a regular file")
	ErrNotSupported      = errors.New("operation not supported")
)

type Session struct {
	d      disk.Device
	sb     *super.Superblock // nil once unmounted
	inodes *inode.Store
	alloc  *alloc.Alloc
	fds    *fdTable
}

// Mount reads and validates the superblock of d and returns a session on it.
func Mount(d disk.Device) (*Session, error) {
	if d == nil {
		return nil, fmt.Errorf("mount: %w: nil device", common.ErrInvalidArgument)
	}
	sb, err := super.Read(d)
	if err != nil {
		return nil, fmt.Errorf("mount disk %d: %w", d.Id(), err)
	}
	if err := sb.Validate(d.NumSectors()); err != nil {
		return nil, fmt.Errorf("mount disk %d: %w", d.Id(), err)
	}
	inodeEnd := inode.AreaBeginSector() + inode.AreaSectors(uint64(sb.NumInodes))
	if sb.NumInodes == 0 || inodeEnd > sb.DataBeginSector {
		return nil, fmt.Errorf("mount disk %d: %w: %d inodes overlap data at %d",
			d.Id(), ErrCorruptSuperblock, sb.NumInodes, sb.DataBeginSector)
	}
	s := &Session{
		d:      d,
		sb:     sb,
		inodes: inode.MkStore(d, uint64(sb.NumInodes)),
		alloc:  alloc.MkAlloc(d, sb),
		fds:    new(fdTable),
	}
	util.DPrintf(1, "Mount: disk %d block size %d, %d inodes, %d clusters at %d\n",
		d.Id(), sb.BlockSize, sb.NumInodes, sb.TotalBlocks, sb.DataBeginSector)
	return s, nil
}

// Unmount flushes the device and invalidates the session. Descriptors still
// open are dropped.
func (s *Session) Unmount() error {
	if s.sb == nil {
		return ErrNotMounted
	}
	if n := s.fds.inUse(); n > 0 {
		util.DPrintf(1, "Unmount: dropping %d open descriptors\n", n)
	}
	err := s.d.Barrier()
	s.sb = nil
	s.inodes = nil
	s.alloc = nil
	s.fds = nil
	if err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	util.DPrintf(1, "Unmount: disk %d\n", s.d.Id())
	return nil
}

func (s *Session) Mounted() bool {
	return s.sb != nil
}

func (s *Session) checkMounted() error {
	if s.sb == nil {
		return ErrNotMounted
	}
	return nil
}

// IsIdle reports whether no descriptor is open.
func (s *Session) IsIdle() bool {
	return s.sb == nil || s.fds.inUse() == 0
}

func (s *Session) Device() disk.Device {
	return s.d
}

// Superblock returns a copy of the cached superblock.
func (s *Session) Superblock() (super.Superblock, error) {
	if err := s.checkMounted(); err != nil {
		return super.Superblock{}, err
	}
	return *s.sb, nil
}

// NumFree walks the free-cluster list.
func (s *Session) NumFree() (uint64, error) {
	if err := s.checkMounted(); err != nil {
		return 0, err
	}
	return s.alloc.NumFree()
}

func (s *Session) blockSize() uint64 {
	return uint64(s.sb.BlockSize)
}
