package fs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/inode"
	"github.com/mit-pdos/go-clusterfs/util"
)

// Open creates a new empty regular file and returns a descriptor for it.
// There is no namespace: path is only checked for being non-empty, and every
// call consumes a fresh inode.
func (s *Session) Open(path string) (int, error) {
	if err := s.checkMounted(); err != nil {
		return -1, err
	}
	if path == "" {
		return -1, fmt.Errorf("open: %w: empty path", common.ErrInvalidArgument)
	}
	if !s.fds.hasFree() {
		return -1, ErrTooManyOpenFiles
	}
	inum, err := s.inodes.FindFree(common.ROOTINUM + 1)
	if err != nil {
		if errors.Is(err, inode.ErrNoInodes) {
			return -1, fmt.Errorf("open %q: %w", path, ErrNoFreeInode)
		}
		return -1, fmt.Errorf("open %q: %w", path, err)
	}
	ip, err := s.inodes.Create(inum)
	if err != nil {
		return -1, fmt.Errorf("open %q: %w", path, err)
	}
	ip.SetType(inode.TypeRegular)
	ip.SetRefCount(1)
	ip.SetFileSize(0)
	if err := ip.Save(); err != nil {
		return -1, fmt.Errorf("open %q: %w", path, err)
	}
	fd, err := s.fds.bind(inum, s.d.Id())
	if err != nil {
		return -1, err
	}
	util.DPrintf(1, "Open: %q -> inode %d fd %d\n", path, inum, fd)
	return fd, nil
}

// OpenInode binds a descriptor to an existing regular file.
func (s *Session) OpenInode(inum common.Inum) (int, error) {
	if err := s.checkMounted(); err != nil {
		return -1, err
	}
	ip, err := s.inodes.Load(inum)
	if err != nil {
		return -1, fmt.Errorf("open inode %d: %w", inum, err)
	}
	if ip.Type() != inode.TypeRegular {
		return -1, fmt.Errorf("open inode %d: %w: %v", inum, ErrNotFile, ip.Type())
	}
	fd, err := s.fds.bind(inum, s.d.Id())
	if err != nil {
		return -1, err
	}
	util.DPrintf(1, "OpenInode: %d fd %d\n", inum, fd)
	return fd, nil
}

// Close releases fd and resets its cursor. Closing a descriptor that is not
// open fails with ErrBadDescriptor and changes nothing.
func (s *Session) Close(fd int) error {
	if err := s.checkMounted(); err != nil {
		return err
	}
	if err := s.fds.release(fd); err != nil {
		return err
	}
	util.DPrintf(5, "Close: fd %d\n", fd)
	return nil
}

type Stat struct {
	Inum   common.Inum
	Type   inode.Type
	Size   uint64
	Blocks uint64
	Cursor uint64
}

func (s *Session) Stat(fd int) (Stat, error) {
	if err := s.checkMounted(); err != nil {
		return Stat{}, err
	}
	desc, err := s.fds.get(fd)
	if err != nil {
		return Stat{}, err
	}
	ip, err := s.inodes.Load(desc.inum)
	if err != nil {
		return Stat{}, fmt.Errorf("stat fd %d: %w", fd, err)
	}
	st := Stat{
		Inum:   desc.inum,
		Type:   ip.Type(),
		Size:   ip.FileSize(),
		Blocks: ip.NumBlocks(),
		Cursor: desc.cursor,
	}
	return st, nil
}

// Truncate empties the file behind fd and returns its clusters to the free
// list. Every descriptor on the file goes back to offset 0. The inode is
// saved before any extension inode or cluster is released, so a failure part
// way through leaks them rather than sharing them.
func (s *Session) Truncate(fd int) error {
	if err := s.checkMounted(); err != nil {
		return err
	}
	desc, err := s.fds.get(fd)
	if err != nil {
		return err
	}
	ip, err := s.inodes.Load(desc.inum)
	if err != nil {
		return fmt.Errorf("truncate fd %d: %w", fd, err)
	}
	blocks, exts := ip.ClearBlocks()
	ip.SetFileSize(0)
	if err := ip.Save(); err != nil {
		return fmt.Errorf("truncate fd %d: %w", fd, err)
	}
	s.fds.rewind(desc.inum)
	for _, inum := range exts {
		if err := s.inodes.Release(inum); err != nil {
			return fmt.Errorf("truncate fd %d: releasing inode %d: %w", fd, inum, err)
		}
	}
	for _, a := range blocks {
		if err := s.alloc.Free(a); err != nil {
			return fmt.Errorf("truncate fd %d: freeing %d: %w", fd, a, err)
		}
	}
	util.DPrintf(1, "Truncate: inode %d released %d clusters, %d extensions\n",
		desc.inum, len(blocks), len(exts))
	return nil
}
