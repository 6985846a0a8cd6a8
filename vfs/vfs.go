// Package vfs is the integer file-API surface over fs sessions.
//
// Every call returns -1 (or false) on failure; the cause is kept and can be
// fetched with Err. Descriptors are global across devices. Calls on the same
// device are serialized by a per-device lock, which is the external
// exclusion fs.Session requires; calls on different devices run in parallel.
package vfs

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/fs"
	"github.com/mit-pdos/go-clusterfs/lockmap"
	"github.com/mit-pdos/go-clusterfs/mkfs"
	"github.com/mit-pdos/go-clusterfs/util"
)

// A handle names a descriptor of one session.
type handle struct {
	used bool
	dev  uint64
	fd   int
}

type FS struct {
	locks *lockmap.LockMap

	mu       sync.Mutex // guards the fields below
	sessions map[uint64]*fs.Session
	handles  []handle
	err      error
}

func MkFS() *FS {
	return &FS{
		locks:    lockmap.MkLockMap(),
		sessions: make(map[uint64]*fs.Session),
	}
}

func (v *FS) fail(op string, err error) {
	util.DPrintf(1, "vfs %s: %v\n", op, err)
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

// Err returns the cause of the most recent failed call.
func (v *FS) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *FS) session(dev uint64) (*fs.Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sessions[dev]
	if !ok {
		return nil, fmt.Errorf("disk %d: %w", dev, fs.ErrNotMounted)
	}
	return s, nil
}

func (v *FS) bindHandle(dev uint64, fd int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	h := handle{used: true, dev: dev, fd: fd}
	for i := range v.handles {
		if !v.handles[i].used {
			v.handles[i] = h
			return i + 1
		}
	}
	v.handles = append(v.handles, h)
	return len(v.handles)
}

func (v *FS) lookup(gfd int) (handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gfd <= 0 || gfd > len(v.handles) || !v.handles[gfd-1].used {
		return handle{}, fmt.Errorf("%w: %d", fs.ErrBadDescriptor, gfd)
	}
	return v.handles[gfd-1], nil
}

func (v *FS) dropHandle(gfd int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handles[gfd-1] = handle{}
}

// dropDevice forgets every handle on dev. Caller holds v.mu.
func (v *FS) dropDevice(dev uint64) {
	for i := range v.handles {
		if v.handles[i].used && v.handles[i].dev == dev {
			v.handles[i] = handle{}
		}
	}
}

// Format lays out d with clusters of blockSize bytes and returns the number
// of clusters, or -1. A mounted device cannot be formatted.
func (v *FS) Format(d disk.Device, blockSize uint64) int64 {
	if d == nil {
		v.fail("format", common.ErrInvalidArgument)
		return -1
	}
	var n uint64
	var err error
	v.locks.Do(d.Id(), func() {
		if _, merr := v.session(d.Id()); merr == nil {
			err = fmt.Errorf("disk %d is mounted", d.Id())
			return
		}
		n, err = mkfs.Format(d, blockSize)
	})
	if err != nil {
		v.fail("format", err)
		return -1
	}
	return int64(n)
}

func (v *FS) Mount(d disk.Device) bool {
	if d == nil {
		v.fail("mount", common.ErrInvalidArgument)
		return false
	}
	var err error
	v.locks.Do(d.Id(), func() {
		if _, merr := v.session(d.Id()); merr == nil {
			err = fmt.Errorf("disk %d is already mounted", d.Id())
			return
		}
		var s *fs.Session
		s, err = fs.Mount(d)
		if err != nil {
			return
		}
		v.mu.Lock()
		v.sessions[d.Id()] = s
		v.mu.Unlock()
	})
	if err != nil {
		v.fail("mount", err)
		return false
	}
	return true
}

// Unmount ends the session on d. Descriptors still open on d become invalid.
func (v *FS) Unmount(d disk.Device) bool {
	if d == nil {
		v.fail("unmount", common.ErrInvalidArgument)
		return false
	}
	var err error
	v.locks.Do(d.Id(), func() {
		var s *fs.Session
		s, err = v.session(d.Id())
		if err != nil {
			return
		}
		v.mu.Lock()
		delete(v.sessions, d.Id())
		v.dropDevice(d.Id())
		v.mu.Unlock()
		err = s.Unmount()
	})
	if err != nil {
		v.fail("unmount", err)
		return false
	}
	return true
}

// IsIdle reports whether d has no open descriptors. An unmounted device is
// idle.
func (v *FS) IsIdle(d disk.Device) bool {
	if d == nil {
		return true
	}
	idle := true
	v.locks.Do(d.Id(), func() {
		if s, err := v.session(d.Id()); err == nil {
			idle = s.IsIdle()
		}
	})
	return idle
}

// withSession runs f on the session of dev under its device lock.
func (v *FS) withSession(dev uint64, f func(s *fs.Session) error) error {
	v.locks.Acquire(dev)
	defer v.locks.Release(dev)
	s, err := v.session(dev)
	if err != nil {
		return err
	}
	return f(s)
}

// withHandle runs f on the session descriptor behind gfd.
func (v *FS) withHandle(gfd int, f func(s *fs.Session, fd int) error) error {
	h, err := v.lookup(gfd)
	if err != nil {
		return err
	}
	return v.withSession(h.dev, func(s *fs.Session) error {
		// the handle may have been dropped by an unmount while we waited
		cur, err := v.lookup(gfd)
		if err != nil {
			return err
		}
		if cur != h {
			return fmt.Errorf("%w: %d", fs.ErrBadDescriptor, gfd)
		}
		return f(s, h.fd)
	})
}

func (v *FS) Open(d disk.Device, path string) int {
	if d == nil {
		v.fail("open", common.ErrInvalidArgument)
		return -1
	}
	gfd := -1
	err := v.withSession(d.Id(), func(s *fs.Session) error {
		fd, err := s.Open(path)
		if err != nil {
			return err
		}
		gfd = v.bindHandle(d.Id(), fd)
		return nil
	})
	if err != nil {
		v.fail("open", err)
		return -1
	}
	return gfd
}

// OpenInode opens an existing file by inode number.
func (v *FS) OpenInode(d disk.Device, inum common.Inum) int {
	if d == nil {
		v.fail("open inode", common.ErrInvalidArgument)
		return -1
	}
	gfd := -1
	err := v.withSession(d.Id(), func(s *fs.Session) error {
		fd, err := s.OpenInode(inum)
		if err != nil {
			return err
		}
		gfd = v.bindHandle(d.Id(), fd)
		return nil
	})
	if err != nil {
		v.fail("open inode", err)
		return -1
	}
	return gfd
}

func checkCount(p []byte, n int) error {
	if p == nil || n < 0 || n > len(p) {
		return fmt.Errorf("%w: %d bytes into buffer of %d", common.ErrInvalidArgument, n, len(p))
	}
	return nil
}

// Read reads up to n bytes into p and returns the count, 0 at end of file.
func (v *FS) Read(gfd int, p []byte, n int) int {
	if err := checkCount(p, n); err != nil {
		v.fail("read", err)
		return -1
	}
	var m int
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		var err error
		m, err = s.Read(fd, p[:n])
		return err
	})
	if err != nil {
		v.fail("read", err)
		return -1
	}
	return m
}

func (v *FS) Write(gfd int, p []byte, n int) int {
	if err := checkCount(p, n); err != nil {
		v.fail("write", err)
		return -1
	}
	var m int
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		var err error
		m, err = s.Write(fd, p[:n])
		return err
	})
	if err != nil {
		v.fail("write", err)
		return -1
	}
	return m
}

func (v *FS) Close(gfd int) int {
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		if err := s.Close(fd); err != nil {
			return err
		}
		v.dropHandle(gfd)
		return nil
	})
	if err != nil {
		v.fail("close", err)
		return -1
	}
	return 0
}

// Stat describes the file behind gfd.
func (v *FS) Stat(gfd int) (fs.Stat, bool) {
	var st fs.Stat
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		var err error
		st, err = s.Stat(fd)
		return err
	})
	if err != nil {
		v.fail("stat", err)
		return fs.Stat{}, false
	}
	return st, true
}

func (v *FS) Truncate(gfd int) int {
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		return s.Truncate(fd)
	})
	if err != nil {
		v.fail("truncate", err)
		return -1
	}
	return 0
}
