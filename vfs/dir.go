package vfs

import (
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/fs"
)

func (v *FS) onDevice(op string, d disk.Device, f func(s *fs.Session) error) int {
	if d == nil {
		v.fail(op, common.ErrInvalidArgument)
		return -1
	}
	if err := v.withSession(d.Id(), f); err != nil {
		v.fail(op, err)
		return -1
	}
	return 0
}

func (v *FS) OpenDir(d disk.Device, path string) int {
	return v.onDevice("opendir", d, func(s *fs.Session) error {
		_, err := s.OpenDir(path)
		return err
	})
}

func (v *FS) Link(d disk.Device, oldPath, newPath string) int {
	return v.onDevice("link", d, func(s *fs.Session) error {
		return s.Link(oldPath, newPath)
	})
}

func (v *FS) Unlink(d disk.Device, path string) int {
	return v.onDevice("unlink", d, func(s *fs.Session) error {
		return s.Unlink(path)
	})
}

// ReadDir and CloseDir take a directory descriptor; none can exist.

func (v *FS) ReadDir(gfd int) ([]string, int) {
	var names []string
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		var err error
		names, err = s.ReadDir(fd)
		return err
	})
	if err != nil {
		v.fail("readdir", err)
		return nil, -1
	}
	return names, 0
}

func (v *FS) CloseDir(gfd int) int {
	err := v.withHandle(gfd, func(s *fs.Session, fd int) error {
		return s.CloseDir(fd)
	})
	if err != nil {
		v.fail("closedir", err)
		return -1
	}
	return 0
}
