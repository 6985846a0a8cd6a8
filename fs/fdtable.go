package fs

import (
	"fmt"

	"github.com/mit-pdos/go-clusterfs/common"
)

// A descriptor binds an open inode to a cursor. Only Read and Write move
// the cursor; Close resets it.
type descriptor struct {
	used   bool
	inum   common.Inum
	cursor uint64
	dev    uint64 // Id of the owning device
}

// fdTable maps handles 1..MaxFDs to descriptors.
type fdTable struct {
	fds [common.MaxFDs]descriptor
}

func (t *fdTable) hasFree() bool {
	for i := range t.fds {
		if !t.fds[i].used {
			return true
		}
	}
	return false
}

func (t *fdTable) bind(inum common.Inum, dev uint64) (int, error) {
	for i := range t.fds {
		if !t.fds[i].used {
			t.fds[i] = descriptor{used: true, inum: inum, cursor: 0, dev: dev}
			return i + 1, nil
		}
	}
	return -1, ErrTooManyOpenFiles
}

func (t *fdTable) get(fd int) (*descriptor, error) {
	if fd <= 0 || fd > common.MaxFDs {
		return nil, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	desc := &t.fds[fd-1]
	if !desc.used {
		return nil, fmt.Errorf("%w: %d is not open", ErrBadDescriptor, fd)
	}
	return desc, nil
}

func (t *fdTable) release(fd int) error {
	desc, err := t.get(fd)
	if err != nil {
		return err
	}
	*desc = descriptor{}
	return nil
}

// rewind moves every descriptor on inum back to offset 0.
func (t *fdTable) rewind(inum common.Inum) {
	for i := range t.fds {
		if t.fds[i].used && t.fds[i].inum == inum {
			t.fds[i].cursor = 0
		}
	}
}

func (t *fdTable) inUse() int {
	n := 0
	for i := range t.fds {
		if t.fds[i].used {
			n++
		}
	}
	return n
}
