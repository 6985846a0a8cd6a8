package alloc

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-clusterfs/addr"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/super"
	"github.com/mit-pdos/go-clusterfs/util"
)

var (
	ErrExhausted = errors.New("no free clusters")
	ErrBadList   = errors.New("corrupt free-cluster list")
	ErrBadAddr   = errors.New("not a data cluster")
)

// Alloc hands out clusters from the free list threaded through the data
// region. The list head lives in sb, which the caller shares with the
// session; every change to the head is persisted before Allocate or Free
// returns.
type Alloc struct {
	d        disk.Device
	sb       *super.Superblock
	clusters addr.Cluster
}

func MkAlloc(d disk.Device, sb *super.Superblock) *Alloc {
	a := &Alloc{
		d:        d,
		sb:       sb,
		clusters: sb.Clusters(),
	}
	return a
}

func (a *Alloc) checkLink(next common.Sector) error {
	if next == common.NULLSECTOR {
		return nil
	}
	if _, ok := a.clusters.Number(next); !ok {
		return fmt.Errorf("%w: link to %d", ErrBadList, next)
	}
	return nil
}

// Allocate unlinks the head cluster and returns its first sector.
//
// The new head is persisted before the cluster is handed out, so a crash in
// between leaves the cluster unreachable but never doubly owned. The
// cluster's stale header is zeroed on the way out.
func (a *Alloc) Allocate() (common.Sector, error) {
	head := a.sb.FreeHead
	if head == common.NULLSECTOR {
		return common.NULLSECTOR, ErrExhausted
	}
	hdr, err := super.ReadClusterHeader(a.d, head)
	if err != nil {
		return common.NULLSECTOR, err
	}
	if err := a.checkLink(hdr.Next); err != nil {
		return common.NULLSECTOR, err
	}

	a.sb.FreeHead = hdr.Next
	if err := a.sb.Write(a.d); err != nil {
		a.sb.FreeHead = head
		return common.NULLSECTOR, err
	}

	if err := a.d.WriteSector(head, make(disk.Sector, disk.SectorSize)); err != nil {
		util.DPrintf(1, "Allocate: leaked cluster %d: %v\n", head, err)
		return common.NULLSECTOR, fmt.Errorf("clearing cluster %d: %w", head, err)
	}
	util.DPrintf(5, "Allocate: %d next %d\n", head, hdr.Next)
	return head, nil
}

// Free pushes cluster c back on the list. Its header is written to point at
// the current head before the head is moved to c.
func (a *Alloc) Free(c common.Sector) error {
	if _, ok := a.clusters.Number(c); !ok {
		return fmt.Errorf("%w: %d", ErrBadAddr, c)
	}
	old := a.sb.FreeHead
	if old == c {
		return fmt.Errorf("%w: double free of %d", ErrBadList, c)
	}
	if err := (super.ClusterHeader{Next: old}).Write(a.d, c); err != nil {
		return err
	}
	a.sb.FreeHead = c
	if err := a.sb.Write(a.d); err != nil {
		a.sb.FreeHead = old
		return err
	}
	util.DPrintf(5, "Free: %d next %d\n", c, old)
	return nil
}

// Walk calls f on every free cluster in list order. It fails if the list
// leaves the data region or visits a cluster twice.
func (a *Alloc) Walk(f func(c common.Sector)) error {
	seen := make([]bool, a.clusters.Count)
	for c := a.sb.FreeHead; c != common.NULLSECTOR; {
		n, ok := a.clusters.Number(c)
		if !ok {
			return fmt.Errorf("%w: link to %d", ErrBadList, c)
		}
		if seen[n] {
			return fmt.Errorf("%w: cycle at %d", ErrBadList, c)
		}
		seen[n] = true
		f(c)
		hdr, err := super.ReadClusterHeader(a.d, c)
		if err != nil {
			return err
		}
		c = hdr.Next
	}
	return nil
}

func (a *Alloc) NumFree() (uint64, error) {
	var n uint64
	err := a.Walk(func(common.Sector) { n++ })
	return n, err
}
