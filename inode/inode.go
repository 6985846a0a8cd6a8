// Package inode stores fixed-size inode records in the sectors that follow
// the superblock.
//
// An inode holds NDIRECT block addresses. A file that needs more chains
// extension inodes (type TypeExtension) through the next field; each
// extension holds another NDIRECT addresses.
package inode

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-clusterfs/buf"
	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/util"
)

const (
	INODESZ uint64 = 128 // on-disk size
	NDIRECT uint64 = 12
)

type Type uint32

const (
	TypeFree      Type = 0
	TypeRegular   Type = 1
	TypeDir       Type = 2
	TypeExtension Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeFree:
		return "free"
	case TypeRegular:
		return "regular"
	case TypeDir:
		return "dir"
	case TypeExtension:
		return "extension"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

var (
	ErrRange    = errors.New("inode number out of range")
	ErrFree     = errors.New("inode is not in use")
	ErrNoInodes = errors.New("no free inodes")
	ErrChain    = errors.New("corrupt extension chain")
)

// AreaBeginSector is the first sector of the inode table.
func AreaBeginSector() common.Sector {
	return common.SUPERBLOCKSECTOR + 1
}

func PerSector() uint64 {
	return disk.SectorSize / INODESZ
}

// AreaSectors is the number of sectors a table of n inodes occupies.
func AreaSectors(n uint64) uint64 {
	return util.RoundUp(n, PerSector())
}

// Store is the inode table of one device.
type Store struct {
	d disk.Device
	n uint64 // capacity
}

func MkStore(d disk.Device, numInodes uint64) *Store {
	return &Store{d: d, n: numInodes}
}

func (s *Store) NumInodes() uint64 {
	return s.n
}

func (s *Store) locate(inum common.Inum) (common.Sector, uint64, error) {
	if inum == common.NULLINUM || uint64(inum) > s.n {
		return 0, 0, fmt.Errorf("%w: %d", ErrRange, inum)
	}
	i := uint64(inum) - 1
	return AreaBeginSector() + i/PerSector(), (i % PerSector()) * INODESZ, nil
}

func (s *Store) readRecord(inum common.Inum) (*Inode, error) {
	sector, off, err := s.locate(inum)
	if err != nil {
		return nil, err
	}
	b := buf.MkBuf(sector, off, make([]byte, INODESZ))
	if err := b.ReadDirect(s.d, make([]byte, disk.SectorSize)); err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", inum, err)
	}
	ip := decode(b.Data)
	ip.store = s
	ip.Inum = inum
	return ip, nil
}

func (s *Store) writeRecord(ip *Inode) error {
	sector, off, err := s.locate(ip.Inum)
	if err != nil {
		return err
	}
	b := buf.MkBuf(sector, off, ip.encode())
	if err := b.WriteDirect(s.d, make([]byte, disk.SectorSize)); err != nil {
		return fmt.Errorf("writing inode %d: %w", ip.Inum, err)
	}
	return nil
}

// Create writes an empty record for inum and returns it.
func (s *Store) Create(inum common.Inum) (*Inode, error) {
	ip := &Inode{store: s, Inum: inum}
	if err := s.writeRecord(ip); err != nil {
		return nil, err
	}
	util.DPrintf(10, "inode.Create: %d\n", inum)
	return ip, nil
}

// Load reads inum and its extension chain. It fails on a free slot.
func (s *Store) Load(inum common.Inum) (*Inode, error) {
	ip, err := s.readRecord(inum)
	if err != nil {
		return nil, err
	}
	if ip.typ == TypeFree {
		return nil, fmt.Errorf("%w: %d", ErrFree, inum)
	}
	if err := ip.loadChain(); err != nil {
		return nil, err
	}
	return ip, nil
}

// Release marks inum free on disk.
func (s *Store) Release(inum common.Inum) error {
	if err := s.writeRecord(&Inode{store: s, Inum: inum}); err != nil {
		return err
	}
	util.DPrintf(10, "inode.Release: %d\n", inum)
	return nil
}

// FindFree returns the first free inode number >= start.
func (s *Store) FindFree(start common.Inum) (common.Inum, error) {
	if start == common.NULLINUM {
		start = common.ROOTINUM
	}
	for i := uint64(start); i <= s.n; i++ {
		ip, err := s.readRecord(common.Inum(i))
		if err != nil {
			return common.NULLINUM, err
		}
		if ip.typ == TypeFree {
			return common.Inum(i), nil
		}
	}
	return common.NULLINUM, ErrNoInodes
}

type Inode struct {
	store *Store
	Inum  common.Inum

	typ      Type
	owner    uint32
	group    uint32
	perm     uint32
	refCount uint32
	next     common.Inum // extension inode, or NULLINUM
	size     uint64
	addrs    []uint64

	ext *Inode // loaded copy of next
}

func decode(data []byte) *Inode {
	dec := marshal.NewDec(data)
	ip := &Inode{}
	ip.typ = Type(dec.GetInt32())
	ip.owner = dec.GetInt32()
	ip.group = dec.GetInt32()
	ip.perm = dec.GetInt32()
	ip.refCount = dec.GetInt32()
	ip.next = common.Inum(dec.GetInt32())
	ip.size = dec.GetInt()
	ip.addrs = dec.GetInts(NDIRECT)
	return ip
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(INODESZ)
	enc.PutInt32(uint32(ip.typ))
	enc.PutInt32(ip.owner)
	enc.PutInt32(ip.group)
	enc.PutInt32(ip.perm)
	enc.PutInt32(ip.refCount)
	enc.PutInt32(uint32(ip.next))
	enc.PutInt(ip.size)
	addrs := make([]uint64, NDIRECT)
	copy(addrs, ip.addrs)
	enc.PutInts(addrs)
	return enc.Finish()
}

func (ip *Inode) loadChain() error {
	seen := map[common.Inum]bool{ip.Inum: true}
	cur := ip
	for cur.next != common.NULLINUM {
		if seen[cur.next] {
			return fmt.Errorf("%w: inode %d loops at %d", ErrChain, ip.Inum, cur.next)
		}
		seen[cur.next] = true
		ext, err := ip.store.readRecord(cur.next)
		if err != nil {
			return err
		}
		if ext.typ != TypeExtension {
			return fmt.Errorf("%w: inode %d links to %s inode %d",
				ErrChain, ip.Inum, ext.typ, ext.Inum)
		}
		cur.ext = ext
		cur = ext
	}
	return nil
}

// Save writes the inode and every extension in its chain.
func (ip *Inode) Save() error {
	for cur := ip; cur != nil; cur = cur.ext {
		if err := ip.store.writeRecord(cur); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Inode) Type() Type { return ip.typ }
func (ip *Inode) Owner() uint32 { return ip.owner }
func (ip *Inode) Group() uint32 { return ip.group }
func (ip *Inode) Permission() uint32 { return ip.perm }
func (ip *Inode) RefCount() uint32 { return ip.refCount }
func (ip *Inode) FileSize() uint64 { return ip.size }

func (ip *Inode) SetType(t Type) { ip.typ = t }
func (ip *Inode) SetOwner(uid uint32) { ip.owner = uid }
func (ip *Inode) SetGroup(gid uint32) { ip.group = gid }
func (ip *Inode) SetPermission(p uint32) { ip.perm = p }
func (ip *Inode) SetRefCount(n uint32) { ip.refCount = n }
func (ip *Inode) SetFileSize(size uint64) { ip.size = size }

// BlockAddr returns the address of the i'th block, or 0 if the file has no
// such block.
func (ip *Inode) BlockAddr(i uint64) common.Sector {
	cur := ip
	for i >= NDIRECT {
		if cur.ext == nil {
			return common.NULLSECTOR
		}
		cur = cur.ext
		i -= NDIRECT
	}
	if i >= uint64(len(cur.addrs)) {
		return common.NULLSECTOR
	}
	return cur.addrs[i]
}

// NumBlocks counts the block addresses in the list.
func (ip *Inode) NumBlocks() uint64 {
	var n uint64
	for cur := ip; cur != nil; cur = cur.ext {
		for _, a := range cur.addrs {
			if a == common.NULLSECTOR {
				return n
			}
			n++
		}
	}
	return n
}

func (ip *Inode) tail() *Inode {
	cur := ip
	for cur.ext != nil {
		cur = cur.ext
	}
	return cur
}

// AddBlock appends a to the block list, chaining a new extension inode when
// the last one is full. A new extension is written immediately so FindFree
// will not hand it out again; the addresses themselves are persisted by
// Save.
func (ip *Inode) AddBlock(a common.Sector) error {
	if a == common.NULLSECTOR {
		return fmt.Errorf("inode %d: cannot add block 0", ip.Inum)
	}
	t := ip.tail()
	for i := uint64(0); i < NDIRECT; i++ {
		if i >= uint64(len(t.addrs)) {
			t.addrs = append(t.addrs, a)
			return nil
		}
		if t.addrs[i] == common.NULLSECTOR {
			t.addrs[i] = a
			return nil
		}
	}

	inum, err := ip.store.FindFree(common.ROOTINUM + 1)
	if err != nil {
		return err
	}
	ext := &Inode{
		store:    ip.store,
		Inum:     inum,
		typ:      TypeExtension,
		refCount: 1,
		addrs:    []uint64{a},
	}
	if err := ip.store.writeRecord(ext); err != nil {
		return err
	}
	t.next = inum
	t.ext = ext
	util.DPrintf(10, "AddBlock: inode %d extended by %d\n", ip.Inum, inum)
	return nil
}

// ClearBlocks empties the block list in memory and returns the addresses it
// held, in list order, and the extension inodes that carried them. Nothing
// is written: the caller saves ip first and then releases the extensions, so
// a failed save leaves the old chain intact.
func (ip *Inode) ClearBlocks() ([]common.Sector, []common.Inum) {
	var blocks []common.Sector
	var exts []common.Inum
	for cur := ip; cur != nil; cur = cur.ext {
		if cur != ip {
			exts = append(exts, cur.Inum)
		}
		for _, a := range cur.addrs {
			if a != common.NULLSECTOR {
				blocks = append(blocks, a)
			}
		}
	}
	ip.addrs = nil
	ip.next = common.NULLINUM
	ip.ext = nil
	return blocks, exts
}
