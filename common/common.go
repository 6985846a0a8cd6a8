package common

import "errors"

type Inum uint32

// Sector is an absolute, zero-based device sector number.
type Sector = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1

	// NULLSECTOR terminates the free-cluster list and marks an unmapped
	// block. Sector 0 always holds the superblock.
	NULLSECTOR Sector = 0
)

const (
	SUPERBLOCKSECTOR Sector = 0

	// MaxFDs is the size of a session's descriptor table.
	MaxFDs = 128

	// one inode per INODERATIO clusters, clamped to [MININODES, MAXINODES]
	INODERATIO uint64 = 8
	MININODES  uint64 = 8
	MAXINODES  uint64 = 1024
)

// ErrInvalidArgument reports a nil device, empty path or nil buffer.
var ErrInvalidArgument = errors.New("invalid argument")
