// Package inode implements the inode addressing and data-operation engine:
// the primitives by which bytes are appended to, read from, modified in,
// and released from an inode's backing blocks.
//
// The package has no notion of a filesystem container, path, or directory;
// it operates purely in terms of an Inode value and a Store that can claim,
// release, and hand back the bytes of blocks. That separation mirrors the
// teacher's split between filesystem.FileSystem (a container) and the
// format-specific inode/extent code that walks it.
package inode

import "github.com/inodefs/inodefs/block"

// DirectCount is the number of direct block pointers held in every inode.
const DirectCount = 4

// SlotsPerIndex is the number of data-block pointers held in one index
// block; the final slot in an index block is reserved for the "next index
// block" pointer, so SlotsPerIndex = block.Size/4 - 1.
const SlotsPerIndex = block.Size/4 - 1

// nextSlot is the index-block slot holding the "next index block" pointer.
const nextSlot = SlotsPerIndex

// DirectCapacity is the number of bytes addressable through the direct
// block array alone, before the indirect chain is consulted.
const DirectCapacity = uint64(DirectCount) * block.Size

// Store is the subset of a filesystem container the engine depends on: the
// ability to claim and release blocks, query how many remain, calculate how
// many a resize needs, and get at a block's raw bytes. volume.Volume is the
// concrete implementation; the engine never depends on it directly.
type Store interface {
	// ClaimBlock allocates the lowest available block, optionally zeroing
	// it first (index blocks must be zeroed; data blocks need not be).
	ClaimBlock(zero bool) (uint32, error)
	// ReleaseBlock returns a block to the pool.
	ReleaseBlock(index uint32) error
	// AvailableBlocks returns the number of blocks not currently claimed.
	AvailableBlocks() int
	// NeededBlocks returns how many additional blocks growing a file from
	// oldSize to newSize bytes would require, including index blocks.
	NeededBlocks(oldSize, newSize uint64) int
	// BlockAt returns the raw bytes of the given block for direct
	// inspection or mutation.
	BlockAt(index uint32) []byte
}

// Inode holds the state the engine mutates: the logical size of the file
// and the block pointers reaching its bytes. Inodes are created and owned
// by the caller (the directory layer, in this module); the engine only
// ever receives them by reference.
type Inode struct {
	FileSize     uint64
	Direct       [DirectCount]uint32
	IndirectHead uint32
}

// New returns an empty inode: zero size, no blocks claimed.
func New() *Inode {
	return &Inode{}
}

func readSlot(data []byte, slot int) uint32 {
	off := slot * 4
	return uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
}

func writeSlot(data []byte, slot int, val uint32) {
	off := slot * 4
	data[off] = byte(val)
	data[off+1] = byte(val >> 8)
	data[off+2] = byte(val >> 16)
	data[off+3] = byte(val >> 24)
}
