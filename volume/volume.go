// Package volume implements the filesystem container: the thing that owns
// the block pool and the inode table and is consumed by the inode engine
// through a narrow interface, generalized from "one on-disk partition" to
// "one in-memory volume of blocks and inodes."
package volume

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inodefs/inodefs/block"
	"github.com/inodefs/inodefs/fserr"
	"github.com/inodefs/inodefs/inode"
)

// RootInode is the conventional inode number of the directory tree's root;
// the engine itself does not distinguish it from any other inode.
const RootInode = 0

// Volume owns a block.Pool and an inode table, and implements inode.Store
// so the engine package can operate against it without any import-time
// dependency on how blocks or inodes are actually stored.
//
// A host wanting concurrency can wrap the engine in a single mutex guarding
// the pool and all inodes, or use a pool lock ordered pool-then-inode;
// Volume takes the simpler of those two designs: one sync.Mutex guards the
// pool and the inode table, coarse per-volume locking rather than
// fine-grained per-region locks. The fields of an Inode and the bytes of a
// slice returned by BlockAt are mutated by the engine outside that lock.
type Volume struct {
	mu        sync.Mutex
	pool      *block.Pool
	inodes    map[uint32]*inode.Inode
	nextInode uint32
	log       *logrus.Entry
}

// New creates a Volume with totalBlocks blocks (including the reserved
// sentinel) and bootstraps inode 0 as an empty root directory inode, ready
// for the tree package to populate.
func New(totalBlocks int, log *logrus.Entry) (*Volume, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	pool, err := block.New(totalBlocks, log.WithField("component", "block"))
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}
	v := &Volume{
		pool:      pool,
		inodes:    map[uint32]*inode.Inode{RootInode: inode.New()},
		nextInode: RootInode + 1,
		log:       log.WithField("component", "volume"),
	}
	return v, nil
}

// ClaimBlock implements inode.Store.
func (v *Volume) ClaimBlock(zero bool) (uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Claim(zero)
}

// ReleaseBlock implements inode.Store.
func (v *Volume) ReleaseBlock(index uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Release(index)
}

// AvailableBlocks implements inode.Store.
func (v *Volume) AvailableBlocks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Available()
}

// NeededBlocks implements inode.Store.
func (v *Volume) NeededBlocks(oldSize, newSize uint64) int {
	return block.NeededFor(oldSize, newSize, inode.DirectCount, inode.SlotsPerIndex)
}

// BlockAt implements inode.Store.
func (v *Volume) BlockAt(index uint32) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.At(index)
}

// Lock and Unlock expose the volume's mutex directly. Every other Volume
// method takes the same non-reentrant mutex, so a caller holding it must
// not call them, nor any engine operation that reaches them through
// inode.Store.
func (v *Volume) Lock()   { v.mu.Lock() }
func (v *Volume) Unlock() { v.mu.Unlock() }

// TotalBlocks returns the pool's total block count, including the sentinel.
func (v *Volume) TotalBlocks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool.Total()
}

// AllocateInode reserves the next free inode number and installs an empty
// inode for it, returning both.
func (v *Volume) AllocateInode() (uint32, *inode.Inode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := v.nextInode
	if _, exists := v.inodes[n]; exists {
		return 0, nil, fmt.Errorf("volume: inode %d already allocated", n)
	}
	in := inode.New()
	v.inodes[n] = in
	v.nextInode++
	v.log.WithField("inode", n).Debug("volume: inode allocated")
	return n, in, nil
}

// Inode returns the inode for number n, or fserr.ErrInvalidInput if it does
// not exist.
func (v *Volume) Inode(n uint32) (*inode.Inode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	in, ok := v.inodes[n]
	if !ok {
		return nil, fmt.Errorf("volume: no such inode %d: %w", n, fserr.ErrInvalidInput)
	}
	return in, nil
}

// FreeInode drops an inode from the table. The caller is responsible for
// having already released its blocks (inode.Release): a freed inode must
// leave no reachable blocks.
func (v *Volume) FreeInode(n uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n == RootInode {
		return fmt.Errorf("volume: cannot free the root inode")
	}
	in, ok := v.inodes[n]
	if !ok {
		return fmt.Errorf("volume: no such inode %d: %w", n, fserr.ErrInvalidInput)
	}
	if in.FileSize != 0 || in.IndirectHead != 0 {
		return fmt.Errorf("volume: inode %d still has reachable blocks, release it first", n)
	}
	for _, d := range in.Direct {
		if d != 0 {
			return fmt.Errorf("volume: inode %d still has reachable blocks, release it first", n)
		}
	}
	delete(v.inodes, n)
	v.log.WithField("inode", n).Debug("volume: inode freed")
	return nil
}
