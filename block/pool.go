// Package block implements the flat block pool that backs every inode in
// the engine: a fixed number of fixed-size blocks plus a bitmap tracking
// which of them are claimed.
package block

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inodefs/inodefs/fserr"
	"github.com/inodefs/inodefs/util/bitmap"
)

// Size is the fixed size, in bytes, of every block in the pool. The engine
// has no notion of variable block sizes.
const Size = 64

// sentinel is the reserved block index meaning "absent" everywhere a block
// pointer is stored. Block 0 is never handed out by Claim.
const sentinel = 0

// Pool is a flat array of fixed-size blocks with a bitmap availability map.
// It is not safe for concurrent use without external locking; see the
// concurrency notes on volume.Volume, which is the only intended caller.
type Pool struct {
	data      []byte
	used      *bitmap.Map
	total     int
	available int
	log       *logrus.Entry
}

// New creates a pool of total blocks, each Size bytes. Block 0 is marked
// used immediately since it is the permanent sentinel.
func New(total int, log *logrus.Entry) (*Pool, error) {
	if total < 1 {
		return nil, fmt.Errorf("block: total blocks must be at least 1, got %d", total)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Pool{
		data:      make([]byte, total*Size),
		used:      bitmap.New(total),
		total:     total,
		available: total - 1,
		log:       log,
	}
	if err := p.used.MarkUsed(sentinel); err != nil {
		return nil, fmt.Errorf("block: marking sentinel used: %w", err)
	}
	return p, nil
}

// Total returns the total number of blocks in the pool, including the
// reserved sentinel block.
func (p *Pool) Total() int { return p.total }

// Available returns the number of currently unclaimed blocks.
func (p *Pool) Available() int { return p.available }

// Claim returns the lowest-indexed available block at index >= 1, marking
// it used. If zero is requested, the block is zeroed before being handed
// back; this matters only for newly allocated index blocks, which must be
// zeroed so the "end of chain / end of slots" encoding is well defined.
func (p *Pool) Claim(zero bool) (uint32, error) {
	i := p.used.FirstAvailable(1)
	if i < 0 || i >= p.total {
		return 0, fserr.ErrOutOfBlocks
	}
	if err := p.used.MarkUsed(i); err != nil {
		return 0, fmt.Errorf("block: marking block %d used: %w", i, err)
	}
	p.available--
	if zero {
		p.zero(uint32(i))
	}
	p.log.WithFields(logrus.Fields{
		"block":     i,
		"available": p.available,
	}).Debug("block: claimed")
	return uint32(i), nil
}

// Release returns block to the pool. Releasing block 0 or an already-free
// block is a programming error.
func (p *Pool) Release(index uint32) error {
	if index == sentinel || int(index) >= p.total {
		return fmt.Errorf("block: cannot release reserved/out-of-range block %d", index)
	}
	set, err := p.used.IsUsed(int(index))
	if err != nil {
		return fmt.Errorf("block: checking block %d: %w", index, err)
	}
	if !set {
		return fmt.Errorf("block: double release of block %d", index)
	}
	if err := p.used.MarkFree(int(index)); err != nil {
		return fmt.Errorf("block: clearing block %d: %w", index, err)
	}
	p.available++
	p.log.WithFields(logrus.Fields{
		"block":     index,
		"available": p.available,
	}).Debug("block: released")
	return nil
}

// At returns the byte slice backing the given block index, to be
// reinterpreted by the caller.
func (p *Pool) At(index uint32) []byte {
	start := int(index) * Size
	return p.data[start : start+Size]
}

func (p *Pool) zero(index uint32) {
	b := p.At(index)
	for i := range b {
		b[i] = 0
	}
}

// NeededFor returns the number of additional data blocks, plus the index
// blocks those data blocks imply, needed to grow a file from oldSize to
// newSize bytes under the given direct/indirect geometry. It is pure: it
// performs no allocation.
func NeededFor(oldSize, newSize uint64, directCount, slotsPerIndex int) int {
	if newSize <= oldSize {
		return 0
	}
	oldDataBlocks := ceilDiv(oldSize, Size)
	newDataBlocks := ceilDiv(newSize, Size)
	dataBlocksNeeded := newDataBlocks - oldDataBlocks

	directCap := uint64(directCount)
	oldIndexBlocks := indexBlocksFor(oldDataBlocks, directCap, uint64(slotsPerIndex))
	newIndexBlocks := indexBlocksFor(newDataBlocks, directCap, uint64(slotsPerIndex))

	return int(dataBlocksNeeded) + int(newIndexBlocks-oldIndexBlocks)
}

func indexBlocksFor(dataBlocks, directCount, slotsPerIndex uint64) uint64 {
	if dataBlocks <= directCount {
		return 0
	}
	indirectBlocks := dataBlocks - directCount
	return ceilDivU(indirectBlocks, slotsPerIndex)
}

func ceilDiv(n uint64, size int) uint64 {
	return ceilDivU(n, uint64(size))
}

func ceilDivU(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
