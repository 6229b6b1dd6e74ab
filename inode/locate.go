package inode

import (
	"fmt"

	"github.com/inodefs/inodefs/block"
	"github.com/inodefs/inodefs/fserr"
)

// location is the resolved physical position of a logical byte offset: the
// block holding it, and the offset within that block.
type location struct {
	Block  uint32
	Offset int
}

// locate is the single algorithmic core of the engine: it translates a
// logical byte offset within in into a (block, in-block offset) pair,
// optionally allocating the index blocks and data block needed to reach it.
//
// On any allocation failure partway through a walk, in is left with
// whatever index blocks were already installed; it is the caller's
// responsibility to roll back FileSize. locate never mutates FileSize
// itself.
func locate(store Store, in *Inode, offset uint64, createIfMissing bool) (location, error) {
	if offset < DirectCapacity {
		i := offset / block.Size
		r := int(offset % block.Size)

		if in.Direct[i] == 0 {
			if !createIfMissing {
				return location{}, fserr.ErrNotPresent
			}
			b, err := store.ClaimBlock(false)
			if err != nil {
				return location{}, err
			}
			in.Direct[i] = b
		}
		return location{Block: in.Direct[i], Offset: r}, nil
	}

	t := offset - DirectCapacity

	if in.IndirectHead == 0 {
		if !createIfMissing {
			return location{}, fserr.ErrNotPresent
		}
		b, err := store.ClaimBlock(true)
		if err != nil {
			return location{}, err
		}
		in.IndirectHead = b
	}

	chainIndex := t / (SlotsPerIndex * block.Size)
	cur := in.IndirectHead
	for hop := uint64(0); hop < chainIndex; hop++ {
		data := store.BlockAt(cur)
		next := readSlot(data, nextSlot)
		if next == 0 {
			if !createIfMissing {
				return location{}, fserr.ErrNotPresent
			}
			nb, err := store.ClaimBlock(true)
			if err != nil {
				return location{}, err
			}
			writeSlot(data, nextSlot, nb)
			next = nb
		}
		cur = next
	}

	within := t % (SlotsPerIndex * block.Size)
	s := int((within / block.Size) % SlotsPerIndex)
	r := int(within % block.Size)

	data := store.BlockAt(cur)
	slotValue := readSlot(data, s)
	if slotValue == 0 {
		if !createIfMissing {
			return location{}, fserr.ErrNotPresent
		}
		db, err := store.ClaimBlock(false)
		if err != nil {
			return location{}, err
		}
		writeSlot(data, s, db)
		slotValue = db
	}

	return location{Block: slotValue, Offset: r}, nil
}

// releaseChain releases every index block in the chain rooted at head,
// along with every data block any of them reference. It is used both when
// shrinking a file back under direct capacity and when pruning the tail of
// the chain during a partial shrink.
func releaseChain(store Store, head uint32) error {
	cur := head
	for cur != 0 {
		data := store.BlockAt(cur)
		next := readSlot(data, nextSlot)
		for s := 0; s < SlotsPerIndex; s++ {
			v := readSlot(data, s)
			if v == 0 {
				break // no holes: the first zero slot ends live data in this block
			}
			if err := store.ReleaseBlock(v); err != nil {
				return fmt.Errorf("inode: releasing data block %d: %w", v, err)
			}
		}
		if err := store.ReleaseBlock(cur); err != nil {
			return fmt.Errorf("inode: releasing index block %d: %w", cur, err)
		}
		cur = next
	}
	return nil
}
