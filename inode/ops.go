package inode

import (
	"github.com/inodefs/inodefs/block"
	"github.com/inodefs/inodefs/fserr"
)

// WriteAppend appends the first n bytes of data at the current end of in's
// file, pre-checking pool capacity so a failure leaves in untouched.
func WriteAppend(store Store, in *Inode, data []byte, n int) error {
	if in == nil || store == nil {
		return fserr.ErrInvalidInput
	}
	if n < 0 || n > len(data) {
		return fserr.ErrInvalidInput
	}
	if n == 0 {
		return nil
	}

	original := in.FileSize
	target := original + uint64(n)
	if store.NeededBlocks(original, target) > store.AvailableBlocks() {
		return fserr.ErrOutOfBlocks
	}

	offset := original
	written := 0
	for written < n {
		loc, err := locate(store, in, offset, true)
		if err != nil {
			in.FileSize = original
			return err
		}
		chunk := block.Size - loc.Offset
		if remaining := n - written; chunk > remaining {
			chunk = remaining
		}
		dst := store.BlockAt(loc.Block)
		copy(dst[loc.Offset:loc.Offset+chunk], data[written:written+chunk])

		written += chunk
		offset += uint64(chunk)
		in.FileSize = offset
	}
	return nil
}

// Read copies up to n bytes starting at offset into buf, clamped to in's
// current file size. Reading at or past end of file is a short, successful
// read of zero bytes, not an error. bytesRead must be non-nil.
func Read(store Store, in *Inode, offset uint64, buf []byte, n int, bytesRead *int) error {
	if in == nil || store == nil || bytesRead == nil {
		return fserr.ErrInvalidInput
	}
	*bytesRead = 0
	if offset >= in.FileSize {
		return nil
	}
	if remaining := in.FileSize - offset; uint64(n) > remaining {
		n = int(remaining)
	}
	if n > len(buf) {
		n = len(buf)
	}
	if n <= 0 {
		return nil
	}

	cur := offset
	read := 0
	for read < n {
		loc, err := locate(store, in, cur, false)
		if err != nil {
			// An in-range read that cannot be located means a reachable
			// block went missing, an internal invariant break.
			return err
		}
		chunk := block.Size - loc.Offset
		if remaining := n - read; chunk > remaining {
			chunk = remaining
		}
		src := store.BlockAt(loc.Block)
		copy(buf[read:read+chunk], src[loc.Offset:loc.Offset+chunk])

		read += chunk
		cur += uint64(chunk)
		*bytesRead = read
	}
	return nil
}

// Modify overwrites n bytes of data at offset, extending the file if the
// write runs past the current end of file. Writing strictly past EOF is
// rejected; writing exactly at EOF behaves like WriteAppend for the tail.
func Modify(store Store, in *Inode, offset uint64, data []byte, n int) error {
	if in == nil || store == nil {
		return fserr.ErrInvalidInput
	}
	if offset > in.FileSize {
		return fserr.ErrInvalidInput
	}
	if n < 0 || n > len(data) {
		return fserr.ErrInvalidInput
	}
	if n == 0 {
		return nil
	}

	original := in.FileSize
	finalSize := original
	if end := offset + uint64(n); end > finalSize {
		finalSize = end
	}
	if store.NeededBlocks(original, finalSize) > store.AvailableBlocks() {
		return fserr.ErrOutOfBlocks
	}

	cur := offset
	written := 0
	for written < n {
		loc, err := locate(store, in, cur, true)
		if err != nil {
			in.FileSize = original
			return err
		}
		chunk := block.Size - loc.Offset
		if remaining := n - written; chunk > remaining {
			chunk = remaining
		}
		dst := store.BlockAt(loc.Block)
		copy(dst[loc.Offset:loc.Offset+chunk], data[written:written+chunk])

		written += chunk
		cur += uint64(chunk)
		if cur > in.FileSize {
			in.FileSize = cur
		}
	}
	in.FileSize = finalSize
	return nil
}

// Shrink reduces in's logical size to newSize, releasing any data and index
// blocks no longer reachable. Shrinking to the current size is a no-op;
// shrinking to a larger size is rejected.
func Shrink(store Store, in *Inode, newSize uint64) error {
	if in == nil || store == nil {
		return fserr.ErrInvalidInput
	}
	if newSize > in.FileSize {
		return fserr.ErrInvalidInput
	}
	if newSize == in.FileSize {
		return nil
	}

	needed := ceilDiv(newSize, block.Size)

	keepDirect := needed
	if keepDirect > DirectCount {
		keepDirect = DirectCount
	}
	for i := keepDirect; i < DirectCount; i++ {
		if in.Direct[i] != 0 {
			if err := store.ReleaseBlock(in.Direct[i]); err != nil {
				return err
			}
			in.Direct[i] = 0
		}
	}

	if newSize <= DirectCapacity {
		if err := releaseChain(store, in.IndirectHead); err != nil {
			return err
		}
		in.IndirectHead = 0
		in.FileSize = newSize
		return nil
	}

	remainingSlots := needed - DirectCount
	cur := in.IndirectHead
	var prev uint32

	for cur != 0 {
		data := store.BlockAt(cur)
		next := readSlot(data, nextSlot)

		keep := remainingSlots
		if keep > SlotsPerIndex {
			keep = SlotsPerIndex
		}
		if keep < 0 {
			keep = 0
		}
		remainingSlots -= keep

		for s := keep; s < SlotsPerIndex; s++ {
			v := readSlot(data, s)
			if v == 0 {
				break
			}
			if err := store.ReleaseBlock(v); err != nil {
				return err
			}
			writeSlot(data, s, 0)
		}

		if keep == 0 {
			if err := releaseChain(store, cur); err != nil {
				return err
			}
			if prev == 0 {
				in.IndirectHead = 0
			} else {
				writeSlot(store.BlockAt(prev), nextSlot, 0)
			}
			break
		}

		if remainingSlots == 0 {
			if next != 0 {
				if err := releaseChain(store, next); err != nil {
					return err
				}
				writeSlot(data, nextSlot, 0)
			}
			break
		}

		prev = cur
		cur = next
	}

	in.FileSize = newSize
	return nil
}

// Release returns in to an empty state, releasing every block it
// reaches. It is equivalent to Shrink(store, in, 0).
func Release(store Store, in *Inode) error {
	return Shrink(store, in, 0)
}

func ceilDiv(n uint64, size int) int {
	d := uint64(size)
	if d == 0 {
		return 0
	}
	return int((n + d - 1) / d)
}
