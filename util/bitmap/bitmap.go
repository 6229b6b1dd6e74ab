// Package bitmap is the availability map backing block.Pool: one bit per
// block, 0 meaning free and 1 meaning claimed.
package bitmap

import "fmt"

// Map is a flat bit-per-block availability map.
type Map struct {
	bits []byte
}

// New returns a Map that can address nBlocks blocks, all initially free.
func New(nBlocks int) *Map {
	if nBlocks < 0 {
		nBlocks = 0
	}
	nBytes := (nBlocks + 7) / 8
	return &Map{bits: make([]byte, nBytes)}
}

// IsUsed reports whether block is currently claimed.
func (m *Map) IsUsed(block int) (bool, error) {
	if block < 0 {
		return false, fmt.Errorf("bitmap: block %d is negative", block)
	}
	byteIdx, bitIdx := split(block)
	if byteIdx >= len(m.bits) {
		return false, fmt.Errorf("bitmap: block %d is out of range for a %d-block map", block, len(m.bits)*8)
	}
	mask := byte(1) << bitIdx
	return m.bits[byteIdx]&mask == mask, nil
}

// MarkUsed claims block.
func (m *Map) MarkUsed(block int) error {
	if block < 0 {
		return fmt.Errorf("bitmap: block %d is negative", block)
	}
	byteIdx, bitIdx := split(block)
	if byteIdx >= len(m.bits) {
		return fmt.Errorf("bitmap: block %d is out of range for a %d-block map", block, len(m.bits)*8)
	}
	m.bits[byteIdx] |= byte(1) << bitIdx
	return nil
}

// MarkFree releases block.
func (m *Map) MarkFree(block int) error {
	if block < 0 {
		return fmt.Errorf("bitmap: block %d is negative", block)
	}
	byteIdx, bitIdx := split(block)
	if byteIdx >= len(m.bits) {
		return fmt.Errorf("bitmap: block %d is out of range for a %d-block map", block, len(m.bits)*8)
	}
	m.bits[byteIdx] &^= byte(1) << bitIdx
	return nil
}

// FirstAvailable returns the lowest-indexed free block at index >= start,
// or -1 if the map has no free blocks from start onward.
func (m *Map) FirstAvailable(start int) int {
	if start < 0 {
		start = 0
	}
	totalBits := len(m.bits) * 8
	if start >= totalBits {
		return -1
	}

	byteIdx := start / 8
	bitStart := uint8(start % 8)

	if b := m.bits[byteIdx]; b != 0xff {
		for j := bitStart; j < 8; j++ {
			if b&(byte(1)<<j) == 0 {
				return byteIdx*8 + int(j)
			}
		}
	}

	for i := byteIdx + 1; i < len(m.bits); i++ {
		b := m.bits[i]
		if b == 0xff {
			continue
		}
		for j := uint8(0); j < 8; j++ {
			if b&(byte(1)<<j) == 0 {
				return i*8 + int(j)
			}
		}
	}

	return -1
}

func split(block int) (byteIdx int, bitIdx uint8) {
	return block / 8, uint8(block % 8)
}
