package inode

import (
	"bytes"
	"testing"

	"github.com/inodefs/inodefs/block"
	"github.com/inodefs/inodefs/fserr"
)

// poolStore adapts a bare block.Pool to Store so the engine can be tested
// without a volume.
type poolStore struct{ *block.Pool }

func (s poolStore) ClaimBlock(zero bool) (uint32, error) { return s.Claim(zero) }
func (s poolStore) ReleaseBlock(index uint32) error      { return s.Release(index) }
func (s poolStore) AvailableBlocks() int                 { return s.Available() }
func (s poolStore) BlockAt(index uint32) []byte          { return s.At(index) }
func (s poolStore) NeededBlocks(oldSize, newSize uint64) int {
	return block.NeededFor(oldSize, newSize, DirectCount, SlotsPerIndex)
}

func newTestStore(t *testing.T, total int) poolStore {
	t.Helper()
	p, err := block.New(total, nil)
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}
	return poolStore{p}
}

func fill(n int, from byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = from + byte(i)
	}
	return b
}

// countChain returns how many index blocks are reachable from the inode's
// indirect chain, stopping at the first zero "next" slot.
func countChain(p poolStore, head uint32) int {
	n := 0
	cur := head
	for cur != 0 {
		n++
		data := p.At(cur)
		cur = readSlot(data, nextSlot)
	}
	return n
}

func TestWriteAppendWithinDirectBlocks(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()
	data := fill(100, 1)

	if err := WriteAppend(p, in, data, len(data)); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if in.FileSize != 100 {
		t.Fatalf("FileSize = %d, want 100", in.FileSize)
	}

	got := make([]byte, 100)
	var n int
	if err := Read(p, in, 0, got, 100, &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 100 || !bytes.Equal(got, data) {
		t.Fatalf("Read back mismatch: n=%d", n)
	}
}

func TestWriteAppendCrossesIntoIndirect(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()

	// Fill the 4 direct blocks (256 bytes) exactly, then append one more
	// byte, forcing allocation of an index block plus one data block.
	if err := WriteAppend(p, in, fill(256, 0), 256); err != nil {
		t.Fatalf("WriteAppend direct fill: %v", err)
	}
	if in.IndirectHead != 0 {
		t.Fatalf("IndirectHead should still be unset after filling direct blocks")
	}

	if err := WriteAppend(p, in, []byte{0xaa}, 1); err != nil {
		t.Fatalf("WriteAppend crossing byte: %v", err)
	}
	if in.FileSize != 257 {
		t.Fatalf("FileSize = %d, want 257", in.FileSize)
	}
	if in.IndirectHead == 0 {
		t.Fatalf("IndirectHead should be set after crossing direct capacity")
	}

	got := make([]byte, 1)
	var n int
	if err := Read(p, in, 256, got, 1, &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || got[0] != 0xaa {
		t.Fatalf("Read at offset 256 = %v, want [0xaa]", got)
	}
}

func TestWriteAppendFillsFirstIndexBlock(t *testing.T) {
	p := newTestStore(t, 64)
	in := New()

	// DirectCapacity (256) + SlotsPerIndex*BlockSize (15*64=960) = 1216
	// bytes fills direct blocks and the first index block's slots exactly.
	total := int(DirectCapacity) + SlotsPerIndex*block.Size
	if err := WriteAppend(p, in, fill(total, 7), total); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if in.FileSize != uint64(total) {
		t.Fatalf("FileSize = %d, want %d", in.FileSize, total)
	}
	if countChain(p, in.IndirectHead) != 1 {
		t.Fatalf("expected exactly one index block, got %d", countChain(p, in.IndirectHead))
	}

	data := p.At(in.IndirectHead)
	if readSlot(data, nextSlot) != 0 {
		t.Fatalf("single full index block should have no next pointer yet")
	}
}

func TestModifyAtOffsetWithinExistingData(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()
	if err := WriteAppend(p, in, fill(200, 0), 200); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}

	patch := fill(100, 0x50)
	if err := Modify(p, in, 30, patch, 100); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if in.FileSize != 200 {
		t.Fatalf("FileSize = %d, want 200 (modify within bounds does not grow)", in.FileSize)
	}

	got := make([]byte, 100)
	var n int
	if err := Read(p, in, 30, got, 100, &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 100 || !bytes.Equal(got, patch) {
		t.Fatalf("patched region mismatch")
	}
}

func TestModifyPastEndOfFileGrowsIt(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()
	if err := WriteAppend(p, in, fill(50, 0), 50); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if err := Modify(p, in, 40, fill(30, 0xff), 30); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if in.FileSize != 70 {
		t.Fatalf("FileSize = %d, want 70", in.FileSize)
	}
}

func TestModifyBeyondFileSizeRejected(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()
	if err := WriteAppend(p, in, fill(10, 0), 10); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if err := Modify(p, in, 20, fill(5, 0), 5); err != fserr.ErrInvalidInput {
		t.Fatalf("Modify beyond EOF = %v, want ErrInvalidInput", err)
	}
}

func TestWriteAppendRollsBackOnExhaustion(t *testing.T) {
	// Exactly enough blocks for the sentinel plus 4 direct data blocks
	// (256 bytes); one more byte requires an index block this pool can't
	// supply.
	p := newTestStore(t, 5)
	in := New()
	if err := WriteAppend(p, in, fill(256, 0), 256); err != nil {
		t.Fatalf("WriteAppend direct fill: %v", err)
	}
	before := in.FileSize
	availBefore := p.Available()

	err := WriteAppend(p, in, []byte{1}, 1)
	if err != fserr.ErrOutOfBlocks {
		t.Fatalf("WriteAppend over capacity = %v, want ErrOutOfBlocks", err)
	}
	if in.FileSize != before {
		t.Fatalf("FileSize rolled forward despite failure: got %d, want %d", in.FileSize, before)
	}
	if p.Available() != availBefore {
		t.Fatalf("pool availability changed despite a pre-checked, rejected write")
	}
}

func TestShrinkFromIndirectBackToDirectOnly(t *testing.T) {
	p := newTestStore(t, 64)
	in := New()
	total := int(DirectCapacity) + SlotsPerIndex*block.Size
	if err := WriteAppend(p, in, fill(total, 3), total); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	availFull := p.Available()

	if err := Shrink(p, in, 100); err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if in.FileSize != 100 {
		t.Fatalf("FileSize = %d, want 100", in.FileSize)
	}
	if in.IndirectHead != 0 {
		t.Fatalf("IndirectHead should be released after shrinking under direct capacity")
	}
	for i := 2; i < DirectCount; i++ {
		if in.Direct[i] != 0 {
			t.Fatalf("Direct[%d] should be released, still = %d", i, in.Direct[i])
		}
	}
	if p.Available() <= availFull {
		t.Fatalf("Available() did not grow after releasing blocks")
	}

	got := make([]byte, 100)
	var n int
	if err := Read(p, in, 0, got, 100, &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 100 || !bytes.Equal(got, fill(100, 3)) {
		t.Fatalf("surviving bytes mismatch after shrink")
	}
}

func TestShrinkPrunesChainTail(t *testing.T) {
	p := newTestStore(t, 128)
	in := New()
	// One full index block's worth plus a bit: enough to need a second
	// index block in the chain.
	total := int(DirectCapacity) + SlotsPerIndex*block.Size + 10
	if err := WriteAppend(p, in, fill(total, 5), total); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if countChain(p, in.IndirectHead) != 2 {
		t.Fatalf("expected two index blocks before shrink, got %d", countChain(p, in.IndirectHead))
	}

	// Shrink back to just inside the first index block's capacity.
	newSize := uint64(int(DirectCapacity) + 10*block.Size)
	if err := Shrink(p, in, newSize); err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if in.FileSize != newSize {
		t.Fatalf("FileSize = %d, want %d", in.FileSize, newSize)
	}
	if countChain(p, in.IndirectHead) != 1 {
		t.Fatalf("expected chain pruned to one index block, got %d", countChain(p, in.IndirectHead))
	}
}

func TestReleaseEmptiesInode(t *testing.T) {
	p := newTestStore(t, 64)
	in := New()
	total := int(DirectCapacity) + SlotsPerIndex*block.Size
	if err := WriteAppend(p, in, fill(total, 9), total); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	availBefore := p.Available()

	if err := Release(p, in); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if in.FileSize != 0 {
		t.Fatalf("FileSize = %d, want 0", in.FileSize)
	}
	if in.IndirectHead != 0 {
		t.Fatalf("IndirectHead should be 0 after Release")
	}
	for i, d := range in.Direct {
		if d != 0 {
			t.Fatalf("Direct[%d] = %d, want 0 after Release", i, d)
		}
	}
	if p.Available() != p.Total()-1 {
		t.Fatalf("Available() = %d, want all blocks but the sentinel free", p.Available())
	}
	_ = availBefore
}

func TestReadPastEndOfFileIsShortNotError(t *testing.T) {
	p := newTestStore(t, 16)
	in := New()
	if err := WriteAppend(p, in, fill(10, 0), 10); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	buf := make([]byte, 10)
	var n int
	if err := Read(p, in, 10, buf, 10, &n); err != nil {
		t.Fatalf("Read past EOF: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 reading at EOF", n)
	}
}

func TestWriteThenShrinkThenWriteRoundTrip(t *testing.T) {
	p := newTestStore(t, 32)
	in := New()
	if err := WriteAppend(p, in, fill(200, 1), 200); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if err := Shrink(p, in, 50); err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if err := WriteAppend(p, in, fill(20, 2), 20); err != nil {
		t.Fatalf("WriteAppend after shrink: %v", err)
	}
	if in.FileSize != 70 {
		t.Fatalf("FileSize = %d, want 70", in.FileSize)
	}

	got := make([]byte, 70)
	var n int
	if err := Read(p, in, 0, got, 70, &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 70 {
		t.Fatalf("n = %d, want 70", n)
	}
	if !bytes.Equal(got[:50], fill(50, 1)) {
		t.Fatalf("surviving prefix mismatch after shrink")
	}
	if !bytes.Equal(got[50:], fill(20, 2)) {
		t.Fatalf("appended tail mismatch")
	}
}
