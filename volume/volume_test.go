package volume

import (
	"testing"

	"github.com/inodefs/inodefs/inode"
)

func TestNewBootstrapsRootInode(t *testing.T) {
	v, err := New(16, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, err := v.Inode(RootInode)
	if err != nil {
		t.Fatalf("Inode(root): %v", err)
	}
	if root.FileSize != 0 {
		t.Fatalf("root FileSize = %d, want 0", root.FileSize)
	}
}

func TestAllocateInodeAssignsIncreasingNumbers(t *testing.T) {
	v, _ := New(16, nil)
	first, _, err := v.AllocateInode()
	if err != nil {
		t.Fatalf("AllocateInode: %v", err)
	}
	second, _, err := v.AllocateInode()
	if err != nil {
		t.Fatalf("AllocateInode: %v", err)
	}
	if first == second || first < RootInode+1 || second != first+1 {
		t.Fatalf("unexpected inode numbers: first=%d second=%d", first, second)
	}
}

func TestFreeInodeRejectsRootAndNonEmpty(t *testing.T) {
	v, _ := New(16, nil)
	if err := v.FreeInode(RootInode); err == nil {
		t.Fatalf("expected error freeing the root inode")
	}

	n, in, _ := v.AllocateInode()
	if err := inode.WriteAppend(v, in, []byte("hi"), 2); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}
	if err := v.FreeInode(n); err == nil {
		t.Fatalf("expected error freeing an inode with reachable blocks")
	}
	if err := inode.Release(v, in); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := v.FreeInode(n); err != nil {
		t.Fatalf("FreeInode after release: %v", err)
	}
	if _, err := v.Inode(n); err == nil {
		t.Fatalf("expected error looking up a freed inode")
	}
}

func TestVolumeSatisfiesInodeStoreEndToEnd(t *testing.T) {
	v, _ := New(32, nil)
	_, in, _ := v.AllocateInode()

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	if err := inode.WriteAppend(v, in, data, len(data)); err != nil {
		t.Fatalf("WriteAppend: %v", err)
	}

	got := make([]byte, len(data))
	var n int
	if err := inode.Read(v, in, 0, got, len(got), &n); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Read n = %d, want %d", n, len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}
