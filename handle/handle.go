// Package handle implements the file-handle layer as a thin wrapper over
// the engine: open resolves a path through the directory tree and binds a
// handle to the resolved inode at offset 0; read calls the engine's read
// and advances the offset; write calls inode.Modify (append is simply the
// offset == file_size case); seek computes a new offset under the three
// POSIX-style modes, rejecting negative results and clamping positive
// overshoot to the file's size.
package handle

import (
	"fmt"
	"io"
	stdpath "path"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inodefs/inodefs/inode"
	"github.com/inodefs/inodefs/tree"
	"github.com/inodefs/inodefs/volume"
)

// Table opens and tracks handles against one volume/tree pair.
type Table struct {
	vol *volume.Volume
	tr  *tree.Tree
	log *logrus.Entry
}

// NewTable returns a Table over vol and tr.
func NewTable(vol *volume.Volume, tr *tree.Tree, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{vol: vol, tr: tr, log: log.WithField("component", "handle")}
}

// Handle is a single open file: an inode plus a cursor offset, carrying a
// generation id purely for log correlation; the id never affects behavior.
type Handle struct {
	id       uuid.UUID
	vol      *volume.Volume
	inodeNum uint32
	in       *inode.Inode
	offset   uint64
	log      *logrus.Entry
}

// Open resolves path (relative to the session's current directory, or
// absolute) to a file inode, creating it if create is true and it does not
// already exist, and returns a handle positioned at offset 0.
func (t *Table) Open(s *tree.Session, path string, create bool) (*Handle, error) {
	dir, base := stdpath.Dir(path), stdpath.Base(path)
	if base == "" || base == "." || base == "/" {
		return nil, fmt.Errorf("handle: %q does not name a file", path)
	}

	parentNum, err := t.tr.Resolve(s.Cwd, dir)
	if err != nil {
		return nil, fmt.Errorf("handle: resolving %q: %w", dir, err)
	}

	e, ok, err := t.tr.Lookup(parentNum, base)
	if err != nil {
		return nil, err
	}

	var childNum uint32
	if !ok {
		if !create {
			return nil, fmt.Errorf("handle: %q not found", path)
		}
		childNum, err = t.tr.Create(&tree.Session{Cwd: parentNum}, base)
		if err != nil {
			return nil, err
		}
	} else {
		if e.Kind != tree.KindFile {
			return nil, fmt.Errorf("handle: %q is a directory", path)
		}
		childNum = e.Inode
	}

	in, err := t.vol.Inode(childNum)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		id:       uuid.New(),
		vol:      t.vol,
		inodeNum: childNum,
		in:       in,
		log:      t.log.WithFields(logrus.Fields{"handle": "new", "inode": childNum}),
	}
	h.log = h.log.WithField("generation", h.id.String())
	h.log.Debug("handle: opened")
	return h, nil
}

// Close releases the handle. The underlying inode and its blocks are
// untouched; Close only ends this handle's view onto it.
func (h *Handle) Close() error {
	h.log.Debug("handle: closed")
	return nil
}

// Read copies up to len(buf) bytes starting at the handle's current offset
// and advances the offset by the number of bytes actually read. A read at
// or past end of file returns (0, nil), POSIX's short-read convention
// rather than an error.
func (h *Handle) Read(buf []byte) (int, error) {
	var n int
	if err := inode.Read(h.vol, h.in, h.offset, buf, len(buf), &n); err != nil {
		return 0, err
	}
	h.offset += uint64(n)
	return n, nil
}

// Write overwrites, extending the file if necessary, len(buf) bytes at the
// handle's current offset and advances the offset by len(buf). Writing at
// exactly the current end of file behaves like an append.
func (h *Handle) Write(buf []byte) (int, error) {
	if err := inode.Modify(h.vol, h.in, h.offset, buf, len(buf)); err != nil {
		return 0, err
	}
	h.offset += uint64(len(buf))
	return len(buf), nil
}

// Seek moves the handle's offset under the three POSIX modes
// (io.SeekStart, io.SeekCurrent, io.SeekEnd), rejecting a negative result
// and clamping a positive overshoot to the file's current size.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(h.offset)
	case io.SeekEnd:
		base = int64(h.in.FileSize)
	default:
		return 0, fmt.Errorf("handle: invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("handle: seek to negative offset %d", next)
	}
	if uint64(next) > h.in.FileSize {
		next = int64(h.in.FileSize)
	}
	h.offset = uint64(next)
	return next, nil
}

// Size returns the handle's underlying inode's current file size.
func (h *Handle) Size() uint64 { return h.in.FileSize }

// InodeNumber returns the inode number this handle is bound to.
func (h *Handle) InodeNumber() uint32 { return h.inodeNum }
