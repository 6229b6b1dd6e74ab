// Package tree implements the directory layer consuming the inode engine:
// creating, removing, and listing files and subdirectories, changing and
// reporting the current directory, and rendering a subtree, expressed in
// terms of inode.WriteAppend/Read/Shrink so the engine is exercised end to
// end rather than left with no real caller.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inodefs/inodefs/inode"
	"github.com/inodefs/inodefs/volume"
)

// Session tracks one caller's current working directory. Multiple sessions
// may share a Tree; the engine's single-threaded concurrency model means
// callers serialize their own access.
type Session struct {
	Cwd uint32
}

// NewSession returns a session rooted at the directory tree's root.
func NewSession() *Session {
	return &Session{Cwd: volume.RootInode}
}

// Tree is the directory layer over one Volume: it reads and writes
// directory inodes as a packed sequence of entry records, touching their
// bytes only through the inode engine's primitives and inode numbers only
// through the Volume's inode table.
type Tree struct {
	vol *volume.Volume
	log *logrus.Entry
}

// New returns a Tree over vol. The root inode is expected to already exist
// (volume.New bootstraps it) but is given its "." and ".." entries here,
// the first time a Tree is built over a fresh volume.
func New(vol *volume.Volume, log *logrus.Entry) (*Tree, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Tree{vol: vol, log: log.WithField("component", "tree")}

	root, err := vol.Inode(volume.RootInode)
	if err != nil {
		return nil, err
	}
	if root.FileSize == 0 {
		if err := t.writeEntries(root, []entry{
			{Name: ".", Kind: KindDir, Inode: volume.RootInode},
			{Name: "..", Kind: KindDir, Inode: volume.RootInode},
		}); err != nil {
			return nil, fmt.Errorf("tree: bootstrapping root: %w", err)
		}
	}
	return t, nil
}

func (t *Tree) readEntries(in *inode.Inode) ([]entry, error) {
	count := int(in.FileSize / entrySize)
	entries := make([]entry, 0, count)
	buf := make([]byte, entrySize)
	for i := 0; i < count; i++ {
		var n int
		if err := inode.Read(t.vol, in, uint64(i*entrySize), buf, entrySize, &n); err != nil {
			return nil, fmt.Errorf("tree: reading directory entry %d: %w", i, err)
		}
		if n != entrySize {
			return nil, fmt.Errorf("tree: short read on directory entry %d", i)
		}
		entries = append(entries, decodeEntry(buf))
	}
	return entries, nil
}

// writeEntries replaces a directory inode's entire contents with entries,
// used both to seed a new directory and to rewrite one after a removal.
func (t *Tree) writeEntries(in *inode.Inode, entries []entry) error {
	if err := inode.Shrink(t.vol, in, 0); err != nil {
		return err
	}
	for _, e := range entries {
		raw, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := inode.WriteAppend(t.vol, in, raw, len(raw)); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds name within the directory numbered dirInodeNum and reports
// whether it exists, for use by callers (the handle layer) that need to
// resolve a leaf name without walking a full path.
func (t *Tree) Lookup(dirInodeNum uint32, name string) (Entry, bool, error) {
	e, ok, err := t.lookup(dirInodeNum, name)
	return Entry{Name: e.Name, Kind: e.Kind, Inode: e.Inode}, ok, err
}

func (t *Tree) lookup(dirInodeNum uint32, name string) (entry, bool, error) {
	dir, err := t.vol.Inode(dirInodeNum)
	if err != nil {
		return entry{}, false, err
	}
	entries, err := t.readEntries(dir)
	if err != nil {
		return entry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return entry{}, false, nil
}

// Resolve walks path, which may be absolute ("/a/b") or relative to from,
// to the inode number it names. "." and ".." are ordinary entries every
// directory carries, so no special-casing is needed beyond splitting the
// path into components.
func (t *Tree) Resolve(from uint32, p string) (uint32, error) {
	cur := from
	if strings.HasPrefix(p, "/") {
		cur = volume.RootInode
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		e, ok, err := t.lookup(cur, part)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("tree: %q not found", part)
		}
		cur = e.Inode
	}
	return cur, nil
}

// Mkdir creates an empty subdirectory named name inside the session's
// current directory and returns its inode number.
func (t *Tree) Mkdir(s *Session, name string) (uint32, error) {
	return t.create(s, name, KindDir)
}

// Create creates an empty regular file named name inside the session's
// current directory and returns its inode number.
func (t *Tree) Create(s *Session, name string) (uint32, error) {
	return t.create(s, name, KindFile)
}

func (t *Tree) create(s *Session, name string, kind Kind) (uint32, error) {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return 0, fmt.Errorf("tree: invalid entry name %q", name)
	}
	if _, exists, err := t.lookup(s.Cwd, name); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("tree: %q already exists", name)
	}

	num, child, err := t.vol.AllocateInode()
	if err != nil {
		return 0, err
	}

	if kind == KindDir {
		if err := t.writeEntries(child, []entry{
			{Name: ".", Kind: KindDir, Inode: num},
			{Name: "..", Kind: KindDir, Inode: s.Cwd},
		}); err != nil {
			return 0, err
		}
	}

	dir, err := t.vol.Inode(s.Cwd)
	if err != nil {
		return 0, err
	}
	raw, err := encodeEntry(entry{Name: name, Kind: kind, Inode: num})
	if err != nil {
		return 0, err
	}
	if err := inode.WriteAppend(t.vol, dir, raw, len(raw)); err != nil {
		return 0, err
	}

	t.log.WithFields(logrus.Fields{"name": name, "kind": kind, "inode": num}).Debug("tree: created")
	return num, nil
}

// Remove deletes the regular file named name from the session's current
// directory, releasing its blocks and its inode number.
func (t *Tree) Remove(s *Session, name string) error {
	return t.unlink(s, name, KindFile)
}

// Rmdir deletes the empty subdirectory named name from the session's
// current directory. A non-empty directory (anything beyond "." and "..")
// is rejected, mirroring the original's "we can only delete a directory if
// it is empty" comment.
func (t *Tree) Rmdir(s *Session, name string) error {
	return t.unlink(s, name, KindDir)
}

func (t *Tree) unlink(s *Session, name string, want Kind) error {
	if name == "." || name == ".." {
		return fmt.Errorf("tree: cannot remove %q", name)
	}
	e, ok, err := t.lookup(s.Cwd, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tree: %q not found", name)
	}
	if e.Kind != want {
		return fmt.Errorf("tree: %q is a %s, not a %s", name, e.Kind, want)
	}

	child, err := t.vol.Inode(e.Inode)
	if err != nil {
		return err
	}
	if want == KindDir && child.FileSize != 2*entrySize {
		return fmt.Errorf("tree: directory %q is not empty", name)
	}

	if err := inode.Release(t.vol, child); err != nil {
		return err
	}
	if err := t.vol.FreeInode(e.Inode); err != nil {
		return err
	}

	dir, err := t.vol.Inode(s.Cwd)
	if err != nil {
		return err
	}
	entries, err := t.readEntries(dir)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, cur := range entries {
		if cur.Name != name {
			kept = append(kept, cur)
		}
	}
	if err := t.writeEntries(dir, kept); err != nil {
		return err
	}

	t.log.WithFields(logrus.Fields{"name": name, "inode": e.Inode}).Debug("tree: removed")
	return nil
}

// Chdir moves the session's current directory to the directory named by
// path, which may be relative to the session's current directory or
// absolute.
func (t *Tree) Chdir(s *Session, path string) error {
	target, err := t.Resolve(s.Cwd, path)
	if err != nil {
		return err
	}
	in, err := t.vol.Inode(target)
	if err != nil {
		return err
	}
	if target != volume.RootInode {
		// a non-root directory always carries "." pointing at itself.
		entries, err := t.readEntries(in)
		if err != nil {
			return err
		}
		isDir := false
		for _, e := range entries {
			if e.Name == "." {
				isDir = true
			}
		}
		if !isDir {
			return fmt.Errorf("tree: %q is not a directory", path)
		}
	}
	s.Cwd = target
	return nil
}

// Entry is the information List and Walk expose about one directory entry.
type Entry struct {
	Name  string
	Kind  Kind
	Inode uint32
}

// List returns the entries of the session's current directory, sorted by
// name for stable, scriptable output.
func (t *Tree) List(s *Session) ([]Entry, error) {
	dir, err := t.vol.Inode(s.Cwd)
	if err != nil {
		return nil, err
	}
	raw, err := t.readEntries(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(raw))
	for i, e := range raw {
		out[i] = Entry{Name: e.Name, Kind: e.Kind, Inode: e.Inode}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PathString reconstructs the session's current directory as an absolute,
// "/"-separated path by walking ".." entries up to the root and recovering
// each step's name from its parent's listing.
func (t *Tree) PathString(s *Session) (string, error) {
	var segments []string
	cur := s.Cwd
	for cur != volume.RootInode {
		e, ok, err := t.lookup(cur, "..")
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("tree: inode %d has no parent entry", cur)
		}
		parent := e.Inode
		parentInode, err := t.vol.Inode(parent)
		if err != nil {
			return "", err
		}
		entries, err := t.readEntries(parentInode)
		if err != nil {
			return "", err
		}
		name := ""
		for _, pe := range entries {
			if pe.Inode == cur && pe.Name != "." && pe.Name != ".." {
				name = pe.Name
				break
			}
		}
		if name == "" {
			return "", fmt.Errorf("tree: inode %d not found in its parent's listing", cur)
		}
		segments = append([]string{name}, segments...)
		cur = parent
	}
	if len(segments) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(segments, "/"), nil
}

// Walk renders the subtree rooted at the session's current directory as an
// indented listing, the `tree` shell command's data source.
func (t *Tree) Walk(s *Session) (string, error) {
	var b strings.Builder
	if err := t.walk(s.Cwd, "", &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (t *Tree) walk(dirInode uint32, prefix string, b *strings.Builder) error {
	dir, err := t.vol.Inode(dirInode)
	if err != nil {
		return err
	}
	entries, err := t.readEntries(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		fmt.Fprintf(b, "%s%s\n", prefix, e.Name)
		if e.Kind == KindDir {
			if err := t.walk(e.Inode, prefix+"  ", b); err != nil {
				return err
			}
		}
	}
	return nil
}
