package engine

import "syscall"

// File-type bits, carried in Inode.Mode alongside the permission bits,
// matching the POSIX S_IFxxx constants the adapter expects back.
const (
	ModeTypeMask = syscall.S_IFMT
	ModeDir      = syscall.S_IFDIR
	ModeRegular  = syscall.S_IFREG
	ModeSymlink  = syscall.S_IFLNK
)

// Extent maps a byte range of a file's logical content to a region of
// the data segment. Extents are immutable after append except that
// Truncate may shorten the last retained one. Overlapping extents are
// resolved latest-insertion-wins by the extent resolver.
type Extent struct {
	LogicalOffset int64
	Length        int64
	DataOffset    int64
}

func (e Extent) end() int64 { return e.LogicalOffset + e.Length }

// xattr is a single name/value pair, kept in insertion order by Inode.
type xattr struct {
	Name  string
	Value []byte
}

// Inode is the in-memory materialization of one namespace entry. It is
// never physically removed during a mount; Deleted marks it as gone
// from the path index while keeping its id addressable for replay.
type Inode struct {
	ID            uint64
	Path          string
	Mode          uint32
	Size          int64
	Ctime         int64
	Mtime         int64
	Atime         int64
	Deleted       bool
	SymlinkTarget string
	Extents       []Extent

	xattrNames []string
	xattrs     map[string][]byte
}

func newInode(id uint64, path string, mode uint32, now int64) *Inode {
	return &Inode{
		ID:    id,
		Path:  path,
		Mode:  mode,
		Ctime: now,
		Mtime: now,
		Atime: now,
	}
}

// revive resets an inode's content (extents, xattrs, symlink target) so
// its id can be reused for a freshly created path, per the Revival rule
// in the glossary: create/mkdir over a deleted entry at the same path.
func (i *Inode) revive(mode uint32, now int64) {
	i.Mode = mode
	i.Size = 0
	i.Ctime = now
	i.Mtime = now
	i.Atime = now
	i.Deleted = false
	i.SymlinkTarget = ""
	i.Extents = nil
	i.xattrNames = nil
	i.xattrs = nil
}

func (i *Inode) fileType() uint32 { return i.Mode & ModeTypeMask }

func (i *Inode) IsDir() bool     { return i.fileType() == ModeDir }
func (i *Inode) IsRegular() bool { return i.fileType() == ModeRegular }
func (i *Inode) IsSymlink() bool { return i.fileType() == ModeSymlink }

// setXattr upserts by name, preserving insertion order for listing (I-ref
// §4.6 listxattr). Returns whether the name already existed.
func (i *Inode) setXattr(name string, value []byte) bool {
	if i.xattrs == nil {
		i.xattrs = make(map[string][]byte)
	}
	_, existed := i.xattrs[name]
	if !existed {
		i.xattrNames = append(i.xattrNames, name)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	i.xattrs[name] = stored
	return existed
}

func (i *Inode) getXattr(name string) ([]byte, bool) {
	v, ok := i.xattrs[name]
	return v, ok
}

// removeXattr deletes by name if present, keeping xattrNames consistent.
func (i *Inode) removeXattr(name string) bool {
	if _, ok := i.xattrs[name]; !ok {
		return false
	}
	delete(i.xattrs, name)
	for idx, n := range i.xattrNames {
		if n == name {
			i.xattrNames = append(i.xattrNames[:idx], i.xattrNames[idx+1:]...)
			break
		}
	}
	return true
}

// listXattrNames returns names in insertion order, for listxattr's
// NUL-joined byte-count contract.
func (i *Inode) listXattrNames() []string {
	out := make([]string, len(i.xattrNames))
	copy(out, i.xattrNames)
	return out
}

// InodeInfo is the read-only attribute snapshot exposed across the
// public operation surface (§6.2): id, mode, size, ctime, mtime, atime.
// uid/gid are deliberately absent -- the adapter supplies those from the
// calling context and the core never persists ownership (§9).
type InodeInfo struct {
	ID    uint64
	Mode  uint32
	Size  int64
	Ctime int64
	Mtime int64
	Atime int64
}

func (i *Inode) Info() InodeInfo {
	return InodeInfo{
		ID:    i.ID,
		Mode:  i.Mode,
		Size:  i.Size,
		Ctime: i.Ctime,
		Mtime: i.Mtime,
		Atime: i.Atime,
	}
}
