package engine

// This file is the public operation surface (component 8, §4.6):
// every namespace and file operation the adapter calls. Each exported
// method acquires Engine.mu itself (write lock for anything that
// appends to the log, the data segment, or mutates the namespace; read
// lock for pure queries -- except the read path, which the spec's own
// atime-on-read rule turns into a namespace mutation, so it takes the
// write lock too) and validates preconditions before any log append,
// per §4.6's "write the log record only after validating
// preconditions, and MUST NOT mutate in-memory state if the log append
// fails" rule.
//
// Grounded on mfs/mfs.go's operation-dispatch shape (one method per
// filesystem call, each translating a maggiefs.Err into the caller's
// error convention), adapted from RPC-to-nameserver calls into direct
// namespace mutations under the engine-wide lock.

// Create implements create(path, mode) (§4.6).
func (e *Engine) Create(path string, mode uint32) (InodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return InodeInfo{}, ErrInvalid
	}
	ino, err := e.doCreate(p, mode, false, false, "")
	if err != nil {
		return InodeInfo{}, err
	}
	return ino.Info(), nil
}

// Mkdir implements mkdir(path, mode) (§4.6). Root is rejected by
// doCreate's explicit path == "/" check, which fails ErrExists and so
// gives mkdir("/") the "disallows /" behaviour the spec calls out
// explicitly.
func (e *Engine) Mkdir(path string, mode uint32) (InodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return InodeInfo{}, ErrInvalid
	}
	ino, err := e.doCreate(p, mode, true, false, "")
	if err != nil {
		return InodeInfo{}, err
	}
	return ino.Info(), nil
}

// Symlink implements symlink(target, linkpath) (§4.6): create with a
// fixed symlink mode and an embedded target.
func (e *Engine) Symlink(target, linkpath string) (InodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(linkpath)
	if err != nil {
		return InodeInfo{}, ErrInvalid
	}
	ino, err := e.doCreate(p, ModeSymlink|0o777, false, true, target)
	if err != nil {
		return InodeInfo{}, err
	}
	return ino.Info(), nil
}

// doCreate is the shared precondition-check/log-append/apply sequence
// behind create, mkdir, symlink and open's O_CREAT path. path must
// already be canonicalised. Revival (glossary) is handled here: a
// deleted entry already occupying path has its id reused instead of
// allocating a fresh one.
func (e *Engine) doCreate(path string, mode uint32, isDir, hasTarget bool, target string) (*Inode, error) {
	if path == "/" {
		return nil, ErrExists
	}
	parent, ok := e.ns.lookupByPath(parentPath(path))
	if !ok {
		return nil, ErrNotFound
	}
	if !parent.IsDir() {
		return nil, ErrNotDir
	}
	if _, ok := e.ns.lookupByPath(path); ok {
		return nil, ErrExists
	}

	var id uint64
	if slot, ok := e.ns.lookupPathSlot(path); ok && slot.Deleted {
		id = slot.ID
	} else {
		id = e.ns.allocateID()
	}

	switch {
	case isDir:
		mode = (mode &^ ModeTypeMask) | ModeDir
	case hasTarget:
		mode = (mode &^ ModeTypeMask) | ModeSymlink
	default:
		mode = (mode &^ ModeTypeMask) | ModeRegular
	}

	now := uint64(e.now())
	payload := createPayload{
		ID:            id,
		Mode:          mode,
		Size:          0,
		Timestamp:     now,
		Path:          path,
		HasTarget:     hasTarget,
		SymlinkTarget: target,
	}
	recType := byte(RecCreate)
	if isDir {
		recType = RecMkdir
	}
	if err := e.log.append(recType, encodeCreate(payload)); err != nil {
		return nil, ErrIO
	}
	applyCreate(e.ns, payload)
	ino, _ := e.ns.lookupByID(id)
	if err := e.touchParent(parent); err != nil {
		return ino, err
	}
	return ino, nil
}

// touchParent bumps a directory's mtime/ctime on a child create,
// unlink, or rename, and logs the mtime bump as a TIMES record so
// replay reconstructs it -- the original C source's behaviour of
// touching a directory on every membership change, which spec.md's
// per-child CREATE/UNLINK/RENAME records don't by themselves capture.
// ctime, like SetTimes's, is not carried by the TIMES record and so
// does not survive a replay.
func (e *Engine) touchParent(parent *Inode) error {
	now := e.now()
	payload := encodeTimes(timesPayload{ID: parent.ID, AtimeSec: parent.Atime, MtimeSec: now})
	if err := e.log.append(RecTimes, payload); err != nil {
		return ErrIO
	}
	parent.Mtime = now
	parent.Ctime = now
	return nil
}

// Open implements open(path, flags, mode) (§4.6). O_EXCL fails EEXIST
// even over a deleted entry -- a supplemented behaviour create() alone
// does not need, since create's revival is exactly what O_EXCL must
// suppress.
func (e *Engine) Open(path string, flags int, mode uint32) (uint64, InodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return 0, InodeInfo{}, ErrInvalid
	}

	if flags&OCreat != 0 && flags&OExcl != 0 {
		if _, ok := e.ns.lookupPathSlot(p); ok {
			return 0, InodeInfo{}, ErrExists
		}
	}

	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		if flags&OCreat == 0 {
			return 0, InodeInfo{}, ErrNotFound
		}
		created, err := e.doCreate(p, mode, false, false, "")
		if err != nil {
			return 0, InodeInfo{}, err
		}
		ino = created
	}

	if ino.IsDir() {
		return 0, InodeInfo{}, ErrIsDir
	}

	if flags&OTrunc != 0 {
		if err := e.truncateInode(ino, 0); err != nil {
			return 0, InodeInfo{}, err
		}
	}

	h := e.newHandle(ino, flags)
	return h.fd, ino.Info(), nil
}

// Read implements read(path, size, offset) (§4.4). It takes the
// write lock, not the read lock: step 4 of §4.4 ("on success, update
// atime") is itself a namespace mutation under §5's rule that any
// operation mutating the inode store holds the exclusive lock, even
// though the operation is otherwise a pure query.
func (e *Engine) Read(path string, size, offset int64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return nil, ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return nil, ErrNotFound
	}
	if ino.IsDir() {
		return nil, ErrIsDir
	}
	return e.readInode(ino, size, offset)
}

// ReadHandle is the handle-addressed form of Read, for adapters (such
// as cmd/appendfsmount) that dispatch reads against an already-open
// file descriptor rather than a path.
func (e *Engine) ReadHandle(fd uint64, size, offset int64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.lookupHandle(fd)
	if !ok {
		return nil, ErrInvalid
	}
	return e.readInode(h.inode, size, offset)
}

func (e *Engine) readInode(ino *Inode, size, offset int64) ([]byte, error) {
	if size < 0 || offset < 0 {
		return nil, ErrInvalid
	}
	out := make([]byte, size)
	n, err := e.resolveRead(ino, offset, size, out)
	if err != nil {
		return nil, ErrIO
	}
	if n > 0 {
		ino.Atime = e.now()
	}
	return out[:n], nil
}

// Write implements write(handle, bytes, offset) (§4.5) against an
// already-open handle.
func (e *Engine) Write(fd uint64, data []byte, offset int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset < 0 {
		return 0, ErrInvalid
	}
	h, ok := e.lookupHandle(fd)
	if !ok {
		return 0, ErrInvalid
	}
	n, err := h.write(data, offset)
	if err != nil {
		return n, ErrIO
	}
	return n, nil
}

// Flush implements the handle-level "explicit flush" trigger of §4.5.
func (e *Engine) Flush(fd uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.lookupHandle(fd)
	if !ok {
		return ErrInvalid
	}
	if err := h.flush(); err != nil {
		return ErrIO
	}
	return nil
}

// Release flushes and closes a handle, returning its staging buffer to
// the pool.
func (e *Engine) Release(fd uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.lookupHandle(fd)
	if !ok {
		return ErrInvalid
	}
	if err := h.release(); err != nil {
		return ErrIO
	}
	return nil
}

// Fsync implements fsync (§4.5): flush the handle, flush_data always,
// flush_meta unless dataSyncOnly.
func (e *Engine) Fsync(fd uint64, dataSyncOnly bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.lookupHandle(fd)
	if !ok {
		return ErrInvalid
	}
	if err := h.flushLocked(); err != nil {
		return ErrIO
	}
	if err := e.data.flush(); err != nil {
		return ErrIO
	}
	if !dataSyncOnly {
		if err := e.log.flush(); err != nil {
			return ErrIO
		}
	}
	return nil
}

// FsyncDir implements fsyncdir (§4.5): flush_meta only, since directory
// mutations are log entries rather than handle-buffered bytes.
func (e *Engine) FsyncDir(path string) error {
	e.mu.RLock()
	p, err := canonicalPath(path)
	if err == nil {
		if ino, ok := e.ns.lookupByPath(p); !ok {
			err = ErrNotFound
		} else if !ino.IsDir() {
			err = ErrNotDir
		}
	}
	e.mu.RUnlock()
	if err != nil {
		if err == ErrNotFound || err == ErrNotDir {
			return err
		}
		return ErrInvalid
	}
	if err := e.log.flush(); err != nil {
		return ErrIO
	}
	return nil
}

// Truncate implements truncate(path, size) (§4.6, §4.4).
func (e *Engine) Truncate(path string, size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return ErrNotFound
	}
	return e.truncateInode(ino, size)
}

// TruncateHandle is the handle-addressed form of Truncate, for
// ftruncate(2)-style calls against an already-open descriptor.
func (e *Engine) TruncateHandle(fd uint64, size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.lookupHandle(fd)
	if !ok {
		return ErrInvalid
	}
	return e.truncateInode(h.inode, size)
}

// truncateInode is the shared precondition-check/log-append/apply
// sequence behind Truncate and open's O_TRUNC. It flushes any handle
// currently staging writes against ino first, so a later flush cannot
// resurrect bytes past the new end-of-file.
func (e *Engine) truncateInode(ino *Inode, size int64) error {
	if !ino.IsRegular() && !ino.IsSymlink() {
		return ErrInvalid
	}
	if size < 0 {
		return ErrInvalid
	}

	e.handlesMu.Lock()
	var toFlush []*Handle
	for _, h := range e.handles {
		if h.inode == ino {
			toFlush = append(toFlush, h)
		}
	}
	e.handlesMu.Unlock()
	for _, h := range toFlush {
		if err := h.flushLocked(); err != nil {
			return ErrIO
		}
	}

	newExtents := truncateExtents(ino.Extents, size)
	payload := encodeTruncate(truncatePayload{ID: ino.ID, NewSize: uint64(size)})
	if err := e.log.append(RecTruncate, payload); err != nil {
		return ErrIO
	}
	ino.Extents = newExtents
	ino.Size = size
	ino.Mtime = e.now()
	return nil
}

// Unlink implements unlink(path) (§4.6).
func (e *Engine) Unlink(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return ErrNotFound
	}
	if ino.IsDir() {
		return ErrIsDir
	}
	if err := e.log.append(RecUnlink, encodeUnlink(unlinkPayload{ID: ino.ID})); err != nil {
		return ErrIO
	}
	e.ns.markDeleted(ino)
	parent, _ := e.ns.lookupByPath(parentPath(p))
	return e.touchParent(parent)
}

// Rmdir implements rmdir(path) (§4.6).
func (e *Engine) Rmdir(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return ErrInvalid
	}
	if p == "/" {
		return ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return ErrNotFound
	}
	if !ino.IsDir() {
		return ErrNotDir
	}
	if !e.ns.isEmpty(p) {
		return ErrNotEmpty
	}
	if err := e.log.append(RecUnlink, encodeUnlink(unlinkPayload{ID: ino.ID})); err != nil {
		return ErrIO
	}
	e.ns.markDeleted(ino)
	parent, _ := e.ns.lookupByPath(parentPath(p))
	return e.touchParent(parent)
}

// Rename implements rename(from, to) (§4.6), including the
// non-atomic-but-faithfully-logged directory-subtree rewrite: if a
// per-descendant record fails partway through, earlier descendants
// already rewritten are left as-is, matching the one exception §7
// carves out of the otherwise all-or-nothing propagation rule.
func (e *Engine) Rename(from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fromP, err := canonicalPath(from)
	if err != nil {
		return ErrInvalid
	}
	toP, err := canonicalPath(to)
	if err != nil {
		return ErrInvalid
	}
	if fromP == toP {
		return nil
	}
	if fromP == "/" {
		return ErrInvalid
	}

	src, ok := e.ns.lookupByPath(fromP)
	if !ok {
		return ErrNotFound
	}

	destParent, ok := e.ns.lookupByPath(parentPath(toP))
	if !ok {
		return ErrNotFound
	}
	if !destParent.IsDir() {
		return ErrNotDir
	}

	if dest, ok := e.ns.lookupByPath(toP); ok {
		if src.IsDir() && !dest.IsDir() {
			return ErrNotDir
		}
		if !src.IsDir() && dest.IsDir() {
			return ErrIsDir
		}
		if dest.IsDir() && !e.ns.isEmpty(toP) {
			return ErrNotEmpty
		}
		if err := e.log.append(RecUnlink, encodeUnlink(unlinkPayload{ID: dest.ID})); err != nil {
			return ErrIO
		}
		e.ns.markDeleted(dest)
	}

	var descendants []string
	if src.IsDir() {
		descendants = e.ns.descendantsOf(fromP)
	}

	if err := e.log.append(RecRename, encodeRename(renamePayload{ID: src.ID, NewPath: toP})); err != nil {
		return ErrIO
	}
	e.ns.setPath(src, toP)
	e.ns.clearDeleted(src)

	for _, oldChildPath := range descendants {
		child, ok := e.ns.lookupPathSlot(oldChildPath)
		if !ok || child.Deleted {
			continue
		}
		newChildPath := rewritePrefix(oldChildPath, fromP, toP)
		if err := e.log.append(RecRename, encodeRename(renamePayload{ID: child.ID, NewPath: newChildPath})); err != nil {
			return ErrIO
		}
		e.ns.setPath(child, newChildPath)
		e.ns.clearDeleted(child)
	}

	if parentPath(fromP) == parentPath(toP) {
		return e.touchParent(destParent)
	}
	if srcParent, ok := e.ns.lookupByPath(parentPath(fromP)); ok {
		if err := e.touchParent(srcParent); err != nil {
			return err
		}
	}
	return e.touchParent(destParent)
}

// Readlink implements readlink(path) (§4.6).
func (e *Engine) Readlink(path string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := canonicalPath(path)
	if err != nil {
		return "", ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return "", ErrNotFound
	}
	if !ino.IsSymlink() {
		return "", ErrInvalid
	}
	return ino.SymlinkTarget, nil
}

// TimeSpecKind distinguishes the three forms a set_times value may
// take (§4.6).
type TimeSpecKind int

const (
	TimeOmit TimeSpecKind = iota
	TimeNow
	TimeSet
)

// TimeSpec is one of the two time values passed to SetTimes.
type TimeSpec struct {
	Kind TimeSpecKind
	Sec  int64 // meaningful only when Kind == TimeSet; nanoseconds are the caller's to truncate
}

func resolveTimeSpec(spec TimeSpec, current, now int64) int64 {
	switch spec.Kind {
	case TimeNow:
		return now
	case TimeSet:
		return spec.Sec
	default:
		return current
	}
}

// SetTimes implements set_times(path, atime_spec, mtime_spec) (§4.6).
// ctime is always set to now; unlike atime/mtime this is not carried
// by the TIMES record (§6.1), so a ctime bump from set_times does not
// survive a replay -- consistent with TIMES replay application (§4.7.1)
// leaving ctime untouched.
func (e *Engine) SetTimes(path string, atime, mtime TimeSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := canonicalPath(path)
	if err != nil {
		return ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return ErrNotFound
	}
	now := e.now()
	newAtime := resolveTimeSpec(atime, ino.Atime, now)
	newMtime := resolveTimeSpec(mtime, ino.Mtime, now)
	payload := encodeTimes(timesPayload{ID: ino.ID, AtimeSec: newAtime, MtimeSec: newMtime})
	if err := e.log.append(RecTimes, payload); err != nil {
		return ErrIO
	}
	ino.Atime = newAtime
	ino.Mtime = newMtime
	ino.Ctime = now
	return nil
}

// Stat implements stat(path) (§4.6).
func (e *Engine) Stat(path string) (InodeInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := canonicalPath(path)
	if err != nil {
		return InodeInfo{}, ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return InodeInfo{}, ErrNotFound
	}
	return ino.Info(), nil
}

// Children iterates the immediate non-deleted children of dirPath
// (§6.2): fn returns 0 to continue, non-zero to stop.
func (e *Engine) Children(dirPath string, fn func(name string, info InodeInfo) int) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := canonicalPath(dirPath)
	if err != nil {
		return ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return ErrNotFound
	}
	if !ino.IsDir() {
		return ErrNotDir
	}
	for _, c := range e.ns.childrenOf(p) {
		if fn(c.Name, c.Info) != 0 {
			break
		}
	}
	return nil
}

// Link implements link(...) (§4.6): hard links are a declared
// non-goal (§1), so this always fails.
func (e *Engine) Link(oldpath, newpath string) error {
	return ErrUnsupported
}
