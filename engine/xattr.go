package engine

// Extended-attribute operations (§4.6, §8 S7). Grounded on the same
// create/replace flag convention the adapter's setxattr(2) passthrough
// expects; the engine only needs to know the two flag bits, not the
// kernel's xattr namespace rules.

// XattrCreate and XattrReplace mirror the setxattr(2) flag bits: at
// most one is set by a caller that wants CREATE-only or REPLACE-only
// semantics; neither set means plain upsert.
const (
	XattrCreate = 1 << iota
	XattrReplace
)

// SetXattr implements setxattr (§4.6): CREATE fails EEXIST if the name
// is already set, REPLACE fails ENODATA if it is not.
func (e *Engine) SetXattr(path, name string, value []byte, flags int) error {
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
	_, exists := ino.getXattr(name)
	if flags&XattrCreate != 0 && exists {
		return ErrExists
	}
	if flags&XattrReplace != 0 && !exists {
		return ErrNoData
	}

	payload := setxattrPayload{ID: ino.ID, Name: name, Value: append([]byte(nil), value...)}
	if err := e.log.append(RecSetxattr, encodeSetxattr(payload)); err != nil {
		return ErrIO
	}
	ino.setXattr(name, payload.Value)
	return nil
}

// GetXattr implements getxattr (§4.6). A nil buf is the "query size"
// form: it returns the value's length without copying. A non-nil buf
// shorter than the value fails ERANGE.
func (e *Engine) GetXattr(path, name string, buf []byte) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := canonicalPath(path)
	if err != nil {
		return 0, ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return 0, ErrNotFound
	}
	value, ok := ino.getXattr(name)
	if !ok {
		return 0, ErrNoData
	}
	if buf == nil {
		return len(value), nil
	}
	if len(buf) < len(value) {
		return 0, ErrRange
	}
	copy(buf, value)
	return len(value), nil
}

// ListXattr implements listxattr (§4.6): the wire format is each name
// followed by a NUL terminator, concatenated in insertion order (§8
// S7's `"user.k\0"`, 7 bytes, is exactly this for one name).
func (e *Engine) ListXattr(path string, buf []byte) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := canonicalPath(path)
	if err != nil {
		return 0, ErrInvalid
	}
	ino, ok := e.ns.lookupByPath(p)
	if !ok {
		return 0, ErrNotFound
	}
	names := ino.listXattrNames()
	total := 0
	for _, n := range names {
		total += len(n) + 1
	}
	if buf == nil {
		return total, nil
	}
	if len(buf) < total {
		return 0, ErrRange
	}
	off := 0
	for _, n := range names {
		copy(buf[off:], n)
		off += len(n)
		buf[off] = 0
		off++
	}
	return total, nil
}

// RemoveXattr implements removexattr (§4.6): ENODATA if the name is
// absent.
func (e *Engine) RemoveXattr(path, name string) error {
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
	if _, ok := ino.getXattr(name); !ok {
		return ErrNoData
	}
	if err := e.log.append(RecRemovexattr, encodeRemovexattr(removexattrPayload{ID: ino.ID, Name: name})); err != nil {
		return ErrIO
	}
	ino.removeXattr(name)
	return nil
}
