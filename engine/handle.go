package engine

import "time"

// Open flags relevant to the core (§4.6); the adapter translates
// kernel open(2) flags into these before calling engine.Open.
const (
	OCreat  = 1 << iota // create if absent
	OExcl               // with OCreat: fail EEXIST if present, even over a deleted entry
	OTrunc              // truncate to 0 before allocating the handle
	OAppend             // position starts at current size
)

// Handle is an open-file handle (§3): a reference to its inode, a
// contiguous staging buffer, and the current file position. Every
// method here assumes the caller already holds Engine.mu for writing
// -- handles have no lock of their own, matching the engine-wide
// exclusivity model in §5.
//
// Grounded on dataserver/write_pipeline.go's buffered-append-then-ack
// sequencing and client/writer.go's block-extension-on-write logic,
// collapsed to a single local inode and a single local data segment.
type Handle struct {
	fd    uint64
	eng   *Engine
	inode *Inode
	flags int
	pos   int64

	buf         []byte
	bufOffset   int64
	minFlushLen int
}

func (e *Engine) newHandle(ino *Inode, flags int) *Handle {
	e.handlesMu.Lock()
	e.nextFD++
	fd := e.nextFD
	e.handlesMu.Unlock()

	h := &Handle{
		fd:          fd,
		eng:         e,
		inode:       ino,
		flags:       flags,
		buf:         e.getBuffer(),
		minFlushLen: MinWriteBufferSize,
	}
	if flags&OAppend != 0 {
		h.pos = ino.Size
	}

	e.handlesMu.Lock()
	e.handles[fd] = h
	e.handlesMu.Unlock()
	return h
}

func (e *Engine) lookupHandle(fd uint64) (*Handle, bool) {
	e.handlesMu.Lock()
	defer e.handlesMu.Unlock()
	h, ok := e.handles[fd]
	return h, ok
}

func (e *Engine) forgetHandle(fd uint64) {
	e.handlesMu.Lock()
	delete(e.handles, fd)
	e.handlesMu.Unlock()
}

func (h *Handle) buffered() int64 { return int64(len(h.buf)) }

// write implements the append-contiguous/copy/post-copy-trigger rules
// of §4.5. Caller holds eng.mu for writing.
func (h *Handle) write(data []byte, offset int64) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	written := 0
	for written < len(data) {
		if h.buffered() > 0 && offset+int64(written) != h.bufOffset+h.buffered() {
			if err := h.flushLocked(); err != nil {
				return written, err
			}
		}
		if h.buffered() == 0 {
			h.bufOffset = offset + int64(written)
		}

		remaining := cap(h.buf) - len(h.buf)
		chunk := len(data) - written
		if chunk > remaining {
			chunk = remaining
		}
		h.buf = append(h.buf, data[written:written+chunk]...)
		written += chunk

		if len(h.buf) == cap(h.buf) && cap(h.buf) >= h.minFlushLen {
			if err := h.flushLocked(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// flushLocked performs the atomic flush procedure of §4.5: append the
// buffered bytes to the data segment, record the new extent, update
// size/mtime, append the extent log record, and reset the buffer. On a
// failure after the data append succeeds, it rolls the data segment
// back and leaves the in-memory state exactly as it was (§8 P9).
func (h *Handle) flushLocked() error {
	if h.buffered() == 0 {
		return nil
	}
	eng := h.eng
	ino := h.inode

	priorDataLen := eng.data.currentLength()
	priorSize := ino.Size
	priorMtime := ino.Mtime

	n := len(h.buf)
	dataOffset, err := eng.data.append(h.buf)
	if err != nil {
		return err
	}

	ext := Extent{LogicalOffset: h.bufOffset, Length: int64(n), DataOffset: dataOffset}
	newSize := ino.Size
	if v := h.bufOffset + int64(n); v > newSize {
		newSize = v
	}

	ino.Extents = append(ino.Extents, ext)
	ino.Size = newSize
	ino.Mtime = time.Now().Unix()

	payload := encodeExtent(extentPayload{
		ID:            ino.ID,
		LogicalOffset: uint64(ext.LogicalOffset),
		DataOffset:    uint64(ext.DataOffset),
		Length:        uint32(ext.Length),
		NewSize:       uint64(newSize),
	})
	if err := eng.log.append(RecExtent, payload); err != nil {
		// roll back: data segment, extent list, size, mtime.
		ino.Extents = ino.Extents[:len(ino.Extents)-1]
		ino.Size = priorSize
		ino.Mtime = priorMtime
		if rerr := eng.data.truncateTo(priorDataLen); rerr != nil {
			return rerr
		}
		return err
	}

	h.buf = h.buf[:0]
	h.bufOffset = 0
	return nil
}

// flush is the public "explicit flush" trigger (§4.5 external
// triggers). Caller holds eng.mu for writing.
func (h *Handle) flush() error {
	return h.flushLocked()
}

// release flushes and frees the handle's staging buffer, returning it
// to the engine's pool. Caller holds eng.mu for writing.
func (h *Handle) release() error {
	err := h.flushLocked()
	h.eng.putBuffer(h.buf[:0])
	h.buf = nil
	h.eng.forgetHandle(h.fd)
	return err
}
