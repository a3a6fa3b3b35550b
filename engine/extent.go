package engine

// resolveRead fills out[0:clamped size] by walking ino's extents in
// insertion order and copying the overlapping portion of each into out,
// per §4.4. Later extents are iterated after earlier ones and their
// writes into out are unconditional, so a later extent's contribution
// overwrites an earlier one's over the overlapping range -- this is
// the "latest wins" rule (I4, P6) and must not be "optimised" away.
//
// Bytes not covered by any extent are left as whatever out already
// contains; callers that need zero-fill (every public caller does) must
// pass a zeroed buffer, exactly as spec.md's §4.4 note requires.
//
// Grounded on client/reader.go's per-block positioned-read loop,
// generalized from "one owning block per range" to "possibly many
// overlapping extents, latest wins".
func (e *Engine) resolveRead(ino *Inode, offset, size int64, out []byte) (int, error) {
	if offset < 0 {
		offset = 0
	}
	end := offset + size
	if end > ino.Size {
		end = ino.Size
	}
	if offset >= end {
		return 0, nil
	}

	for _, ext := range ino.Extents {
		extEnd := ext.end()
		start := offset
		if ext.LogicalOffset > start {
			start = ext.LogicalOffset
		}
		stop := end
		if extEnd < stop {
			stop = extEnd
		}
		if start >= stop {
			continue
		}
		n := stop - start
		dataOff := ext.DataOffset + (start - ext.LogicalOffset)
		dst := out[start-offset : start-offset+n]
		if _, err := e.data.readAt(dst, dataOff); err != nil {
			return 0, err
		}
	}
	return int(end - offset), nil
}

// truncateExtents applies the truncation walk of §4.4: drop the tail of
// the extent list starting at the first extent whose LogicalOffset >=
// newSize, shortening an extent that straddles newSize.
func truncateExtents(extents []Extent, newSize int64) []Extent {
	out := make([]Extent, 0, len(extents))
	for _, ext := range extents {
		if ext.LogicalOffset >= newSize {
			break
		}
		if ext.end() > newSize {
			ext.Length = newSize - ext.LogicalOffset
		}
		out = append(out, ext)
	}
	return out
}
