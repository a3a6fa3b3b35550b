package engine

import "golang.org/x/sys/unix"

// StatfsInfo mirrors the subset of statvfs(2) the adapter re-exports
// (§4.6 "statfs ... derived from ... the host filesystem statvfs of
// the backing directory").
type StatfsInfo struct {
	BlockSize       uint64
	TotalBlocks     uint64
	FreeBlocks      uint64
	AvailableBlocks uint64
	TotalFiles      uint64
	FreeFiles       uint64
	NameMax         uint64
}

// Statfs implements statfs (§4.6) by delegating to the host
// filesystem's statvfs for the backing directory. The core tracks no
// capacity accounting of its own; every number here describes the
// host filesystem the two flat files live on.
func (e *Engine) Statfs() (StatfsInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(e.root, &st); err != nil {
		return StatfsInfo{}, ErrIO
	}
	return StatfsInfo{
		BlockSize:       uint64(st.Bsize),
		TotalBlocks:     st.Blocks,
		FreeBlocks:      st.Bfree,
		AvailableBlocks: st.Bavail,
		TotalFiles:      st.Files,
		FreeFiles:       st.Ffree,
		NameMax:         uint64(st.Namelen),
	}, nil
}
