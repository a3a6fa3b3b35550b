package engine

import "syscall"

// Error kinds, mapped to the POSIX codes the adapter re-exports (§7).
// These are syscall.Errno values directly rather than opaque sentinels
// -- grounded on the teacher's own sentinel-error style in
// maggiefs/errors.go (E_EXISTS, E_NOTDIR, E_ISDIR, E_NOENT), but made
// errno-shaped so a caller can compare with errors.Is(err, syscall.ENOENT)
// without a translation table of its own.
const (
	ErrNotFound    = syscall.ENOENT
	ErrExists      = syscall.EEXIST
	ErrIsDir       = syscall.EISDIR
	ErrNotDir      = syscall.ENOTDIR
	ErrNotEmpty    = syscall.ENOTEMPTY
	ErrRange       = syscall.ERANGE
	ErrNoData      = syscall.ENODATA
	ErrUnsupported = syscall.EOPNOTSUPP
	ErrInvalid     = syscall.EINVAL
	ErrIO          = syscall.EIO
	ErrNoMem       = syscall.ENOMEM
)
