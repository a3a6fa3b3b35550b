// Command appendfsmount is the thin FUSE demo adapter for the engine
// package: it translates kernel filesystem requests (via go-fuse's
// pathfs layer) into calls against engine.Engine and nothing else. The
// kernel-facing dispatch logic the spec places out of scope for the
// core lives entirely in this file.
//
// Grounded on localfs/mfslocal.go's LocalFs-wrapping-a-client shape and
// fuseconnector.go's path-dispatch FUSE binding, rewired from the
// teacher's raw low-level FUSE API onto go-fuse/v2's pathfs package and
// from RPC calls against a remote nameserver onto direct engine calls.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"golang.org/x/sys/unix"

	"github.com/jbooth/appendfs/engine"
	"github.com/jbooth/appendfs/internal/config"
	"github.com/jbooth/appendfs/internal/logger"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), "appendfsmount")

	eng, err := engine.Open(cfg.Root, engine.Options{
		WriteBufferSize:    int(cfg.WriteBufferSize),
		SkipCorruptRecords: cfg.SkipCorruptRecords,
		Logger:             log,
	})
	if err != nil {
		log.Errorf("open engine at %s: %v", cfg.Root, err)
		os.Exit(1)
	}
	defer eng.Close()

	fsys := &appendFS{FileSystem: pathfs.NewDefaultFileSystem(), eng: eng}
	pnfs := pathfs.NewPathNodeFs(fsys, nil)
	conn := nodefs.NewFileSystemConnector(pnfs.Root(), &nodefs.Options{
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
		Debug:        cfg.Debug,
	})
	server, err := fuse.NewServer(conn.RawFS(), cfg.MountPoint, &fuse.MountOptions{
		AllowOther: cfg.AllowOther,
		Debug:      cfg.Debug,
	})
	if err != nil {
		log.Errorf("mount %s: %v", cfg.MountPoint, err)
		os.Exit(1)
	}

	log.Infof("mounted %s at %s (write buffer %s)", cfg.Root, cfg.MountPoint, logger.ByteSize(cfg.WriteBufferSize))
	server.Serve()
}

// enginePath turns a pathfs-relative name ("", "a", "a/b") into the
// engine's canonical absolute form ("/", "/a", "/a/b").
func enginePath(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

// status translates an engine error (always a syscall.Errno per
// engine/errors.go) into a fuse.Status.
func status(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	if errno, ok := err.(syscall.Errno); ok {
		return fuse.Status(errno)
	}
	return fuse.EIO
}

func toAttr(info engine.InodeInfo) *fuse.Attr {
	return &fuse.Attr{
		Ino:     info.ID,
		Size:    uint64(info.Size),
		Mode:    info.Mode,
		Nlink:   1,
		Atime:   uint64(info.Atime),
		Mtime:   uint64(info.Mtime),
		Ctime:   uint64(info.Ctime),
		Blocks:  (uint64(info.Size) + 511) / 512,
		Blksize: 4096,
	}
}

// appendFS implements pathfs.FileSystem against a single engine
// instance. Methods not overridden fall back to DefaultFileSystem's
// ENOSYS, matching the "adapter is thin" scope boundary: anything not
// listed in §4.6 is simply unsupported.
type appendFS struct {
	pathfs.FileSystem
	eng *engine.Engine
}

func (fs *appendFS) String() string { return "appendfs" }

func (fs *appendFS) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	info, err := fs.eng.Stat(enginePath(name))
	if err != nil {
		return nil, status(err)
	}
	return toAttr(info), fuse.OK
}

func (fs *appendFS) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	// The engine's children_of iterator (§4.3) yields real entries
	// only; synthesizing "." and ".." is the adapter's job (§1).
	entries := []fuse.DirEntry{
		{Name: ".", Mode: syscall.S_IFDIR},
		{Name: "..", Mode: syscall.S_IFDIR},
	}
	err := fs.eng.Children(enginePath(name), func(childName string, info engine.InodeInfo) int {
		entries = append(entries, fuse.DirEntry{Name: childName, Mode: info.Mode})
		return 0
	})
	if err != nil {
		return nil, status(err)
	}
	return entries, fuse.OK
}

func (fs *appendFS) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	_, err := fs.eng.Mkdir(enginePath(name), mode)
	return status(err)
}

func (fs *appendFS) Rmdir(name string, _ *fuse.Context) fuse.Status {
	return status(fs.eng.Rmdir(enginePath(name)))
}

func (fs *appendFS) Unlink(name string, _ *fuse.Context) fuse.Status {
	return status(fs.eng.Unlink(enginePath(name)))
}

func (fs *appendFS) Rename(oldName, newName string, _ *fuse.Context) fuse.Status {
	return status(fs.eng.Rename(enginePath(oldName), enginePath(newName)))
}

func (fs *appendFS) Symlink(value, linkName string, _ *fuse.Context) fuse.Status {
	_, err := fs.eng.Symlink(value, enginePath(linkName))
	return status(err)
}

func (fs *appendFS) Readlink(name string, _ *fuse.Context) (string, fuse.Status) {
	target, err := fs.eng.Readlink(enginePath(name))
	return target, status(err)
}

func (fs *appendFS) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	return status(fs.eng.Truncate(enginePath(name), int64(size)))
}

func (fs *appendFS) Chmod(name string, mode uint32, _ *fuse.Context) fuse.Status {
	// The core persists no permission bits beyond create-time mode and
	// does not enforce access control (§1 Non-goals); chmod is a no-op
	// the kernel cache absorbs.
	return fuse.OK
}

func (fs *appendFS) Chown(name string, uid, gid uint32, _ *fuse.Context) fuse.Status {
	// Ownership is supplied by the adapter at each request and never
	// persisted by the core (§9); nothing to store here.
	return fuse.OK
}

func (fs *appendFS) Access(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return fuse.OK
}

func (fs *appendFS) Utimens(name string, atime, mtime *time.Time, _ *fuse.Context) fuse.Status {
	toSpec := func(t *time.Time) engine.TimeSpec {
		if t == nil {
			return engine.TimeSpec{Kind: engine.TimeOmit}
		}
		return engine.TimeSpec{Kind: engine.TimeSet, Sec: t.Unix()}
	}
	return status(fs.eng.SetTimes(enginePath(name), toSpec(atime), toSpec(mtime)))
}

func (fs *appendFS) StatFs(name string) *fuse.StatfsOut {
	info, err := fs.eng.Statfs()
	if err != nil {
		return nil
	}
	return &fuse.StatfsOut{
		Blocks:  info.TotalBlocks,
		Bfree:   info.FreeBlocks,
		Bavail:  info.AvailableBlocks,
		Files:   info.TotalFiles,
		Ffree:   info.FreeFiles,
		Bsize:   uint32(info.BlockSize),
		NameLen: uint32(info.NameMax),
	}
}

func toEngineOpenFlags(flags uint32) int {
	var f int
	if flags&uint32(syscall.O_CREAT) != 0 {
		f |= engine.OCreat
	}
	if flags&uint32(syscall.O_EXCL) != 0 {
		f |= engine.OExcl
	}
	if flags&uint32(syscall.O_TRUNC) != 0 {
		f |= engine.OTrunc
	}
	if flags&uint32(syscall.O_APPEND) != 0 {
		f |= engine.OAppend
	}
	return f
}

func (fs *appendFS) Open(name string, flags uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fd, _, err := fs.eng.Open(enginePath(name), toEngineOpenFlags(flags), 0o644)
	if err != nil {
		return nil, status(err)
	}
	return &appendFile{File: nodefs.NewDefaultFile(), eng: fs.eng, fd: fd}, fuse.OK
}

func (fs *appendFS) Create(name string, flags uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fd, _, err := fs.eng.Open(enginePath(name), toEngineOpenFlags(flags)|engine.OCreat, mode)
	if err != nil {
		return nil, status(err)
	}
	return &appendFile{File: nodefs.NewDefaultFile(), eng: fs.eng, fd: fd}, fuse.OK
}

func (fs *appendFS) GetXAttr(name string, attr string, _ *fuse.Context) ([]byte, fuse.Status) {
	size, err := fs.eng.GetXattr(enginePath(name), attr, nil)
	if err != nil {
		return nil, status(err)
	}
	buf := make([]byte, size)
	if _, err := fs.eng.GetXattr(enginePath(name), attr, buf); err != nil {
		return nil, status(err)
	}
	return buf, fuse.OK
}

func (fs *appendFS) SetXAttr(name string, attr string, data []byte, flags int, _ *fuse.Context) fuse.Status {
	var f int
	if flags&unix.XATTR_CREATE != 0 {
		f |= engine.XattrCreate
	}
	if flags&unix.XATTR_REPLACE != 0 {
		f |= engine.XattrReplace
	}
	return status(fs.eng.SetXattr(enginePath(name), attr, data, f))
}

func (fs *appendFS) ListXAttr(name string, _ *fuse.Context) ([]string, fuse.Status) {
	size, err := fs.eng.ListXattr(enginePath(name), nil)
	if err != nil {
		return nil, status(err)
	}
	buf := make([]byte, size)
	if _, err := fs.eng.ListXattr(enginePath(name), buf); err != nil {
		return nil, status(err)
	}
	var names []string
	for _, part := range strings.Split(string(buf), "\x00") {
		if part != "" {
			names = append(names, part)
		}
	}
	return names, fuse.OK
}

func (fs *appendFS) RemoveXAttr(name string, attr string, _ *fuse.Context) fuse.Status {
	return status(fs.eng.RemoveXattr(enginePath(name), attr))
}

// appendFile implements nodefs.File against one open engine handle.
// Everything not overridden falls back to the embedded default file's
// ENOSYS.
type appendFile struct {
	nodefs.File
	eng *engine.Engine
	fd  uint64
}

func (f *appendFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	data, err := f.eng.ReadHandle(f.fd, int64(len(dest)), off)
	if err != nil {
		return nil, status(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (f *appendFile) Write(data []byte, off int64) (uint32, fuse.Status) {
	n, err := f.eng.Write(f.fd, data, off)
	if err != nil {
		return 0, status(err)
	}
	return uint32(n), fuse.OK
}

func (f *appendFile) Truncate(size uint64) fuse.Status {
	return status(f.eng.TruncateHandle(f.fd, int64(size)))
}

func (f *appendFile) Flush() fuse.Status {
	return status(f.eng.Flush(f.fd))
}

func (f *appendFile) Release() {
	f.eng.Release(f.fd)
}

func (f *appendFile) Fsync(flags int) fuse.Status {
	return status(f.eng.Fsync(f.fd, flags != 0))
}
