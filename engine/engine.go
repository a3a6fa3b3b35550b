// Package engine implements the persistence core of an append-only
// user-space filesystem: a metadata log and replay protocol, an
// in-memory namespace/inode model, a per-handle write-buffering and
// extent-recording path, and an extent-resolving read path. It is the
// writable upper layer of an overlay filesystem.
//
// The kernel-facing FUSE dispatcher, CLI argument parsing, and logging
// configuration live outside this package (cmd/appendfsmount,
// internal/config, internal/logger) and talk to it only through the
// operations in this file and in ops.go/xattr.go.
package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultWriteBufferSize is the default per-handle staging buffer
	// capacity (§3, §6.3).
	DefaultWriteBufferSize = 4 * 1024 * 1024
	// MinWriteBufferSize is the minimum flush granularity and the
	// floor below which write_buffer_size is rejected (§6.3). Per the
	// design notes in §9, this floor bounds only a hypothetical
	// background flush; the configured capacity (4 MiB by default)
	// remains the sole live flush trigger implemented here.
	MinWriteBufferSize = 4 * 1024
	// rootInodeID is the id of "/" (I1 starts allocation at 1, root
	// occupies it).
	rootInodeID = uint64(1)
)

// Logger is the minimal interface the engine needs for replay
// diagnostics (§7: "A warning log message SHOULD be emitted per
// skipped record"). internal/logger satisfies it; engine never imports
// internal/logger directly so the core stays independent of the
// ambient logging stack.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...interface{}) {}

// Options configures an Engine at Open time (§6.3).
type Options struct {
	// WriteBufferSize is the per-handle staging buffer capacity.
	// Zero means DefaultWriteBufferSize.
	WriteBufferSize int
	// SkipCorruptRecords controls replay's behavior on a CRC
	// mismatch: true skips just that record and continues (§4.7);
	// false stops the walk at the first failure. normalize does not
	// change it, so the zero value (false) stops at the first failure;
	// cmd/appendfsmount's --skip-corrupt-records flag defaults to true.
	SkipCorruptRecords bool
	// Logger receives replay warnings. Defaults to a no-op.
	Logger Logger
}

func (o Options) normalize() (Options, error) {
	if o.WriteBufferSize == 0 {
		o.WriteBufferSize = DefaultWriteBufferSize
	}
	if o.WriteBufferSize < MinWriteBufferSize {
		return o, ErrInvalid
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o, nil
}

// Engine is the persistence core. It is single-writer for mutating
// operations and single-reader-per-call for queries (§5): mu is held
// exclusively for the duration of every call that appends to the log
// or data segment or mutates the namespace, and held for read for
// every pure query. This is the "engine-wide exclusive lock ... and a
// readers-writer lock around read-only queries" option §5/§9
// explicitly call a correct minimal implementation.
type Engine struct {
	mu sync.RWMutex

	root string
	log  *MetaLog
	data *DataSegment
	ns   *Namespace

	opts Options

	handlesMu sync.Mutex
	nextFD    uint64
	handles   map[uint64]*Handle

	bufPool chan []byte
}

// Open mounts the engine against root, creating the backing directory
// and its two files if absent, then replaying the log to rebuild the
// namespace (§4.7).
func Open(root string, opts Options) (*Engine, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	log, err := openMetaLog(filepath.Join(root, "meta"))
	if err != nil {
		return nil, err
	}
	data, err := openDataSegment(filepath.Join(root, "data"))
	if err != nil {
		log.close()
		return nil, err
	}

	e := &Engine{
		root:    root,
		log:     log,
		data:    data,
		ns:      newNamespace(),
		opts:    opts,
		handles: make(map[uint64]*Handle),
		bufPool: make(chan []byte, 64),
	}
	e.ensureRoot()

	if err := replay(e.log, e.ns, opts.SkipCorruptRecords, opts.Logger); err != nil {
		e.data.close()
		e.log.close()
		return nil, err
	}
	return e, nil
}

// ensureRoot guarantees "/" exists even on a brand-new backing
// directory, before replay runs. Root itself is never written to the
// log; it is rebuilt here on every Open and replay only adds to it
// (e.g. TIMES records from touchParent).
func (e *Engine) ensureRoot() {
	if _, ok := e.ns.lookupByID(rootInodeID); ok {
		return
	}
	now := time.Now().Unix()
	root := newInode(rootInodeID, "/", ModeDir|0o755, now)
	e.ns.insert(root)
	e.ns.bumpNextID(rootInodeID)
}

// Close flushes both files and releases their descriptors. Any handles
// still open are not implicitly closed -- §9 requires the adapter to
// close handles before tearing the engine down.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	dataErr := e.data.flush()
	metaErr := e.log.flush()
	if err := e.data.close(); err != nil && dataErr == nil {
		dataErr = err
	}
	if err := e.log.close(); err != nil && metaErr == nil {
		metaErr = err
	}
	if dataErr != nil {
		return dataErr
	}
	return metaErr
}

func (e *Engine) now() int64 { return time.Now().Unix() }

// getBuffer returns a write-buffer-sized byte slice from the pool,
// allocating a fresh one if none is free. Mirrors the channel-backed
// freelist in maggiefs/bufferpool.go, sized to the engine's configured
// capacity instead of a fixed 128KiB.
func (e *Engine) getBuffer() []byte {
	select {
	case b := <-e.bufPool:
		if cap(b) >= e.opts.WriteBufferSize {
			return b[:0]
		}
	default:
	}
	return make([]byte, 0, e.opts.WriteBufferSize)
}

func (e *Engine) putBuffer(b []byte) {
	select {
	case e.bufPool <- b:
	default:
	}
}
