// Package vfsio implements the per-open-file I/O engine: the read-side
// sliding-window/range-resume cache (spec.md §4.2) and the write-side
// producer/worker upload pipeline (spec.md §4.3), plus the registry
// that owns OpenFile state (spec.md §4.5) and the Shared-Connection
// Guard multiplexing one control connection across opens (spec.md
// §3's SharedConnectionState, §4.2).
//
// This is the load-bearing package of the repository; everything in
// cmd/ftpfs and internal/fusefs exists to drive it.
package vfsio

import (
	"sync"
	"sync/atomic"

	"github.com/rclone/ftpfs/internal/ftpwire"
	"github.com/rclone/ftpfs/internal/iobuf"
)

// OpenFlags mirrors the access-mode and create/trunc/excl/append bits
// a host open() upcall carries (spec.md §3's "flags").
type OpenFlags struct {
	ReadOnly  bool
	WriteOnly bool
	ReadWrite bool
	Create    bool
	Truncate  bool
	Excl      bool
	Append    bool
}

// OpenFile is one active open (spec.md §3). All fields are accessed
// either from the dispatcher goroutine servicing the current upcall on
// this handle, or — for the fields the write pipeline's contract
// names explicitly — from the upload worker goroutine, per the
// hand-off protocol in write.go.
type OpenFile struct {
	ID uint64

	Mode  uint32
	Flags OpenFlags

	OpenPath string
	FullPath string

	// Read side
	ReadBuf    iobuf.Buffer
	CanShrink  bool
	LastOffset int64
	ShrinkCap  int

	// Write side
	StreamBuf      iobuf.Buffer
	Pos            int64
	UploadConn     *ftpwire.Client
	workerDone     chan struct{}
	semReady       semaphore
	semDataAvail   semaphore
	semDataNeed    semaphore
	semDataWritten semaphore

	isReady       atomic.Bool
	eof           atomic.Bool
	writtenFlag   atomic.Bool
	WriteMayStart bool

	mu             sync.Mutex // guards WriteFailCause and Dirty, touched by both producer and worker
	writeFailCause error
	Dirty          bool
}

// setWriteFailCause latches the first failure cause; subsequent
// failures don't overwrite it, mirroring the C implementation where
// write_fail_cause is only ever set once per upload (spec.md §4.3
// worker shutdown: "record the cause... post sem_data_need").
func (f *OpenFile) setWriteFailCause(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeFailCause == nil {
		f.writeFailCause = err
	}
}

// WriteFailCause returns the latched failure, or nil if the handle is
// healthy.
func (f *OpenFile) WriteFailCause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeFailCause
}

func (f *OpenFile) setDirty() {
	f.mu.Lock()
	f.Dirty = true
	f.mu.Unlock()
}

func (f *OpenFile) isDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Dirty
}

// IsReady reports whether the upload worker has reached its first
// read-callback invocation (spec.md's is_ready).
func (f *OpenFile) IsReady() bool { return f.isReady.Load() }

// Registry owns the set of currently-open handles (spec.md §4.5): the
// dispatcher constructs an entry on open/create and destroys it on
// release. Besides the registry, only the upload worker goroutine an
// OpenFile spawns and the SharedConn (its current owner and download
// session, cleared by ClearOwner or the next restart) hold a reference
// to it.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	open   map[uint64]*OpenFile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[uint64]*OpenFile)}
}

// New allocates and registers a new OpenFile.
func (r *Registry) New(openPath, fullPath string, mode uint32, flags OpenFlags, canShrink bool, shrinkCap int) *OpenFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	f := &OpenFile{
		ID:        r.nextID,
		Mode:      mode,
		Flags:     flags,
		OpenPath:  openPath,
		FullPath:  fullPath,
		CanShrink: canShrink,
		ShrinkCap: shrinkCap,
	}
	r.open[f.ID] = f
	return f
}

// Get looks up a handle by ID.
func (r *Registry) Get(id uint64) (*OpenFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.open[id]
	return f, ok
}

// Release removes a handle from the registry. It does not perform any
// flush or teardown; callers must finish the write pipeline (Finish)
// and release the shared connection ownership before calling this.
func (r *Registry) Release(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, id)
}
