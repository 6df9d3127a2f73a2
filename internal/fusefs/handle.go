package fusefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/rclone/ftpfs/internal/vfsio"
)

// Handle is the FileHandle spec.md §4.5 calls the opaque per-open
// entry: it wraps the vfsio.OpenFile the registry owns, plus enough
// context to drive the write pipeline's start/finish calls and the
// shared connection's read path.
type Handle struct {
	ctx *fsContext
	fh  *vfsio.OpenFile

	readOnly bool
}

var (
	_ fs.FileReader   = (*Handle)(nil)
	_ fs.FileWriter   = (*Handle)(nil)
	_ fs.FileFlusher  = (*Handle)(nil)
	_ fs.FileFsyncer  = (*Handle)(nil)
	_ fs.FileReleaser = (*Handle)(nil)
)

func accessMode(flags uint32) (ro, wo, rw bool) {
	switch int(flags) & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		ro = true
	case syscall.O_WRONLY:
		wo = true
	case syscall.O_RDWR:
		rw = true
	}
	return
}

// Open implements spec.md §4.4's open contract for a path that already
// exists (the kernel only reaches this, rather than Create, when
// Lookup already found the entry).
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	ro, wo, rw := accessMode(flags)
	trunc := flags&syscall.O_TRUNC != 0

	if flags&syscall.O_APPEND != 0 {
		return nil, 0, syscall.ENOTSUP // Non-goal: random-access/append writes
	}
	if rw && !n.ctx.allowReadWrite {
		return nil, 0, syscall.ENOTSUP // spec.md §9 open question
	}

	of := vfsio.OpenFlags{ReadOnly: ro, WriteOnly: wo, ReadWrite: rw, Truncate: trunc}
	shrinkCap := n.ctx.opt.ShrinkCap
	fh := n.ctx.registry.New(n.path, n.path, 0, of, ro, shrinkCap)

	if ro || rw {
		probe := make([]byte, 1)
		if _, err := n.ctx.shared.ReadChunk(n.path, probe, 1, 0, fh, false); err != nil {
			n.ctx.registry.Release(fh.ID)
			return nil, 0, vfsio.ErrPermission
		}
	}

	if wo || rw {
		if trunc {
			if err := fh.StartUpload(n.ctx.dial, false, nil); err != nil {
				n.ctx.registry.Release(fh.ID)
				return nil, 0, vfsio.ErrIO
			}
		}
		// Without create or truncate: defer start until a subsequent
		// truncate-to-zero at pos==0 (spec.md §4.4); fh.WriteMayStart
		// stays false until Setattr sees that truncate.
	}

	return &Handle{ctx: n.ctx, fh: fh, readOnly: ro}, 0, 0
}

// Create implements spec.md §4.4's open-with-create contract.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	ro, wo, rw := accessMode(flags)
	p := childPath(n.path, name)

	if flags&syscall.O_EXCL != 0 {
		if _, errno := (&Node{ctx: n.ctx, path: p}).lookupSelf(); errno == 0 {
			return nil, nil, 0, vfsio.ErrPermission
		}
	}
	if rw && !n.ctx.allowReadWrite {
		return nil, nil, 0, syscall.ENOTSUP
	}

	of := vfsio.OpenFlags{ReadOnly: ro, WriteOnly: wo, ReadWrite: rw, Create: true, Excl: flags&syscall.O_EXCL != 0}
	fh := n.ctx.registry.New(p, p, mode, of, false, 0)

	if ro {
		// "Read-only with create: synthesize an empty remote file
		// (upload of zero bytes) then chmod."
		if errno := n.uploadEmptyFile(fh, mode&0o7777); errno != 0 {
			n.ctx.registry.Release(fh.ID)
			return nil, nil, 0, errno
		}
	} else {
		if err := fh.StartUpload(n.ctx.dial, false, func() error {
			return n.ctx.shared.Chmod(stripLeadingSlash(p), mode&0o7777)
		}); err != nil {
			n.ctx.registry.Release(fh.ID)
			return nil, nil, 0, vfsio.ErrIO
		}
	}

	out.Attr.Mode = mode
	childNode := &Node{ctx: n.ctx, path: p}
	inode := n.NewInode(ctx, childNode, fs.StableAttr{Mode: syscall.S_IFREG})
	return inode, &Handle{ctx: n.ctx, fh: fh, readOnly: ro}, 0, 0
}

// Read implements spec.md §4.4's read contract: reject read-after-
// write, otherwise serve from the Read Engine.
func (h *Handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if h.fh.Pos > 0 || h.fh.IsReady() {
		return nil, vfsio.ErrIO // "reject if any bytes have been written on this handle"
	}
	n, err := h.ctx.shared.ReadChunk(h.fh.FullPath, dest, len(dest), off, h.fh, true)
	if err != nil {
		log.WithError(err).WithField("path", h.fh.FullPath).Debug("read failed")
		return nil, vfsio.ErrIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write implements spec.md §4.4's write contract (the producer side of
// §4.3), including the deferred-start rule for a write-open that
// wasn't created or truncated at open time, and the resume rule: a
// healthy handle whose upload was finished by an earlier flush starts
// a new one in append mode when the next write continues at Pos.
func (h *Handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if h.fh.UploadConn == nil {
		resume := off > 0 && off == h.fh.Pos && h.fh.WriteFailCause() == nil
		if !resume && (off != 0 || !h.fh.WriteMayStart) {
			return 0, vfsio.ErrIO
		}
		if err := h.fh.StartUpload(h.ctx.dial, resume, nil); err != nil {
			return 0, vfsio.ErrIO
		}
	}
	n, err := h.fh.Write(off, data)
	if err != nil {
		log.WithError(err).WithField("path", h.fh.FullPath).Debug("write failed")
		return uint32(n), vfsio.ErrIO
	}
	return uint32(n), 0
}

// flush finishes any active upload and, per spec.md §4.4, verifies the
// remote size matches pos.
func (h *Handle) flush() syscall.Errno {
	if h.fh.UploadConn != nil {
		if err := h.fh.Finish(); err != nil {
			return vfsio.ErrIO
		}
		size, err := h.ctx.shared.Size(stripLeadingSlash(h.fh.FullPath))
		if err != nil {
			return vfsio.ErrIO
		}
		if size != h.fh.Pos {
			// Logged only: the mismatch is not stored as the
			// handle's write-fail cause.
			log.WithError(vfsio.ErrSizeMismatch).WithFields(logrus.Fields{
				"path": h.fh.FullPath, "want": h.fh.Pos, "got": size,
			}).Warn("upload size mismatch")
			return vfsio.ErrIO
		}
	}
	return 0
}

// Flush implements spec.md §4.4's flush contract.
func (h *Handle) Flush(ctx context.Context) syscall.Errno {
	return h.flush()
}

// Fsync implements spec.md §4.4's fsync contract: equivalent to flush.
func (h *Handle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.flush()
}

// Release implements spec.md §4.4's release contract: flush (errors
// ignored), clear current_fh if it points at this handle, free the
// registry entry.
func (h *Handle) Release(ctx context.Context) syscall.Errno {
	_ = h.flush()
	h.ctx.shared.ClearOwner(h.fh.ID)
	h.ctx.registry.Release(h.fh.ID)
	return 0
}
