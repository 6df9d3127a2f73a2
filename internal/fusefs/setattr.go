package fusefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/rclone/ftpfs/internal/vfsio"
)

// truncate implements spec.md §4.4's truncate/ftruncate contract: the
// only two legal outcomes are truncate-to-zero (equivalent to
// creating an empty file, enabling write_may_start on the handle that
// called it) and truncate-to-current-size (a no-op, for editors that
// ftruncate to the exact existing length as a save workaround). Any
// other length is permission denied.
func (n *Node) truncate(f fs.FileHandle, size int64) syscall.Errno {
	if size == 0 {
		if h, ok := f.(*Handle); ok {
			h.fh.WriteMayStart = true
			h.fh.Pos = 0
			if h.fh.UploadConn != nil {
				return 0 // an upload is already running on this handle
			}
		}
		fh := n.ctx.registry.New(n.path, n.path, 0, vfsio.OpenFlags{WriteOnly: true, Truncate: true}, false, 0)
		defer n.ctx.registry.Release(fh.ID)
		if err := fh.StartUpload(n.ctx.dial, false, nil); err != nil {
			return vfsio.ErrIO
		}
		if err := fh.Finish(); err != nil {
			return vfsio.ErrIO
		}
		return 0
	}
	e, errno := n.lookupSelf()
	if errno == 0 && e.Size == size {
		return 0
	}
	return syscall.EPERM
}

// Setattr implements spec.md §4.4's chmod/chown/truncate contracts.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if in.Valid&fuse.FATTR_SIZE != 0 {
		if errno := n.truncate(f, int64(in.Size)); errno != 0 {
			return errno
		}
	}
	if in.Valid&fuse.FATTR_MODE != 0 {
		if err := n.ctx.shared.Chmod(stripLeadingSlash(n.path), in.Mode&0o7777); err != nil {
			log.WithError(err).WithField("path", n.path).Debug("chmod failed")
			return vfsio.ErrPermission
		}
	}
	if in.Valid&(fuse.FATTR_UID|fuse.FATTR_GID) != 0 {
		if err := n.ctx.shared.Chown(stripLeadingSlash(n.path), in.Uid, in.Gid); err != nil {
			log.WithError(err).WithField("path", n.path).Debug("chown failed")
			return vfsio.ErrPermission
		}
	}

	e, errno := n.lookupSelf()
	if errno == 0 {
		fillAttr(&out.Attr, e, n.ctx.opt.BlockSize)
	}
	return 0
}
