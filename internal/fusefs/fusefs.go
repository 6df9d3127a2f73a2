// Package fusefs implements the Operation Dispatcher (spec.md §4.4):
// the component that maps host FUSE upcalls onto the Read Engine,
// Write Pipeline, Shared-Connection Guard, and File-Handle Registry in
// internal/vfsio, and onto the remote-command surface in
// internal/ftpwire. It is bound to github.com/hanwen/go-fuse/v2's
// modern `fs` InodeEmbedder API, in the manner observed in the pack's
// other_examples/84aa79dc_drondeseries-altmount__internal-fuse-backend-hanwen-handle.go.go
// (context.Context + syscall.Errno signatures, a FileHandle wrapping
// the real I/O object).
package fusefs

import (
	"context"
	"path"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/rclone/ftpfs/internal/config"
	"github.com/rclone/ftpfs/internal/ftpwire"
	"github.com/rclone/ftpfs/internal/listing"
	"github.com/rclone/ftpfs/internal/vfsio"
)

var log = logrus.WithField("pkg", "fusefs")

// fsContext is the shared state every Node needs: the one
// process-wide shared connection, the open-handle registry, the
// dialer for fresh per-upload connections, and the configuration
// surface (spec.md §5's "Shared resources").
type fsContext struct {
	shared   *vfsio.SharedConn
	registry *vfsio.Registry
	opt      *config.Options
	dial     func() (*ftpwire.Client, error)

	// allowReadWrite gates O_RDWR opens, spec.md §9's open question:
	// "the read-write mode is gated by a compile-time flag; the
	// specification treats it as returning unsupported unless
	// explicitly enabled." We carry this as a runtime config flag
	// instead of a build tag, which is the idiomatic Go substitute for
	// a C compile-time #ifdef (see DESIGN.md).
	allowReadWrite bool
}

// Node is one filesystem entry, read-only metadata-wise: spec.md's
// Non-goal of cross-open metadata caching means a Node never caches a
// listing.Entry across calls — every Getattr/Lookup/Readdir issues a
// fresh listing RPC.
type Node struct {
	fs.Inode
	ctx  *fsContext
	path string // absolute remote path; "/" for the mount root
}

var (
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeMknoder    = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
)

// NewRoot builds the root Node of the mount. dial is used for every
// dedicated upload connection; shared is the one process-wide
// connection used for reads and metadata RPCs.
func NewRoot(opt *config.Options, shared *vfsio.SharedConn, dial func() (*ftpwire.Client, error), allowReadWrite bool) *Node {
	ctx := &fsContext{
		shared:         shared,
		registry:       vfsio.NewRegistry(),
		opt:            opt,
		dial:           dial,
		allowReadWrite: allowReadWrite,
	}
	return &Node{ctx: ctx, path: "/"}
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (n *Node) child(ctx context.Context, name string, entry listing.Entry) *fs.Inode {
	mode := entry.Mode
	switch {
	case entry.IsDir:
		mode |= syscall.S_IFDIR
	case entry.IsLink:
		mode |= syscall.S_IFLNK
	default:
		mode |= syscall.S_IFREG
	}
	childNode := &Node{ctx: n.ctx, path: childPath(n.path, name)}
	return n.NewInode(ctx, childNode, fs.StableAttr{Mode: mode})
}

func fillAttr(out *fuse.Attr, e listing.Entry, blockSize uint64) {
	out.Size = uint64(e.Size)
	out.Mode = e.Mode
	switch {
	case e.IsDir:
		out.Mode |= syscall.S_IFDIR
	case e.IsLink:
		out.Mode |= syscall.S_IFLNK
	default:
		out.Mode |= syscall.S_IFREG
	}
	if !e.ModTime.IsZero() {
		sec := uint64(e.ModTime.Unix())
		out.Atime = sec
		out.Mtime = sec
		out.Ctime = sec
	}
	if blockSize > 0 {
		out.Blocks = (out.Size + blockSize - 1) / blockSize
	}
}

// lookupSelf lists this node's parent directory and returns the entry
// matching this node's own base name (spec.md §4.4 getattr: "fetch a
// directory listing from the parent directory... return the single-
// file stat").
func (n *Node) lookupSelf() (listing.Entry, syscall.Errno) {
	if n.path == "/" {
		return listing.Entry{IsDir: true, Mode: 0o755}, 0
	}
	parent := path.Dir(n.path)
	base := path.Base(n.path)
	raw, err := n.ctx.shared.List(parent)
	if err != nil {
		log.WithError(err).WithField("path", n.path).Debug("getattr list failed")
		return listing.Entry{}, vfsio.ErrNotFound
	}
	for _, e := range listing.Parse(raw) {
		if e.Name == base {
			return e, 0
		}
	}
	return listing.Entry{}, vfsio.ErrNotFound
}

// Getattr implements spec.md §4.4's getattr contract.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	e, errno := n.lookupSelf()
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, e, n.ctx.opt.BlockSize)
	return 0
}

// Lookup implements spec.md §4.4's getattr/readdir/readlink family for
// the specific case of resolving one child name.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	raw, err := n.ctx.shared.List(n.path)
	if err != nil {
		log.WithError(err).WithField("path", n.path).Debug("lookup list failed")
		return nil, vfsio.ErrNotFound
	}
	for _, e := range listing.Parse(raw) {
		if e.Name != name {
			continue
		}
		fillAttr(&out.Attr, e, n.ctx.opt.BlockSize)
		return n.child(ctx, name, e), 0
	}
	return nil, vfsio.ErrNotFound
}

// entryListStream is a fs.DirStream over an already-fetched, already-
// parsed slice of listing.Entry.
type entryListStream struct {
	entries []listing.Entry
	i       int
}

func (s *entryListStream) HasNext() bool { return s.i < len(s.entries) }

func (s *entryListStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.i]
	s.i++
	mode := e.Mode
	switch {
	case e.IsDir:
		mode |= syscall.S_IFDIR
	case e.IsLink:
		mode |= syscall.S_IFLNK
	default:
		mode |= syscall.S_IFREG
	}
	return fuse.DirEntry{Name: e.Name, Mode: mode}, 0
}

func (s *entryListStream) Close() {}

// Readdir implements spec.md §4.4's readdir contract: list n.path and
// hand the parsed entries to the host's listing callback.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	raw, err := n.ctx.shared.List(n.path)
	if err != nil {
		log.WithError(err).WithField("path", n.path).Debug("readdir list failed")
		return nil, vfsio.ErrIO
	}
	return &entryListStream{entries: listing.Parse(raw)}, 0
}

// Readlink implements spec.md §4.4's readlink contract by pulling the
// link target out of the parent-directory listing.
func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	e, errno := n.lookupSelf()
	if errno != 0 {
		return nil, errno
	}
	if !e.IsLink {
		return nil, syscall.EINVAL
	}
	return []byte(e.LinkTo), 0
}

// Statfs reports block counts synthesized from Options.BlockSize;
// spec.md's "true free-space reporting" is an explicit Non-goal, so
// free/available block counts are not meaningful here.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	bs := n.ctx.opt.BlockSize
	if bs == 0 {
		bs = 1024
	}
	out.Bsize = uint32(bs)
	out.Frsize = uint32(bs)
	out.Blocks = 1 << 30
	out.Bfree = 1 << 30
	out.Bavail = 1 << 30
	out.NameLen = 255
	return 0
}

func stripLeadingSlash(p string) string {
	// spec.md §9 open question: rename uses path strings with the
	// leading slash stripped; preserve as-is rather than guessing at
	// a different form for unfamiliar servers.
	return strings.TrimPrefix(p, "/")
}

// Mkdir implements spec.md §4.4's mkdir contract.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := childPath(n.path, name)
	if err := n.ctx.shared.Mkdir(stripLeadingSlash(p)); err != nil {
		log.WithError(err).WithField("path", p).Debug("mkdir failed")
		return nil, vfsio.ErrPermission
	}
	out.Attr.Mode = mode | syscall.S_IFDIR
	childNode := &Node{ctx: n.ctx, path: p}
	return n.NewInode(ctx, childNode, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
}

// Rmdir implements spec.md §4.4's rmdir contract.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := childPath(n.path, name)
	if err := n.ctx.shared.Rmdir(stripLeadingSlash(p)); err != nil {
		log.WithError(err).WithField("path", p).Debug("rmdir failed")
		return vfsio.ErrPermission
	}
	return 0
}

// Unlink implements spec.md §4.4's unlink contract.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := childPath(n.path, name)
	if err := n.ctx.shared.Delete(stripLeadingSlash(p)); err != nil {
		log.WithError(err).WithField("path", p).Debug("unlink failed")
		return vfsio.ErrPermission
	}
	return 0
}

// Rename implements spec.md §4.4's rename contract: RNFR/RNTO as one
// session under the shared-connection mutex.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	from := childPath(n.path, name)
	to := childPath(np.path, newName)
	if err := n.ctx.shared.Rename(stripLeadingSlash(from), stripLeadingSlash(to)); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"from": from, "to": to}).Debug("rename failed")
		return vfsio.ErrPermission
	}
	return 0
}

// Mknod implements spec.md §4.4's mknod contract. FTP has no wire
// representation for device/FIFO nodes (spec.md's Non-goals exclude
// hard/special-file creation beyond regular files), so only a regular
// file is supported: it is synthesized as a zero-byte upload, the same
// as the create-without-write path in Create.
func (n *Node) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if mode&syscall.S_IFMT != syscall.S_IFREG {
		return nil, vfsio.ErrUnsupported
	}
	p := childPath(n.path, name)
	fh := n.ctx.registry.New(p, p, mode&0o7777, vfsio.OpenFlags{WriteOnly: true, Create: true}, false, 0)
	defer n.ctx.registry.Release(fh.ID)
	if errno := n.uploadEmptyFile(fh, mode&0o7777); errno != 0 {
		return nil, errno
	}
	out.Attr.Mode = mode
	childNode := &Node{ctx: n.ctx, path: p}
	return n.NewInode(ctx, childNode, fs.StableAttr{Mode: syscall.S_IFREG}), 0
}

// uploadEmptyFile drives fh through a zero-byte upload followed by a
// chmod, the "open read-only with create" and plain mknod path from
// spec.md §4.4. It does not touch the registry; the caller owns fh's
// lifecycle.
func (n *Node) uploadEmptyFile(fh *vfsio.OpenFile, mode uint32) syscall.Errno {
	err := fh.StartUpload(n.ctx.dial, false, func() error {
		return n.ctx.shared.Chmod(stripLeadingSlash(fh.FullPath), mode)
	})
	if err != nil {
		log.WithError(err).WithField("path", fh.FullPath).Debug("synthesize empty file failed")
		return vfsio.ErrIO
	}
	if err := fh.Finish(); err != nil {
		return vfsio.ErrIO
	}
	return 0
}
