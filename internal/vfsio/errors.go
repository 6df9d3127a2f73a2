package vfsio

import (
	"errors"
	"syscall"
)

// Error taxonomy from spec.md §7, expressed as syscall.Errno so the
// fusefs dispatcher can hand them straight to go-fuse, which already
// speaks this convention natively instead of the bespoke negative-int
// Error type a libfuse-style C driver needs. internal/fusefs returns
// these directly rather than redeclaring the same four syscall.Errno
// values under local names.
var (
	ErrNotFound    = syscall.ENOENT
	ErrPermission  = syscall.EACCES
	ErrUnsupported = syscall.ENOSYS
	ErrIO          = syscall.EIO
)

// ErrSizeMismatch names the failure of flush's post-upload size check.
// internal/fusefs's Handle.flush logs it and returns ErrIO; it is not
// stored as the handle's write-fail cause and is not returned to the
// host.
var ErrSizeMismatch = errors.New("vfsio: uploaded size does not match bytes written")
