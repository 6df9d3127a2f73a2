// Package iobuf implements the growable byte buffer shared by the read
// and write sides of a file handle: a sliding window over a remote
// download on the read side, a producer/worker hand-off on the write
// side.
package iobuf

// Buffer is a growable contiguous byte region with an associated
// BeginOffset. It has no internal locking; callers hold whatever mutex
// or semaphore protocol governs the handle the Buffer belongs to.
type Buffer struct {
	// BeginOffset is the remote-file offset of the first byte currently
	// held in buf. Callers update it directly; Buffer itself never
	// reads or writes it except to leave it untouched across Append.
	BeginOffset int64

	buf []byte
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Bytes returns the buffer's current contents. The slice is only valid
// until the next mutating call on b.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Append adds data to the end of the buffer, growing capacity as
// needed. Append never fails in Go (allocation failure panics, as it
// does throughout the runtime), unlike the C buffer this is modeled on
// which could return an allocation error from realloc; callers that
// want the old fallible-append contract should recover at the request
// boundary instead.
func (b *Buffer) Append(data []byte) {
	b.buf = append(b.buf, data...)
}

// Clear empties the buffer, keeping the underlying array so a
// subsequent Append can reuse the capacity.
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
}

// ShiftPrefix discards the first n bytes, moving the remainder to the
// front. The caller is responsible for advancing BeginOffset by n;
// ShiftPrefix itself only touches the byte storage.
func (b *Buffer) ShiftPrefix(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:len(b.buf)-n]
}

// NullTerminated returns the buffer's contents as a string without
// mutating the buffer. The C implementation this is modeled on appends
// a trailing NUL without extending len() so the bytes could be handed
// to string-oriented parsing routines; string(b.buf) gives the same
// result in Go without needing the extra byte.
func (b *Buffer) NullTerminated() string {
	return string(b.buf)
}

// Slice returns the bytes in [from, to) relative to the start of the
// buffer, clamped to what is actually held. It is a read-only view.
func (b *Buffer) Slice(from, to int) []byte {
	if from < 0 {
		from = 0
	}
	if to > len(b.buf) {
		to = len(b.buf)
	}
	if from >= to {
		return nil
	}
	return b.buf[from:to]
}
