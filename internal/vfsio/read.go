package vfsio

import (
	"fmt"
)

// ReadChunk implements the Read Engine contract from spec.md §4.2:
// serve up to size bytes at offset from fh's sliding window, feeding
// the window from a range-resumed download when it doesn't already
// hold the requested span. The shared connection's mutex is held for
// the whole call, serializing against metadata RPCs and reads from
// other handles (spec.md §5).
//
// updatePosition, when true, advances fh.LastOffset the way a real
// read() upcall does; probes during open pass false.
func (sc *SharedConn) ReadChunk(fullPath string, out []byte, size int, offset int64, fh *OpenFile, updatePosition bool) (int, error) {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()

	if !sc.canServeFromWindowLocked(fh, offset, size) {
		sc.restartLocked(fh, fullPath, offset)
	}

	sess := sc.sess
	want := offset + int64(size)
	for {
		have := fh.ReadBuf.BeginOffset + int64(fh.ReadBuf.Len())
		if have >= want {
			break
		}
		if sess.done {
			break
		}
		sc.waitLocked(sess)
	}

	if sess.done && sess.err != nil && fh.ReadBuf.BeginOffset+int64(fh.ReadBuf.Len()) < want {
		return 0, fmt.Errorf("vfsio: bad read at offset %d: %w", offset, sess.err)
	}

	served := sc.serveLocked(fh, out, size, offset)
	if updatePosition {
		fh.LastOffset = offset + int64(served)
	}
	sc.shrinkLocked(fh)
	return served, nil
}

// canServeFromWindowLocked is spec.md §4.2 step 1: a cache hit
// requires fh to currently own the connection, the requested span to
// lie within the window, and — if the window must still grow to cover
// it — a pump still running to grow it.
func (sc *SharedConn) canServeFromWindowLocked(fh *OpenFile, offset int64, size int) bool {
	if sc.currentOwner != fh || sc.sess == nil {
		return false
	}
	begin := fh.ReadBuf.BeginOffset
	end := begin + int64(fh.ReadBuf.Len())
	if offset < begin {
		return false // backward seek: must restart
	}
	if offset+int64(size) <= end {
		return true // fully cached already
	}
	// Span extends past what's cached: only a hit if the pump can
	// still extend the window to cover it.
	return offset <= end && !sc.sess.done
}

// restartLocked is spec.md §4.2 step 2: detach any previous pump,
// clear the window, reposition it at offset, and attach a fresh
// range-resumed download.
func (sc *SharedConn) restartLocked(fh *OpenFile, fullPath string, offset int64) {
	sc.detachLocked()
	fh.ReadBuf.Clear()
	fh.ReadBuf.BeginOffset = offset
	sc.currentOwner = fh
	sc.startDownloadLocked(fh, fullPath, offset)
	log.WithField("offset", offset).WithField("path", fullPath).Debug("read restart")
}

// serveLocked copies up to size bytes starting at offset from fh's
// window into out, clamped to what the window actually holds (spec.md
// §4.2 step 5).
func (sc *SharedConn) serveLocked(fh *OpenFile, out []byte, size int, offset int64) int {
	relStart := int(offset - fh.ReadBuf.BeginOffset)
	relEnd := relStart + size
	data := fh.ReadBuf.Slice(relStart, relEnd)
	n := copy(out, data)
	return n
}

// shrinkLocked is spec.md §4.2 step 6: for read-only opens, discard
// the consumed prefix once the window exceeds ShrinkCap.
func (sc *SharedConn) shrinkLocked(fh *OpenFile) {
	if !fh.CanShrink {
		return
	}
	shrinkCap := fh.ShrinkCap
	if shrinkCap <= 0 {
		shrinkCap = 300 * 1024
	}
	if fh.ReadBuf.Len() <= shrinkCap {
		return
	}
	consumed := int(fh.LastOffset - fh.ReadBuf.BeginOffset)
	if consumed <= 0 {
		return
	}
	fh.ReadBuf.ShiftPrefix(consumed)
	fh.ReadBuf.BeginOffset += int64(consumed)
}
