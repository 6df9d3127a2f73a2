package vfsio

import (
	"fmt"

	"github.com/rclone/ftpfs/internal/ftpwire"
)

// maxChunk bounds how many bytes the upload worker copies out of
// StreamBuf per iteration, the Go stand-in for the "maximum buffer
// length" a library read-callback is invoked with (spec.md §4.3's
// worker read-callback contract). It is what makes the self-pump
// branch ("if bytes remain in stream_buf, shift-prefix and re-post")
// reachable instead of dead code: a producer handing over more than
// maxChunk bytes in one Write call forces the worker to drain it in
// more than one pass.
const maxChunk = 64 * 1024

// StartUpload begins the upload worker (spec.md §4.3 "Upload start").
// dial must return a freshly dialed dedicated connection — the
// "per-upload dedicated connection" of spec.md §3/§5, independent of
// the shared connection used for reads and metadata RPCs. appendMode
// engages APPE instead of STOR for a resumed write at pos>0.
// chmodAfterReady, if non-nil, is invoked once the worker reaches
// sem_ready, for the "on create, issues a chmod RPC" step.
//
// The caller (internal/fusefs) decides *whether* to call StartUpload
// at all: spec.md §4.3 ties that decision to the open/truncate upcall
// context (create-or-truncate access, a first write after a
// write_may_start truncate, or a resumed write at pos>0), which is
// dispatcher policy rather than write-pipeline mechanism.
func (f *OpenFile) StartUpload(dial func() (*ftpwire.Client, error), appendMode bool, chmodAfterReady func() error) error {
	f.semReady = newSemaphore()
	f.semDataAvail = newSemaphore()
	f.semDataNeed = newSemaphore()
	f.semDataWritten = newSemaphore()
	f.workerDone = make(chan struct{})
	f.StreamBuf.Clear()
	f.writtenFlag.Store(false)
	f.eof.Store(false)
	f.isReady.Store(false)
	f.mu.Lock()
	f.writeFailCause = nil
	f.mu.Unlock()

	go f.runUploadWorker(dial, appendMode)

	f.semReady.wait()
	if cause := f.WriteFailCause(); cause != nil {
		return fmt.Errorf("vfsio: upload worker failed to start: %w", cause)
	}
	if chmodAfterReady != nil {
		if err := chmodAfterReady(); err != nil {
			log.WithError(err).Warn("chmod after create failed")
		}
	}
	f.semDataNeed.post()
	return nil
}

// runUploadWorker is the worker side of the hand-off: it dials the
// dedicated connection, then repeatedly waits for the producer to
// hand over bytes (sem_data_avail) and writes them to the upload body,
// signaling sem_data_need once it has drained what it was given. It
// is the direct translation of spec.md §4.3's "Worker read-callback
// contract" and "Worker shutdown" from a library-driven pull callback
// into a loop this goroutine drives itself, since Go's net.Conn.Write
// is a push rather than a pull interface.
func (f *OpenFile) runUploadWorker(dial func() (*ftpwire.Client, error), appendMode bool) {
	defer close(f.workerDone)

	conn, err := dial()
	if err != nil {
		f.setWriteFailCause(err)
		f.semReady.post() // early-exit safety net: producer must never deadlock
		f.semDataWritten.post()
		return
	}
	f.UploadConn = conn

	writer, err := conn.Stor(f.FullPath, appendMode)
	if err != nil {
		f.setWriteFailCause(err)
		f.semReady.post()
		f.semDataWritten.post()
		return
	}

	first := true
	var failCause error

loop:
	for {
		if first {
			f.semReady.post()
			f.isReady.Store(true)
			first = false
		}

		if f.StreamBuf.Len() == 0 && f.writtenFlag.Load() {
			f.semDataWritten.post()
		}

		f.semDataAvail.wait()

		if f.eof.Load() {
			break loop
		}

		toCopy := f.StreamBuf.Len()
		if toCopy > maxChunk {
			toCopy = maxChunk
		}
		chunk := append([]byte(nil), f.StreamBuf.Slice(0, toCopy)...)

		if _, werr := writer.Write(chunk); werr != nil {
			failCause = werr
			break loop
		}

		if f.StreamBuf.Len() > toCopy {
			f.StreamBuf.ShiftPrefix(toCopy)
			f.semDataAvail.post() // self-pump: more already buffered than one chunk
		} else {
			f.StreamBuf.Clear()
			f.writtenFlag.Store(true)
			f.semDataNeed.post()
		}
	}

	if !f.isReady.Load() {
		f.semReady.post()
	}

	closeErr := writer.Close()
	if failCause == nil {
		failCause = closeErr
	}
	if failCause != nil {
		f.setWriteFailCause(failCause)
		f.semDataNeed.post()
	}
	f.semDataWritten.post()
}

// Write implements the producer side of spec.md §4.3's per-call
// contract: it rejects a handle with a latched failure, rejects a
// non-sequential offset after draining the worker, then hands the
// bytes over (steps 3-6). Starting the worker is the caller's
// responsibility — see StartUpload's doc comment. It blocks until the
// worker has either accepted the bytes or failed.
func (f *OpenFile) Write(offset int64, data []byte) (int, error) {
	if cause := f.WriteFailCause(); cause != nil {
		return 0, fmt.Errorf("vfsio: write: %w", cause)
	}
	if offset != f.Pos {
		_ = f.Finish()
		return 0, fmt.Errorf("vfsio: non-sequential write at offset %d, expected %d", offset, f.Pos)
	}

	f.semDataNeed.wait()
	f.StreamBuf.Append(data)
	f.Pos += int64(len(data))
	f.semDataAvail.post()
	f.semDataWritten.wait()
	f.writtenFlag.Store(false)

	if cause := f.WriteFailCause(); cause != nil {
		return 0, fmt.Errorf("vfsio: write: %w", cause)
	}
	return len(data), nil
}

// Finish implements spec.md §4.3 "Finish (called from flush)": signal
// end of body, join the worker, tear down the upload connection and
// semaphores. It is idempotent — calling it on a handle with no active
// upload is a no-op, matching release's "flush (errors ignored)" use.
func (f *OpenFile) Finish() error {
	if f.UploadConn == nil {
		return nil
	}

	if f.WriteFailCause() == nil {
		f.semDataNeed.wait()
	}
	f.eof.Store(true)
	f.semDataAvail.post()
	<-f.workerDone

	conn := f.UploadConn
	f.UploadConn = nil
	_ = conn.Close()

	f.destroySemaphores()

	if cause := f.WriteFailCause(); cause != nil {
		return fmt.Errorf("vfsio: flush: %w", cause)
	}
	return nil
}

// destroySemaphores drops the four semaphores, mirroring spec.md §5's
// "created per upload start, destroyed per upload finish; also
// destroyed defensively on release" — in Go this just means letting
// them become garbage once nothing still holds a reference.
func (f *OpenFile) destroySemaphores() {
	f.semReady = nil
	f.semDataAvail = nil
	f.semDataNeed = nil
	f.semDataWritten = nil
}
