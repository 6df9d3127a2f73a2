package vfsio

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rclone/ftpfs/internal/ftpwire"
)

var log = logrus.WithField("pkg", "vfsio")

// SharedConn is the Shared-Connection Guard (spec.md §3's
// SharedConnectionState, §4.2, §5): one process-wide control
// connection reused for reads and metadata RPCs, serialized by Mu.
// Every metadata RPC and every ReadChunk call must hold Mu from first
// use of Client to last; this is what makes restart-after-seek,
// restart-after-ownership-change, and RPC/read interleaving all safe
// without per-field synchronization.
type SharedConn struct {
	Mu     sync.Mutex
	Client *ftpwire.Client

	attached     bool
	currentOwner *OpenFile
	sess         *downloadSession
}

// NewSharedConn wraps an already-dialed client.
func NewSharedConn(c *ftpwire.Client) *SharedConn {
	return &SharedConn{Client: c}
}

// downloadSession is the "non-blocking pump" the original C driver
// drives with curl_multi_perform + select(). Go has no non-blocking
// socket-read primitive, so the idiomatic translation is a background
// goroutine doing the actual (blocking) data-connection reads while
// the foreground ReadChunk call waits on a notification channel with
// a one-second timeout — preserving the spec's "drive the pump,
// blocking on fd-set readiness with a one-second timeout, until the
// window has enough bytes or no handles remain running" behavior
// without needing libcurl's cooperative multi-interface.
type downloadSession struct {
	owner   *OpenFile
	rc      io.ReadCloser
	changed chan struct{} // non-blocking notify: data appended or session ended

	done bool
	err  error
}

func newDownloadSession(owner *OpenFile, rc io.ReadCloser) *downloadSession {
	return &downloadSession{owner: owner, rc: rc, changed: make(chan struct{}, 1)}
}

func (s *downloadSession) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// CurrentOwner returns the OpenFile that last used the shared
// connection for a download, or nil.
func (sc *SharedConn) CurrentOwner() *OpenFile {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.currentOwner
}

// ClearOwner clears currentOwner if it still points at id, called on
// release (spec.md §4.4: "clear current_fh if it points to this
// handle").
func (sc *SharedConn) ClearOwner(id uint64) {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	if sc.currentOwner != nil && sc.currentOwner.ID == id {
		sc.currentOwner = nil
	}
}

// detachLocked tears down any running pump. Mu must be held.
func (sc *SharedConn) detachLocked() {
	if !sc.attached || sc.sess == nil {
		sc.attached = false
		return
	}
	sess := sc.sess
	if sess.rc != nil {
		_ = sess.rc.Close()
	}
	sc.attached = false
	sc.sess = nil
}

// startDownloadLocked configures the shared connection for a fresh
// range-resumed download and attaches the non-blocking pump. Mu must
// be held; it is released and re-acquired internally is NOT done here
// — callers drive the wait loop themselves (see read.go).
func (sc *SharedConn) startDownloadLocked(owner *OpenFile, fullPath string, offset int64) {
	rc, err := sc.Client.Retr(fullPath, offset)
	if err != nil {
		sess := newDownloadSession(owner, nil)
		sess.done = true
		sess.err = err
		sc.sess = sess
		sc.attached = true
		return
	}
	sess := newDownloadSession(owner, rc)
	sc.sess = sess
	sc.attached = true
	go sc.pump(sess)
}

// pump is the background goroutine standing in for curl's
// multi-interface: it does the actual blocking reads off the data
// connection and appends into the owning OpenFile's read window,
// broadcasting a change after each chunk and on completion.
func (sc *SharedConn) pump(sess *downloadSession) {
	buf := make([]byte, 32*1024)
	for {
		n, err := sess.rc.Read(buf)
		if n > 0 {
			sc.Mu.Lock()
			if sc.sess == sess { // a detached session must not touch the restarted window
				sess.owner.ReadBuf.Append(buf[:n])
			}
			sc.Mu.Unlock()
			sess.notify()
		}
		if err != nil {
			sc.Mu.Lock()
			closeErr := sess.rc.Close()
			if err != io.EOF {
				sess.err = err
			} else if closeErr != nil {
				sess.err = closeErr
			}
			sess.done = true
			sc.Mu.Unlock()
			sess.notify()
			return
		}
	}
}

// waitLocked blocks until sess reports more data or completion, or
// one second elapses, matching spec.md §4.2 step 3's select-with-
// one-second-timeout pump loop. Mu must be held on entry; it is
// released while waiting and re-acquired before returning.
func (sc *SharedConn) waitLocked(sess *downloadSession) {
	sc.Mu.Unlock()
	select {
	case <-sess.changed:
	case <-time.After(time.Second):
	}
	sc.Mu.Lock()
}

