package vfsio

// Metadata RPCs (spec.md §4.4's "mknod, mkdir, rmdir, unlink, rename,
// chmod, chown... under the shared-connection mutex" and "getattr,
// readdir, readlink... under its mutex"). Every method here holds Mu
// for its entire remote round trip, the same guarantee ReadChunk gives
// — spec.md §5 requires metadata RPCs and reads to serialize on one
// mutex so they never interleave mid-transfer.

// Chmod issues SITE CHMOD under the shared-connection mutex.
func (sc *SharedConn) Chmod(path string, mode uint32) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Chmod(path, mode)
}

// Chown issues SITE CHUID/SITE CHGID under the shared-connection mutex.
func (sc *SharedConn) Chown(path string, uid, gid uint32) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Chown(path, uid, gid)
}

// Mkdir issues MKD under the shared-connection mutex.
func (sc *SharedConn) Mkdir(path string) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Mkdir(path)
}

// Rmdir issues RMD under the shared-connection mutex.
func (sc *SharedConn) Rmdir(path string) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Rmdir(path)
}

// Delete issues DELE under the shared-connection mutex.
func (sc *SharedConn) Delete(path string) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Delete(path)
}

// Rename issues RNFR/RNTO as one session under the shared-connection
// mutex (spec.md §4.4: "rename carries two commands... in one
// session").
func (sc *SharedConn) Rename(from, to string) error {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Rename(from, to)
}

// Size issues SIZE under the shared-connection mutex.
func (sc *SharedConn) Size(path string) (int64, error) {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.Size(path)
}

// List issues the configured listing command against dirPath under the
// shared-connection mutex and returns the raw bytes; parsing is the
// listing package's concern.
func (sc *SharedConn) List(dirPath string) ([]byte, error) {
	sc.Mu.Lock()
	defer sc.Mu.Unlock()
	return sc.Client.List(dirPath)
}
