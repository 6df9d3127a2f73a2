package vfsio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/ftpfs/internal/ftpwire"
)

func TestUploadPipelineSingleSmallWrite(t *testing.T) {
	srv := newFakeFTPServer(t)

	var dialed *ftpwire.Client
	dial := func() (*ftpwire.Client, error) {
		dialed = dialFake(t, srv)
		return dialed, nil
	}

	fh := &OpenFile{ID: 1, FullPath: "/upload.bin"}

	chmodCalled := false
	err := fh.StartUpload(dial, false, func() error {
		chmodCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, chmodCalled)
	assert.True(t, fh.IsReady())

	n, err := fh.Write(0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, int64(11), fh.Pos)

	require.NoError(t, fh.Finish())
	assert.Equal(t, []byte("hello world"), srv.uploadedBytes())

	// Finish is idempotent.
	require.NoError(t, fh.Finish())
}

func TestUploadPipelineMultipleSequentialWrites(t *testing.T) {
	srv := newFakeFTPServer(t)
	dial := func() (*ftpwire.Client, error) { return dialFake(t, srv), nil }

	fh := &OpenFile{ID: 2, FullPath: "/parts.bin"}
	require.NoError(t, fh.StartUpload(dial, false, nil))

	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}
	var want []byte
	for _, c := range chunks {
		n, err := fh.Write(fh.Pos, c)
		require.NoError(t, err)
		assert.Equal(t, len(c), n)
		want = append(want, c...)
	}

	require.NoError(t, fh.Finish())
	assert.Equal(t, want, srv.uploadedBytes())
}

func TestUploadPipelineChunkLargerThanMaxChunk(t *testing.T) {
	srv := newFakeFTPServer(t)
	dial := func() (*ftpwire.Client, error) { return dialFake(t, srv), nil }

	fh := &OpenFile{ID: 3, FullPath: "/big.bin"}
	require.NoError(t, fh.StartUpload(dial, false, nil))

	// Bigger than maxChunk forces the worker's self-pump branch: more
	// than one Write to the data connection per producer call.
	payload := make([]byte, maxChunk*2+37)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := fh.Write(0, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, fh.Finish())
	assert.Equal(t, payload, srv.uploadedBytes())
}

func TestUploadPipelineNonSequentialWriteFails(t *testing.T) {
	srv := newFakeFTPServer(t)
	dial := func() (*ftpwire.Client, error) { return dialFake(t, srv), nil }

	fh := &OpenFile{ID: 4, FullPath: "/seq.bin"}
	require.NoError(t, fh.StartUpload(dial, false, nil))

	_, err := fh.Write(0, []byte("abc"))
	require.NoError(t, err)

	// Skipping ahead instead of continuing at pos=3 must be rejected,
	// and must drain the worker rather than leaving it blocked.
	_, err = fh.Write(10, []byte("xyz"))
	require.Error(t, err)

	done := make(chan struct{})
	go func() {
		<-fh.workerDone
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down after a rejected non-sequential write")
	}
}

func TestUploadPipelineStartFailureSurfacesImmediately(t *testing.T) {
	fh := &OpenFile{ID: 5, FullPath: "/unreachable.bin"}
	dial := func() (*ftpwire.Client, error) {
		return nil, assertError("dial refused")
	}

	err := fh.StartUpload(dial, false, nil)
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
