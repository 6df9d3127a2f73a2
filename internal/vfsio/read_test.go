package vfsio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadChunkSequentialFillsWindow(t *testing.T) {
	srv := newFakeFTPServer(t)
	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	srv.setFile(content)

	client := dialFake(t, srv)
	defer client.Close()

	sc := NewSharedConn(client)
	fh := &OpenFile{ID: 1, CanShrink: true, ShrinkCap: 1 << 20}

	out := make([]byte, 1000)
	n, err := sc.ReadChunk("/file.bin", out, 1000, 0, fh, true)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, content[:1000], out)

	n, err = sc.ReadChunk("/file.bin", out, 1000, 1000, fh, true)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, content[1000:2000], out)
}

func TestReadChunkForwardJumpServesCorrectBytes(t *testing.T) {
	srv := newFakeFTPServer(t)
	content := make([]byte, 2000)
	for i := range content {
		content[i] = byte(i)
	}
	srv.setFile(content)

	client := dialFake(t, srv)
	defer client.Close()

	sc := NewSharedConn(client)
	fh := &OpenFile{ID: 1, CanShrink: true, ShrinkCap: 1 << 20}

	out := make([]byte, 100)
	_, err := sc.ReadChunk("/file.bin", out, 100, 0, fh, true)
	require.NoError(t, err)

	// A later offset must still serve the right bytes, whether the
	// sliding window already covers it or a restart (REST) is needed
	// to grow the window out to it.
	n, err := sc.ReadChunk("/file.bin", out, 100, 1500, fh, true)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, content[1500:1600], out)
}

func TestReadChunkOwnershipTransferClearsOnRelease(t *testing.T) {
	srv := newFakeFTPServer(t)
	srv.setFile([]byte("hello world"))

	client := dialFake(t, srv)
	defer client.Close()

	sc := NewSharedConn(client)
	fh := &OpenFile{ID: 7, CanShrink: true, ShrinkCap: 1 << 20}

	out := make([]byte, 5)
	_, err := sc.ReadChunk("/greeting.txt", out, 5, 0, fh, true)
	require.NoError(t, err)
	assert.Equal(t, fh, sc.CurrentOwner())

	sc.ClearOwner(fh.ID)
	assert.Nil(t, sc.CurrentOwner())
}
