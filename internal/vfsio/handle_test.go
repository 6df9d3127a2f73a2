package vfsio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryNewAssignsIncreasingIDs(t *testing.T) {
	r := NewRegistry()
	a := r.New("/a", "/remote/a", 0o644, OpenFlags{ReadOnly: true}, true, 0)
	b := r.New("/b", "/remote/b", 0o644, OpenFlags{WriteOnly: true}, false, 0)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID)
}

func TestRegistryGetAndRelease(t *testing.T) {
	r := NewRegistry()
	f := r.New("/a", "/remote/a", 0o644, OpenFlags{ReadOnly: true}, true, 0)

	got, ok := r.Get(f.ID)
	assert.True(t, ok)
	assert.Same(t, f, got)

	r.Release(f.ID)
	_, ok = r.Get(f.ID)
	assert.False(t, ok)
}

func TestOpenFileWriteFailCauseLatchesFirstError(t *testing.T) {
	f := &OpenFile{}
	assert.NoError(t, f.WriteFailCause())

	first := assertErr("first")
	second := assertErr("second")
	f.setWriteFailCause(first)
	f.setWriteFailCause(second)
	assert.Equal(t, first, f.WriteFailCause())
}

func TestOpenFileDirtyFlag(t *testing.T) {
	f := &OpenFile{}
	assert.False(t, f.isDirty())
	f.setDirty()
	assert.True(t, f.isDirty())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
