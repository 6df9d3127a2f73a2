package iobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferAppendAndLen(t *testing.T) {
	var b Buffer
	assert.Equal(t, 0, b.Len())
	b.Append([]byte("hello"))
	assert.Equal(t, 5, b.Len())
	b.Append([]byte(" world"))
	assert.Equal(t, "hello world", string(b.Bytes()))
}

func TestBufferClearKeepsCapacity(t *testing.T) {
	var b Buffer
	b.Append([]byte("0123456789"))
	cap1 := cap(b.Bytes())
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, cap1, cap(b.Bytes()))
}

func TestBufferShiftPrefix(t *testing.T) {
	var b Buffer
	b.BeginOffset = 100
	b.Append([]byte("abcdefgh"))
	b.ShiftPrefix(3)
	b.BeginOffset += 3
	assert.Equal(t, "defgh", string(b.Bytes()))
	assert.Equal(t, int64(103), b.BeginOffset)
}

func TestBufferShiftPrefixAll(t *testing.T) {
	var b Buffer
	b.Append([]byte("abc"))
	b.ShiftPrefix(10)
	assert.Equal(t, 0, b.Len())
}

func TestBufferShiftPrefixZero(t *testing.T) {
	var b Buffer
	b.Append([]byte("abc"))
	b.ShiftPrefix(0)
	assert.Equal(t, "abc", string(b.Bytes()))
}

func TestBufferSlice(t *testing.T) {
	var b Buffer
	b.Append([]byte("0123456789"))
	assert.Equal(t, "234", string(b.Slice(2, 5)))
	assert.Nil(t, b.Slice(5, 2))
	assert.Equal(t, "456789", string(b.Slice(4, 100)))
}
