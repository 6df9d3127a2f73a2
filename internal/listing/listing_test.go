package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSkipsTotalAndDots(t *testing.T) {
	raw := []byte("total 12\n" +
		"drwxr-xr-x 2 user group 4096 Jan 02 15:04 .\n" +
		"drwxr-xr-x 2 user group 4096 Jan 02 15:04 ..\n" +
		"-rw-r--r-- 1 user group  123 Jan 02 15:04 a\n")
	entries := Parse(raw)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "a", entries[0].Name)
		assert.False(t, entries[0].IsDir)
		assert.Equal(t, int64(123), entries[0].Size)
	}
}

func TestParseDirectory(t *testing.T) {
	raw := []byte("drwxr-xr-x 2 user group 4096 Jan 02 15:04 sub\n")
	entries := Parse(raw)
	if assert.Len(t, entries, 1) {
		assert.True(t, entries[0].IsDir)
		assert.Equal(t, "sub", entries[0].Name)
	}
}

func TestParseSymlink(t *testing.T) {
	raw := []byte("lrwxrwxrwx 1 user group 7 Jan 02 15:04 link -> target\n")
	entries := Parse(raw)
	if assert.Len(t, entries, 1) {
		assert.True(t, entries[0].IsLink)
		assert.Equal(t, "link", entries[0].Name)
		assert.Equal(t, "target", entries[0].LinkTo)
	}
}

func TestParseNameWithSpaces(t *testing.T) {
	raw := []byte("-rw-r--r-- 1 user group 10 Jan 02 15:04 my file.txt\n")
	entries := Parse(raw)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "my file.txt", entries[0].Name)
	}
}
