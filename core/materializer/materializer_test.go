package materializer

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestAcquireExtractsZipAndSharesByHash(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"index.js":   "module.exports = (req, res) => res.json({ok:true});",
		"lib/util.js": "exports.x = 1;",
	})

	m := New()
	h1, err := m.Acquire("hash1", archive)
	require.NoError(t, err)

	entry, err := h1.VFS.EntryScript()
	require.NoError(t, err)
	assert.Contains(t, string(entry), "res.json")

	h2, err := m.Acquire("hash1", archive)
	require.NoError(t, err)
	assert.Same(t, h1.VFS, h2.VFS)

	h1.Release()
	h2.Release()

	_, ok := m.views["hash1"]
	assert.False(t, ok)
}

func TestNormalizePathRejectsTraversal(t *testing.T) {
	_, ok := normalizePath("../../etc/passwd")
	assert.False(t, ok)

	norm, ok := normalizePath("/a/b.js")
	assert.True(t, ok)
	assert.Equal(t, "a/b.js", norm)
}

func TestListDirectoryChildren(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"index.js":    "x",
		"lib/a.js":    "a",
		"lib/b/c.js":  "c",
	})
	m := New()
	h, err := m.Acquire("hash2", archive)
	require.NoError(t, err)
	defer h.Release()

	root := h.VFS.List("")
	assert.Contains(t, root, "index.js")
	assert.Contains(t, root, "lib")

	lib := h.VFS.List("lib")
	assert.Contains(t, lib, "a.js")
	assert.Contains(t, lib, "b")
}
