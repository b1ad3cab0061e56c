// Package materializer implements the Package Materializer: it
// extracts a version's archive into a read-only Virtual FS view, shared by
// reference-count across concurrent invocations of the same content hash.
package materializer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/faasforge/faascore/core/apierr"
)

// File is one read-only entry in a Virtual FS view.
type File struct {
	Path    string // normalized, forward-slash, no leading slash
	Content []byte
	IsDir   bool
}

// VFS is an immutable, read-only virtual filesystem view materialized from
// one version archive. Safe for concurrent reads from multiple invocations.
type VFS struct {
	ContentHash string
	files       map[string]*File
	dirs        map[string][]string // dir path -> child names (files and dirs), sorted by insertion
}

// EntryPoint is the fixed root-level entry module name.
const EntryPoint = "index.js"

// Get returns the file at normalizedPath, or (nil, false) if absent.
func (v *VFS) Get(normalizedPath string) (*File, bool) {
	f, ok := v.files[normalizedPath]
	return f, ok
}

// List returns the child names of dir ("" for root), without guaranteeing
// an order stronger than insertion order at materialization time.
func (v *VFS) List(dir string) []string {
	out := v.dirs[dir]
	cp := make([]string, len(out))
	copy(cp, out)
	return cp
}

// EntryScript returns the contents of the root index.js, or an error if the
// archive has none.
func (v *VFS) EntryScript() ([]byte, error) {
	f, ok := v.Get(EntryPoint)
	if !ok || f.IsDir {
		return nil, apierr.New(apierr.InternalError, "archive has no root index.js entry point")
	}
	return f.Content, nil
}

// Materializer extracts archives into VFS views, deduplicating by content
// hash with reference counting so concurrent invocations of the same
// version share one VFS instance.
type Materializer struct {
	mu    sync.Mutex
	views map[string]*refCountedVFS
}

type refCountedVFS struct {
	vfs      *VFS
	refCount int
}

// New returns an empty Materializer.
func New() *Materializer {
	return &Materializer{views: map[string]*refCountedVFS{}}
}

// Handle is a borrowed reference to a materialized VFS; call Release when
// the invocation that acquired it tears down.
type Handle struct {
	m    *Materializer
	hash string
	VFS  *VFS
}

// Release drops this invocation's reference to the underlying VFS.
func (h *Handle) Release() {
	h.m.release(h.hash)
}

// Acquire materializes (or reuses) the VFS for the given archive, detected
// as zip or gzip+tar by sniffing its first bytes.
func (m *Materializer) Acquire(contentHash string, archive []byte) (*Handle, error) {
	m.mu.Lock()
	if rc, ok := m.views[contentHash]; ok {
		rc.refCount++
		m.mu.Unlock()
		return &Handle{m: m, hash: contentHash, VFS: rc.vfs}, nil
	}
	m.mu.Unlock()

	vfs, err := extract(contentHash, archive)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.views[contentHash]; ok {
		// Lost a materialization race; reuse the winner's VFS.
		rc.refCount++
		return &Handle{m: m, hash: contentHash, VFS: rc.vfs}, nil
	}
	m.views[contentHash] = &refCountedVFS{vfs: vfs, refCount: 1}
	return &Handle{m: m, hash: contentHash, VFS: vfs}, nil
}

func (m *Materializer) release(contentHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.views[contentHash]
	if !ok {
		return
	}
	rc.refCount--
	if rc.refCount <= 0 {
		delete(m.views, contentHash)
	}
}

func extract(contentHash string, archive []byte) (*VFS, error) {
	if len(archive) >= 4 && bytes.HasPrefix(archive, []byte("PK\x03\x04")) {
		return extractZip(contentHash, archive)
	}
	return extractTarGz(contentHash, archive)
}

func extractZip(contentHash string, archive []byte) (*VFS, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidData, "corrupt zip archive", err)
	}
	vfs := newVFS(contentHash)
	for _, f := range r.File {
		norm, ok := normalizePath(f.Name)
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			vfs.addDir(norm)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidData, "corrupt zip entry "+f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidData, "corrupt zip entry "+f.Name, err)
		}
		vfs.addFile(norm, content)
	}
	return vfs, nil
}

func extractTarGz(contentHash string, archive []byte) (*VFS, error) {
	var tr *tar.Reader
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err == nil {
		tr = tar.NewReader(gz)
	} else {
		tr = tar.NewReader(bytes.NewReader(archive))
	}

	vfs := newVFS(contentHash)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidData, "corrupt tar archive", err)
		}
		norm, ok := normalizePath(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Typeflag == tar.TypeDir {
			vfs.addDir(norm)
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidData, "corrupt tar entry "+hdr.Name, err)
		}
		vfs.addFile(norm, content)
	}
	return vfs, nil
}

func newVFS(contentHash string) *VFS {
	return &VFS{
		ContentHash: contentHash,
		files:       map[string]*File{},
		dirs:        map[string][]string{},
	}
}

func (v *VFS) addFile(norm string, content []byte) {
	v.files[norm] = &File{Path: norm, Content: content}
	v.linkParents(norm)
}

func (v *VFS) addDir(norm string) {
	if norm == "" {
		return
	}
	if _, ok := v.files[norm]; !ok {
		v.files[norm] = &File{Path: norm, IsDir: true}
	}
	v.linkParents(norm)
}

func (v *VFS) linkParents(norm string) {
	dir := path.Dir(norm)
	if dir == "." {
		dir = ""
	}
	name := path.Base(norm)
	for _, existing := range v.dirs[dir] {
		if existing == name {
			return
		}
	}
	v.dirs[dir] = append(v.dirs[dir], name)
	if dir != "" {
		v.addDir(dir)
	}
}

// normalizePath rejects absolute paths and ".." traversal, and returns the
// forward-slash-normalized relative path.
func normalizePath(raw string) (string, bool) {
	cleaned := path.Clean(strings.ReplaceAll(raw, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." || cleaned == "" {
		return "", false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
