// Package filesystem is the game's virtual filesystem: an ordered search
// path of directories and zip archives.
package filesystem

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
)

type source struct {
	name   string
	fsys   fs.FS
	closer io.Closer
}

// FileSystem resolves slash-separated game paths against its sources in
// order. Lookups fall back to a case-insensitive match, since games
// authored on Windows do not agree with their own file names.
type FileSystem struct {
	sources []source
}

// New opens every path, which must be a directory or a .zip archive.
func New(paths ...string) (*FileSystem, error) {
	fsys := &FileSystem{}
	for _, p := range paths {
		if err := fsys.Mount(p); err != nil {
			fsys.Close()
			return nil, err
		}
	}
	return fsys, nil
}

// Mount appends a directory or zip archive to the search path.
func (f *FileSystem) Mount(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("cannot mount %s: %w", p, err)
	}
	if info.IsDir() {
		f.sources = append(f.sources, source{name: p, fsys: os.DirFS(p)})
		return nil
	}
	if !strings.EqualFold(path.Ext(p), ".zip") {
		return fmt.Errorf("cannot mount %s: not a directory or zip archive", p)
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("cannot mount %s: %w", p, err)
	}
	f.sources = append(f.sources, source{name: p, fsys: zr, closer: zr})
	return nil
}

// MountFS appends an already opened filesystem.
func (f *FileSystem) MountFS(name string, fsys fs.FS) {
	f.sources = append(f.sources, source{name: name, fsys: fsys})
}

// Exists reports whether name resolves to a regular file.
func (f *FileSystem) Exists(name string) bool {
	_, _, ok := f.lookup(name)
	return ok
}

// OpenRead opens name for reading.
func (f *FileSystem) OpenRead(name string) (io.ReadCloser, error) {
	src, resolved, ok := f.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return src.fsys.Open(resolved)
}

// Close closes mounted archives.
func (f *FileSystem) Close() error {
	var first error
	for _, src := range f.sources {
		if src.closer == nil {
			continue
		}
		if err := src.closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	f.sources = nil
	return first
}

func (f *FileSystem) lookup(name string) (source, string, bool) {
	name = Clean(name)
	if name == "" {
		return source{}, "", false
	}
	for _, src := range f.sources {
		if isFile(src.fsys, name) {
			return src, name, true
		}
	}
	for _, src := range f.sources {
		if resolved, ok := fold(src.fsys, name); ok {
			return src, resolved, true
		}
	}
	return source{}, "", false
}

// Clean turns a game path into an fs.FS path: backslashes become slashes
// and leading separators and dot segments are dropped. ".." cannot climb
// above the root.
func Clean(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Clean("/" + name)
	name = strings.TrimPrefix(name, "/")
	if name == "" || !fs.ValidPath(name) {
		return ""
	}
	return name
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.Mode().IsRegular()
}

// fold resolves name one segment at a time, matching each segment
// case-insensitively against the directory listing.
func fold(fsys fs.FS, name string) (string, bool) {
	dir := "."
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return "", false
		}
		found := ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), seg) {
				found = e.Name()
				break
			}
		}
		if found == "" {
			return "", false
		}
		dir = path.Join(dir, found)
		if i == len(segments)-1 {
			return dir, isFile(fsys, dir)
		}
	}
	return "", false
}
