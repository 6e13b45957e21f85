package filesystem

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
}

func readAll(t *testing.T, fsys *FileSystem, name string) string {
	t.Helper()
	r, err := fsys.OpenRead(name)
	if err != nil {
		t.Fatalf("OpenRead(%q) failed: %v", name, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestDirectoryAndZip(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "Data"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Data", "Scripts.rxdata"), []byte("from dir"), 0644); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "Game.zip")
	writeZip(t, archive, map[string]string{
		"Data/Scripts.rxdata": "from zip",
		"Data/Items.rxdata":   "items",
	})

	fsys, err := New(dir, archive)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fsys.Close()

	if got := readAll(t, fsys, "Data/Scripts.rxdata"); got != "from dir" {
		t.Errorf("Scripts.rxdata = %q, want the directory copy", got)
	}
	if got := readAll(t, fsys, "Data/Items.rxdata"); got != "items" {
		t.Errorf("Items.rxdata = %q, want items", got)
	}
	if fsys.Exists("Data/Nope.rxdata") {
		t.Error("Exists(Data/Nope.rxdata) = true")
	}
	if fsys.Exists("Data") {
		t.Error("Exists(Data) = true for a directory")
	}
}

func TestCaseInsensitiveLookup(t *testing.T) {
	fsys := &FileSystem{}
	fsys.MountFS("mem", fstest.MapFS{
		"Graphics/Titles/Title.png": {Data: []byte("png")},
	})

	for _, name := range []string{
		"Graphics/Titles/Title.png",
		"graphics/titles/title.PNG",
		`Graphics\Titles\Title.png`,
		"/Graphics/./Titles/Title.png",
	} {
		if !fsys.Exists(name) {
			t.Errorf("Exists(%q) = false, want true", name)
		}
	}
	if got := readAll(t, fsys, "GRAPHICS/TITLES/TITLE.PNG"); got != "png" {
		t.Errorf("content = %q, want png", got)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Data/Scripts.rxdata", "Data/Scripts.rxdata"},
		{`Data\Scripts.rxdata`, "Data/Scripts.rxdata"},
		{"./Data//Map001.rxdata", "Data/Map001.rxdata"},
		{"../secret", "secret"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMountRejectsPlainFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(p); err == nil {
		t.Error("New accepted a plain file, want error")
	}
}
