package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempSeedDir(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempSeedDir(t)
	content := []byte("list:\n  - code: LIQ\n")
	if err := s.Write("masters/types.yaml", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("masters/types.yaml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempSeedDir(t)
	_ = s.Write("masters/types.yaml", []byte("list: []"))
	_ = s.Write("masters/lines.json", []byte(`{"list":[]}`))
	_ = s.Write("masters/readme.txt", []byte("ignored"))
	_ = s.Write("toplevel.yaml", []byte("ignored: true"))
	_ = s.Write("a/b/deep.yaml", []byte("ignored: true"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(items), items)
	}
	for _, it := range items {
		if it.Collection != "masters" {
			t.Errorf("collection = %q", it.Collection)
		}
		if it.Checksum == "" {
			t.Errorf("empty checksum for %s", it.Path)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempSeedDir(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.yaml",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempSeedDir(t)
	_ = s.Write("masters/types.yaml", []byte("list: []"))
	if err := s.Write("masters/types.yaml", []byte("list:\n  - code: LIQ\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("masters/types.yaml")
	if string(got) != "list:\n  - code: LIQ\n" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, "masters", ".plantops-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS("/tmp/plantops-does-not-exist-" + t.Name()); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "plantops-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
