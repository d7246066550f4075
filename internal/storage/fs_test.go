package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caldermaw/graft/internal/checksum"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	content := []byte(`{"node_id":"abc"}`)
	ref, err := s.Write(content, "json")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := checksum.Ref(content, "json"); ref != want {
		t.Errorf("ref = %q, want %q", ref, want)
	}
	got, err := s.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteShardsByDigest(t *testing.T) {
	s := tempStore(t)
	ref, err := s.Write([]byte("payload"), "json")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := filepath.Join(s.root, ref[0:1], ref[1:2], ref)
	if _, err := os.Stat(want); err != nil {
		t.Errorf("payload not at sharded path %s: %v", want, err)
	}
}

func TestWriteIdempotent(t *testing.T) {
	s := tempStore(t)
	content := []byte("same bytes")
	ref1, err := s.Write(content, "json")
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	ref2, err := s.Write(content, "json")
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("refs differ: %q vs %q", ref1, ref2)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	ref, _ := s.Write([]byte("bye"), "json")
	if err := s.Delete(ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ref); err == nil {
		t.Error("expected error reading deleted payload")
	}
}

func TestExistsAndMissing(t *testing.T) {
	s := tempStore(t)
	ref, _ := s.Write([]byte("here"), "json")
	if !s.Exists(ref) {
		t.Error("Exists = false for stored payload")
	}

	absent := checksum.Ref([]byte("never stored"), "json")
	if s.Exists(absent) {
		t.Error("Exists = true for absent payload")
	}

	missing := s.Missing([]string{ref, absent})
	if len(missing) != 1 || missing[0] != absent {
		t.Errorf("Missing = %v, want [%s]", missing, absent)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"..",
		"/etc/shadow",
		`a\b.json`,
	}
	for _, ref := range cases {
		if _, err := s.Read(ref); err == nil {
			t.Errorf("expected error for ref %q", ref)
		}
	}
}

func TestAtomicWriteNoLeftoverTemp(t *testing.T) {
	s := tempStore(t)
	ref, err := s.Write([]byte("atomic"), "json")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read(ref)
	if string(got) != "atomic" {
		t.Errorf("content = %q", got)
	}

	// Confirm no leftover temp files in the shard directory.
	abs, _ := s.refPath(ref)
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(abs), ".graft-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/graft-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "graft-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
