package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caldermaw/graft/internal/checksum"
)

// FS implements Provider backed by the local file system. Payloads are
// sharded two levels deep by digest prefix to keep directories small.
type FS struct {
	root string // absolute path to the store directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// refPath resolves a payload reference to its sharded absolute path and
// rejects anything that could escape the store root.
func (f *FS) refPath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("storage: empty payload reference")
	}
	cleaned := filepath.Clean(ref)
	if cleaned != ref || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("storage: malformed payload reference: %s", ref)
	}
	stem := checksum.Stem(ref)
	if len(stem) < 2 {
		return "", fmt.Errorf("storage: payload reference too short: %s", ref)
	}
	abs := filepath.Join(f.root, stem[0:1], stem[1:2], ref)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: reference escapes store root: %s", ref)
	}
	return abs, nil
}

// Read returns the raw bytes of the payload identified by ref.
func (f *FS) Read(ref string) ([]byte, error) {
	abs, err := f.refPath(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", ref, err)
	}
	return data, nil
}

// Write atomically stores data under its content address:
// tmp file → fsync → rename.
func (f *FS) Write(data []byte, ext string) (string, error) {
	ref := checksum.Ref(data, ext)
	abs, err := f.refPath(ref)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".graft-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return ref, nil
}

// Exists reports whether the payload identified by ref is stored.
func (f *FS) Exists(ref string) bool {
	abs, err := f.refPath(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Missing filters refs down to those not present in the store. Used by
// ingestion clients to decide which payloads still need uploading.
func (f *FS) Missing(refs []string) []string {
	out := []string{}
	for _, ref := range refs {
		if !f.Exists(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// Delete removes the payload identified by ref.
func (f *FS) Delete(ref string) error {
	abs, err := f.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", ref, err)
	}
	return nil
}
