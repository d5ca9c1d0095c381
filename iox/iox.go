// Package iox provides I/O helpers for resource cleanup and durable writes.
package iox

import (
	"io"
	"os"
	"path/filepath"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(m))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// RemoveIfExists removes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteFileAtomic replaces path with data so that readers observe either
// the old content or the new content, never a partial write.
// The data is written to a temporary file in the same directory, synced,
// and renamed over path; the directory is then synced so the rename
// survives a power loss on filesystems that honor directory fsync.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return SyncDir(dir)
}

// SyncDir fsyncs a directory so entries created, renamed or removed in it
// are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer DiscardClose(d)
	return d.Sync()
}
