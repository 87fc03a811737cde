// Package fsutil holds the crash-safe file write used by every durable
// record in promoguard.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// rename is swapped in tests to simulate a crash between the temp write and
// the commit.
var rename = os.Rename

// WriteFileAtomic writes data to a temp file in the destination directory and
// renames it over path. Readers observe either the previous content or the
// new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	//nolint:gosec // G301: state directory is shared with the host process
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}

	if err := rename(tmpPath, path); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	committed = true
	return nil
}
