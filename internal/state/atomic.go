package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic replaces path with data. Readers see either the old file
// or the new one, never a partial write, as long as path and its directory
// sit on one filesystem.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	// Removing after a successful rename is a harmless ENOENT.
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeAndSync(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(dir)
}

// writeAndSync fills f and closes it once its contents are on disk.
func writeAndSync(f *os.File, data []byte, perm os.FileMode) error {
	steps := []func() error{
		func() error { return f.Chmod(perm) },
		func() error {
			_, err := f.Write(data)
			return err
		},
		f.Sync,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// syncDir flushes the directory entry so the rename itself is durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
