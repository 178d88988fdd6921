// Package fileutil provides file helpers for split outputs and tmp+mv writes.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Exists returns true if the path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir returns true if path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Create opens path for writing, creating parent directories as needed.
// Without overwrite the file is created exclusively, so an existing file is
// never truncated and the error wraps fs.ErrExist.
func Create(path string, overwrite bool) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	return os.OpenFile(path, flags, 0644)
}

// WriteTmpThenMove writes to a temporary file next to outPath then atomically
// renames it into place. The writeFunc receives the temporary path and should
// write the complete file.
func WriteTmpThenMove(outPath string, writeFunc func(tmpPath string) error) error {
	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := filepath.Join(outDir, "."+filepath.Base(outPath)+".tmp")

	if err := writeFunc(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}

	return nil
}

// syncFile opens, syncs, and closes a file.
func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	f.Close()
	return err
}
