package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// TempMarker distinguishes in-progress outputs. Temp files are hidden and
// live next to their source so the commit rename stays on one filesystem.
const TempMarker = ".conform.partial"

// TempPath derives the temporary output path for a source file.
func TempPath(sourcePath, targetExt string) string {
	dir := filepath.Dir(sourcePath)
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(dir, "."+stem+TempMarker+targetExt)
}

// FinalPath derives the committed output path for a source file.
func FinalPath(sourcePath, targetExt string) string {
	stem := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	return stem + targetExt
}

// IsTempPath reports whether a path matches the temporary-output pattern.
func IsTempPath(path string) bool {
	return strings.Contains(filepath.Base(path), TempMarker)
}

// ensureSameFilesystem verifies that source and the directory that will hold
// the final path live on one device, which makes the commit rename atomic.
func ensureSameFilesystem(sourcePath, finalPath string) error {
	var src, dir unix.Stat_t
	if err := unix.Stat(sourcePath, &src); err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if err := unix.Stat(filepath.Dir(finalPath), &dir); err != nil {
		return fmt.Errorf("stat target directory: %w", err)
	}
	if src.Dev != dir.Dev {
		return fmt.Errorf("source and target directory are on different filesystems (dev %d vs %d)", src.Dev, dir.Dev)
	}
	return nil
}

// verifyOutput rejects missing, empty, or unreadable encode results.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verify output: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("verify output: file is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("verify output: %w", err)
	}
	return file.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
