// Package filex provides small filesystem helpers shared by the persistence
// layer.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and any missing parents) if it does not exist yet.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst, creating dst's directory if needed. The copy is
// a plain read-then-write; callers that need atomicity should copy into the
// destination directory and rename.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	if err := os.WriteFile(dst, data, 0o660); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	return nil
}
