// Package filex has small filesystem helpers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureParentDir creates the directory that will hold path, owner-only.
// path may be a plain file name or a SQLite "file:" URI; the scheme and
// query are ignored. In-memory databases and bare file names are left alone.
func EnsureParentDir(path string) error {
	path = stripURI(path)
	if path == "" || path == ":memory:" || filepath.Base(path) == path {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

func stripURI(path string) string {
	rest, ok := strings.CutPrefix(path, "file:")
	if !ok {
		return path
	}
	rest, _, _ = strings.Cut(rest, "?")
	rest, _, _ = strings.Cut(rest, "#")
	// file:///abs/path carries an empty authority.
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	}
	return rest
}
