// Package ziputil holds small helpers shared by the archive reader paths:
// entry lookup, full-entry reads and safe entry-name normalisation.
package ziputil

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ClassSuffix is the name suffix of compiled class entries.
const ClassSuffix = ".class"

// SanitizePath normalizes ZIP entry paths (forward slashes, no drive, no leading '/'),
// and removes '.' and '..' segments without escaping the root. An empty
// result is returned as "".
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	return strings.Join(stack, "/")
}

// ClassName returns the internal class name of a class entry, and false for
// directories and every other entry.
func ClassName(entry string) (string, bool) {
	if strings.HasSuffix(entry, "/") || !strings.HasSuffix(entry, ClassSuffix) {
		return "", false
	}
	return strings.TrimSuffix(entry, ClassSuffix), true
}

// Find returns the entry with exactly the given name, or nil.
func Find(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReadAll reads the decompressed contents of an entry.
func ReadAll(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}
