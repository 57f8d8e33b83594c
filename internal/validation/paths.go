// Package validation provides input validation for file names, paths and links.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxFilenameBytes is the common filesystem limit for a single path component.
const MaxFilenameBytes = 255

// ErrInvalidName is wrapped by every ValidateFilename failure.
var ErrInvalidName = errors.New("invalid file name")

// ValidateFilename accepts a single path component that is safe to store on
// any backend. Leading dots are reserved for in-flight temp files.
func ValidateFilename(name string) error {
	var reason string
	switch {
	case name == "":
		reason = "empty"
	case name == "." || name == "..":
		reason = "reserved"
	case strings.ContainsAny(name, `/\`):
		reason = "contains a path separator"
	case name[0] == '.':
		reason = "starts with a dot"
	case len(name) > MaxFilenameBytes:
		reason = fmt.Sprintf("%d bytes, limit is %d", len(name), MaxFilenameBytes)
	default:
		if i := strings.IndexFunc(name, unicode.IsControl); i >= 0 {
			reason = fmt.Sprintf("control character %U", []rune(name[i:])[0])
		}
	}
	if reason != "" {
		return fmt.Errorf("%w %q: %s", ErrInvalidName, name, reason)
	}
	return nil
}

// ValidatePathInDirectory checks that path, resolved against baseDir when
// relative, does not leave baseDir. baseDir itself is accepted.
func ValidatePathInDirectory(path, baseDir string) error {
	if path == "" || baseDir == "" {
		return fmt.Errorf("path and base directory are required")
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	rel, err := filepath.Rel(base, filepath.Clean(path))
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("path escapes %s: %s", baseDir, path)
	}
	return nil
}
