package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveDir turns a user-typed directory into an absolute path. A leading ~
// is expanded, and symlinks or junctions in the part of the path that exists
// are resolved, so the same folder always yields the same grant label. The
// directory itself need not exist yet.
func ResolveDir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") || strings.HasPrefix(dir, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, dir[1:])
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// Resolve the deepest existing ancestor and re-append the rest
	existing, rest := abs, ""
	for {
		if _, err := os.Stat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		resolved = existing
	}
	return filepath.Join(resolved, rest), nil
}
