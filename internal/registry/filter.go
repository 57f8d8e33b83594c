package registry

import (
	"path/filepath"
	"strings"

	"github.com/mixtape/mixtape/internal/models"
)

// Filter narrows a listing. The zero value keeps everything.
type Filter struct {
	// Include keeps entries matching any glob. Empty means include all.
	// Example: []string{"Live*", "*remix*"}
	Include []string

	// Exclude drops entries matching any glob. Takes precedence over Include.
	Exclude []string

	// Search terms are case-insensitive substrings; all must match.
	Search []string
}

// Empty reports whether f keeps everything.
func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0 && len(f.Search) == 0
}

// Apply returns the entries f keeps, in their original order. Globs are
// tried against both the stored file name and the display name.
func (f Filter) Apply(entries []models.DownloadEntry) []models.DownloadEntry {
	if f.Empty() {
		return entries
	}
	kept := make([]models.DownloadEntry, 0, len(entries))
	for _, e := range entries {
		if f.matches(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

func (f Filter) matches(e models.DownloadEntry) bool {
	names := []string{e.FileName, e.DisplayName()}

	if anyMatch(f.Exclude, names) {
		return false
	}
	if len(f.Include) > 0 && !anyMatch(f.Include, names) {
		return false
	}

	lower := strings.ToLower(e.FileName)
	for _, term := range f.Search {
		if !strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// anyMatch reports whether any pattern matches any name. Matching ignores
// case since the same folder may be listed on case-insensitive filesystems.
func anyMatch(patterns, names []string) bool {
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		for _, name := range names {
			if ok, _ := filepath.Match(pattern, strings.ToLower(name)); ok {
				return true
			}
		}
	}
	return false
}
