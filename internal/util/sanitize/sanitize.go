// Package sanitize cleans user- and server-supplied text before it becomes a
// file name or is shown in the terminal.
//
// It removes:
//   - Invisible Unicode characters (zero-width spaces, etc.)
//   - Control characters and path separators
//   - Runs of whitespace
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameBytes keeps generated names well under common filesystem limits,
// leaving room for an extension.
const MaxFileNameBytes = 200

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// Characters Windows and most object stores refuse or treat specially
	reservedChars = strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", " -",
		"*", "",
		"?", "",
		"\"", "'",
		"<", "(",
		">", ")",
		"|", "-",
	)
)

// FileName turns a title into something safe to use as a single path component.
// The result may be empty if nothing usable remains.
func FileName(title string) string {
	if title == "" {
		return title
	}

	s := removeInvisibleChars(title)
	s = reservedChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = normalizeWhitespace(s)

	// Leading dots would hide the file; trailing dots and spaces are stripped by Windows
	s = strings.TrimLeft(s, ". ")
	s = strings.TrimRight(s, ". ")

	return truncate(s, MaxFileNameBytes)
}

// Field trims and strips invisible characters from a free-form value such as
// a pasted link or prompt answer.
func Field(field string) string {
	if field == "" {
		return field
	}
	field = removeInvisibleChars(field)
	return strings.TrimSpace(field)
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}

	return s
}

// normalizeWhitespace collapses any whitespace run to a single space and trims
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimRight(s, ". ")
}
