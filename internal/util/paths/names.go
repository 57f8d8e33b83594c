package paths

import (
	"strings"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/util/sanitize"
)

// HasAudioExtension reports whether name ends in the audio extension,
// ignoring case.
func HasAudioExtension(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), constants.AudioExtension)
}

// EnsureExtension appends the audio extension unless name already has it.
func EnsureExtension(name string) string {
	if HasAudioExtension(name) {
		return name
	}
	return name + constants.AudioExtension
}

// SuggestFileName derives the default file name offered for a title.
func SuggestFileName(title string) string {
	name := sanitize.FileName(title)
	if name == "" {
		return constants.DefaultFileName
	}
	return EnsureExtension(name)
}

// NormalizeFileName turns what the user typed into the stored file name.
// Empty input falls back to the default name.
func NormalizeFileName(input string) string {
	in := sanitize.Field(input)
	if in == "" || strings.EqualFold(in, constants.AudioExtension) {
		return constants.DefaultFileName
	}
	name := sanitize.FileName(in)
	if name == "" {
		return constants.DefaultFileName
	}
	return EnsureExtension(name)
}
