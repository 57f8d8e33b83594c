package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain title",
			input:    "Song A",
			expected: "Song A",
		},
		{
			name:     "path separators",
			input:    "AC/DC - Back\\In Black",
			expected: "AC-DC - Back-In Black",
		},
		{
			name:     "reserved characters",
			input:    `What? "Yes": <Live> | *Remix*`,
			expected: `What 'Yes' - (Live) - Remix`,
		},
		{
			name:     "zero-width space",
			input:    "Song\u200BTitle",
			expected: "SongTitle",
		},
		{
			name:     "BOM",
			input:    "\uFEFFTrack",
			expected: "Track",
		},
		{
			name:     "control characters and newlines",
			input:    "Line one\nLine\ttwo\x00",
			expected: "Line one Line two",
		},
		{
			name:     "leading dots",
			input:    "...hidden",
			expected: "hidden",
		},
		{
			name:     "trailing dots and spaces",
			input:    "Title. . ",
			expected: "Title",
		},
		{
			name:     "only separators",
			input:    " / ",
			expected: "-",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "only dots",
			input:    "..",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FileName(tt.input)
			if got != tt.expected {
				t.Errorf("FileName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFileName_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 150) // 300 bytes
	got := FileName(long)
	if len(got) > MaxFileNameBytes {
		t.Errorf("len = %d, want <= %d", len(got), MaxFileNameBytes)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated name is not valid UTF-8")
	}
}

func TestField(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  https://x/y  ", "https://x/y"},
		{"\u200Bhttps://x/y\u200B\n", "https://x/y"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Field(tt.input); got != tt.expected {
			t.Errorf("Field(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
