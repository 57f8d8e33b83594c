package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFilename(t *testing.T) {
	testCases := []struct {
		name        string
		filename    string
		expectValid bool
	}{
		{"simple", "song.mp3", true},
		{"spaces", "my song.mp3", true},
		{"dots inside", "mix.v1.2.mp3", true},
		{"double dot inside", "a..b.mp3", true},
		{"unicode", "café – live.mp3", true},

		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"hidden", ".song.mp3", false},
		{"unix separator", "../song.mp3", false},
		{"windows separator", "dir\\song.mp3", false},
		{"null byte", "song\x00.mp3", false},
		{"control char", "song\n.mp3", false},
		{"too long", strings.Repeat("a", MaxFilenameBytes+1), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFilename(tc.filename)
			if tc.expectValid && err != nil {
				t.Errorf("expected %q to be valid, got: %v", tc.filename, err)
			}
			if !tc.expectValid && !errors.Is(err, ErrInvalidName) {
				t.Errorf("expected %q to be invalid, got %v", tc.filename, err)
			}
		})
	}
}

func TestValidatePathInDirectory(t *testing.T) {
	base := t.TempDir()

	testCases := []struct {
		name        string
		path        string
		expectValid bool
	}{
		{"relative child", "song.mp3", true},
		{"nested child", filepath.Join("sub", "song.mp3"), true},
		{"absolute child", filepath.Join(base, "song.mp3"), true},
		{"base itself", base, true},
		{"escape", filepath.Join("..", "song.mp3"), false},
		{"deep escape", filepath.Join("..", "..", "etc", "passwd"), false},
		{"absolute outside", filepath.Join(filepath.Dir(base), "other.mp3"), false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathInDirectory(tc.path, base)
			if tc.expectValid && err != nil {
				t.Errorf("expected %q to be inside %q, got: %v", tc.path, base, err)
			}
			if !tc.expectValid && err == nil {
				t.Errorf("expected %q to be rejected", tc.path)
			}
		})
	}

	if err := ValidatePathInDirectory("song.mp3", ""); err == nil {
		t.Error("expected error for empty base directory")
	}
}

func TestValidateLink(t *testing.T) {
	testCases := []struct {
		link        string
		expectValid bool
	}{
		{"https://www.youtube.com/watch?v=abc123", true},
		{"http://example.com/track", true},
		{"  https://youtu.be/abc  ", true},
		{"", false},
		{"ftp://example.com/file", false},
		{"not a url", false},
		{"https://", false},
	}

	for _, tc := range testCases {
		err := ValidateLink(tc.link)
		if tc.expectValid && err != nil {
			t.Errorf("ValidateLink(%q) unexpected error: %v", tc.link, err)
		}
		if !tc.expectValid && err == nil {
			t.Errorf("ValidateLink(%q) expected error", tc.link)
		}
	}
}
