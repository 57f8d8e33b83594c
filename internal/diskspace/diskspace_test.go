package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "not", "created", "yet.part")

	t.Run("SmallFile", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 1024, 1.15); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("UnknownSize", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 0, 1.15); err != nil {
			t.Errorf("Expected no error for unknown size, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		// 100 PiB should exceed available space anywhere
		err := CheckAvailableSpace(target, 100<<50, 1.15)
		if err == nil {
			t.Log("Warning: 100PiB check passed - system has extraordinary disk space")
		} else if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})

	t.Run("SafetyMargin", func(t *testing.T) {
		available := GetAvailableSpace(target)
		if available == 0 {
			t.Skip("Could not determine available space")
		}
		// Fits on its own but not with a 2x margin
		err := CheckAvailableSpace(target, available*3/4, 2.0)
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError with margin, got: %v", err)
		}
	})
}

func TestInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:           "/data/song.part",
		RequiredBytes:  3 * 1024 * 1024,
		AvailableBytes: 1024 * 1024,
	}
	msg := err.Error()
	for _, want := range []string{"/data/song.part", "3.0 MiB", "1.0 MiB"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	wrapped := fmt.Errorf("pre-flight: %w", err)
	if !IsInsufficientSpaceError(wrapped) {
		t.Error("IsInsufficientSpaceError should see through wrapping")
	}
	if IsInsufficientSpaceError(errors.New("other")) {
		t.Error("IsInsufficientSpaceError(other) = true")
	}
}

func TestExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	if got := existingAncestor(filepath.Join(dir, "a", "b")); got != dir {
		t.Errorf("existingAncestor() = %q, want %q", got, dir)
	}
}
