package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/models"
)

func newTestSandbox(t *testing.T) (*SandboxBackend, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "downloads")
	return NewSandboxBackend(root, nil), root
}

func TestSandbox_RootCreatedLazily(t *testing.T) {
	b, root := newTestSandbox(t)
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("root should not exist before first use, stat err = %v", err)
	}
	if _, err := b.List(context.Background()); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root should exist after List, err = %v", err)
	}
	if got := b.Destination(); got.Kind != models.DestinationSandboxed || got.BasePath != root {
		t.Errorf("Destination() = %+v", got)
	}
}

func TestSandbox_ResolvePath(t *testing.T) {
	b, root := newTestSandbox(t)

	loc, err := b.ResolvePath("song.mp3")
	if err != nil {
		t.Fatalf("ResolvePath() error = %v", err)
	}
	if string(loc) != filepath.Join(root, "song.mp3") {
		t.Errorf("ResolvePath() = %q", loc)
	}

	for _, bad := range []string{"", "..", "../escape.mp3", "dir/song.mp3", ".hidden.mp3"} {
		if _, err := b.ResolvePath(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ResolvePath(%q) error = %v, want ErrInvalidName", bad, err)
		}
	}
}

func TestSandbox_WriteListOpenDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestSandbox(t)

	loc, _ := b.ResolvePath("tape.mp3")
	n, err := b.Write(ctx, loc, strings.NewReader("hello audio"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 11 {
		t.Errorf("Write() n = %d, want 11", n)
	}

	exists, err := b.Exists(ctx, loc)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v", exists, err)
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "tape.mp3" || list[0].Size != 11 {
		t.Fatalf("List() = %+v", list)
	}
	entry := list[0].Entry()
	if entry.DisplayName() != "tape" || entry.StorageRef != string(loc) {
		t.Errorf("Entry() = %+v", entry)
	}

	rc, err := b.Open(ctx, loc)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello audio" {
		t.Errorf("content = %q", data)
	}

	if err := b.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete(ctx, loc); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if exists, _ := b.Exists(ctx, loc); exists {
		t.Error("artifact still exists after Delete")
	}
}

func TestSandbox_ListSkipsPartialAndHidden(t *testing.T) {
	ctx := context.Background()
	b, root := newTestSandbox(t)

	tmp, err := b.TempPath("session-1")
	if err != nil {
		t.Fatalf("TempPath() error = %v", err)
	}
	if filepath.Dir(tmp) != filepath.Join(root, constants.PartialDirName) {
		t.Errorf("TempPath() dir = %q", filepath.Dir(tmp))
	}
	if err := os.WriteFile(tmp, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "done.mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "done.mp3" {
		t.Errorf("List() = %+v, want only done.mp3", list)
	}
}

func TestSandbox_CommitReplacesExisting(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestSandbox(t)

	loc, _ := b.ResolvePath("song.mp3")
	if _, err := b.Write(ctx, loc, strings.NewReader("old")); err != nil {
		t.Fatal(err)
	}

	tmp, _ := b.TempPath("s2")
	if err := os.WriteFile(tmp, []byte("new content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(ctx, tmp, loc); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file should be gone after commit")
	}
	data, _ := os.ReadFile(string(loc))
	if string(data) != "new content" {
		t.Errorf("content = %q, want new content", data)
	}
}

func TestSandbox_RejectsLocatorsOutsideRoot(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestSandbox(t)
	outside := Locator(filepath.Join(t.TempDir(), "evil.mp3"))

	if _, err := b.Write(ctx, outside, strings.NewReader("x")); !IsPermissionError(err) {
		t.Errorf("Write() error = %v, want permission denied", err)
	}
	if err := b.Delete(ctx, outside); !IsPermissionError(err) {
		t.Errorf("Delete() error = %v, want permission denied", err)
	}
}

func TestSandbox_WriteCancelledLeavesNothing(t *testing.T) {
	b, root := newTestSandbox(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loc, _ := b.ResolvePath("never.mp3")
	if _, err := b.Write(ctx, loc, strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, constants.PartialDirName))
	if len(entries) != 0 {
		t.Errorf("partial dir should be empty, has %d entries", len(entries))
	}
	if _, err := os.Stat(string(loc)); !os.IsNotExist(err) {
		t.Error("artifact should not exist")
	}
}

func TestSandbox_DiscardTempIsIdempotent(t *testing.T) {
	b, _ := newTestSandbox(t)
	tmp, _ := b.TempPath("gone")
	if err := b.DiscardTemp(tmp); err != nil {
		t.Errorf("DiscardTemp(missing) error = %v", err)
	}
	if err := b.DiscardTemp(""); err != nil {
		t.Errorf("DiscardTemp(\"\") error = %v", err)
	}
}
