package grant

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
)

func newTestDirectoryGrant(t *testing.T) (*DirectoryGrant, string) {
	t.Helper()
	dir := t.TempDir()
	g, err := NewDirectoryGrant(models.DirectoryGrant{Path: dir}, "")
	if err != nil {
		t.Fatalf("NewDirectoryGrant() error = %v", err)
	}
	return g, dir
}

func TestNewDirectoryGrant_RequiresAbsolutePath(t *testing.T) {
	if _, err := NewDirectoryGrant(models.DirectoryGrant{Path: "relative/dir"}, ""); err == nil {
		t.Error("expected error for relative path")
	}
	if _, err := NewDirectoryGrant(models.DirectoryGrant{}, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDirectoryGrant_CreateWriteReadRemove(t *testing.T) {
	ctx := context.Background()
	g, dir := newTestDirectoryGrant(t)

	if g.Label() != filepath.Base(dir) {
		t.Errorf("Label() = %q, want %q", g.Label(), filepath.Base(dir))
	}

	loc, err := g.CreateArtifact(ctx, "song.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("CreateArtifact() error = %v", err)
	}
	if loc != storage.Locator(filepath.Join(dir, "song.mp3")) {
		t.Errorf("CreateArtifact() locator = %q", loc)
	}
	if g.NameOf(loc) != "song.mp3" {
		t.Errorf("NameOf() = %q", g.NameOf(loc))
	}

	content := "ID3 fake audio payload"
	if err := g.WriteArtifact(ctx, loc, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}

	a, err := g.Stat(ctx, loc)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if a.Size != int64(len(content)) || a.Name != "song.mp3" {
		t.Errorf("Stat() = %+v", a)
	}

	rc, err := g.Open(ctx, loc)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != content {
		t.Errorf("Open() content = %q, want %q", got, content)
	}

	if err := g.Remove(ctx, loc); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := g.Remove(ctx, loc); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
	if _, err := g.Stat(ctx, loc); !storage.IsNotFound(err) {
		t.Errorf("Stat() after remove error = %v, want not found", err)
	}
}

func TestDirectoryGrant_WriteShortIsWriteFailed(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestDirectoryGrant(t)

	loc, err := g.CreateArtifact(ctx, "short.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("CreateArtifact() error = %v", err)
	}
	err = g.WriteArtifact(ctx, loc, strings.NewReader("abc"), 10)
	if err == nil || !errorIs(err, storage.ErrWriteFailed) {
		t.Errorf("WriteArtifact() error = %v, want write failed", err)
	}
}

func TestDirectoryGrant_RejectsForeignLocator(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestDirectoryGrant(t)

	outside := storage.Locator(filepath.Join(t.TempDir(), "x.mp3"))
	if _, err := g.Stat(ctx, outside); !storage.IsPermissionError(err) {
		t.Errorf("Stat(outside) error = %v, want permission denied", err)
	}
	if err := g.Remove(ctx, outside); !storage.IsPermissionError(err) {
		t.Errorf("Remove(outside) error = %v, want permission denied", err)
	}
}

func TestDirectoryGrant_CreateRejectsBadNames(t *testing.T) {
	g, _ := newTestDirectoryGrant(t)
	for _, name := range []string{"", "../up.mp3", "a/b.mp3", ".hidden"} {
		if _, err := g.CreateArtifact(context.Background(), name, "audio/mpeg"); !errorIs(err, storage.ErrInvalidName) {
			t.Errorf("CreateArtifact(%q) error = %v, want invalid name", name, err)
		}
	}
}

func TestDirectoryGrant_ListSkipsHiddenAndDirs(t *testing.T) {
	g, dir := newTestDirectoryGrant(t)
	for _, name := range []string{"a.mp3", "b.mp3", ".scratch"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	artifacts, err := g.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("List() returned %d artifacts, want 2: %+v", len(artifacts), artifacts)
	}
}

func TestDirectoryGrant_MissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unmounted")
	g, err := NewDirectoryGrant(models.DirectoryGrant{Path: dir}, "usb")
	if err != nil {
		t.Fatalf("NewDirectoryGrant() error = %v", err)
	}
	if _, err := g.List(context.Background()); !storage.IsNotFound(err) {
		t.Errorf("List() error = %v, want not found", err)
	}
	if _, err := g.CreateArtifact(context.Background(), "a.mp3", "audio/mpeg"); !storage.IsNotFound(err) {
		t.Errorf("CreateArtifact() error = %v, want not found", err)
	}
}
