package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mixtape/mixtape/internal/destination"
	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage/grant"
)

func newTestRegistry(t *testing.T) (*Registry, *destination.Service, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "downloads")
	svc := destination.NewService(destination.Options{
		SandboxRoot: root,
		ScratchDir:  filepath.Join(base, "scratch"),
		StateDir:    filepath.Join(base, "state"),
	})
	return New(svc, nil, nil), svc, root
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListSandbox(t *testing.T) {
	reg, _, root := newTestRegistry(t)

	entries, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List() on fresh sandbox error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List() = %v, want empty", entries)
	}

	writeFiles(t, root, "b.mp3", "A.MP3", "notes.txt", ".hidden.mp3")
	writeFiles(t, filepath.Join(root, ".partial"), "sess.part")

	entries, err = reg.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() = %+v, want 2 entries", entries)
	}
	if entries[0].FileName != "A.MP3" || entries[1].FileName != "b.mp3" {
		t.Errorf("order = %q, %q", entries[0].FileName, entries[1].FileName)
	}
	if entries[1].DisplayName() != "b" {
		t.Errorf("DisplayName() = %q", entries[1].DisplayName())
	}
	if entries[1].StorageRef != filepath.Join(root, "b.mp3") || entries[1].SizeBytes != 5 {
		t.Errorf("entry = %+v", entries[1])
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg, _, root := newTestRegistry(t)
	bus := events.NewEventBus(8)
	defer bus.Close()
	reg.bus = bus
	deleted := bus.Subscribe(events.EventArtifactDeleted)

	writeFiles(t, root, "Song A.mp3")
	entry, err := reg.Find(context.Background(), "song a")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	if err := reg.Delete(context.Background(), entry); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Song A.mp3")); !os.IsNotExist(err) {
		t.Errorf("artifact still present: %v", err)
	}
	if err := reg.Delete(context.Background(), entry); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}

	select {
	case ev := <-deleted:
		if got := ev.(*events.ArtifactDeletedEvent).Entry.FileName; got != "Song A.mp3" {
			t.Errorf("event entry = %q", got)
		}
	case <-time.After(time.Second):
		t.Error("no artifact_deleted event")
	}

	if _, err := reg.Find(context.Background(), "Song A"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Find() after delete error = %v", err)
	}
}

func TestListFollowsActiveDestination(t *testing.T) {
	reg, svc, root := newTestRegistry(t)
	writeFiles(t, root, "sandboxed.mp3")

	dir := t.TempDir()
	writeFiles(t, dir, "granted.mp3")
	rec, err := grant.NewDirectoryRecord(dir, "Music")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := svc.Grant(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Use(dest); err != nil {
		t.Fatal(err)
	}

	entries, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].FileName != "granted.mp3" {
		t.Fatalf("List() = %+v, want the granted entry", entries)
	}

	if err := reg.Delete(context.Background(), entries[0]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "granted.mp3")); !os.IsNotExist(err) {
		t.Errorf("granted artifact still present: %v", err)
	}

	sandboxed, err := reg.ListAt(context.Background(), svc.Sandbox())
	if err != nil {
		t.Fatal(err)
	}
	if len(sandboxed) != 1 {
		t.Errorf("ListAt(sandbox) = %+v", sandboxed)
	}
}

func TestOpenReadsFromActiveDestination(t *testing.T) {
	reg, svc, root := newTestRegistry(t)
	writeFiles(t, root, "sandboxed.mp3")

	read := func(name string) string {
		t.Helper()
		entry, err := reg.Find(context.Background(), name)
		if err != nil {
			t.Fatalf("Find(%q) error = %v", name, err)
		}
		rc, err := reg.Open(context.Background(), entry)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	if got := read("sandboxed"); got != "audio" {
		t.Errorf("sandbox content = %q", got)
	}

	dir := t.TempDir()
	writeFiles(t, dir, "granted.mp3")
	rec, err := grant.NewDirectoryRecord(dir, "Music")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := svc.Grant(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Use(dest); err != nil {
		t.Fatal(err)
	}
	if got := read("granted"); got != "audio" {
		t.Errorf("granted content = %q", got)
	}

	// An entry known only by name is resolved against the backend.
	rc, err := reg.Open(context.Background(), models.DownloadEntry{FileName: "granted.mp3"})
	if err != nil {
		t.Fatalf("Open() by name error = %v", err)
	}
	rc.Close()

	if err := os.Remove(filepath.Join(dir, "granted.mp3")); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Open(context.Background(), models.DownloadEntry{FileName: "granted.mp3"}); err == nil {
		t.Error("Open() of a removed artifact succeeded")
	}
}
