package destination

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/storage/grant"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	base := t.TempDir()
	return NewService(Options{
		SandboxRoot: filepath.Join(base, "sandbox"),
		ScratchDir:  filepath.Join(base, "scratch"),
		StateDir:    filepath.Join(base, "state"),
	})
}

func TestService_DefaultsToSandbox(t *testing.T) {
	s := newTestService(t)
	active, err := s.Active()
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active != s.Sandbox() {
		t.Errorf("Active() = %+v, want sandbox", active)
	}

	b, err := s.ActiveBackend(context.Background())
	if err != nil {
		t.Fatalf("ActiveBackend() error = %v", err)
	}
	if _, ok := b.(*storage.SandboxBackend); !ok {
		t.Errorf("ActiveBackend() = %T, want *storage.SandboxBackend", b)
	}
}

func TestService_GrantUseRevoke(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	rec, err := grant.NewDirectoryRecord(t.TempDir(), "USB stick")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := s.Grant(ctx, rec)
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if dest.GrantToken != rec.Token || dest.Label != "USB stick" {
		t.Errorf("Grant() = %+v", dest)
	}

	if err := s.Use(dest); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	active, _ := s.Active()
	if active != dest {
		t.Errorf("Active() = %+v, want %+v", active, dest)
	}

	b, err := s.Backend(ctx, dest)
	if err != nil {
		t.Fatalf("Backend() error = %v", err)
	}
	if _, ok := b.(*storage.GrantedBackend); !ok {
		t.Errorf("Backend() = %T, want *storage.GrantedBackend", b)
	}

	if err := s.Revoke(rec.Token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	active, _ = s.Active()
	if active != s.Sandbox() {
		t.Errorf("Active() after revoke = %+v, want sandbox", active)
	}
	if _, err := s.Backend(ctx, dest); !storage.IsPermissionError(err) {
		t.Errorf("Backend() after revoke error = %v, want permission denied", err)
	}
}

func TestService_GrantProbeFailureStoresNothing(t *testing.T) {
	s := newTestService(t)
	rec, err := grant.NewDirectoryRecord(filepath.Join(t.TempDir(), "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Grant(context.Background(), rec); err == nil {
		t.Fatal("Grant() expected error for missing directory")
	}
	grants, _ := s.Grants()
	if len(grants) != 0 {
		t.Errorf("Grants() = %d records, want 0", len(grants))
	}
}

func TestService_UseUnknownGrant(t *testing.T) {
	s := newTestService(t)
	err := s.Use(models.GrantedTo("never-issued", "x"))
	if !storage.IsPermissionError(err) {
		t.Errorf("Use() error = %v, want permission denied", err)
	}
	if err := s.Use(models.StorageDestination{Kind: "floppy"}); err == nil {
		t.Error("Use() expected error for invalid destination")
	}
}

func TestService_UseCustomSandboxRoot(t *testing.T) {
	s := newTestService(t)
	custom := models.SandboxedAt(t.TempDir())
	if err := s.Use(custom); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	active, _ := s.Active()
	if active != custom {
		t.Errorf("Active() = %+v, want %+v", active, custom)
	}
	if err := s.Use(s.Sandbox()); err != nil {
		t.Fatalf("Use(sandbox) error = %v", err)
	}
	active, _ = s.Active()
	if active != s.Sandbox() {
		t.Errorf("Active() = %+v, want default sandbox", active)
	}
}
