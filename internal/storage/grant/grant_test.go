package grant

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mixtape/mixtape/internal/models"
)

func TestNewRecords(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewDirectoryRecord(dir, "")
	if err != nil {
		t.Fatalf("NewDirectoryRecord() error = %v", err)
	}
	if rec.Token == "" || rec.Provider != models.GrantDirectory || rec.Directory == nil {
		t.Errorf("NewDirectoryRecord() = %+v", rec)
	}
	if rec.Label != dir {
		t.Errorf("Label = %q, want %q", rec.Label, dir)
	}

	other, _ := NewDirectoryRecord(dir, "")
	if other.Token == rec.Token {
		t.Error("tokens should be unique per grant")
	}

	s3rec, err := NewS3Record(models.S3Grant{Bucket: "music", Prefix: "tapes"}, "")
	if err != nil {
		t.Fatalf("NewS3Record() error = %v", err)
	}
	if s3rec.Label != "s3://music/tapes" {
		t.Errorf("s3 Label = %q", s3rec.Label)
	}
	if _, err := NewS3Record(models.S3Grant{}, ""); err == nil {
		t.Error("expected error for s3 record without bucket")
	}

	azrec, err := NewAzureRecord(models.AzureGrant{ContainerSASURL: testSASURL}, "Cloud")
	if err != nil {
		t.Fatalf("NewAzureRecord() error = %v", err)
	}
	if azrec.Label != "Cloud" || azrec.Azure == nil {
		t.Errorf("NewAzureRecord() = %+v", azrec)
	}
	if _, err := NewAzureRecord(models.AzureGrant{ContainerSASURL: "not a url"}, ""); err == nil {
		t.Error("expected error for bad SAS URL")
	}
}

func TestOpen_Directory(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewDirectoryRecord(dir, "Music")
	if err != nil {
		t.Fatal(err)
	}
	g, err := Open(context.Background(), rec, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if g.Label() != "Music" {
		t.Errorf("Label() = %q", g.Label())
	}
	if string(g.Locate("a.mp3")) != filepath.Join(dir, "a.mp3") {
		t.Errorf("Locate() = %q", g.Locate("a.mp3"))
	}
	if err := Probe(context.Background(), g); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}

func TestOpen_InvalidRecords(t *testing.T) {
	tests := []models.GrantRecord{
		{Token: "t1", Provider: models.GrantDirectory},
		{Token: "t2", Provider: models.GrantS3},
		{Token: "t3", Provider: models.GrantAzure},
		{Token: "t4", Provider: "ftp"},
	}
	for _, rec := range tests {
		if _, err := Open(context.Background(), rec, Options{}); err == nil {
			t.Errorf("Open(%s) expected error", rec.Provider)
		}
	}
}
