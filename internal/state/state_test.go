package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mixtape/mixtape/internal/models"
)

func TestFileResumeStore_LoadAbsent(t *testing.T) {
	s := NewFileResumeStore(t.TempDir())
	r, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil record, got %+v", r)
	}
}

func TestFileResumeStore_SaveLoadClear(t *testing.T) {
	dir := t.TempDir()
	s := NewFileResumeStore(dir)

	rec := &ResumeRecord{
		SessionID:    "abc",
		SourceURL:    "https://youtu.be/x",
		StreamURL:    "https://cdn.example.com/x.mp3",
		FileName:     "x.mp3",
		TempLocator:  filepath.Join(dir, "abc.part"),
		BytesWritten: 1024,
		TotalBytes:   4096,
		Status:       models.StatusPaused,
	}
	rec.SetDestination(models.GrantedTo("tok-1", "Music"))

	if err := s.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.FormatVersion != ResumeFormatVersion || rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Errorf("Save should stamp version and times: %+v", rec)
	}
	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not survive a successful save")
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.BytesWritten != 1024 || loaded.SessionID != "abc" {
		t.Errorf("loaded = %+v", loaded)
	}
	dest := loaded.Destination()
	if !dest.IsGranted() || dest.GrantToken != "tok-1" || dest.Label != "Music" {
		t.Errorf("Destination() = %+v", dest)
	}

	// Last write wins
	loaded.BytesWritten = 2048
	if err := s.Save(loaded); err != nil {
		t.Fatal(err)
	}
	again, _ := s.Load()
	if again.BytesWritten != 2048 {
		t.Errorf("BytesWritten = %d, want 2048", again.BytesWritten)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if r, _ := s.Load(); r != nil {
		t.Error("record should be gone after Clear")
	}
}

func TestFileResumeStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewFileResumeStore(dir)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Error("expected error for corrupt record")
	}
}

func TestResumeRecord_Validate(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, "s.part")
	if err := os.WriteFile(temp, make([]byte, 100), 0600); err != nil {
		t.Fatal(err)
	}

	base := func() *ResumeRecord {
		return &ResumeRecord{
			FormatVersion: ResumeFormatVersion,
			TempLocator:   temp,
			BytesWritten:  100,
			CreatedAt:     time.Now(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*ResumeRecord)
		want   error
	}{
		{"valid", func(*ResumeRecord) {}, nil},
		{"temp longer than recorded", func(r *ResumeRecord) { r.BytesWritten = 60 }, nil},
		{"temp shorter than recorded", func(r *ResumeRecord) { r.BytesWritten = 200 }, ErrResumeTempTooShort},
		{"temp missing", func(r *ResumeRecord) { r.TempLocator = filepath.Join(dir, "gone.part") }, ErrResumeTempMissing},
		{"nothing written yet", func(r *ResumeRecord) { r.TempLocator = filepath.Join(dir, "gone.part"); r.BytesWritten = 0 }, nil},
		{"expired", func(r *ResumeRecord) { r.CreatedAt = time.Now().Add(-MaxResumeAge - time.Hour) }, ErrResumeExpired},
		{"old format", func(r *ResumeRecord) { r.FormatVersion = 0 }, ErrResumeVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResumeRecord_HeldByLiveProcess(t *testing.T) {
	r := &ResumeRecord{Status: models.StatusInProgress, OwnerPID: os.Getpid()}
	if r.HeldByLiveProcess() {
		t.Error("own process never counts as another holder")
	}
	r.Status = models.StatusPaused
	r.OwnerPID = os.Getppid()
	if r.HeldByLiveProcess() {
		t.Error("paused records are never held")
	}
}

func TestProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if ProcessAlive(0) || ProcessAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
}

func TestDestinationStore(t *testing.T) {
	s := NewDestinationStore(t.TempDir())

	d, err := s.Load()
	if err != nil || d != nil {
		t.Fatalf("absent record should load as nil, got %+v, %v", d, err)
	}

	if err := s.Save(models.StorageDestination{Kind: models.DestinationGranted}); err == nil {
		t.Error("expected validation error for granted destination without token")
	}

	if err := s.Save(models.GrantedTo("tok", "USB stick")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	d, err = s.Load()
	if err != nil || d == nil || d.GrantToken != "tok" {
		t.Fatalf("Load() = %+v, %v", d, err)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if d, _ := s.Load(); d != nil {
		t.Error("Clear should revert to sandbox default")
	}
}

func TestGrantStore(t *testing.T) {
	s := NewGrantStore(t.TempDir())

	if _, err := s.Get("missing"); !errors.Is(err, ErrGrantNotFound) {
		t.Errorf("Get(missing) = %v, want ErrGrantNotFound", err)
	}

	now := time.Now()
	g1 := models.GrantRecord{Token: "b", Provider: models.GrantDirectory, CreatedAt: now, Directory: &models.DirectoryGrant{Path: "/music"}}
	g2 := models.GrantRecord{Token: "a", Provider: models.GrantS3, CreatedAt: now.Add(time.Second), S3: &models.S3Grant{Bucket: "tunes"}}
	for _, g := range []models.GrantRecord{g1, g2} {
		if err := s.Put(g); err != nil {
			t.Fatalf("Put(%s) error = %v", g.Token, err)
		}
	}

	got, err := s.Get("a")
	if err != nil || got.S3 == nil || got.S3.Bucket != "tunes" {
		t.Fatalf("Get(a) = %+v, %v", got, err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Token != "b" {
		t.Errorf("List() order = %+v", list)
	}

	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("deleting twice should succeed: %v", err)
	}
	if _, err := s.Get("b"); !errors.Is(err, ErrGrantNotFound) {
		t.Error("revoked grant should be gone")
	}

	if err := s.Put(models.GrantRecord{}); err == nil {
		t.Error("Put without token should fail")
	}
}
