// Package state persists what must survive a restart: the single resumable
// transfer record, the selected external destination, and issued grants.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/models"
)

// ResumeFormatVersion is bumped when ResumeRecord changes incompatibly.
const ResumeFormatVersion = 1

// MaxResumeAge is the maximum age of a resume record before it's considered expired.
const MaxResumeAge = 7 * 24 * time.Hour

// ResumeRecord is everything needed to pick a transfer back up after a
// restart. BytesWritten never exceeds what has been synced to TempLocator.
type ResumeRecord struct {
	FormatVersion int `json:"formatVersion"`

	SessionID string `json:"sessionId"`
	SourceURL string `json:"sourceUrl"`
	StreamURL string `json:"streamUrl"`
	Title     string `json:"title"`
	FileName  string `json:"fileName"`

	TempLocator  string `json:"tempLocator"`
	BytesWritten int64  `json:"bytesWritten"`
	TotalBytes   int64  `json:"totalBytes"` // 0 when unknown
	ETag         string `json:"etag,omitempty"`

	DestinationKind  models.DestinationKind `json:"destinationKind"`
	DestinationRef   string                 `json:"destinationRef"` // base path or grant token
	DestinationLabel string                 `json:"destinationLabel,omitempty"`

	Status    models.SessionStatus `json:"status"`
	LastError string               `json:"lastError,omitempty"`
	Transient bool                 `json:"transient,omitempty"` // last failure kept the temp file

	// OwnerPID is the process driving the transfer while Status is in_progress.
	OwnerPID int `json:"ownerPid,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Destination rebuilds the destination the session was bound to.
func (r *ResumeRecord) Destination() models.StorageDestination {
	if r.DestinationKind == models.DestinationGranted {
		return models.GrantedTo(r.DestinationRef, r.DestinationLabel)
	}
	return models.SandboxedAt(r.DestinationRef)
}

// SetDestination records the destination a session is bound to.
func (r *ResumeRecord) SetDestination(d models.StorageDestination) {
	r.DestinationKind = d.Kind
	r.DestinationRef = d.Ref()
	r.DestinationLabel = d.Label
}

// Descriptor rebuilds the remote descriptor from the record.
func (r *ResumeRecord) Descriptor() models.RemoteDescriptor {
	return models.RemoteDescriptor{
		SourceURL: r.SourceURL,
		StreamURL: r.StreamURL,
		Title:     r.Title,
		SizeBytes: r.TotalBytes,
		Status:    models.ResolutionOK,
	}
}

// HeldByLiveProcess reports whether another running process is actively
// transferring this record.
func (r *ResumeRecord) HeldByLiveProcess() bool {
	if r.Status != models.StatusInProgress || r.OwnerPID == 0 || r.OwnerPID == os.Getpid() {
		return false
	}
	return ProcessAlive(r.OwnerPID)
}

// Resume record validation errors
var (
	ErrResumeExpired      = errors.New("resume state expired")
	ErrResumeTempMissing  = errors.New("temp file no longer exists")
	ErrResumeTempTooShort = errors.New("temp file is shorter than recorded progress")
	ErrResumeVersion      = errors.New("unsupported resume state version")
)

// Validate checks that a record can still be resumed against what is on disk.
// A temp file longer than BytesWritten is fine: the tail past the last sync
// is truncated before resuming.
func (r *ResumeRecord) Validate() error {
	if r.FormatVersion != ResumeFormatVersion {
		return fmt.Errorf("%w: %d", ErrResumeVersion, r.FormatVersion)
	}
	if time.Since(r.CreatedAt) > MaxResumeAge {
		return ErrResumeExpired
	}
	if r.BytesWritten == 0 && r.TempLocator == "" {
		return nil
	}
	info, err := os.Stat(r.TempLocator)
	if err != nil {
		if r.BytesWritten == 0 {
			return nil
		}
		return ErrResumeTempMissing
	}
	if info.Size() < r.BytesWritten {
		return ErrResumeTempTooShort
	}
	return nil
}

// ResumeStore persists the single resumable session record. Implementations
// are last-write-wins.
type ResumeStore interface {
	// Load returns nil without error when no record exists.
	Load() (*ResumeRecord, error)
	Save(r *ResumeRecord) error
	// Clear removes the record. Clearing an absent record succeeds.
	Clear() error
}

// FileResumeStore keeps the record as a JSON file under the state directory.
type FileResumeStore struct {
	path string
	mu   sync.Mutex
}

// NewFileResumeStore creates a store rooted at stateDir.
func NewFileResumeStore(stateDir string) *FileResumeStore {
	return &FileResumeStore{path: filepath.Join(stateDir, constants.ResumeStateFileName)}
}

// Path returns the record file location.
func (s *FileResumeStore) Path() string {
	return s.path
}

// Load returns the stored record, or nil if there is none.
func (s *FileResumeStore) Load() (*ResumeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r ResumeRecord
	found, err := readJSON(s.path, &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// Save writes the record atomically, stamping UpdatedAt.
func (s *FileResumeStore) Save(r *ResumeRecord) error {
	if r == nil {
		return errors.New("nil resume record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.FormatVersion == 0 {
		r.FormatVersion = ResumeFormatVersion
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return writeJSONAtomic(s.path, r)
}

// Clear deletes the record.
func (s *FileResumeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.path)
}
