// Package transfer runs the single download session: it streams a remote
// descriptor into a temp artifact, persists resume state as it goes, and
// commits the finished file to the bound storage destination.
package transfer

import (
	"os"
	"time"

	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/state"
	"github.com/mixtape/mixtape/internal/storage"
)

// Session is a point-in-time copy of a transfer session. The manager owns the
// live session; callers only ever see copies.
type Session struct {
	ID          string
	Descriptor  models.RemoteDescriptor
	FileName    string
	Destination models.StorageDestination
	Locator     storage.Locator // final artifact
	TempPath    string          // temp file (sandbox) or scratch file (granted)
	Overwrite   bool            // replacing an existing artifact was chosen for this run

	Status       models.SessionStatus
	BytesWritten int64
	TotalBytes   int64 // 0 when unknown
	ETag         string
	Speed        float64 // bytes/sec, smoothed

	LastError error
	Transient bool // LastError kept the partial data

	// OwnerPID is set when another live process is driving the session.
	OwnerPID int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress returns the session's progress value.
func (s Session) Progress() events.Progress {
	return events.NewProgress(s.BytesWritten, s.TotalBytes)
}

// HeldElsewhere reports whether another process owns the session.
func (s Session) HeldElsewhere() bool {
	return s.OwnerPID != 0 && s.OwnerPID != os.Getpid()
}

// Resumable reports whether Resume applies to the session.
func (s Session) Resumable() bool {
	return s.Status.IsRetained() && !s.HeldElsewhere()
}

// record converts the session into its persisted form. The caller passes the
// byte count that has actually been synced to the temp file.
func (s *Session) record(synced int64) *state.ResumeRecord {
	r := &state.ResumeRecord{
		FormatVersion: state.ResumeFormatVersion,
		SessionID:     s.ID,
		SourceURL:     s.Descriptor.SourceURL,
		StreamURL:     s.Descriptor.StreamURL,
		Title:         s.Descriptor.Title,
		FileName:      s.FileName,
		TempLocator:   s.TempPath,
		BytesWritten:  synced,
		TotalBytes:    s.TotalBytes,
		ETag:          s.ETag,
		Status:        s.Status,
		Transient:     s.Transient,
		CreatedAt:     s.CreatedAt,
	}
	r.SetDestination(s.Destination)
	if s.LastError != nil {
		r.LastError = s.LastError.Error()
	}
	if s.Status == models.StatusInProgress {
		r.OwnerPID = os.Getpid()
	}
	return r
}

// sessionFromRecord rebuilds a session from persisted state.
func sessionFromRecord(r *state.ResumeRecord) *Session {
	s := &Session{
		ID:           r.SessionID,
		Descriptor:   r.Descriptor(),
		FileName:     r.FileName,
		Destination:  r.Destination(),
		TempPath:     r.TempLocator,
		Status:       r.Status,
		BytesWritten: r.BytesWritten,
		TotalBytes:   r.TotalBytes,
		ETag:         r.ETag,
		Transient:    r.Transient,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastError != "" {
		s.LastError = &restoredError{msg: r.LastError}
	}
	if r.HeldByLiveProcess() {
		s.OwnerPID = r.OwnerPID
	}
	return s
}

// restoredError carries a failure message across restarts.
type restoredError struct {
	msg string
}

func (e *restoredError) Error() string { return e.msg }

// speedMeter smooths throughput with an exponential moving average.
type speedMeter struct {
	lastBytes int64
	lastTime  time.Time
	speed     float64
}

// speedAlpha weights the newest sample.
const speedAlpha = 0.3

func (m *speedMeter) update(bytes int64, now time.Time) float64 {
	if m.lastTime.IsZero() {
		m.lastBytes, m.lastTime = bytes, now
		return m.speed
	}
	elapsed := now.Sub(m.lastTime).Seconds()
	if elapsed <= 0 {
		return m.speed
	}
	instant := float64(bytes-m.lastBytes) / elapsed
	if m.speed == 0 {
		m.speed = instant
	} else {
		m.speed = speedAlpha*instant + (1-speedAlpha)*m.speed
	}
	m.lastBytes, m.lastTime = bytes, now
	return m.speed
}
