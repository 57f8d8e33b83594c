package models

import "strings"

// SessionStatus is the lifecycle state of a transfer session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// IsActive reports whether bytes may currently be moving.
func (s SessionStatus) IsActive() bool {
	return s == StatusInProgress
}

// IsRetained reports whether the session survives in the resume store awaiting
// a user decision (resume, retry or cancel).
func (s SessionStatus) IsRetained() bool {
	return s == StatusPaused || s == StatusFailed
}

// IsFinished reports whether the session reached a terminal state.
func (s SessionStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DownloadEntry is one completed artifact in the active destination. It is
// derived by listing and never persisted on its own.
type DownloadEntry struct {
	FileName   string `json:"fileName"`   // canonical stored name, with extension
	StorageRef string `json:"storageRef"` // backend locator
	SizeBytes  int64  `json:"sizeBytes"`
}

// DisplayName strips the audio extension for presentation. The stored name is
// left untouched.
func (e DownloadEntry) DisplayName() string {
	const ext = ".mp3"
	if len(e.FileName) > len(ext) && strings.EqualFold(e.FileName[len(e.FileName)-len(ext):], ext) {
		return e.FileName[:len(e.FileName)-len(ext)]
	}
	return e.FileName
}
