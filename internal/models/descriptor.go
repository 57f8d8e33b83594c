package models

// ResolutionOK is the only status value the conversion service uses for success.
const ResolutionOK = "ok"

// RemoteDescriptor is the resolved form of a user-supplied link: where the audio
// stream lives and what it is called. It is immutable once resolved.
type RemoteDescriptor struct {
	SourceURL string  `json:"sourceUrl"`          // link the user pasted
	StreamURL string  `json:"streamUrl"`          // resolved, directly downloadable URL
	Title     string  `json:"title"`              // display title, never used as a path unsanitized
	SizeBytes int64   `json:"sizeBytes"`          // 0 when the service did not report a size
	Duration  float64 `json:"duration,omitempty"` // seconds, informational
	Status    string  `json:"status"`             // "ok" on success
}

// SizeKnown reports whether the service returned a usable content length.
// An unknown size means progress is indeterminate; it is never guessed.
func (d RemoteDescriptor) SizeKnown() bool {
	return d.SizeBytes > 0
}
