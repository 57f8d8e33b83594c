package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixtape/mixtape/internal/diskspace"
	"github.com/mixtape/mixtape/internal/http"
	"github.com/mixtape/mixtape/internal/storage"
)

// Session errors
var (
	// ErrAlreadyInProgress is returned when a transfer is already running,
	// in this process or another one.
	ErrAlreadyInProgress = errors.New("a transfer is already in progress")

	// ErrPendingSession is returned by Start while a paused or failed session
	// is retained. Resume it or cancel it first.
	ErrPendingSession = errors.New("a paused or failed transfer is pending")

	// ErrStaleResumeState means the remote file changed since the partial data
	// was written. The partial data is discarded and the next resume starts
	// from zero.
	ErrStaleResumeState = errors.New("remote file changed since the transfer was interrupted")

	// ErrSessionNotFound is returned when there is no session to act on.
	ErrSessionNotFound = errors.New("no transfer session")

	// ErrInvalidState is returned when an operation does not apply to the
	// session's current status.
	ErrInvalidState = errors.New("operation not valid in the current session state")

	// ErrTransferInProgress is returned when switching destinations while a
	// transfer is running.
	ErrTransferInProgress = errors.New("cannot change destination while a transfer is in progress")

	// ErrStreamTooLong means the server sent more bytes than it advertised.
	ErrStreamTooLong = errors.New("stream is longer than its advertised size")

	// ErrStreamTruncated means the stream ended before the advertised size.
	ErrStreamTruncated = errors.New("stream ended before the advertised size")
)

// errPaused and errCancelled are the cancellation causes for a running
// transfer. Any other cause, such as the caller's context ending, is treated
// as a pause.
var (
	errPaused    = errors.New("transfer paused")
	errCancelled = errors.New("transfer cancelled")
)

// NetworkError is a transient failure reaching the stream. The partial data
// and resume state are kept so the user can retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transient NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsStale reports whether err is ErrStaleResumeState.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleResumeState)
}

// IsCancelled reports whether a run outcome error is a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Kind names the category of a transfer failure for display and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCancelled(err):
		return "Cancelled"
	case IsNetworkError(err):
		return "NetworkError"
	case IsStale(err):
		return "StaleResumeState"
	case storage.IsPermissionError(err):
		return "PermissionDenied"
	case diskspace.IsInsufficientSpaceError(err):
		return "InsufficientSpace"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, http.ErrNotFound):
		return "NotFound"
	default:
		return "WriteFailed"
	}
}

// streamError maps an error from opening or reading the stream into the
// transfer taxonomy: transient errors become NetworkError, the rest are
// returned as they are and treated as terminal.
func streamError(op string, err error) error {
	if err == nil {
		return nil
	}
	if http.IsTransient(err) || storage.IsNetworkError(err) {
		return &NetworkError{Op: op, Err: err}
	}
	return err
}
