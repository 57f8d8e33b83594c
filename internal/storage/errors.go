package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Storage error kinds. Every error a Backend returns matches exactly one of
// these with errors.Is.
var (
	// ErrPermissionDenied means the destination refused access. For granted
	// destinations the user must re-grant.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrWriteFailed means bytes could not be persisted. Terminal for a transfer.
	ErrWriteFailed = errors.New("write failed")
	// ErrNotFound means the artifact or the destination root does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName means the file name cannot be used as a single path component.
	ErrInvalidName = errors.New("invalid file name")
)

// Error describes a failed backend operation.
type Error struct {
	Op      string  // "write", "commit", "list", ...
	Locator Locator // may be empty for whole-destination operations
	Kind    error   // one of the Err* kinds above
	Err     error   // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Locator != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Locator))
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error of the given kind.
func NewError(op string, loc Locator, kind, cause error) *Error {
	return &Error{Op: op, Locator: loc, Kind: kind, Err: cause}
}

// Classify maps a filesystem or provider error onto a storage error kind.
// fallback is used when nothing more specific applies. Errors that already
// carry a kind are returned unchanged.
func Classify(op string, loc Locator, err error, fallback error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrPermission), IsPermissionText(err):
		return NewError(op, loc, ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return NewError(op, loc, ErrNotFound, err)
	case IsDiskFullError(err):
		return NewError(op, loc, ErrWriteFailed, err)
	}
	return NewError(op, loc, fallback, err)
}

// IsPermissionError reports whether err is a permission failure.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether err is a missing artifact or destination.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionText catches permission failures that arrive as plain strings
// from provider SDKs and proxies.
func IsPermissionText(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"permission denied",
		"access denied",
		"accessdenied",
		"authorizationfailure",
		"operation not permitted",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsDiskFullError checks if an error is likely caused by running out of disk space
//
// Checks for common error strings across different operating systems:
//   - Linux/Unix: "no space left on device", "enospc"
//   - Windows: "out of disk space", "insufficient disk space"
//   - Quota: "disk quota exceeded"
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	diskFullIndicators := []string{
		"no space left on device", // Linux/Unix
		"disk full",               // Generic
		"out of disk space",       // Windows
		"insufficient disk space", // Windows
		"not enough space",        // Generic
		"enospc",                  // Linux errno
		"disk quota exceeded",     // Quota systems
	}

	for _, indicator := range diskFullIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// IsNetworkError checks if an error is network-related
// Useful for determining if an operation should be retried
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	networkIndicators := []string{
		"connection",    // connection refused, connection reset, etc.
		"timeout",       // i/o timeout, dial timeout, etc.
		"network",       // network unreachable, network error, etc.
		"eof",           // unexpected EOF
		"broken pipe",   // broken pipe
		"tls handshake", // TLS handshake errors
	}

	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

func invalidName(name string, cause error) error {
	return NewError("resolve", Locator(name), ErrInvalidName, fmt.Errorf("%q: %w", name, cause))
}
