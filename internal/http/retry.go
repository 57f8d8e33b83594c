package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/mixtape/mixtape/internal/constants"
)

// ErrorClass groups failures by how a retry loop should treat them.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota
	// ClassDenied is an authorization failure: a revoked grant, an expired
	// SAS or a rejected key. Retrying cannot help.
	ClassDenied
	// ClassNetwork is a connection-level failure (reset, refused, timeout, EOF).
	ClassNetwork
	// ClassServer is a 5xx or throttling response.
	ClassServer
	// ClassFatal is everything else, including cancellation.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassDenied:
		return "denied"
	case ClassNetwork:
		return "network"
	case ClassServer:
		return "server"
	case ClassFatal:
		return "fatal"
	}
	return fmt.Sprintf("ErrorClass(%d)", int(c))
}

// Retryable reports whether errors of this class are retried.
func (c ErrorClass) Retryable() bool {
	return c == ClassNetwork || c == ClassServer
}

// PermanentError stops a retry loop regardless of how the wrapped error reads.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// RetryPolicy configures Do.
type RetryPolicy struct {
	// Attempts is the total number of tries, the first one included.
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, class ErrorClass)
}

// DefaultRetryPolicy returns the policy used for grant commits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     constants.MaxRetries,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
	}
}

// Provider error text, lower-cased. S3 and Azure report most conditions only
// through their error codes.
var (
	deniedMarkers = []string{
		"403", "unauthorized", "access denied", "accessdenied", "permission denied",
		"expiredtoken", "invalidaccesskeyid", "signaturedoesnotmatch",
		"authenticationfailed", "authorizationfailure", "authorizationpermissionmismatch",
		"invalid sas", "signature not valid",
	}
	networkMarkers = []string{
		"connection reset", "connection refused", "broken pipe", "i/o timeout",
		"tls handshake timeout", "no such host", "unexpected eof", "timeout",
	}
	serverMarkers = []string{
		"429", "500", "502", "503", "504", "slowdown", "throttl", "serverbusy", "server busy",
		"service unavailable", "serviceunavailable", "internalerror", "operationtimedout",
		"requesttimeout",
	}
)

// ClassifyError sorts err into an ErrorClass. Typed errors are checked before
// the message text.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var perm *PermanentError
	switch {
	case errors.As(err, &perm), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassFatal
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized), errors.Is(err, syscall.EACCES):
		return ClassDenied
	case errors.Is(err, ErrServerError):
		return ClassServer
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, deniedMarkers):
		return ClassDenied
	case containsAny(msg, serverMarkers):
		return ClassServer
	case containsAny(msg, networkMarkers), strings.HasSuffix(msg, "eof"):
		return ClassNetwork
	}
	return ClassFatal
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Backoff returns a full-jitter delay for the given retry number (1-based):
// a random duration in [0, min(max, initial*2^retry)].
func Backoff(retry int, initial, max time.Duration) time.Duration {
	if retry <= 0 || initial <= 0 {
		return 0
	}
	ceiling := max
	if retry < 32 {
		if d := initial << uint(retry); d > 0 && d < max {
			ceiling = d
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// Do runs op until it succeeds, fails with a non-retryable error or the
// policy runs out of attempts. Cancellation interrupts the backoff sleep.
func Do(ctx context.Context, policy RetryPolicy, op func() error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = op(); err == nil {
			return nil
		}
		class := ClassifyError(err)
		if !class.Retryable() {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		wait := Backoff(attempt, policy.InitialDelay, policy.MaxDelay)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return fmt.Errorf("no time left to retry: %w", err)
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, class)
		}
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
