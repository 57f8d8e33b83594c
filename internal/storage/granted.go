package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/http"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/validation"
)

// GrantedBackend stores artifacts in a user-granted external location.
//
// The grant API cannot append, so a transfer accumulates bytes in a private
// scratch file and Commit hands the finished file to the grant in one piece.
// The scratch file is removed after every commit attempt, successful or not.
type GrantedBackend struct {
	dest       models.StorageDestination
	grant      Grant
	scratchDir string
	retry      http.RetryPolicy
	logger     *logging.Logger
}

// NewGrantedBackend binds a grant to its destination. scratchDir must be a
// private local directory; it is created on demand.
func NewGrantedBackend(dest models.StorageDestination, grant Grant, scratchDir string, logger *logging.Logger) *GrantedBackend {
	return &GrantedBackend{
		dest:       dest,
		grant:      grant,
		scratchDir: scratchDir,
		retry:      http.DefaultRetryPolicy(),
		logger:     logging.OrNop(logger).Component("granted"),
	}
}

// SetRetryPolicy overrides the retry policy used for grant writes.
func (b *GrantedBackend) SetRetryPolicy(p http.RetryPolicy) {
	b.retry = p
}

// Destination returns the granted destination this backend serves.
func (b *GrantedBackend) Destination() models.StorageDestination {
	return b.dest
}

// Grant returns the underlying grant.
func (b *GrantedBackend) Grant() Grant {
	return b.grant
}

// ResolvePath validates fileName and asks the grant where it would live.
func (b *GrantedBackend) ResolvePath(fileName string) (Locator, error) {
	if err := validation.ValidateFilename(fileName); err != nil {
		return "", invalidName(fileName, err)
	}
	return b.grant.Locate(fileName), nil
}

// Exists reports whether an artifact is stored at loc.
func (b *GrantedBackend) Exists(ctx context.Context, loc Locator) (bool, error) {
	_, err := b.grant.Stat(ctx, loc)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Stat returns the artifact at loc.
func (b *GrantedBackend) Stat(ctx context.Context, loc Locator) (Artifact, error) {
	return b.grant.Stat(ctx, loc)
}

// Open opens the artifact at loc for reading.
func (b *GrantedBackend) Open(ctx context.Context, loc Locator) (io.ReadCloser, error) {
	return b.grant.Open(ctx, loc)
}

// Write materializes r in a scratch file and commits it to loc.
func (b *GrantedBackend) Write(ctx context.Context, loc Locator, r io.Reader) (int64, error) {
	if err := os.MkdirAll(b.scratchDir, 0700); err != nil {
		return 0, Classify("write", loc, err, ErrWriteFailed)
	}
	scratch, err := os.CreateTemp(b.scratchDir, "write-*"+constants.TempSuffix)
	if err != nil {
		return 0, Classify("write", loc, err, ErrWriteFailed)
	}
	scratchPath := scratch.Name()

	n, err := io.Copy(scratch, &contextReader{ctx: ctx, r: r})
	if closeErr := scratch.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = b.DiscardTemp(scratchPath)
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, Classify("write", loc, err, ErrWriteFailed)
	}

	return n, b.Commit(ctx, scratchPath, loc)
}

// Delete removes the artifact at loc. A missing artifact is not an error.
func (b *GrantedBackend) Delete(ctx context.Context, loc Locator) error {
	err := b.grant.Remove(ctx, loc)
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// List returns the artifacts visible through the grant.
func (b *GrantedBackend) List(ctx context.Context) ([]Artifact, error) {
	return b.grant.List(ctx)
}

// TempPath returns the scratch path for a session.
func (b *GrantedBackend) TempPath(sessionID string) (string, error) {
	if err := os.MkdirAll(b.scratchDir, 0700); err != nil {
		return "", Classify("temp", Locator(b.scratchDir), err, ErrWriteFailed)
	}
	return filepath.Join(b.scratchDir, tempName(sessionID)), nil
}

// Commit creates the artifact through the grant and copies the scratch file
// into it. Transient provider failures are retried with backoff; each attempt
// re-reads the scratch file from the start. The scratch file is deleted on
// every exit path.
func (b *GrantedBackend) Commit(ctx context.Context, scratchPath string, loc Locator) (err error) {
	defer func() {
		if rmErr := b.DiscardTemp(scratchPath); rmErr != nil {
			b.logger.Warn().Err(rmErr).Str("scratch", scratchPath).Msg("failed to remove scratch file")
		}
	}()

	info, err := os.Stat(scratchPath)
	if err != nil {
		return Classify("commit", loc, err, ErrWriteFailed)
	}

	name := b.grant.NameOf(loc)
	created, err := b.grant.CreateArtifact(ctx, name, constants.AudioMIMEType)
	if err != nil {
		return Classify("commit", loc, err, ErrWriteFailed)
	}

	policy := b.retry
	policy.OnRetry = func(attempt int, err error, class http.ErrorClass) {
		b.logger.Warn().Err(err).Int("attempt", attempt).Stringer("class", class).
			Str("locator", string(created)).Msg("retrying grant write")
	}

	err = http.Do(ctx, policy, func() error {
		f, err := os.Open(scratchPath)
		if err != nil {
			// Local file problems are not worth retrying
			return &http.PermanentError{Err: err}
		}
		defer f.Close()
		return b.grant.WriteArtifact(ctx, created, f, info.Size())
	})
	if err != nil {
		var perm *http.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		// Don't leave a half-created artifact behind
		if rmErr := b.grant.Remove(context.WithoutCancel(ctx), created); rmErr != nil && !IsNotFound(rmErr) {
			b.logger.Warn().Err(rmErr).Str("locator", string(created)).Msg("failed to remove partial artifact")
		}
		return Classify("commit", loc, err, ErrWriteFailed)
	}

	b.logger.Debug().Str("locator", string(created)).Int64("bytes", info.Size()).Msg("artifact committed through grant")
	return nil
}

// DiscardTemp removes a scratch file. Missing files are ignored.
func (b *GrantedBackend) DiscardTemp(scratchPath string) error {
	return removeLocal("discard", scratchPath)
}

// String describes the backend for logs.
func (b *GrantedBackend) String() string {
	return fmt.Sprintf("granted(%s)", b.grant.Label())
}
