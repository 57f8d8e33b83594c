package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/localfs"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/validation"
)

// SandboxBackend stores artifacts in an app-private directory using plain
// path I/O. The root is created on first use.
type SandboxBackend struct {
	root   string
	logger *logging.Logger

	mu    sync.Mutex
	ready bool
}

// NewSandboxBackend creates a backend rooted at root. Nothing touches the
// filesystem until the first operation.
func NewSandboxBackend(root string, logger *logging.Logger) *SandboxBackend {
	return &SandboxBackend{
		root:   filepath.Clean(root),
		logger: logging.OrNop(logger).Component("sandbox"),
	}
}

// Destination returns the sandboxed destination this backend serves.
func (b *SandboxBackend) Destination() models.StorageDestination {
	return models.SandboxedAt(b.root)
}

// Root returns the sandbox root directory.
func (b *SandboxBackend) Root() string {
	return b.root
}

func (b *SandboxBackend) partialDir() string {
	return filepath.Join(b.root, constants.PartialDirName)
}

// ensureRoot lazily creates the root directory.
func (b *SandboxBackend) ensureRoot() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}
	if err := os.MkdirAll(b.root, 0755); err != nil {
		return Classify("init", Locator(b.root), err, ErrWriteFailed)
	}
	b.logger.Debug().Str("root", b.root).Msg("sandbox root ready")
	b.ready = true
	return nil
}

// ResolvePath validates fileName and joins it onto the root.
func (b *SandboxBackend) ResolvePath(fileName string) (Locator, error) {
	if err := validation.ValidateFilename(fileName); err != nil {
		return "", invalidName(fileName, err)
	}
	p := filepath.Join(b.root, fileName)
	if err := validation.ValidatePathInDirectory(p, b.root); err != nil {
		return "", invalidName(fileName, err)
	}
	return Locator(p), nil
}

// owns rejects locators that point outside the root.
func (b *SandboxBackend) owns(op string, loc Locator) error {
	if err := validation.ValidatePathInDirectory(string(loc), b.root); err != nil {
		return NewError(op, loc, ErrPermissionDenied, err)
	}
	return nil
}

// Exists reports whether an artifact is stored at loc.
func (b *SandboxBackend) Exists(ctx context.Context, loc Locator) (bool, error) {
	_, err := b.Stat(ctx, loc)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Stat returns the artifact at loc.
func (b *SandboxBackend) Stat(_ context.Context, loc Locator) (Artifact, error) {
	if err := b.owns("stat", loc); err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(string(loc))
	if err != nil {
		return Artifact{}, Classify("stat", loc, err, ErrNotFound)
	}
	if info.IsDir() {
		return Artifact{}, NewError("stat", loc, ErrNotFound, fmt.Errorf("is a directory"))
	}
	return Artifact{
		Name:    info.Name(),
		Locator: loc,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Open opens the artifact at loc for reading.
func (b *SandboxBackend) Open(_ context.Context, loc Locator) (io.ReadCloser, error) {
	if err := b.owns("open", loc); err != nil {
		return nil, err
	}
	f, err := os.Open(string(loc))
	if err != nil {
		return nil, Classify("open", loc, err, ErrNotFound)
	}
	return f, nil
}

// Write streams r into loc. Bytes land in the partial directory first and are
// renamed into place once complete, so a failed write never leaves a torn
// artifact behind.
func (b *SandboxBackend) Write(ctx context.Context, loc Locator, r io.Reader) (int64, error) {
	if err := b.owns("write", loc); err != nil {
		return 0, err
	}
	if err := b.ensureRoot(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(b.partialDir(), 0755); err != nil {
		return 0, Classify("write", loc, err, ErrWriteFailed)
	}

	tmp, err := os.CreateTemp(b.partialDir(), "write-*"+constants.TempSuffix)
	if err != nil {
		return 0, Classify("write", loc, err, ErrWriteFailed)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = b.DiscardTemp(tmpPath)
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, Classify("write", loc, err, ErrWriteFailed)
	}

	if err := b.Commit(ctx, tmpPath, loc); err != nil {
		return n, err
	}
	return n, nil
}

// Delete removes the artifact at loc. A missing artifact is not an error.
func (b *SandboxBackend) Delete(_ context.Context, loc Locator) error {
	if err := b.owns("delete", loc); err != nil {
		return err
	}
	if err := os.Remove(string(loc)); err != nil && !os.IsNotExist(err) {
		return Classify("delete", loc, err, ErrWriteFailed)
	}
	return nil
}

// List returns completed artifacts in the root, sorted by name. Directories
// and hidden files (including the partial directory) are skipped.
func (b *SandboxBackend) List(_ context.Context) ([]Artifact, error) {
	if err := b.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := localfs.ListDirectory(b.root, localfs.ListOptions{FilesOnly: true})
	if err != nil {
		return nil, Classify("list", Locator(b.root), err, ErrNotFound)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		artifacts = append(artifacts, Artifact{
			Name:    e.Name,
			Locator: Locator(e.Path),
			Size:    e.Size,
			ModTime: e.ModTime,
		})
	}
	return artifacts, nil
}

// TempPath returns the in-flight path for a session inside the partial
// directory. It shares a filesystem with the root, so Commit is a rename.
func (b *SandboxBackend) TempPath(sessionID string) (string, error) {
	if err := b.ensureRoot(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.partialDir(), 0755); err != nil {
		return "", Classify("temp", Locator(b.partialDir()), err, ErrWriteFailed)
	}
	return filepath.Join(b.partialDir(), tempName(sessionID)), nil
}

// Commit atomically renames a finished temp file onto loc, replacing any
// existing artifact.
func (b *SandboxBackend) Commit(_ context.Context, tempPath string, loc Locator) error {
	if err := b.owns("commit", loc); err != nil {
		return err
	}
	if err := b.ensureRoot(); err != nil {
		return err
	}
	if err := os.Rename(tempPath, string(loc)); err != nil {
		return Classify("commit", loc, err, ErrWriteFailed)
	}
	b.logger.Debug().Str("locator", string(loc)).Msg("artifact committed")
	return nil
}

// DiscardTemp removes a temp file. Missing files are ignored.
func (b *SandboxBackend) DiscardTemp(tempPath string) error {
	return removeLocal("discard", tempPath)
}

func tempName(sessionID string) string {
	return sessionID + constants.TempSuffix
}

func removeLocal(op, p string) error {
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return Classify(op, Locator(p), err, ErrWriteFailed)
	}
	return nil
}
