package grant

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mixtape/mixtape/internal/localfs"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/validation"
)

// DirectoryGrant is a user-picked directory outside the sandbox. Content is
// written whole, the same way as the object-store grants, so the backend
// treats every provider alike.
type DirectoryGrant struct {
	root  string
	label string
}

// NewDirectoryGrant creates a grant over an absolute directory path.
func NewDirectoryGrant(cfg models.DirectoryGrant, label string) (*DirectoryGrant, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("directory grant requires a path")
	}
	if !filepath.IsAbs(cfg.Path) {
		return nil, fmt.Errorf("directory grant path must be absolute: %s", cfg.Path)
	}
	if label == "" {
		label = filepath.Base(cfg.Path)
	}
	return &DirectoryGrant{root: filepath.Clean(cfg.Path), label: label}, nil
}

// Label returns the display label.
func (g *DirectoryGrant) Label() string { return g.label }

// Locate returns the path name would have.
func (g *DirectoryGrant) Locate(name string) storage.Locator {
	return storage.Locator(filepath.Join(g.root, name))
}

// NameOf returns the file name of loc.
func (g *DirectoryGrant) NameOf(loc storage.Locator) string {
	return filepath.Base(string(loc))
}

func (g *DirectoryGrant) check(op string, loc storage.Locator) error {
	if err := validation.ValidatePathInDirectory(string(loc), g.root); err != nil {
		return storage.NewError(op, loc, storage.ErrPermissionDenied, err)
	}
	return nil
}

// checkRoot fails with NotFound when the granted directory has disappeared,
// for example an unmounted drive.
func (g *DirectoryGrant) checkRoot(op string) error {
	info, err := os.Stat(g.root)
	if err != nil {
		return storage.Classify(op, storage.Locator(g.root), err, storage.ErrNotFound)
	}
	if !info.IsDir() {
		return storage.NewError(op, storage.Locator(g.root), storage.ErrNotFound, fmt.Errorf("not a directory"))
	}
	return nil
}

// CreateArtifact creates an empty file for name, truncating any existing one.
// The MIME type is implied by the extension on a plain filesystem.
func (g *DirectoryGrant) CreateArtifact(_ context.Context, name, _ string) (storage.Locator, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return "", storage.NewError("create", storage.Locator(name), storage.ErrInvalidName, err)
	}
	if err := g.checkRoot("create"); err != nil {
		return "", err
	}
	loc := g.Locate(name)
	f, err := os.OpenFile(string(loc), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", storage.Classify("create", loc, err, storage.ErrWriteFailed)
	}
	if err := f.Close(); err != nil {
		return "", storage.Classify("create", loc, err, storage.ErrWriteFailed)
	}
	return loc, nil
}

// WriteArtifact replaces the content of a created artifact with r.
func (g *DirectoryGrant) WriteArtifact(ctx context.Context, loc storage.Locator, r io.Reader, size int64) error {
	if err := g.check("write", loc); err != nil {
		return err
	}
	f, err := os.OpenFile(string(loc), os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return storage.Classify("write", loc, err, storage.ErrWriteFailed)
	}
	n, err := io.Copy(f, storage.NewContextReader(ctx, r))
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storage.Classify("write", loc, err, storage.ErrWriteFailed)
	}
	if size >= 0 && n != size {
		return storage.NewError("write", loc, storage.ErrWriteFailed, fmt.Errorf("short write: %d of %d bytes", n, size))
	}
	return nil
}

// Stat returns the artifact at loc.
func (g *DirectoryGrant) Stat(_ context.Context, loc storage.Locator) (storage.Artifact, error) {
	if err := g.check("stat", loc); err != nil {
		return storage.Artifact{}, err
	}
	info, err := os.Stat(string(loc))
	if err != nil {
		return storage.Artifact{}, storage.Classify("stat", loc, err, storage.ErrNotFound)
	}
	return storage.Artifact{Name: info.Name(), Locator: loc, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open opens the artifact at loc.
func (g *DirectoryGrant) Open(_ context.Context, loc storage.Locator) (io.ReadCloser, error) {
	if err := g.check("open", loc); err != nil {
		return nil, err
	}
	f, err := os.Open(string(loc))
	if err != nil {
		return nil, storage.Classify("open", loc, err, storage.ErrNotFound)
	}
	return f, nil
}

// Remove deletes the artifact at loc. Missing artifacts are ignored.
func (g *DirectoryGrant) Remove(_ context.Context, loc storage.Locator) error {
	if err := g.check("remove", loc); err != nil {
		return err
	}
	if err := os.Remove(string(loc)); err != nil && !os.IsNotExist(err) {
		return storage.Classify("remove", loc, err, storage.ErrWriteFailed)
	}
	return nil
}

// List returns the regular, non-hidden files directly inside the directory.
func (g *DirectoryGrant) List(_ context.Context) ([]storage.Artifact, error) {
	if err := g.checkRoot("list"); err != nil {
		return nil, err
	}
	entries, err := localfs.ListDirectory(g.root, localfs.ListOptions{FilesOnly: true})
	if err != nil {
		return nil, storage.Classify("list", storage.Locator(g.root), err, storage.ErrNotFound)
	}
	out := make([]storage.Artifact, 0, len(entries))
	for _, e := range entries {
		out = append(out, storage.Artifact{
			Name:    e.Name,
			Locator: g.Locate(e.Name),
			Size:    e.Size,
			ModTime: e.ModTime,
		})
	}
	return out, nil
}
