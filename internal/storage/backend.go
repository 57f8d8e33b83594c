// Package storage implements the two storage destinations behind one
// capability interface: a sandboxed directory written with plain path I/O, and
// an externally granted location reached only through a grant token.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/mixtape/mixtape/internal/models"
)

// Locator identifies an artifact within a destination. For sandboxed storage
// it is an absolute path; granted providers use their own URI scheme.
type Locator string

// Artifact is one stored file.
type Artifact struct {
	Name    string
	Locator Locator
	Size    int64
	ModTime time.Time
}

// Entry converts the artifact into a registry entry.
func (a Artifact) Entry() models.DownloadEntry {
	return models.DownloadEntry{
		FileName:   a.Name,
		StorageRef: string(a.Locator),
		SizeBytes:  a.Size,
	}
}

// Backend is the capability set a transfer and the registry need from a
// destination. A Backend is bound to one destination for its lifetime.
//
// In-flight bytes always go to a local temp file first (TempPath). Commit turns
// a finished temp file into the artifact at loc: an atomic rename for the
// sandbox, a grant-mediated copy for external destinations.
type Backend interface {
	Destination() models.StorageDestination

	// ResolvePath validates fileName and returns where it would be stored.
	ResolvePath(fileName string) (Locator, error)
	Exists(ctx context.Context, loc Locator) (bool, error)
	Stat(ctx context.Context, loc Locator) (Artifact, error)
	Open(ctx context.Context, loc Locator) (io.ReadCloser, error)
	Write(ctx context.Context, loc Locator, r io.Reader) (int64, error)
	// Delete removes the artifact. Deleting something already gone succeeds.
	Delete(ctx context.Context, loc Locator) error
	// List returns completed artifacts only; temp and hidden files are skipped.
	List(ctx context.Context) ([]Artifact, error)

	// TempPath returns the local path where a session's bytes accumulate,
	// creating the parent directory if needed.
	TempPath(sessionID string) (string, error)
	Commit(ctx context.Context, tempPath string, loc Locator) error
	// DiscardTemp removes a temp or scratch file. Missing files are ignored.
	DiscardTemp(tempPath string) error
}

// Grant is the narrow API an external location exposes once the user has
// consented. It cannot append to an artifact: content is written in one piece.
type Grant interface {
	Label() string
	// Locate returns the locator name would have, without touching the provider.
	Locate(name string) Locator
	// NameOf is the inverse of Locate.
	NameOf(loc Locator) string
	CreateArtifact(ctx context.Context, name, mimeType string) (Locator, error)
	WriteArtifact(ctx context.Context, loc Locator, r io.Reader, size int64) error
	Stat(ctx context.Context, loc Locator) (Artifact, error)
	Open(ctx context.Context, loc Locator) (io.ReadCloser, error)
	Remove(ctx context.Context, loc Locator) error
	List(ctx context.Context) ([]Artifact, error)
}

// contextReader stops a copy as soon as ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// NewContextReader wraps r so reads fail with ctx.Err() once ctx is done.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}
