// Package registry lists, reads and deletes the completed downloads at a storage
// destination. Entries are derived by listing the destination every time and
// are never stored separately.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/util/paths"
)

// ErrEntryNotFound is returned by Find when no entry matches.
var ErrEntryNotFound = errors.New("download not found")

// Backends opens storage backends.
type Backends interface {
	Active() (models.StorageDestination, error)
	Backend(ctx context.Context, dest models.StorageDestination) (storage.Backend, error)
}

// Registry enumerates completed artifacts.
type Registry struct {
	backends Backends
	bus      *events.EventBus
	logger   *logging.Logger
}

// New creates a registry. bus may be nil.
func New(backends Backends, bus *events.EventBus, logger *logging.Logger) *Registry {
	return &Registry{
		backends: backends,
		bus:      bus,
		logger:   logging.OrNop(logger).Component("registry"),
	}
}

// List returns the entries at the active destination sorted by file name.
func (r *Registry) List(ctx context.Context) ([]models.DownloadEntry, error) {
	dest, err := r.backends.Active()
	if err != nil {
		return nil, err
	}
	return r.ListAt(ctx, dest)
}

// ListAt returns the entries at dest sorted by file name. Only artifacts with
// the audio extension count as downloads.
func (r *Registry) ListAt(ctx context.Context, dest models.StorageDestination) ([]models.DownloadEntry, error) {
	backend, err := r.backends.Backend(ctx, dest)
	if err != nil {
		return nil, err
	}
	artifacts, err := backend.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.DownloadEntry, 0, len(artifacts))
	for _, a := range artifacts {
		if !paths.HasAudioExtension(a.Name) {
			continue
		}
		entries = append(entries, a.Entry())
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].FileName) < strings.ToLower(entries[j].FileName)
	})
	return entries, nil
}

// Find returns the entry whose file name or display name is name. The file
// name match is exact; the display name match ignores case.
func (r *Registry) Find(ctx context.Context, name string) (models.DownloadEntry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return models.DownloadEntry{}, err
	}
	for _, e := range entries {
		if e.FileName == name {
			return e, nil
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.DisplayName(), name) {
			return e, nil
		}
	}
	return models.DownloadEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

// Delete removes entry from the active destination. Deleting an entry that is
// already gone succeeds.
func (r *Registry) Delete(ctx context.Context, entry models.DownloadEntry) error {
	backend, err := r.activeBackend(ctx)
	if err != nil {
		return err
	}
	loc, err := r.locate(backend, entry)
	if err != nil {
		return err
	}
	if err := backend.Delete(ctx, loc); err != nil && !storage.IsNotFound(err) {
		return err
	}

	r.logger.Info().Str("file", entry.FileName).Str("locator", string(loc)).Msg("Download deleted")
	if r.bus != nil {
		r.bus.Publish(&events.ArtifactDeletedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventArtifactDeleted, Time: time.Now()},
			Entry:     entry,
		})
	}
	return nil
}

// Open returns the content of entry at the active destination. The caller
// closes the reader.
func (r *Registry) Open(ctx context.Context, entry models.DownloadEntry) (io.ReadCloser, error) {
	backend, err := r.activeBackend(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := r.locate(backend, entry)
	if err != nil {
		return nil, err
	}
	return backend.Open(ctx, loc)
}

func (r *Registry) locate(backend storage.Backend, entry models.DownloadEntry) (storage.Locator, error) {
	if entry.StorageRef != "" {
		return storage.Locator(entry.StorageRef), nil
	}
	return backend.ResolvePath(entry.FileName)
}

func (r *Registry) activeBackend(ctx context.Context) (storage.Backend, error) {
	dest, err := r.backends.Active()
	if err != nil {
		return nil, err
	}
	return r.backends.Backend(ctx, dest)
}
