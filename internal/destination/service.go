// Package destination tracks which storage destination is active and builds
// the backend for a destination, opening its grant when it is external.
package destination

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixtape/mixtape/internal/http"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/state"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/storage/grant"
)

// Options configures a Service.
type Options struct {
	SandboxRoot string
	ScratchDir  string
	StateDir    string
	Grant       grant.Options
	// CommitAttempts bounds grant writes; zero keeps the default policy.
	CommitAttempts int
	Logger         *logging.Logger
}

// Service selects the active destination and opens backends. It does not
// guard against switching during a transfer; the transfer manager does.
type Service struct {
	sandboxRoot string
	scratchDir  string
	store       *state.DestinationStore
	grants      *state.GrantStore
	grantOpts   grant.Options
	retry       http.RetryPolicy
	logger      *logging.Logger
}

// NewService creates a Service persisting under opts.StateDir.
func NewService(opts Options) *Service {
	logger := logging.OrNop(opts.Logger).Component("destination")
	if opts.Grant.Logger == nil {
		opts.Grant.Logger = logger
	}
	retry := http.DefaultRetryPolicy()
	if opts.CommitAttempts > 0 {
		retry.Attempts = opts.CommitAttempts
	}
	return &Service{
		sandboxRoot: opts.SandboxRoot,
		scratchDir:  opts.ScratchDir,
		store:       state.NewDestinationStore(opts.StateDir),
		grants:      state.NewGrantStore(opts.StateDir),
		grantOpts:   opts.Grant,
		retry:       retry,
		logger:      logger,
	}
}

// Sandbox returns the default sandboxed destination.
func (s *Service) Sandbox() models.StorageDestination {
	return models.SandboxedAt(s.sandboxRoot)
}

// Active returns the selected destination. With nothing persisted the
// sandbox is active.
func (s *Service) Active() (models.StorageDestination, error) {
	d, err := s.store.Load()
	if err != nil {
		return models.StorageDestination{}, fmt.Errorf("failed to load destination: %w", err)
	}
	if d == nil {
		return s.Sandbox(), nil
	}
	return *d, nil
}

// Backend opens a backend bound to dest. A granted destination whose grant is
// no longer on record fails with storage.ErrPermissionDenied.
func (s *Service) Backend(ctx context.Context, dest models.StorageDestination) (storage.Backend, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	if !dest.IsGranted() {
		return storage.NewSandboxBackend(dest.BasePath, s.logger), nil
	}

	rec, err := s.grants.Get(dest.GrantToken)
	if errors.Is(err, state.ErrGrantNotFound) {
		return nil, storage.NewError("open", "", storage.ErrPermissionDenied,
			fmt.Errorf("no grant on record for %s, grant access again", dest))
	}
	if err != nil {
		return nil, err
	}
	g, err := grant.Open(ctx, rec, s.grantOpts)
	if err != nil {
		return nil, storage.NewError("open", "", storage.ErrPermissionDenied, err)
	}
	b := storage.NewGrantedBackend(dest, g, s.scratchDir, s.logger)
	b.SetRetryPolicy(s.retry)
	return b, nil
}

// ActiveBackend opens the backend for the active destination.
func (s *Service) ActiveBackend(ctx context.Context) (storage.Backend, error) {
	dest, err := s.Active()
	if err != nil {
		return nil, err
	}
	return s.Backend(ctx, dest)
}

// Use makes dest the active destination. Selecting the sandbox clears the
// persisted record so the default applies.
func (s *Service) Use(dest models.StorageDestination) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	if !dest.IsGranted() {
		if dest.BasePath == s.sandboxRoot {
			return s.store.Clear()
		}
		return s.store.Save(dest)
	}
	if _, err := s.grants.Get(dest.GrantToken); err != nil {
		if errors.Is(err, state.ErrGrantNotFound) {
			return storage.NewError("use", "", storage.ErrPermissionDenied, err)
		}
		return err
	}
	s.logger.Info().Str("destination", dest.String()).Msg("Destination selected")
	return s.store.Save(dest)
}

// Grant records consent for rec after probing that the location is reachable
// and returns the destination it unlocks. Nothing is stored if the probe fails.
func (s *Service) Grant(ctx context.Context, rec models.GrantRecord) (models.StorageDestination, error) {
	g, err := grant.Open(ctx, rec, s.grantOpts)
	if err != nil {
		return models.StorageDestination{}, err
	}
	if err := grant.Probe(ctx, g); err != nil {
		return models.StorageDestination{}, fmt.Errorf("grant check failed for %s: %w", rec.Label, err)
	}
	if err := s.grants.Put(rec); err != nil {
		return models.StorageDestination{}, err
	}
	s.logger.Info().Str("provider", string(rec.Provider)).Str("label", rec.Label).Msg("Access granted")
	return models.GrantedTo(rec.Token, rec.Label), nil
}

// Revoke forgets a grant. If it backs the active destination the sandbox
// becomes active again.
func (s *Service) Revoke(token string) error {
	active, err := s.Active()
	if err != nil {
		return err
	}
	if err := s.grants.Delete(token); err != nil {
		return err
	}
	if active.IsGranted() && active.GrantToken == token {
		s.logger.Info().Msg("Active destination revoked, falling back to sandbox")
		return s.store.Clear()
	}
	return nil
}

// Grants lists the recorded grants, oldest first.
func (s *Service) Grants() ([]models.GrantRecord, error) {
	return s.grants.List()
}
