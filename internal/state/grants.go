package state

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/models"
)

// ErrGrantNotFound is returned for a token that was never issued or was revoked.
var ErrGrantNotFound = errors.New("grant not found")

// GrantStore persists issued grant records keyed by token.
type GrantStore struct {
	path string
	mu   sync.Mutex
}

// NewGrantStore creates a store rooted at stateDir.
func NewGrantStore(stateDir string) *GrantStore {
	return &GrantStore{path: filepath.Join(stateDir, constants.GrantsFileName)}
}

func (s *GrantStore) load() (map[string]models.GrantRecord, error) {
	grants := make(map[string]models.GrantRecord)
	if _, err := readJSON(s.path, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// Get returns the grant for token.
func (s *GrantStore) Get(token string) (models.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return models.GrantRecord{}, err
	}
	g, ok := grants[token]
	if !ok {
		return models.GrantRecord{}, ErrGrantNotFound
	}
	return g, nil
}

// Put stores or replaces a grant.
func (s *GrantStore) Put(g models.GrantRecord) error {
	if g.Token == "" {
		return errors.New("grant token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return err
	}
	grants[g.Token] = g
	return writeJSONAtomic(s.path, grants)
}

// Delete revokes a grant. Revoking an unknown token succeeds.
func (s *GrantStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := grants[token]; !ok {
		return nil
	}
	delete(grants, token)
	return writeJSONAtomic(s.path, grants)
}

// List returns all grants, oldest first.
func (s *GrantStore) List() ([]models.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.GrantRecord, 0, len(grants))
	for _, g := range grants {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
