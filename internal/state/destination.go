package state

import (
	"path/filepath"
	"sync"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/models"
)

// DestinationStore persists the selected external destination. An absent
// record means the sandbox is active.
type DestinationStore struct {
	path string
	mu   sync.Mutex
}

// NewDestinationStore creates a store rooted at stateDir.
func NewDestinationStore(stateDir string) *DestinationStore {
	return &DestinationStore{path: filepath.Join(stateDir, constants.DestinationFileName)}
}

// Load returns the selected external destination, or nil for the sandbox default.
func (s *DestinationStore) Load() (*models.StorageDestination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d models.StorageDestination
	found, err := readJSON(s.path, &d)
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

// Save records an external destination as active.
func (s *DestinationStore) Save(d models.StorageDestination) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.path, d)
}

// Clear reverts to the sandbox default.
func (s *DestinationStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.path)
}
