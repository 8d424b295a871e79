package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/model"
)

// Store is an in-memory artifact store.
type Store struct {
	baseURL string
	files   map[model.ArtifactKey][]byte
	mu      sync.RWMutex
}

// NewStore returns a new memory artifact store, an empty base URL uses artifact.DefaultBaseURL.
func NewStore(baseURL string) *Store {
	if baseURL == "" {
		baseURL = artifact.DefaultBaseURL
	}
	return &Store{
		baseURL: baseURL,
		files:   map[model.ArtifactKey][]byte{},
	}
}

var _ artifact.Store = &Store{}

func (s *Store) Put(ctx context.Context, key model.ArtifactKey, content []byte) (model.Locator, error) {
	loc, err := artifact.LocatorFor(s.baseURL, key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = append([]byte{}, content...)

	return loc, nil
}

func (s *Store) Get(ctx context.Context, loc model.Locator) ([]byte, error) {
	key, err := artifact.KeyFor(s.baseURL, loc)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", key.Path(), model.ErrNotFound)
	}

	return append([]byte{}, data...), nil
}

func (s *Store) List(ctx context.Context, jobID string, category model.ArtifactCategory) ([]model.Locator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := []string{}
	for k := range s.files {
		if k.JobID == jobID && k.Category == category {
			names = append(names, k.Filename)
		}
	}
	sort.Strings(names)

	locs := make([]model.Locator, 0, len(names))
	for _, name := range names {
		loc, err := artifact.LocatorFor(s.baseURL, model.ArtifactKey{JobID: jobID, Category: category, Filename: name})
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}

	return locs, nil
}

func (s *Store) Locate(key model.ArtifactKey) (model.Locator, error) {
	return artifact.LocatorFor(s.baseURL, key)
}
