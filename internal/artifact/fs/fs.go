package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/moby/sys/atomicwriter"

	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

// StoreConfig is the configuration of the file system artifact store.
type StoreConfig struct {
	// Root is the directory where the artifacts are stored.
	Root string
	// BaseURL is the prefix of the returned locators.
	BaseURL string
	Logger  log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = artifact.DefaultBaseURL
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifact.FS"})
	return nil
}

// Store stores the artifacts as files in `{root}/{job_id}/{category}/{filename}`.
type Store struct {
	root    string
	baseURL string
	logger  log.Logger
}

// NewStore returns a new file system artifact store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("could not create artifacts directory: %w", err)
	}

	return &Store{
		root:    cfg.Root,
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
	}, nil
}

var _ artifact.Store = &Store{}

func (s *Store) Put(ctx context.Context, key model.ArtifactKey, content []byte) (model.Locator, error) {
	loc, err := artifact.LocatorFor(s.baseURL, key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("could not create artifact directory: %w: %w", model.ErrStoreFailure, err)
	}

	// Readers never see a partially written artifact.
	if err := atomicwriter.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("could not write artifact %s: %w: %w", key.Path(), model.ErrStoreFailure, err)
	}

	s.logger.Debugf("Stored artifact %s (%d bytes)", key.Path(), len(content))
	return loc, nil
}

func (s *Store) Get(ctx context.Context, loc model.Locator) ([]byte, error) {
	key, err := artifact.KeyFor(s.baseURL, loc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s: %w", key.Path(), model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not read artifact %s: %w: %w", key.Path(), model.ErrStoreFailure, err)
	}

	return data, nil
}

func (s *Store) List(ctx context.Context, jobID string, category model.ArtifactCategory) ([]model.Locator, error) {
	// Validate the job and category with a placeholder file name.
	if err := (model.ArtifactKey{JobID: jobID, Category: category, Filename: "x"}).Validate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, jobID, string(category)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Locator{}, nil
		}
		return nil, fmt.Errorf("could not list artifacts: %w: %w", model.ErrStoreFailure, err)
	}

	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	locs := make([]model.Locator, 0, len(names))
	for _, name := range names {
		loc, err := artifact.LocatorFor(s.baseURL, model.ArtifactKey{JobID: jobID, Category: category, Filename: name})
		if err != nil {
			// Not created by this store (e.g temporary files).
			continue
		}
		locs = append(locs, loc)
	}

	return locs, nil
}

func (s *Store) Locate(key model.ArtifactKey) (model.Locator, error) {
	return artifact.LocatorFor(s.baseURL, key)
}

func (s *Store) path(key model.ArtifactKey) string {
	return filepath.Join(s.root, key.JobID, string(key.Category), key.Filename)
}
