package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/infraware/internal/model"
)

//go:generate mockery --case underscore --output artifactmock --outpkg artifactmock --name Store

// DefaultBaseURL is the locator prefix used when none is configured, it matches
// the path the HTTP API serves the artifact contents on.
const DefaultBaseURL = "/api/static"

// Store is the durable artifact store. Artifacts are addressed by
// `{job_id}/{category}/{filename}` and referenced by opaque locators.
type Store interface {
	// Put stores the content and returns its locator, existing artifacts are replaced.
	Put(ctx context.Context, key model.ArtifactKey, content []byte) (model.Locator, error)
	// Get returns the content of the artifact referenced by the locator.
	Get(ctx context.Context, loc model.Locator) ([]byte, error)
	// List returns the locators of the artifacts of a job category sorted by name.
	List(ctx context.Context, jobID string, category model.ArtifactCategory) ([]model.Locator, error)
	// Locate returns the locator of a key without checking the artifact exists.
	Locate(key model.ArtifactKey) (model.Locator, error)
}

// LocatorFor returns the locator of a key under a base URL.
func LocatorFor(baseURL string, key model.ArtifactKey) (model.Locator, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return model.Locator(strings.TrimRight(baseURL, "/") + "/" + key.Path()), nil
}

// KeyFor returns the key of a locator created with LocatorFor with the same base URL.
func KeyFor(baseURL string, loc model.Locator) (model.ArtifactKey, error) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	rest, ok := strings.CutPrefix(string(loc), prefix)
	if !ok {
		return model.ArtifactKey{}, fmt.Errorf("locator %q is not from this store: %w", loc, model.ErrNotValid)
	}
	return model.ParseArtifactPath(rest)
}
