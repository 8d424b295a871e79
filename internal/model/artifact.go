package model

import (
	"fmt"
	"path"
	"strings"
)

// ArtifactCategory groups the artifacts of a job in the artifact store.
type ArtifactCategory string

const (
	ArtifactCategorySpec     ArtifactCategory = "spec"
	ArtifactCategoryDiagrams ArtifactCategory = "diagrams"
	ArtifactCategoryCode     ArtifactCategory = "code"
	ArtifactCategoryDocs     ArtifactCategory = "docs"
)

// Valid returns true if the category is a known category.
func (c ArtifactCategory) Valid() bool {
	switch c {
	case ArtifactCategorySpec, ArtifactCategoryDiagrams, ArtifactCategoryCode, ArtifactCategoryDocs:
		return true
	}
	return false
}

// ArtifactKey addresses an artifact in the store as `{job_id}/{category}/{filename}`.
type ArtifactKey struct {
	JobID    string
	Category ArtifactCategory
	Filename string
}

// Validate validates the artifact key.
func (k ArtifactKey) Validate() error {
	if k.JobID == "" || !isPathSegment(k.JobID) {
		return fmt.Errorf("invalid artifact job id %q: %w", k.JobID, ErrNotValid)
	}
	if !k.Category.Valid() {
		return fmt.Errorf("invalid artifact category %q: %w", k.Category, ErrNotValid)
	}
	if k.Filename == "" || !isPathSegment(k.Filename) {
		return fmt.Errorf("invalid artifact filename %q: %w", k.Filename, ErrNotValid)
	}
	return nil
}

// Path returns the relative path of the artifact.
func (k ArtifactKey) Path() string {
	return path.Join(k.JobID, string(k.Category), k.Filename)
}

// ParseArtifactPath parses a `{job_id}/{category}/{filename}` relative path.
func ParseArtifactPath(p string) (ArtifactKey, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 3 {
		return ArtifactKey{}, fmt.Errorf("invalid artifact path %q: %w", p, ErrNotValid)
	}

	k := ArtifactKey{JobID: parts[0], Category: ArtifactCategory(parts[1]), Filename: parts[2]}
	if err := k.Validate(); err != nil {
		return ArtifactKey{}, err
	}
	return k, nil
}

func isPathSegment(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// File is a generated artifact before being stored.
type File struct {
	Name    string
	Content []byte
}

// Artifact is a caller facing artifact listing entry.
type Artifact struct {
	Name string
	URL  string
	Type string
}

// FinalArtifacts are the artifacts of a completed job.
type FinalArtifacts struct {
	JobID            string
	CodeFiles        []Artifact
	DocumentationURL string
	Diagrams         []Artifact
}

// DefaultContentType is the content type of unknown file extensions.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".png":    "image/png",
	".svg":    "image/svg+xml",
	".jpg":    "image/jpeg",
	".jpeg":   "image/jpeg",
	".mmd":    "text/vnd.mermaid",
	".dot":    "text/vnd.graphviz",
	".tf":     "text/plain",
	".tfvars": "text/plain",
	".hcl":    "text/plain",
	".txt":    "text/plain",
	".md":     "text/markdown",
	".yaml":   "application/yaml",
	".yml":    "application/yaml",
	".json":   "application/json",
	".html":   "text/html",
	".pdf":    "application/pdf",
}

// ContentTypeFor returns the content type of a file based on its extension.
func ContentTypeFor(name string) string {
	ct, ok := contentTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		return DefaultContentType
	}
	return ct
}
