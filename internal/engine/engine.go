package engine

import (
	"context"

	"github.com/slok/infraware/internal/model"
)

//go:generate mockery --case underscore --output enginemock --outpkg enginemock --name Engine

// Engine is the generation engine, it converts a job prompt into the
// intermediate spec and renders the artifacts of each stage from it.
//
// Implementations must honor the context deadline, the orchestrator bounds
// every call with the configured engine timeout.
type Engine interface {
	// GenerateSpec returns the intermediate spec YAML of a job input.
	GenerateSpec(ctx context.Context, input model.JobInput) ([]byte, error)
	// RenderDiagrams returns the reviewable diagrams of a spec.
	RenderDiagrams(ctx context.Context, spec []byte) ([]model.File, error)
	// RenderCode returns the infrastructure code files of a spec.
	RenderCode(ctx context.Context, spec []byte) ([]model.File, error)
	// RenderDocs returns the documentation of a spec.
	RenderDocs(ctx context.Context, spec []byte) (*model.File, error)
}
