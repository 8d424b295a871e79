package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/infraware/internal/model"
)

// JobRequestYAMLRepository loads job requests from YAML files.
type JobRequestYAMLRepository struct {
	fs fs.FS
}

// NewJobRequestYAMLRepository creates a new YAML job request repository.
func NewJobRequestYAMLRepository(filesystem fs.FS) *JobRequestYAMLRepository {
	return &JobRequestYAMLRepository{fs: filesystem}
}

// GetJobInput loads a job request from a YAML file and returns a validated domain model.
func (r *JobRequestYAMLRepository) GetJobInput(ctx context.Context, path string) (model.JobInput, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.JobInput{}, fmt.Errorf("reading job request file: %w", err)
	}

	if ctx.Err() != nil {
		return model.JobInput{}, ctx.Err()
	}

	var req JobRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return model.JobInput{}, fmt.Errorf("parsing YAML: %w", err)
	}

	input := req.toModel()
	input.Defaults()
	if err := input.Validate(); err != nil {
		return model.JobInput{}, fmt.Errorf("invalid job request: %w", err)
	}

	return input, nil
}

// JobRequest represents the YAML structure of a job request.
//
//	prompt: |
//	  Create a VPC with a public subnet and a web server
//	cloud_provider: gcp
//	project_name: demo-project
type JobRequest struct {
	Prompt        string `yaml:"prompt"`
	CloudProvider string `yaml:"cloud_provider"`
	ProjectName   string `yaml:"project_name"`
}

func (r JobRequest) toModel() model.JobInput {
	return model.JobInput{
		Prompt:      r.Prompt,
		Provider:    model.Provider(r.CloudProvider),
		ProjectName: r.ProjectName,
	}
}
