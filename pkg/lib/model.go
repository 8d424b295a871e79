package lib

import (
	"time"

	"github.com/slok/infraware/internal/model"
)

// LedgerType identifies the job ledger backend.
type LedgerType string

const (
	// LedgerSQLite stores the jobs in a local SQLite database.
	LedgerSQLite LedgerType = "sqlite"
	// LedgerPostgres stores the jobs in Postgres, shared by many processes.
	LedgerPostgres LedgerType = "postgres"
	// LedgerMemory keeps the jobs in memory, they are lost on [Client.Close].
	LedgerMemory LedgerType = "memory"
)

// ArtifactStoreType identifies the artifact store backend.
type ArtifactStoreType string

const (
	// ArtifactStoreFS stores the artifacts on the local file system.
	ArtifactStoreFS ArtifactStoreType = "fs"
	// ArtifactStoreMemory keeps the artifacts in memory.
	ArtifactStoreMemory ArtifactStoreType = "memory"
)

// EngineType identifies the generation engine implementation.
type EngineType string

const (
	// EngineLocal renders the artifacts from built-in templates, no network needed.
	EngineLocal EngineType = "local"
	// EngineRemote calls an HTTP generation service.
	EngineRemote EngineType = "remote"
)

// JobStatus represents the lifecycle state of a job.
//
// The lifecycle is:
//
//	pending -> stage1_running -> awaiting_confirmation -> stage2_running -> completed
//
// Any running or awaiting job can move to failed, a rejected job is failed too.
type JobStatus string

const (
	JobStatusPending              JobStatus = "pending"
	JobStatusStage1Running        JobStatus = "stage1_running"
	JobStatusAwaitingConfirmation JobStatus = "awaiting_confirmation"
	JobStatusConfirmed            JobStatus = "confirmed"
	JobStatusStage2Running        JobStatus = "stage2_running"
	JobStatusCompleted            JobStatus = "completed"
	JobStatusFailed               JobStatus = "failed"
)

// IsTerminal returns true if the job will not change anymore.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Provider is the target cloud provider of a job.
type Provider string

const (
	ProviderGCP   Provider = "gcp"
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

// Job represents a job returned by the SDK.
//
// This is a read-only snapshot of the job at the time of the API call.
// Use [Client.GetJob] to get the latest state.
type Job struct {
	// ID is the unique identifier assigned at creation.
	ID string
	// Status is the current lifecycle state.
	Status JobStatus
	// Prompt is the natural language infrastructure description.
	Prompt string
	// Provider is the target cloud provider.
	Provider Provider
	// ProjectName is the project the infrastructure is generated for.
	ProjectName string
	// Progress goes from 0 to 100.
	Progress int
	// CurrentStep is the running step name, empty when nothing runs.
	CurrentStep string
	// Message is the human readable description of the last change.
	Message string
	// Error is the failure reason of failed jobs, e.g. "rejected" or "engine_timeout".
	Error string
	// Steps are the stage steps of the job, only set by [Client.GetJob].
	Steps     []Step
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Step is a sub step of a job stage.
type Step struct {
	// Stage is "design" for the spec and diagrams and "generate" for the code and docs.
	Stage  string
	Name   string
	Status string
	Error  string
}

// Artifact is a generated file of a job.
type Artifact struct {
	Name string
	// URL is the durable locator of the artifact, read it with [Client.ReadArtifact].
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

// CreateJobOpts are the options to create a job.
type CreateJobOpts struct {
	// Prompt must have at least 10 characters.
	Prompt string
	// Provider defaults to [ProviderGCP].
	Provider Provider
	// ProjectName must have at least 3 characters.
	ProjectName string
	// Deferred leaves the job pending instead of starting the first stage,
	// a later [Client.Recover] starts it.
	Deferred bool
}

// ListJobsOpts are the options to list jobs.
type ListJobsOpts struct {
	// Statuses filters the jobs by status, empty returns all.
	Statuses []JobStatus
	// Limit is the maximum number of jobs returned, 0 means no limit.
	Limit int
}

// RecoverResult is the outcome of [Client.Recover].
type RecoverResult struct {
	// Started are the IDs of the pending jobs whose first stage was started.
	Started []string
	// Stalled are the IDs of the running jobs that were marked as failed.
	Stalled []string
}

// --- Conversion helpers ---

func fromInternalJob(j model.Job, steps []model.Step) Job {
	job := Job{
		ID:          j.ID,
		Status:      JobStatus(j.Status),
		Prompt:      j.Input.Prompt,
		Provider:    Provider(j.Input.Provider),
		ProjectName: j.Input.ProjectName,
		Progress:    j.Progress,
		CurrentStep: j.CurrentStep,
		Message:     j.Message,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}

	for _, s := range steps {
		job.Steps = append(job.Steps, Step{
			Stage:  string(s.Stage),
			Name:   s.Name,
			Status: string(s.Status),
			Error:  s.Error,
		})
	}

	return job
}

func fromInternalJobList(js []model.Job) []Job {
	result := make([]Job, len(js))
	for i, j := range js {
		result[i] = fromInternalJob(j, nil)
	}
	return result
}

func fromInternalArtifacts(as []model.Artifact) []Artifact {
	result := make([]Artifact, len(as))
	for i, a := range as {
		result[i] = Artifact{Name: a.Name, URL: a.URL, Type: a.Type}
	}
	return result
}

func fromInternalFinalArtifacts(f model.FinalArtifacts) *FinalArtifacts {
	return &FinalArtifacts{
		JobID:            f.JobID,
		CodeFiles:        fromInternalArtifacts(f.CodeFiles),
		DocumentationURL: f.DocumentationURL,
		Diagrams:         fromInternalArtifacts(f.Diagrams),
	}
}

func toInternalStatuses(ss []JobStatus) []model.JobStatus {
	if len(ss) == 0 {
		return nil
	}
	result := make([]model.JobStatus, len(ss))
	for i, s := range ss {
		result[i] = model.JobStatus(s)
	}
	return result
}
