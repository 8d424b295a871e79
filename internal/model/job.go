package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job has been created and waits for stage 1.
	JobStatusPending JobStatus = "pending"
	// JobStatusStage1Running indicates the spec and diagrams are being generated.
	JobStatusStage1Running JobStatus = "stage1_running"
	// JobStatusAwaitingConfirmation indicates the diagrams wait for the user decision.
	JobStatusAwaitingConfirmation JobStatus = "awaiting_confirmation"
	// JobStatusConfirmed is kept for compatibility, nothing in the orchestrator sets it.
	JobStatusConfirmed JobStatus = "confirmed"
	// JobStatusStage2Running indicates the code and documentation are being generated.
	JobStatusStage2Running JobStatus = "stage2_running"
	// JobStatusCompleted indicates all the artifacts are ready.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed or was rejected.
	JobStatusFailed JobStatus = "failed"
)

// JobStatuses are all the known job statuses.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusStage1Running,
	JobStatusAwaitingConfirmation,
	JobStatusConfirmed,
	JobStatusStage2Running,
	JobStatusCompleted,
	JobStatusFailed,
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:              {JobStatusStage1Running},
	JobStatusStage1Running:        {JobStatusAwaitingConfirmation, JobStatusFailed},
	JobStatusAwaitingConfirmation: {JobStatusStage2Running, JobStatusFailed},
	JobStatusStage2Running:        {JobStatusCompleted, JobStatusFailed},
}

// Valid returns true if the status is a known status.
func (s JobStatus) Valid() bool {
	for _, st := range JobStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no more stages can be scheduled for the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsRunning returns true if a stage task is active on the status.
func (s JobStatus) IsRunning() bool {
	return s == JobStatusStage1Running || s == JobStatusStage2Running
}

// CanTransition returns true if `from -> to` is an edge of the job status graph.
func CanTransition(from, to JobStatus) bool {
	for _, st := range jobTransitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

// Failure reasons stored in Job.Error.
const (
	FailureReasonRejected      = "rejected"
	FailureReasonEngineTimeout = "engine_timeout"
	FailureReasonEngineFailure = "engine_failure"
	FailureReasonInvalidSpec   = "invalid_spec"
	FailureReasonStoreFailure  = "store_failure"
	FailureReasonStalled       = "stalled"
	FailureReasonInterrupted   = "interrupted"
	FailureReasonUnschedulable = "unschedulable"
	// FailureReasonLedgerUnavailable is set when a stage result couldn't be recorded.
	FailureReasonLedgerUnavailable = "ledger_unavailable"
)

// Provider is the target cloud provider of a job.
type Provider string

const (
	ProviderGCP   Provider = "gcp"
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

// Providers are the supported cloud providers.
var Providers = []Provider{ProviderGCP, ProviderAWS, ProviderAzure}

// Valid returns true if the provider is supported.
func (p Provider) Valid() bool {
	for _, pv := range Providers {
		if p == pv {
			return true
		}
	}
	return false
}

const (
	// MinPromptLength is the minimum number of characters of a job prompt.
	MinPromptLength = 10
	// MinProjectNameLength is the minimum number of characters of a project name.
	MinProjectNameLength = 3
)

// JobInput is the immutable request payload captured at job creation.
type JobInput struct {
	Prompt      string
	Provider    Provider
	ProjectName string
}

// Defaults sets the default values on the input.
func (i *JobInput) Defaults() {
	i.Prompt = strings.TrimSpace(i.Prompt)
	i.ProjectName = strings.TrimSpace(i.ProjectName)
	if i.Provider == "" {
		i.Provider = ProviderGCP
	}
}

// Validate validates the job input.
func (i JobInput) Validate() error {
	if utf8.RuneCountInString(i.Prompt) < MinPromptLength {
		return fmt.Errorf("prompt must have at least %d characters: %w", MinPromptLength, ErrNotValid)
	}
	if utf8.RuneCountInString(i.ProjectName) < MinProjectNameLength {
		return fmt.Errorf("project name must have at least %d characters: %w", MinProjectNameLength, ErrNotValid)
	}
	if !i.Provider.Valid() {
		return fmt.Errorf("unsupported cloud provider %q: %w", i.Provider, ErrNotValid)
	}
	return nil
}

// Locator is an opaque durable reference to a stored artifact.
type Locator string

// Job is a prompt to infrastructure conversion job.
type Job struct {
	ID          string
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Input       JobInput
	Progress    int
	CurrentStep string
	Message     string
	Error       string

	SpecLocator     Locator
	DiagramLocators []Locator
	CodeLocators    []Locator
	DocLocator      Locator

	// Version is incremented on every stored mutation.
	Version int64
	// Fence identifies the writer of the last status transition.
	Fence string
}

// JobPatch is a partial job update, nil fields are left untouched.
type JobPatch struct {
	Status      *JobStatus
	Progress    *int
	CurrentStep *string
	Message     *string
	Error       *string

	SpecLocator     *Locator
	DiagramLocators []Locator
	CodeLocators    []Locator
	DocLocator      *Locator

	// Fence is stored on status transitions so a writer can tell its own
	// transition apart from a concurrent one.
	Fence *string
	// IfVersion only applies a compare and update on this job version, 0 disables the check.
	IfVersion int64
}

// IsAdvisory returns true if the patch doesn't change the job status.
func (p JobPatch) IsAdvisory() bool { return p.Status == nil }

// ValidateTransition checks the patch only moves the job along the status graph.
func (p JobPatch) ValidateTransition(from JobStatus) error {
	if p.Status == nil {
		return nil
	}
	if !CanTransition(from, *p.Status) {
		return fmt.Errorf("invalid job status transition %s -> %s: %w", from, *p.Status, ErrNotValid)
	}
	return nil
}

// CheckPrecondition returns model.ErrPreconditionFailed if a compare and update
// expecting the `expected` status can't be applied on the job.
func (p JobPatch) CheckPrecondition(j Job, expected JobStatus) error {
	if j.Status != expected {
		return fmt.Errorf("job %s is %s, expected %s: %w", j.ID, j.Status, expected, ErrPreconditionFailed)
	}
	if p.IfVersion != 0 && j.Version != p.IfVersion {
		return fmt.Errorf("job %s is on version %d, expected %d: %w", j.ID, j.Version, p.IfVersion, ErrPreconditionFailed)
	}
	return nil
}

// Apply applies the patch on the job. Progress only increases on advisory patches,
// the current step is cleared on terminal statuses and the error is only kept on
// failed jobs.
func (p JobPatch) Apply(j *Job, now time.Time) {
	if p.Status != nil {
		j.Status = *p.Status
	}

	if p.Progress != nil {
		progress := min(max(*p.Progress, 0), 100)
		if !p.IsAdvisory() || progress > j.Progress {
			j.Progress = progress
		}
	}

	if p.CurrentStep != nil {
		j.CurrentStep = *p.CurrentStep
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.SpecLocator != nil {
		j.SpecLocator = *p.SpecLocator
	}
	if p.DiagramLocators != nil {
		j.DiagramLocators = append([]Locator{}, p.DiagramLocators...)
	}
	if p.CodeLocators != nil {
		j.CodeLocators = append([]Locator{}, p.CodeLocators...)
	}
	if p.DocLocator != nil {
		j.DocLocator = *p.DocLocator
	}
	if p.Fence != nil {
		j.Fence = *p.Fence
	}

	if j.Status.IsTerminal() {
		j.CurrentStep = ""
	}
	if j.Status != JobStatusFailed {
		j.Error = ""
	}

	now = now.UTC()
	if now.After(j.UpdatedAt) {
		j.UpdatedAt = now
	}
	j.Version++
}

// Copy returns a deep copy of the job.
func (j Job) Copy() Job {
	c := j
	if j.DiagramLocators != nil {
		c.DiagramLocators = append([]Locator{}, j.DiagramLocators...)
	}
	if j.CodeLocators != nil {
		c.CodeLocators = append([]Locator{}, j.CodeLocators...)
	}
	return c
}

// JobListOptions are the filters to list jobs.
type JobListOptions struct {
	// Statuses filters by any of the statuses, empty means all.
	Statuses []JobStatus
	// UpdatedBefore filters jobs not updated since the time, zero means no filter.
	UpdatedBefore time.Time
	// Limit limits the number of returned jobs, 0 means no limit.
	Limit int
}

// Matches returns true if the job matches the list options filters.
func (o JobListOptions) Matches(j Job) bool {
	if len(o.Statuses) > 0 {
		found := false
		for _, st := range o.Statuses {
			if j.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !o.UpdatedBefore.IsZero() && !j.UpdatedAt.Before(o.UpdatedBefore) {
		return false
	}

	return true
}
