package model

import (
	"time"
)

// StepStatus represents the state of a stage step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusDone    StepStatus = "done"
	StepStatusFailed  StepStatus = "failed"
)

// Stage is one of the two major phases of a job.
type Stage string

const (
	// StageDesign generates the intermediate spec and the diagrams.
	StageDesign Stage = "design"
	// StageGenerate generates the infrastructure code and the documentation.
	StageGenerate Stage = "generate"
)

// Step represents a single sub-step of a job stage.
type Step struct {
	ID        string
	JobID     string
	Stage     Stage
	Sequence  int
	Name      string
	Status    StepStatus
	Error     string
	CreatedAt time.Time
}

// StepProgress represents the completion state of a stage.
type StepProgress struct {
	Done  int
	Total int
}
