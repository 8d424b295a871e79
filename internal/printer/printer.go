package printer

import "github.com/slok/infraware/internal/model"

// Printer knows how to print job information in different formats.
type Printer interface {
	PrintJob(job model.Job) error
	PrintList(jobs []model.Job) error
	PrintStatus(job model.Job, steps []model.Step) error
	PrintDiagrams(jobID string, diagrams []model.Artifact) error
	PrintFinal(final model.FinalArtifacts) error
	PrintMessage(msg string) error
}
