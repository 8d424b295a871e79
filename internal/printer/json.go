package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/infraware/internal/model"
)

// JSONPrinter prints job information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

var _ Printer = &JSONPrinter{}

// jobOutput represents a job summary.
type jobOutput struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// listItem represents a job in the list output (subset of fields).
type listItem struct {
	JobID       string    `json:"job_id"`
	ProjectName string    `json:"project_name"`
	Provider    string    `json:"cloud_provider"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
}

// statusOutput represents the full job status output.
type statusOutput struct {
	jobOutput
	ProjectName string       `json:"project_name"`
	Provider    string       `json:"cloud_provider"`
	Prompt      string       `json:"prompt"`
	Progress    int          `json:"progress"`
	CurrentStep string       `json:"current_step,omitempty"`
	Steps       []stepOutput `json:"steps,omitempty"`
}

type stepOutput struct {
	Stage  string `json:"stage"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type artifactOutput struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type diagramsOutput struct {
	JobID    string           `json:"job_id"`
	Diagrams []artifactOutput `json:"diagrams"`
}

type finalOutput struct {
	JobID            string           `json:"job_id"`
	CodeFiles        []artifactOutput `json:"code_files"`
	DocumentationURL string           `json:"documentation_url"`
	Diagrams         []artifactOutput `json:"diagrams"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintJob prints a job summary in JSON format.
func (j *JSONPrinter) PrintJob(job model.Job) error {
	return j.encode(mapJob(job))
}

// PrintList prints jobs in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(jobs []model.Job) error {
	items := make([]listItem, len(jobs))
	for i, job := range jobs {
		items[i] = listItem{
			JobID:       job.ID,
			ProjectName: job.Input.ProjectName,
			Provider:    string(job.Input.Provider),
			Status:      string(job.Status),
			Progress:    job.Progress,
			CreatedAt:   job.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintStatus prints detailed job status in JSON format.
func (j *JSONPrinter) PrintStatus(job model.Job, steps []model.Step) error {
	output := statusOutput{
		jobOutput:   mapJob(job),
		ProjectName: job.Input.ProjectName,
		Provider:    string(job.Input.Provider),
		Prompt:      job.Input.Prompt,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
	}
	for _, st := range steps {
		output.Steps = append(output.Steps, stepOutput{
			Stage:  string(st.Stage),
			Name:   st.Name,
			Status: string(st.Status),
			Error:  st.Error,
		})
	}

	return j.encode(output)
}

// PrintDiagrams prints the diagrams of a job in JSON format.
func (j *JSONPrinter) PrintDiagrams(jobID string, diagrams []model.Artifact) error {
	return j.encode(diagramsOutput{JobID: jobID, Diagrams: mapArtifacts(diagrams)})
}

// PrintFinal prints the final artifacts of a job in JSON format.
func (j *JSONPrinter) PrintFinal(final model.FinalArtifacts) error {
	return j.encode(finalOutput{
		JobID:            final.JobID,
		CodeFiles:        mapArtifacts(final.CodeFiles),
		DocumentationURL: final.DocumentationURL,
		Diagrams:         mapArtifacts(final.Diagrams),
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mapJob(job model.Job) jobOutput {
	return jobOutput{
		JobID:     job.ID,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.UTC(),
		UpdatedAt: job.UpdatedAt.UTC(),
		Message:   job.Message,
		Error:     job.Error,
	}
}

func mapArtifacts(arts []model.Artifact) []artifactOutput {
	out := make([]artifactOutput, 0, len(arts))
	for _, a := range arts {
		out = append(out, artifactOutput{Name: a.Name, URL: a.URL, Type: a.Type})
	}
	return out
}
