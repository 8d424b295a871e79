package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/infraware/internal/model"
)

// TablePrinter prints job information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

var _ Printer = &TablePrinter{}

// PrintJob prints a job summary.
func (t *TablePrinter) PrintJob(job model.Job) error {
	fmt.Fprintf(t.writer, "Job:        %s\n", job.ID)
	fmt.Fprintf(t.writer, "Status:     %s\n", job.Status)
	if job.Message != "" {
		fmt.Fprintf(t.writer, "Message:    %s\n", job.Message)
	}
	if job.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", job.Error)
	}

	return nil
}

// PrintList prints jobs in a table format.
func (t *TablePrinter) PrintList(jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tPROJECT\tPROVIDER\tSTATUS\tPROGRESS\tCREATED")

	// Print rows
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n", j.ID, j.Input.ProjectName, j.Input.Provider, j.Status, j.Progress, TimeAgo(j.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed job status.
func (t *TablePrinter) PrintStatus(job model.Job, steps []model.Step) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", job.ID)
	fmt.Fprintf(t.writer, "Project:    %s\n", job.Input.ProjectName)
	fmt.Fprintf(t.writer, "Provider:   %s\n", job.Input.Provider)
	fmt.Fprintf(t.writer, "Status:     %s\n", job.Status)
	fmt.Fprintf(t.writer, "Progress:   %d%%\n", job.Progress)

	if job.CurrentStep != "" {
		fmt.Fprintf(t.writer, "Step:       %s\n", job.CurrentStep)
	}
	if job.Message != "" {
		fmt.Fprintf(t.writer, "Message:    %s\n", job.Message)
	}
	if job.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", job.Error)
	}

	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(job.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:    %s\n", FormatTimestamp(job.UpdatedAt))
	if job.Status.IsTerminal() {
		fmt.Fprintf(t.writer, "Took:       %s\n", HumanDuration(job.UpdatedAt.Sub(job.CreatedAt)))
	}

	if len(steps) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "STAGE\tSTEP\tSTATUS\tERROR")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Stage, s.Name, s.Status, s.Error)
	}

	return nil
}

// PrintDiagrams prints the diagrams of a job in a table format.
func (t *TablePrinter) PrintDiagrams(jobID string, diagrams []model.Artifact) error {
	if len(diagrams) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tTYPE\tURL")
	for _, a := range diagrams {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, a.Type, a.URL)
	}

	return nil
}

// PrintFinal prints the final artifacts of a job in a table format.
func (t *TablePrinter) PrintFinal(final model.FinalArtifacts) error {
	arts := make([]model.Artifact, 0, len(final.CodeFiles)+len(final.Diagrams)+1)
	kinds := make([]string, 0, cap(arts))
	for _, a := range final.CodeFiles {
		arts = append(arts, a)
		kinds = append(kinds, "code")
	}
	if final.DocumentationURL != "" {
		arts = append(arts, model.Artifact{Name: "documentation", URL: final.DocumentationURL, Type: model.ContentTypeFor(final.DocumentationURL)})
		kinds = append(kinds, "docs")
	}
	for _, a := range final.Diagrams {
		arts = append(arts, a)
		kinds = append(kinds, "diagram")
	}

	if len(arts) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "KIND\tNAME\tTYPE\tURL")
	for i, a := range arts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kinds[i], a.Name, a.Type, a.URL)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
