package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/status"
	"github.com/slok/infraware/internal/model"
)

type processRequest struct {
	Prompt        string `json:"prompt"`
	CloudProvider string `json:"cloud_provider"`
	ProjectName   string `json:"project_name"`
}

type confirmRequest struct {
	Confirmed *bool  `json:"confirmed"`
	Feedback  string `json:"feedback"`
}

type jobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type stepResponse struct {
	Stage  string `json:"stage"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	jobResponse
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []stepResponse `json:"steps,omitempty"`
}

type artifactResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type diagramsResponse struct {
	JobID    string             `json:"job_id"`
	Diagrams []artifactResponse `json:"diagrams"`
}

type generateResponse struct {
	JobID            string             `json:"job_id"`
	CodeFiles        []artifactResponse `json:"code_files"`
	DocumentationURL string             `json:"documentation_url"`
	Diagrams         []artifactResponse `json:"diagrams"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (h handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: h.timeNow().UTC().Format(time.RFC3339),
	})
}

func (h handler) process(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", model.ErrNotValid)
	}

	job, err := h.create.Run(c.Request().Context(), create.Request{
		Input: model.JobInput{
			Prompt:      req.Prompt,
			Provider:    model.Provider(req.CloudProvider),
			ProjectName: req.ProjectName,
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, mapJob(*job))
}

func (h handler) jobStatus(c echo.Context) error {
	res, err := h.status.Run(c.Request().Context(), status.Request{JobID: c.Param("id")})
	if err != nil {
		return err
	}

	resp := statusResponse{
		jobResponse: mapJob(res.Job),
		Progress:    res.Job.Progress,
		CurrentStep: res.Job.CurrentStep,
	}
	for _, st := range res.Steps {
		resp.Steps = append(resp.Steps, stepResponse{
			Stage:  string(st.Stage),
			Name:   st.Name,
			Status: string(st.Status),
			Error:  st.Error,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func (h handler) diagrams(c echo.Context) error {
	id := c.Param("id")
	arts, err := h.artifacts.Diagrams(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, diagramsResponse{JobID: id, Diagrams: mapArtifacts(arts)})
}

func (h handler) confirmJob(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", model.ErrNotValid)
	}
	if req.Confirmed == nil {
		return fmt.Errorf("confirmed is required: %w", model.ErrNotValid)
	}

	job, err := h.confirm.Run(c.Request().Context(), confirm.Request{
		JobID:     c.Param("id"),
		Confirmed: *req.Confirmed,
		Feedback:  req.Feedback,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mapJob(*job))
}

func (h handler) generate(c echo.Context) error {
	final, err := h.artifacts.Final(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, generateResponse{
		JobID:            final.JobID,
		CodeFiles:        mapArtifacts(final.CodeFiles),
		DocumentationURL: final.DocumentationURL,
		Diagrams:         mapArtifacts(final.Diagrams),
	})
}

func (h handler) static(c echo.Context) error {
	key, err := model.ParseArtifactPath(c.Param("*"))
	if err != nil {
		return err
	}

	// Only the artifacts the job exposes are served.
	if _, err := h.artifacts.Artifact(c.Request().Context(), key); err != nil {
		return err
	}

	loc, err := h.reader.Locate(key)
	if err != nil {
		return err
	}

	data, err := h.reader.Get(c.Request().Context(), loc)
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, model.ContentTypeFor(key.Filename), data)
}

func mapJob(j model.Job) jobResponse {
	return jobResponse{
		JobID:     j.ID,
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Message:   j.Message,
		Error:     j.Error,
	}
}

func mapArtifacts(arts []model.Artifact) []artifactResponse {
	resp := make([]artifactResponse, 0, len(arts))
	for _, a := range arts {
		resp = append(resp, artifactResponse{Name: a.Name, URL: a.URL, Type: a.Type})
	}
	return resp
}
