package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

// EngineConfig is the configuration for the remote engine.
type EngineConfig struct {
	// BaseURL is the generation service URL, e.g. `http://127.0.0.1:9090`.
	BaseURL    string
	HTTPClient *http.Client
	// Headers are set on every request, e.g. authorization.
	Headers map[string]string
	Logger  log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.Remote"})
	return nil
}

// Engine delegates the generation to an external service over JSON HTTP.
// The call timeouts come from the context.
type Engine struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	logger  log.Logger
}

// NewEngine creates a new remote engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
		headers: cfg.Headers,
		logger:  cfg.Logger,
	}, nil
}

var _ engine.Engine = &Engine{}

type specRequest struct {
	Prompt        string `json:"prompt"`
	CloudProvider string `json:"cloud_provider"`
	ProjectName   string `json:"project_name"`
}

type specResponse struct {
	Spec string `json:"spec"`
}

type renderRequest struct {
	Spec string `json:"spec"`
}

// fileJSON content is base64 encoded by encoding/json.
type fileJSON struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

type filesResponse struct {
	Files []fileJSON `json:"files"`
}

type fileResponse struct {
	File *fileJSON `json:"file"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (e *Engine) GenerateSpec(ctx context.Context, input model.JobInput) ([]byte, error) {
	var resp specResponse
	err := e.post(ctx, "/v1/spec", specRequest{
		Prompt:        input.Prompt,
		CloudProvider: string(input.Provider),
		ProjectName:   input.ProjectName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Spec == "" {
		return nil, fmt.Errorf("empty spec returned: %w", model.ErrEngineFailure)
	}

	return []byte(resp.Spec), nil
}

func (e *Engine) RenderDiagrams(ctx context.Context, spec []byte) ([]model.File, error) {
	return e.renderFiles(ctx, "/v1/diagrams", spec)
}

func (e *Engine) RenderCode(ctx context.Context, spec []byte) ([]model.File, error) {
	return e.renderFiles(ctx, "/v1/code", spec)
}

func (e *Engine) RenderDocs(ctx context.Context, spec []byte) (*model.File, error) {
	var resp fileResponse
	if err := e.post(ctx, "/v1/docs", renderRequest{Spec: string(spec)}, &resp); err != nil {
		return nil, err
	}
	if resp.File == nil || resp.File.Name == "" {
		return nil, fmt.Errorf("no documentation returned: %w", model.ErrEngineFailure)
	}

	return &model.File{Name: resp.File.Name, Content: resp.File.Content}, nil
}

func (e *Engine) renderFiles(ctx context.Context, path string, spec []byte) ([]model.File, error) {
	var resp filesResponse
	if err := e.post(ctx, path, renderRequest{Spec: string(spec)}, &resp); err != nil {
		return nil, err
	}

	files := make([]model.File, 0, len(resp.Files))
	for _, f := range resp.Files {
		if f.Name == "" {
			return nil, fmt.Errorf("file without name returned: %w", model.ErrEngineFailure)
		}
		files = append(files, model.File{Name: f.Name, Content: f.Content})
	}

	return files, nil
}

func (e *Engine) post(ctx context.Context, path string, body any, out any) error {
	reqID := uuid.NewString()
	logger := e.logger.WithValues(log.Kv{"req-id": reqID, "path": path})
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		logger.Warningf("Engine request failed after %s: %s", time.Since(start), err)
		return fmt.Errorf("engine request failed: %w: %w", model.ErrEngineFailure, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warningf("Could not close response body: %s", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w: %w", model.ErrEngineFailure, err)
	}
	logger.Debugf("Engine responded %d with %d bytes in %s", resp.StatusCode, len(raw), time.Since(start))

	if resp.StatusCode/100 != 2 {
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("engine returned status %d (%s): %w", resp.StatusCode, er.Error, model.ErrEngineFailure)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("could not decode response: %w: %w", model.ErrEngineFailure, err)
	}

	return nil
}
