package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/infraware/internal/app/artifacts"
	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/status"
	artifactmemory "github.com/slok/infraware/internal/artifact/memory"
	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/engine/local"
	"github.com/slok/infraware/internal/httpapi"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/orchestrator"
	"github.com/slok/infraware/internal/storage/memory"
)

type syncScheduler struct{}

func (syncScheduler) Schedule(name string, task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	eng, err := local.NewEngine(local.EngineConfig{})
	require.NoError(t, err)
	return newTestHandlerWithEngine(t, eng)
}

func newTestHandlerWithEngine(t *testing.T, eng engine.Engine) http.Handler {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	store := artifactmemory.NewStore("")

	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:    repo,
		Steps:     repo,
		Store:     store,
		Engine:    eng,
		Scheduler: syncScheduler{},
	})
	require.NoError(t, err)

	createSvc, err := create.NewService(create.ServiceConfig{Ledger: repo, Starter: orch})
	require.NoError(t, err)
	statusSvc, err := status.NewService(status.ServiceConfig{Ledger: repo, Steps: repo})
	require.NoError(t, err)
	confirmSvc, err := confirm.NewService(confirm.ServiceConfig{Confirmer: orch})
	require.NoError(t, err)
	artifactSvc, err := artifacts.NewService(artifacts.ServiceConfig{Ledger: repo})
	require.NoError(t, err)

	h, err := httpapi.NewHandler(httpapi.HandlerConfig{
		CreateService:   createSvc,
		StatusService:   statusSvc,
		ConfirmService:  confirmSvc,
		ArtifactService: artifactSvc,
		ArtifactReader:  store,
		Version:         "v1.2.3",
		TimeNow:         func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return h
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func names(t *testing.T, v any) []string {
	t.Helper()

	items, ok := v.([]any)
	require.True(t, ok, "expected a list, got %T", v)
	var res []string
	for _, it := range items {
		res = append(res, it.(map[string]any)["name"].(string))
	}
	return res
}

func TestJobLifecycle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newTestHandler(t)

	// Create.
	code, resp := do(t, h, http.MethodPost, "/api/process", `{"prompt":"Create a VPC with a public subnet and a web server","cloud_provider":"gcp","project_name":"demo-project"}`)
	require.Equal(http.StatusAccepted, code)
	assert.Equal("pending", resp["status"])
	assert.Equal(orchestrator.MessageStage1Started, resp["message"])
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(jobID)

	// Final artifacts are not available before completion.
	code, resp = do(t, h, http.MethodGet, "/api/generate/"+jobID, "")
	assert.Equal(http.StatusConflict, code)
	assert.Equal(httpapi.CodePreconditionFailed, resp["code"])

	// Stage 1 finished.
	code, resp = do(t, h, http.MethodGet, "/api/status/"+jobID, "")
	require.Equal(http.StatusOK, code)
	assert.Equal("awaiting_confirmation", resp["status"])
	assert.Equal(float64(70), resp["progress"])
	assert.Equal(orchestrator.MessageAwaiting, resp["current_step"])
	assert.Len(resp["steps"], 5)

	code, resp = do(t, h, http.MethodGet, "/api/diagrams/"+jobID, "")
	require.Equal(http.StatusOK, code)
	assert.Equal(jobID, resp["job_id"])
	assert.Equal([]string{"architecture.mmd", "architecture.dot"}, names(t, resp["diagrams"]))

	// Confirm.
	code, resp = do(t, h, http.MethodPost, "/api/confirm/"+jobID, `{"confirmed":true}`)
	require.Equal(http.StatusOK, code)
	assert.Equal("stage2_running", resp["status"])

	code, resp = do(t, h, http.MethodPost, "/api/confirm/"+jobID, `{"confirmed":true}`)
	assert.Equal(http.StatusConflict, code)
	assert.Equal(httpapi.CodePreconditionFailed, resp["code"])

	// Completed.
	code, resp = do(t, h, http.MethodGet, "/api/status/"+jobID, "")
	require.Equal(http.StatusOK, code)
	assert.Equal("completed", resp["status"])
	assert.Equal(float64(100), resp["progress"])

	code, resp = do(t, h, http.MethodGet, "/api/generate/"+jobID, "")
	require.Equal(http.StatusOK, code)
	assert.Equal([]string{"providers.tf", "variables.tf", "main.tf", "outputs.tf"}, names(t, resp["code_files"]))
	assert.Equal([]string{"architecture.mmd", "architecture.dot"}, names(t, resp["diagrams"]))
	docURL, _ := resp["documentation_url"].(string)
	assert.Equal(fmt.Sprintf("/api/static/%s/docs/README.md", jobID), docURL)

	// Artifact contents.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, docURL, nil))
	require.Equal(http.StatusOK, rec.Code)
	assert.Equal("text/markdown", rec.Header().Get("Content-Type"))
	assert.Contains(rec.Body.String(), "demo-project")
}

// brokenDocsEngine renders everything but the documentation.
type brokenDocsEngine struct{ engine.Engine }

func (brokenDocsEngine) RenderDocs(ctx context.Context, spec []byte) (*model.File, error) {
	return nil, errors.New("docs renderer crashed")
}

func TestStaticArtifactsFollowJobStatus(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng, err := local.NewEngine(local.EngineConfig{})
	require.NoError(err)
	h := newTestHandlerWithEngine(t, brokenDocsEngine{Engine: eng})

	code, resp := do(t, h, http.MethodPost, "/api/process", `{"prompt":"Create a VPC with a public subnet and a web server","cloud_provider":"gcp","project_name":"demo-project"}`)
	require.Equal(http.StatusAccepted, code)
	jobID, _ := resp["job_id"].(string)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	// Diagrams are served while awaiting confirmation, code is not.
	assert.Equal(http.StatusOK, get("/api/static/"+jobID+"/diagrams/architecture.mmd"))
	assert.Equal(http.StatusNotFound, get("/api/static/"+jobID+"/diagrams/unknown.mmd"))

	code, _ = do(t, h, http.MethodPost, "/api/confirm/"+jobID, `{"confirmed":true}`)
	require.Equal(http.StatusOK, code)

	code, resp = do(t, h, http.MethodGet, "/api/status/"+jobID, "")
	require.Equal(http.StatusOK, code)
	require.Equal("failed", resp["status"])

	// The code stored before the docs failed is not reachable.
	code, resp = do(t, h, http.MethodGet, "/api/static/"+jobID+"/code/main.tf", "")
	assert.Equal(http.StatusConflict, code)
	assert.Equal(httpapi.CodePreconditionFailed, resp["code"])
	assert.Equal(http.StatusConflict, get("/api/static/"+jobID+"/diagrams/architecture.mmd"))
}

func TestJobRejection(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newTestHandler(t)

	_, resp := do(t, h, http.MethodPost, "/api/process", `{"prompt":"Create a VPC with a public subnet and a web server","project_name":"demo-project"}`)
	jobID := resp["job_id"].(string)

	code, resp := do(t, h, http.MethodPost, "/api/confirm/"+jobID, `{"confirmed":false,"feedback":"Too large"}`)
	require.Equal(http.StatusOK, code)
	assert.Equal("failed", resp["status"])
	assert.Equal("rejected", resp["error"])
	assert.Equal("Too large", resp["message"])

	code, resp = do(t, h, http.MethodGet, "/api/diagrams/"+jobID, "")
	assert.Equal(http.StatusConflict, code)
	assert.Contains(resp["error"], "failed")
}

func TestHandlerErrors(t *testing.T) {
	tests := map[string]struct {
		method  string
		path    string
		body    string
		expCode int
		expErr  string
	}{
		"A short prompt should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/process",
			body:    `{"prompt":"VPC","cloud_provider":"gcp","project_name":"demo-project"}`,
			expCode: http.StatusBadRequest,
			expErr:  httpapi.CodeValidation,
		},
		"An unknown provider should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/process",
			body:    `{"prompt":"Create a VPC with a public subnet","cloud_provider":"oracle","project_name":"demo-project"}`,
			expCode: http.StatusBadRequest,
			expErr:  httpapi.CodeValidation,
		},
		"A malformed body should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/process",
			body:    `{"prompt":`,
			expCode: http.StatusBadRequest,
			expErr:  httpapi.CodeValidation,
		},
		"A confirmation without decision should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/confirm/job-1",
			body:    `{"feedback":"ok"}`,
			expCode: http.StatusBadRequest,
			expErr:  httpapi.CodeValidation,
		},
		"A missing job status should be not found.": {
			method:  http.MethodGet,
			path:    "/api/status/missing",
			expCode: http.StatusNotFound,
			expErr:  httpapi.CodeNotFound,
		},
		"Missing job diagrams should be not found.": {
			method:  http.MethodGet,
			path:    "/api/diagrams/missing",
			expCode: http.StatusNotFound,
			expErr:  httpapi.CodeNotFound,
		},
		"Confirming a missing job should be not found.": {
			method:  http.MethodPost,
			path:    "/api/confirm/missing",
			body:    `{"confirmed":true}`,
			expCode: http.StatusNotFound,
			expErr:  httpapi.CodeNotFound,
		},
		"A missing artifact should be not found.": {
			method:  http.MethodGet,
			path:    "/api/static/missing/code/main.tf",
			expCode: http.StatusNotFound,
			expErr:  httpapi.CodeNotFound,
		},
		"An invalid artifact path should be a validation error.": {
			method:  http.MethodGet,
			path:    "/api/static/missing/secrets/main.tf",
			expCode: http.StatusBadRequest,
			expErr:  httpapi.CodeValidation,
		},
		"An unknown route should be not found.": {
			method:  http.MethodGet,
			path:    "/api/unknown",
			expCode: http.StatusNotFound,
			expErr:  httpapi.CodeNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h := newTestHandler(t)

			code, resp := do(t, h, test.method, test.path, test.body)
			assert.Equal(t, test.expCode, code)
			assert.Equal(t, test.expErr, resp["code"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

type failingStatus struct{ err error }

func (f failingStatus) Run(ctx context.Context, req status.Request) (*status.Result, error) {
	return nil, f.err
}

func TestHandlerInfraErrorsHideDetails(t *testing.T) {
	tests := map[string]struct {
		err       error
		expStatus int
		expCode   string
	}{
		"Ledger failures should be unavailable.": {
			err:       fmt.Errorf("dial tcp 10.0.0.3:5432: %w", model.ErrLedgerUnavailable),
			expStatus: http.StatusServiceUnavailable,
			expCode:   httpapi.CodeLedgerUnavailable,
		},
		"Store failures should be a bad gateway.": {
			err:       fmt.Errorf("open /var/lib/infraware/x: %w", model.ErrStoreFailure),
			expStatus: http.StatusBadGateway,
			expCode:   httpapi.CodeStoreFailure,
		},
		"Engine failures should be a bad gateway.": {
			err:       fmt.Errorf("upstream 10.0.0.3: %w", model.ErrEngineFailure),
			expStatus: http.StatusBadGateway,
			expCode:   httpapi.CodeEngineFailure,
		},
		"Unknown errors should be internal.": {
			err:       fmt.Errorf("nil pointer at 10.0.0.3"),
			expStatus: http.StatusInternalServerError,
			expCode:   httpapi.CodeInternal,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h, err := httpapi.NewHandler(httpapi.HandlerConfig{
				CreateService:   &create.Service{},
				StatusService:   failingStatus{err: test.err},
				ConfirmService:  &confirm.Service{},
				ArtifactService: &artifacts.Service{},
			})
			require.NoError(t, err)

			code, resp := do(t, h, http.MethodGet, "/api/status/job-1", "")
			assert.Equal(t, test.expStatus, code)
			assert.Equal(t, test.expCode, resp["code"])
			assert.NotContains(t, resp["error"], "10.0.0.3")
		})
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"/", "/health"} {
		code, resp := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]any{
			"status":    "healthy",
			"version":   "v1.2.3",
			"timestamp": "2026-03-10T09:00:00Z",
		}, resp)
	}
}

func TestNewHandler(t *testing.T) {
	_, err := httpapi.NewHandler(httpapi.HandlerConfig{})
	assert.Error(t, err)
}
