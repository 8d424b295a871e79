package infraware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intinfraware "github.com/slok/infraware/test/integration/infraware"
)

type jobResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	Progress int    `json:"progress"`
}

type artifactsResponse struct {
	Diagrams []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"diagrams"`
	CodeFiles []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"code_files"`
	DocumentationURL string `json:"documentation_url"`
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func waitStatus(ctx context.Context, t *testing.T, baseURL, jobID string, statuses ...string) jobResponse {
	t.Helper()

	var job jobResponse
	op := func() error {
		job = jobResponse{}
		doJSON(t, http.MethodGet, baseURL+"/api/status/"+jobID, nil, &job)
		for _, s := range statuses {
			if job.Status == s {
				return nil
			}
		}
		return fmt.Errorf("job %s is %s", jobID, job.Status)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(100*time.Millisecond), ctx)
	require.NoError(t, backoff.Retry(op, b))

	return job
}

func TestHTTPJobLifecycle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env := intinfraware.NewEnv(t, intinfraware.NewConfig(t))
	baseURL := env.Serve(ctx, t)

	var job jobResponse
	code := doJSON(t, http.MethodPost, baseURL+"/api/process", map[string]string{
		"prompt":         "Create a VPC with a public subnet and a web server",
		"cloud_provider": "gcp",
		"project_name":   "demo-project",
	}, &job)
	require.Equal(http.StatusAccepted, code)
	require.NotEmpty(job.JobID)

	job = waitStatus(ctx, t, baseURL, job.JobID, "awaiting_confirmation", "failed")
	require.Equal("awaiting_confirmation", job.Status)
	assert.Equal(70, job.Progress)

	var arts artifactsResponse
	code = doJSON(t, http.MethodGet, baseURL+"/api/diagrams/"+job.JobID, nil, &arts)
	require.Equal(http.StatusOK, code)
	assert.Len(arts.Diagrams, 2)

	code = doJSON(t, http.MethodGet, baseURL+"/api/generate/"+job.JobID, nil, nil)
	assert.Equal(http.StatusConflict, code)

	code = doJSON(t, http.MethodPost, baseURL+"/api/confirm/"+job.JobID, map[string]any{"confirmed": true}, nil)
	require.Equal(http.StatusOK, code)

	job = waitStatus(ctx, t, baseURL, job.JobID, "completed", "failed")
	require.Equal("completed", job.Status)
	assert.Equal(100, job.Progress)

	arts = artifactsResponse{}
	code = doJSON(t, http.MethodGet, baseURL+"/api/generate/"+job.JobID, nil, &arts)
	require.Equal(http.StatusOK, code)
	assert.Len(arts.CodeFiles, 4)

	resp, err := http.Get(baseURL + arts.DocumentationURL)
	require.NoError(err)
	defer resp.Body.Close()
	readme, err := io.ReadAll(resp.Body)
	require.NoError(err)
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Contains(string(readme), "# demo-project")

	// The CLI sees the same ledger.
	var st jobResponse
	require.NoError(env.RunJSON(ctx, &st, "status", job.JobID))
	assert.Equal("completed", st.Status)
}

func TestServerRecoversDeferredJobs(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env := intinfraware.NewEnv(t, intinfraware.NewConfig(t))

	var job jobResponse
	err := env.RunJSON(ctx, &job, "create", "--prompt", "Create a bucket and a queue for async processing", "--project", "async-project", "--wait=false")
	require.NoError(err)
	require.Equal("pending", job.Status)

	baseURL := env.Serve(ctx, t, "--pending-grace", "10ms", "--recovery-interval", "100ms")

	job = waitStatus(ctx, t, baseURL, job.JobID, "awaiting_confirmation", "failed")
	require.Equal("awaiting_confirmation", job.Status)
}

func TestHTTPErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	env := intinfraware.NewEnv(t, intinfraware.NewConfig(t))
	baseURL := env.Serve(ctx, t)

	tests := map[string]struct {
		method  string
		path    string
		body    any
		expCode int
		expErr  string
	}{
		"A short prompt should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/process",
			body:    map[string]string{"prompt": "vpc", "project_name": "demo"},
			expCode: http.StatusBadRequest,
			expErr:  "validation_error",
		},
		"A missing job should not be found.": {
			method:  http.MethodGet,
			path:    "/api/status/missing",
			expCode: http.StatusNotFound,
			expErr:  "not_found",
		},
		"A decision without confirmed should be a validation error.": {
			method:  http.MethodPost,
			path:    "/api/confirm/missing",
			body:    map[string]string{"feedback": "nope"},
			expCode: http.StatusBadRequest,
			expErr:  "validation_error",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var res struct {
				Code string `json:"code"`
			}
			code := doJSON(t, test.method, baseURL+test.path, test.body, &res)
			assert.Equal(t, test.expCode, code)
			assert.Equal(t, test.expErr, res.Code)
		})
	}
}
