package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/infraware/internal/engine/remote"
	"github.com/slok/infraware/internal/model"
)

func newEngine(t *testing.T, h http.HandlerFunc) *remote.Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	e, err := remote.NewEngine(remote.EngineConfig{
		BaseURL: srv.URL + "/",
		Headers: map[string]string{"Authorization": "Bearer test"},
	})
	require.NoError(t, err)
	return e
}

func TestNewEngineConfig(t *testing.T) {
	_, err := remote.NewEngine(remote.EngineConfig{})
	assert.Error(t, err)
}

func TestEngineGenerateSpec(t *testing.T) {
	tests := map[string]struct {
		handler http.HandlerFunc
		expSpec string
		expErr  error
	}{
		"A successful response should return the spec": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				if r.URL.Path != "/v1/spec" || r.Header.Get("Authorization") != "Bearer test" || r.Header.Get("X-Request-ID") == "" ||
					body["prompt"] != "Create a VPC with a public subnet and a web server" ||
					body["cloud_provider"] != "gcp" || body["project_name"] != "demo-project" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				_, _ = w.Write([]byte(`{"spec": "project: demo-project\n"}`))
			},
			expSpec: "project: demo-project\n",
		},

		"An error status should fail": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": "model overloaded"}`))
			},
			expErr: model.ErrEngineFailure,
		},

		"An empty spec should fail": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			expErr: model.ErrEngineFailure,
		},

		"An invalid body should fail": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{`))
			},
			expErr: model.ErrEngineFailure,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, test.handler)

			spec, err := e.GenerateSpec(context.Background(), model.JobInput{
				Prompt:      "Create a VPC with a public subnet and a web server",
				Provider:    model.ProviderGCP,
				ProjectName: "demo-project",
			})
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr), "got: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expSpec, string(spec))
		})
	}
}

func TestEngineRender(t *testing.T) {
	mux := http.NewServeMux()
	files := func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"name": "a-" + r.URL.Path[len("/v1/"):], "content": []byte(body["spec"])},
			},
		})
	}
	mux.HandleFunc("POST /v1/diagrams", files)
	mux.HandleFunc("POST /v1/code", files)
	mux.HandleFunc("POST /v1/docs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{"name": "README.md", "content": []byte("# docs")},
		})
	})
	e := newEngine(t, mux.ServeHTTP)
	ctx := context.Background()

	diagrams, err := e.RenderDiagrams(ctx, []byte("spec"))
	require.NoError(t, err)
	assert.Equal(t, []model.File{{Name: "a-diagrams", Content: []byte("spec")}}, diagrams)

	code, err := e.RenderCode(ctx, []byte("spec"))
	require.NoError(t, err)
	assert.Equal(t, []model.File{{Name: "a-code", Content: []byte("spec")}}, code)

	doc, err := e.RenderDocs(ctx, []byte("spec"))
	require.NoError(t, err)
	assert.Equal(t, &model.File{Name: "README.md", Content: []byte("# docs")}, doc)
}

func TestEngineRenderDocsMissing(t *testing.T) {
	e := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"file": null}`))
	})

	_, err := e.RenderDocs(context.Background(), []byte("spec"))
	assert.True(t, errors.Is(err, model.ErrEngineFailure))
}

func TestEngineHonorsContextDeadline(t *testing.T) {
	e := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.RenderCode(ctx, []byte("spec"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got: %v", err)
	assert.True(t, errors.Is(err, model.ErrEngineFailure))
}
