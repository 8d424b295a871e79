package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage/postgres"
)

const envDSN = "INFRAWARE_TEST_POSTGRES_DSN"

func ptr[T any](v T) *T { return &v }

var testInput = model.JobInput{
	Prompt:      "Create a VPC with a public subnet and a web server",
	Provider:    model.ProviderGCP,
	ProjectName: "demo-project",
}

func newRepo(t *testing.T) *postgres.Repository {
	t.Helper()

	dsn := os.Getenv(envDSN)
	if dsn == "" {
		t.Skipf("Skipping Postgres tests, %s is not set", envDSN)
	}

	repo, err := postgres.NewRepository(context.Background(), postgres.RepositoryConfig{
		DSN:    dsn,
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// newJobID returns a unique ID so tests can share the database.
func newJobID() string { return uuid.NewString() }

func TestRepositoryJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	id := newJobID()

	job, err := repo.CreateJob(ctx, id, testInput)
	require.NoError(t, err)

	got, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *job, *got)

	_, err = repo.CreateJob(ctx, id, testInput)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	_, err = repo.CompareAndUpdateJob(ctx, id, model.JobStatusPending, model.JobPatch{
		Status:   ptr(model.JobStatusStage1Running),
		Progress: ptr(5),
	})
	require.NoError(t, err)

	_, err = repo.CompareAndUpdateJob(ctx, id, model.JobStatusPending, model.JobPatch{
		Status: ptr(model.JobStatusStage1Running),
	})
	assert.True(t, errors.Is(err, model.ErrPreconditionFailed))

	diagrams := []model.Locator{fmt.Sprintf("/api/static/%s/diagrams/architecture.mmd", id)}
	updated, err := repo.CompareAndUpdateJob(ctx, id, model.JobStatusStage1Running, model.JobPatch{
		Status:          ptr(model.JobStatusAwaitingConfirmation),
		Progress:        ptr(70),
		DiagramLocators: diagrams,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)

	got, err = repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, diagrams, got.DiagramLocators)
	assert.Equal(t, 70, got.Progress)

	_, err = repo.UpdateJob(ctx, id, model.JobPatch{Status: ptr(model.JobStatusFailed)})
	assert.True(t, errors.Is(err, model.ErrNotValid))

	_, err = repo.GetJob(ctx, newJobID())
	assert.True(t, errors.Is(err, model.ErrNotFound))

	jobs, err := repo.ListJobs(ctx, model.JobListOptions{Statuses: []model.JobStatus{model.JobStatusAwaitingConfirmation}})
	require.NoError(t, err)
	found := false
	for _, j := range jobs {
		found = found || j.ID == id
	}
	assert.True(t, found)
}

func TestRepositoryCompareAndUpdateConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	id := newJobID()

	_, err := repo.CreateJob(ctx, id, testInput)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CompareAndUpdateJob(ctx, id, model.JobStatusPending, model.JobPatch{
				Status: ptr(model.JobStatusStage1Running),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrPreconditionFailed), "got: %v", err)
	}
	assert.Equal(t, 1, success)
}

func TestRepositoryCompareAndUpdateFenceAndVersion(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	id := newJobID()

	_, err := repo.CreateJob(ctx, id, testInput)
	require.NoError(t, err)

	job, err := repo.CompareAndUpdateJob(ctx, id, model.JobStatusPending, model.JobPatch{
		Status: ptr(model.JobStatusStage1Running),
		Fence:  ptr("fence-1"),
	})
	require.NoError(t, err)
	listed := job.Version

	_, err = repo.UpdateJob(ctx, id, model.JobPatch{Progress: ptr(40)})
	require.NoError(t, err)

	_, err = repo.CompareAndUpdateJob(ctx, id, model.JobStatusStage1Running, model.JobPatch{
		Status:    ptr(model.JobStatusFailed),
		IfVersion: listed,
	})
	assert.True(t, errors.Is(err, model.ErrPreconditionFailed))

	job, err = repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStage1Running, job.Status)
	assert.Equal(t, "fence-1", job.Fence)
}

func TestRepositorySteps(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	id := newJobID()

	_, err := repo.CreateJob(ctx, id, testInput)
	require.NoError(t, err)

	require.NoError(t, repo.AddSteps(ctx, id, model.StageDesign, []string{"generate_spec", "validate_spec"}))
	require.NoError(t, repo.AddSteps(ctx, id, model.StageDesign, []string{"store_spec"}))

	s, err := repo.NextStep(ctx, id, model.StageDesign)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "generate_spec", s.Name)
	require.NoError(t, repo.CompleteStep(ctx, s.ID))

	p, err := repo.Progress(ctx, id, model.StageDesign)
	require.NoError(t, err)
	assert.Equal(t, &model.StepProgress{Done: 1, Total: 3}, p)

	steps, err := repo.ListSteps(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 3, steps[2].Sequence)

	require.NoError(t, repo.ClearStage(ctx, id, model.StageDesign))
	s, err = repo.NextStep(ctx, id, model.StageDesign)
	require.NoError(t, err)
	assert.Nil(t, s)
}
