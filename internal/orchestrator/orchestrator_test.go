package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/artifact/artifactmock"
	artifactmemory "github.com/slok/infraware/internal/artifact/memory"
	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/engine/enginemock"
	"github.com/slok/infraware/internal/engine/local"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/orchestrator"
	"github.com/slok/infraware/internal/storage"
	"github.com/slok/infraware/internal/storage/memory"
)

var testInput = model.JobInput{
	Prompt:      "Create a VPC with a public subnet and a web server",
	Provider:    model.ProviderGCP,
	ProjectName: "demo-project",
}

const testSpec = `
project: demo-project
provider: gcp
resources:
  - {name: vpc, type: network}
  - {name: web_server, type: compute, depends_on: [vpc]}
`

// syncScheduler runs the tasks as soon as they are scheduled.
type syncScheduler struct{}

func (syncScheduler) Schedule(name string, task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

// manualScheduler keeps the tasks until they are run explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func(ctx context.Context)
	err   error
}

func (s *manualScheduler) Schedule(name string, task func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *manualScheduler) runAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, t := range tasks {
		t(context.Background())
	}
}

func (s *manualScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// flakyLedger makes compare and update calls fail as unavailable.
type flakyLedger struct {
	*memory.Repository

	mu    sync.Mutex
	calls int
	// fail decides, by call number, if the call fails and if the update is
	// applied before failing.
	fail func(call int) (fail, apply bool)
	// before runs before every call, if set.
	before func(call int)
}

func (l *flakyLedger) CompareAndUpdateJob(ctx context.Context, id string, expected model.JobStatus, patch model.JobPatch) (*model.Job, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	l.mu.Unlock()

	if l.before != nil {
		l.before(call)
	}
	fail, apply := l.fail(call)
	if !fail {
		return l.Repository.CompareAndUpdateJob(ctx, id, expected, patch)
	}
	if apply {
		_, _ = l.Repository.CompareAndUpdateJob(ctx, id, expected, patch)
	}
	return nil, fmt.Errorf("connection reset: %w", model.ErrLedgerUnavailable)
}

type testEnv struct {
	orch   *orchestrator.Orchestrator
	ledger *memory.Repository
	store  *artifactmemory.Store
}

type envOptions struct {
	engine        engine.Engine
	scheduler     orchestrator.Scheduler
	ledger        storage.JobRepository
	store         artifact.Store
	engineTimeout time.Duration
}

func newEnv(t *testing.T, opts envOptions) testEnv {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	store := artifactmemory.NewStore("")

	if opts.engine == nil {
		opts.engine, err = local.NewEngine(local.EngineConfig{})
		require.NoError(t, err)
	}
	if opts.scheduler == nil {
		opts.scheduler = syncScheduler{}
	}
	if opts.ledger == nil {
		opts.ledger = repo
	}
	if opts.store == nil {
		opts.store = store
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:        opts.ledger,
		Steps:         repo,
		Store:         opts.store,
		Engine:        opts.engine,
		Scheduler:     opts.scheduler,
		EngineTimeout: opts.engineTimeout,
		LedgerBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	return testEnv{orch: orch, ledger: repo, store: store}
}

// awaitingJob creates a job and runs its stage 1.
func (e testEnv) awaitingJob(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.ledger.CreateJob(ctx, id, testInput)
	require.NoError(t, err)
	_, err = e.orch.StartStage1(ctx, id)
	require.NoError(t, err)

	job, err := e.ledger.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusAwaitingConfirmation, job.Status)
}

func TestNewOrchestratorConfig(t *testing.T) {
	tests := map[string]struct {
		cfg orchestrator.Config
	}{
		"Missing ledger should fail": {
			cfg: orchestrator.Config{},
		},
		"A stall timeout lower than the engine timeout should fail": {
			cfg: orchestrator.Config{
				Ledger:        &memory.Repository{},
				Store:         artifactmemory.NewStore(""),
				Engine:        enginemock.NewMockEngine(t),
				Scheduler:     syncScheduler{},
				EngineTimeout: time.Minute,
				StallTimeout:  time.Second,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := orchestrator.New(test.cfg)
			assert.Error(t, err)
		})
	}
}

func TestStartStage1(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, envOptions{})

	job, err := env.ledger.CreateJob(ctx, "job-1", testInput)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	job, err = env.orch.StartStage1(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStage1Running, job.Status)
	assert.Equal(t, 5, job.Progress)

	job, err = env.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwaitingConfirmation, job.Status)
	assert.Equal(t, 70, job.Progress)
	assert.Equal(t, orchestrator.MessageDiagramsReady, job.Message)
	assert.Equal(t, orchestrator.MessageAwaiting, job.CurrentStep)
	assert.Empty(t, job.Error)
	assert.Equal(t, model.Locator("/api/static/job-1/spec/spec.yaml"), job.SpecLocator)
	assert.Equal(t, []model.Locator{
		"/api/static/job-1/diagrams/architecture.mmd",
		"/api/static/job-1/diagrams/architecture.dot",
	}, job.DiagramLocators)

	// The recorded diagrams are the stored ones.
	stored, err := env.store.List(ctx, "job-1", model.ArtifactCategoryDiagrams)
	require.NoError(t, err)
	assert.ElementsMatch(t, job.DiagramLocators, stored)

	steps, err := env.ledger.ListSteps(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, steps, 5)
	for _, s := range steps {
		assert.Equal(t, model.StepStatusDone, s.Status)
	}

	// Starting again is not possible.
	_, err = env.orch.StartStage1(ctx, "job-1")
	assert.True(t, errors.Is(err, model.ErrPreconditionFailed))
}

func TestStage1Failures(t *testing.T) {
	tests := map[string]struct {
		mock          func(m *enginemock.MockEngine)
		store         func(t *testing.T) artifact.Store
		expReason     string
		expFailedStep string
	}{
		"An engine error should fail the job": {
			mock: func(m *enginemock.MockEngine) {
				m.On("GenerateSpec", mock.Anything, testInput).Once().Return(nil, errors.New("boom"))
			},
			expReason:     model.FailureReasonEngineFailure,
			expFailedStep: "generate_spec",
		},

		"An engine timeout should fail the job": {
			mock: func(m *enginemock.MockEngine) {
				m.On("GenerateSpec", mock.Anything, testInput).Once().Return(func(ctx context.Context, _ model.JobInput) ([]byte, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				})
			},
			expReason:     model.FailureReasonEngineTimeout,
			expFailedStep: "generate_spec",
		},

		"An invalid spec should fail the job": {
			mock: func(m *enginemock.MockEngine) {
				m.On("GenerateSpec", mock.Anything, testInput).Once().Return([]byte("project: demo-project\n"), nil)
			},
			expReason:     model.FailureReasonInvalidSpec,
			expFailedStep: "validate_spec",
		},

		"Missing diagrams should fail the job": {
			mock: func(m *enginemock.MockEngine) {
				m.On("GenerateSpec", mock.Anything, testInput).Once().Return([]byte(testSpec), nil)
				m.On("RenderDiagrams", mock.Anything, []byte(testSpec)).Once().Return([]model.File{}, nil)
			},
			expReason:     model.FailureReasonEngineFailure,
			expFailedStep: "render_diagrams",
		},

		"An artifact store failure should fail the job": {
			mock: func(m *enginemock.MockEngine) {
				m.On("GenerateSpec", mock.Anything, testInput).Once().Return([]byte(testSpec), nil)
			},
			store: func(t *testing.T) artifact.Store {
				s := artifactmock.NewMockStore(t)
				s.On("Put", mock.Anything, mock.Anything, mock.Anything).Once().Return(model.Locator(""), fmt.Errorf("disk full: %w", model.ErrStoreFailure))
				return s
			},
			expReason:     model.FailureReasonStoreFailure,
			expFailedStep: "store_spec",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := enginemock.NewMockEngine(t)
			test.mock(m)

			opts := envOptions{engine: m, engineTimeout: 20 * time.Millisecond}
			if test.store != nil {
				opts.store = test.store(t)
			}
			env := newEnv(t, opts)

			_, err := env.ledger.CreateJob(ctx, "job-1", testInput)
			require.NoError(t, err)
			_, err = env.orch.StartStage1(ctx, "job-1")
			require.NoError(t, err)

			job, err := env.ledger.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, job.Status)
			assert.Equal(t, test.expReason, job.Error)
			assert.Contains(t, job.Message, orchestrator.MessageStage1Failed)
			assert.Empty(t, job.CurrentStep)
			assert.Empty(t, job.DiagramLocators)

			steps, err := env.ledger.ListSteps(ctx, "job-1")
			require.NoError(t, err)
			for _, s := range steps {
				if s.Status == model.StepStatusFailed {
					assert.Equal(t, test.expFailedStep, s.Name)
				}
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]struct {
		prepare    func(t *testing.T, env testEnv)
		decision   orchestrator.Decision
		expErr     error
		expStatus  model.JobStatus
		expReason  string
		expMessage string
	}{
		"Rejecting with feedback should fail the job with the feedback": {
			prepare:    func(t *testing.T, env testEnv) { env.awaitingJob(t, "job-1") },
			decision:   orchestrator.Decision{Confirmed: false, Feedback: "not what I wanted"},
			expStatus:  model.JobStatusFailed,
			expReason:  model.FailureReasonRejected,
			expMessage: "not what I wanted",
		},

		"Rejecting without feedback should fail the job with the default message": {
			prepare:    func(t *testing.T, env testEnv) { env.awaitingJob(t, "job-1") },
			decision:   orchestrator.Decision{Confirmed: false},
			expStatus:  model.JobStatusFailed,
			expReason:  model.FailureReasonRejected,
			expMessage: orchestrator.MessageRejected,
		},

		"Confirming should generate the code and the docs": {
			prepare:    func(t *testing.T, env testEnv) { env.awaitingJob(t, "job-1") },
			decision:   orchestrator.Decision{Confirmed: true},
			expStatus:  model.JobStatusCompleted,
			expMessage: orchestrator.MessageCompleted,
		},

		"Confirming a pending job should fail without changes": {
			prepare: func(t *testing.T, env testEnv) {
				_, err := env.ledger.CreateJob(context.Background(), "job-1", testInput)
				require.NoError(t, err)
			},
			decision:  orchestrator.Decision{Confirmed: true},
			expErr:    model.ErrPreconditionFailed,
			expStatus: model.JobStatusPending,
		},

		"Rejecting a pending job should fail without changes": {
			prepare: func(t *testing.T, env testEnv) {
				_, err := env.ledger.CreateJob(context.Background(), "job-1", testInput)
				require.NoError(t, err)
			},
			decision:  orchestrator.Decision{Confirmed: false},
			expErr:    model.ErrPreconditionFailed,
			expStatus: model.JobStatusPending,
		},

		"Confirming a missing job should fail": {
			prepare:  func(t *testing.T, env testEnv) {},
			decision: orchestrator.Decision{Confirmed: true},
			expErr:   model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t, envOptions{})
			test.prepare(t, env)

			before, _ := env.ledger.GetJob(ctx, "job-1")

			_, err := env.orch.Confirm(ctx, "job-1", test.decision)
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr), "got: %v", err)
				if before != nil {
					after, err := env.ledger.GetJob(ctx, "job-1")
					require.NoError(t, err)
					assert.Equal(t, *before, *after)
				}
				return
			}
			require.NoError(t, err)

			job, err := env.ledger.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, job.Status)
			assert.Equal(t, test.expReason, job.Error)
			assert.Equal(t, test.expMessage, job.Message)

			if job.Status == model.JobStatusCompleted {
				assert.Equal(t, 100, job.Progress)
				assert.Equal(t, model.Locator("/api/static/job-1/docs/README.md"), job.DocLocator)
				stored, err := env.store.List(ctx, "job-1", model.ArtifactCategoryCode)
				require.NoError(t, err)
				assert.ElementsMatch(t, stored, job.CodeLocators)
				assert.Len(t, job.CodeLocators, 4)
			}
		})
	}
}

func newStage1Engine(t *testing.T) *enginemock.MockEngine {
	m := enginemock.NewMockEngine(t)
	m.On("GenerateSpec", mock.Anything, testInput).Return([]byte(testSpec), nil)
	m.On("RenderDiagrams", mock.Anything, []byte(testSpec)).Return([]model.File{{Name: "architecture.mmd", Content: []byte("flowchart TD")}}, nil)
	return m
}

func TestConfirmTwiceRunsStage2Once(t *testing.T) {
	ctx := context.Background()
	m := newStage1Engine(t)
	m.On("RenderCode", mock.Anything, []byte(testSpec)).Once().Return([]model.File{{Name: "main.tf", Content: []byte("terraform {}")}}, nil)
	m.On("RenderDocs", mock.Anything, []byte(testSpec)).Once().Return(&model.File{Name: "README.md", Content: []byte("# demo")}, nil)

	sched := &manualScheduler{}
	env := newEnv(t, envOptions{engine: m, scheduler: sched})

	_, err := env.ledger.CreateJob(ctx, "job-1", testInput)
	require.NoError(t, err)
	_, err = env.orch.StartStage1(ctx, "job-1")
	require.NoError(t, err)
	sched.runAll()

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orch.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
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
	assert.Equal(t, 1, sched.len())
	sched.runAll()

	_, err = env.orch.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
	assert.True(t, errors.Is(err, model.ErrPreconditionFailed))

	job, err := env.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	m.AssertNumberOfCalls(t, "RenderCode", 1)
}

func TestConfirmRetryAfterConcurrentConfirmRunsStage2Once(t *testing.T) {
	ctx := context.Background()
	m := newStage1Engine(t)
	m.On("RenderCode", mock.Anything, []byte(testSpec)).Once().Return([]model.File{{Name: "main.tf", Content: []byte("terraform {}")}}, nil)
	m.On("RenderDocs", mock.Anything, []byte(testSpec)).Once().Return(&model.File{Name: "README.md", Content: []byte("# demo")}, nil)

	schedA := &manualScheduler{}
	envA := newEnv(t, envOptions{engine: m, scheduler: schedA})

	_, err := envA.ledger.CreateJob(ctx, "job-1", testInput)
	require.NoError(t, err)
	_, err = envA.orch.StartStage1(ctx, "job-1")
	require.NoError(t, err)
	schedA.runAll()

	// Instance B loses its first write: instance A confirms in the meantime
	// and the ledger connection of B fails.
	var errA error
	ledgerB := &flakyLedger{
		Repository: envA.ledger,
		fail:       func(call int) (bool, bool) { return call == 1, false },
		before: func(call int) {
			if call == 1 {
				_, errA = envA.orch.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
			}
		},
	}
	schedB := &manualScheduler{}
	orchB, err := orchestrator.New(orchestrator.Config{
		Ledger:        ledgerB,
		Steps:         envA.ledger,
		Store:         envA.store,
		Engine:        m,
		Scheduler:     schedB,
		LedgerRetries: 3,
		LedgerBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	_, errB := orchB.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
	require.NoError(t, errA)
	assert.True(t, errors.Is(errB, model.ErrPreconditionFailed), "got: %v", errB)

	assert.Equal(t, 1, schedA.len())
	assert.Equal(t, 0, schedB.len())
	schedA.runAll()
	schedB.runAll()

	job, err := envA.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	m.AssertNumberOfCalls(t, "RenderCode", 1)
}

func TestStage2EngineTimeoutHidesPartialArtifacts(t *testing.T) {
	ctx := context.Background()
	m := newStage1Engine(t)
	m.On("RenderCode", mock.Anything, []byte(testSpec)).Once().Return([]model.File{{Name: "main.tf", Content: []byte("terraform {}")}}, nil)
	m.On("RenderDocs", mock.Anything, []byte(testSpec)).Once().Return(func(ctx context.Context, _ []byte) (*model.File, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	env := newEnv(t, envOptions{engine: m, engineTimeout: 20 * time.Millisecond})
	env.awaitingJob(t, "job-1")

	job, err := env.orch.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStage2Running, job.Status)

	job, err = env.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, model.FailureReasonEngineTimeout, job.Error)
	assert.Contains(t, job.Message, "timed out")
	assert.Empty(t, job.CodeLocators)
	assert.Empty(t, job.DocLocator)

	// The code was written but it's not referenced by the job.
	stored, err := env.store.List(ctx, "job-1", model.ArtifactCategoryCode)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestConfirmStoreFailureDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, envOptions{})
	env.awaitingJob(t, "job-1")

	// Lose the spec.
	store := artifactmock.NewMockStore(t)
	store.On("Get", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("gone: %w", model.ErrStoreFailure))
	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:    env.ledger,
		Store:     store,
		Engine:    enginemock.NewMockEngine(t),
		Scheduler: syncScheduler{},
	})
	require.NoError(t, err)

	_, err = orch.Confirm(ctx, "job-1", orchestrator.Decision{Confirmed: true})
	assert.True(t, errors.Is(err, model.ErrStoreFailure))

	job, err := env.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwaitingConfirmation, job.Status)
}

func TestUnschedulableJobFails(t *testing.T) {
	ctx := context.Background()
	sched := &manualScheduler{err: errors.New("pool queue is full")}
	env := newEnv(t, envOptions{scheduler: sched})

	_, err := env.ledger.CreateJob(ctx, "job-1", testInput)
	require.NoError(t, err)

	_, err = env.orch.StartStage1(ctx, "job-1")
	assert.Error(t, err)

	job, err := env.ledger.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, model.FailureReasonUnschedulable, job.Error)
}

func TestLedgerUnavailableTransitions(t *testing.T) {
	tests := map[string]struct {
		fail      func(call int) (fail, apply bool)
		expErr    error
		expStatus model.JobStatus
	}{
		"A transition should be retried while the ledger is unavailable": {
			fail:      func(call int) (bool, bool) { return call <= 2, false },
			expStatus: model.JobStatusAwaitingConfirmation,
		},

		"A transition this instance applied before the ledger failed should be considered done": {
			fail:      func(call int) (bool, bool) { return call == 1, true },
			expStatus: model.JobStatusAwaitingConfirmation,
		},

		"A transition should fail when the retries are exhausted": {
			fail:      func(call int) (bool, bool) { return true, false },
			expErr:    model.ErrLedgerUnavailable,
			expStatus: model.JobStatusPending,
		},

		"A job should stay stalled when its failure can't be written": {
			fail:      func(call int) (bool, bool) { return call > 1, false },
			expStatus: model.JobStatusStage1Running,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(t, err)
			ledger := &flakyLedger{Repository: repo, fail: test.fail}

			eng, err := local.NewEngine(local.EngineConfig{})
			require.NoError(t, err)
			orch, err := orchestrator.New(orchestrator.Config{
				Ledger:        ledger,
				Store:         artifactmemory.NewStore(""),
				Engine:        eng,
				Scheduler:     syncScheduler{},
				LedgerRetries: 3,
				LedgerBackoff: time.Millisecond,
			})
			require.NoError(t, err)

			_, err = repo.CreateJob(ctx, "job-1", testInput)
			require.NoError(t, err)

			_, err = orch.StartStage1(ctx, "job-1")
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr), "got: %v", err)
			} else {
				assert.NoError(t, err)
			}

			job, err := repo.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, job.Status)
		})
	}
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	var now time.Time
	clock := func() time.Time { return now }

	repo, err := memory.NewRepository(memory.RepositoryConfig{TimeNow: clock})
	require.NoError(t, err)
	sched := &manualScheduler{}
	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:        repo,
		Steps:         repo,
		Store:         artifactmemory.NewStore(""),
		Engine:        enginemock.NewMockEngine(t),
		Scheduler:     sched,
		EngineTimeout: time.Minute,
		StallTimeout:  time.Hour,
		PendingGrace:  time.Minute,
		TimeNow:       clock,
	})
	require.NoError(t, err)

	create := func(id string, statuses ...model.JobStatus) {
		_, err := repo.CreateJob(ctx, id, testInput)
		require.NoError(t, err)
		from := model.JobStatusPending
		for _, st := range statuses {
			_, err := repo.CompareAndUpdateJob(ctx, id, from, model.JobPatch{Status: &st})
			require.NoError(t, err)
			from = st
		}
	}

	// Old jobs.
	now = t0
	create("old-pending")
	create("old-stage1", model.JobStatusStage1Running)
	create("old-awaiting", model.JobStatusStage1Running, model.JobStatusAwaitingConfirmation)

	// Recent jobs.
	now = t0.Add(2 * time.Hour)
	create("new-pending")
	create("new-stage2", model.JobStatusStage1Running, model.JobStatusAwaitingConfirmation, model.JobStatusStage2Running)

	now = t0.Add(2*time.Hour + 30*time.Second)
	res, err := orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-pending"}, res.Started)
	assert.Equal(t, []string{"old-stage1"}, res.Stalled)
	assert.Equal(t, 1, sched.len())

	expStatus := map[string]model.JobStatus{
		"old-pending":  model.JobStatusStage1Running,
		"old-stage1":   model.JobStatusFailed,
		"old-awaiting": model.JobStatusAwaitingConfirmation,
		"new-pending":  model.JobStatusPending,
		"new-stage2":   model.JobStatusStage2Running,
	}
	for id, exp := range expStatus {
		job, err := repo.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, exp, job.Status, id)
	}

	stalled, err := repo.GetJob(ctx, "old-stage1")
	require.NoError(t, err)
	assert.Equal(t, model.FailureReasonStalled, stalled.Error)

	// A second sweep has nothing to do.
	res, err = orch.Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Started)
	assert.Empty(t, res.Stalled)
}

// listHookLedger runs a hook after every job listing.
type listHookLedger struct {
	*memory.Repository
	afterList func(opts model.JobListOptions)
}

func (l listHookLedger) ListJobs(ctx context.Context, opts model.JobListOptions) ([]model.Job, error) {
	jobs, err := l.Repository.ListJobs(ctx, opts)
	l.afterList(opts)
	return jobs, err
}

func TestRecoverSkipsJobsUpdatedAfterListing(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	now := t0
	clock := func() time.Time { return now }

	repo, err := memory.NewRepository(memory.RepositoryConfig{TimeNow: clock})
	require.NoError(t, err)
	_, err = repo.CreateJob(ctx, "job-1", testInput)
	require.NoError(t, err)
	_, err = repo.CompareAndUpdateJob(ctx, "job-1", model.JobStatusPending, model.JobPatch{Status: ptr(model.JobStatusStage1Running)})
	require.NoError(t, err)

	// The stage reports progress right after the sweep listed the job.
	ledger := listHookLedger{Repository: repo, afterList: func(opts model.JobListOptions) {
		for _, st := range opts.Statuses {
			if st == model.JobStatusStage1Running {
				_, err := repo.UpdateJob(ctx, "job-1", model.JobPatch{Progress: ptr(40)})
				require.NoError(t, err)
				return
			}
		}
	}}

	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:        ledger,
		Steps:         repo,
		Store:         artifactmemory.NewStore(""),
		Engine:        enginemock.NewMockEngine(t),
		Scheduler:     &manualScheduler{},
		EngineTimeout: time.Minute,
		StallTimeout:  time.Hour,
		TimeNow:       clock,
	})
	require.NoError(t, err)

	now = t0.Add(2 * time.Hour)
	res, err := orch.Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Stalled)

	job, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStage1Running, job.Status)
	assert.Equal(t, 40, job.Progress)
}

func ptr[T any](v T) *T { return &v }
