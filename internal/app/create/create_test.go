package create_test

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage/io"
	"github.com/slok/infraware/internal/storage/storagemock"
)

type starterMock struct {
	mock.Mock
}

func (s *starterMock) StartStage1(ctx context.Context, jobID string) (*model.Job, error) {
	args := s.Called(ctx, jobID)
	j, _ := args.Get(0).(*model.Job)
	return j, args.Error(1)
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    create.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config with all fields": {
			cfg: create.ServiceConfig{
				Ledger:  &storagemock.MockJobRepository{},
				Starter: &starterMock{},
				Logger:  log.Noop,
			},
		},
		"Valid config without logger uses Noop": {
			cfg: create.ServiceConfig{
				Ledger:  &storagemock.MockJobRepository{},
				Starter: &starterMock{},
			},
		},
		"Missing ledger returns error": {
			cfg: create.ServiceConfig{
				Starter: &starterMock{},
			},
			expErr: true,
			errMsg: "ledger is required",
		},
		"Missing starter returns error": {
			cfg: create.ServiceConfig{
				Ledger: &storagemock.MockJobRepository{},
			},
			expErr: true,
			errMsg: "starter is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := create.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	scenarioA := model.JobInput{
		Prompt:      "Create a VPC with a public subnet and a web server",
		Provider:    model.ProviderGCP,
		ProjectName: "demo-project",
	}
	pendingJob := func(input model.JobInput) *model.Job {
		return &model.Job{ID: "job-1", Status: model.JobStatusPending, Input: input, CreatedAt: now, UpdatedAt: now, Version: 1}
	}

	requestFS := fstest.MapFS{
		"job.yaml": {Data: []byte("prompt: Create a bucket and a function\ncloud_provider: azure\nproject_name: storage-demo\n")},
		"bad.yaml": {Data: []byte("prompt: short\nproject_name: x\n")},
	}

	tests := map[string]struct {
		req      create.Request
		mock     func(ledger *storagemock.MockJobRepository, starter *starterMock)
		expJob   *model.Job
		expErr   bool
		expNotOK bool
	}{
		"A valid input should create the job and start its first stage.": {
			req: create.Request{Input: scenarioA},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(pendingJob(scenarioA), nil)
				starter.On("StartStage1", mock.Anything, "job-1").Once().Return(&model.Job{ID: "job-1", Status: model.JobStatusStage1Running, Message: "Job created and processing started"}, nil)
			},
			expJob: func() *model.Job {
				j := pendingJob(scenarioA)
				j.Message = "Job created and processing started"
				return j
			}(),
		},
		"A missing provider should default to gcp and trim the input.": {
			req: create.Request{Input: model.JobInput{Prompt: "  Create a VPC with a public subnet and a web server ", ProjectName: " demo-project"}},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(pendingJob(scenarioA), nil)
				starter.On("StartStage1", mock.Anything, "job-1").Once().Return(&model.Job{}, nil)
			},
			expJob: pendingJob(scenarioA),
		},
		"A short prompt should fail validation without creating the job.": {
			req:      create.Request{Input: model.JobInput{Prompt: "VPC", ProjectName: "demo-project"}},
			mock:     func(ledger *storagemock.MockJobRepository, starter *starterMock) {},
			expErr:   true,
			expNotOK: true,
		},
		"A short project name should fail validation.": {
			req:      create.Request{Input: model.JobInput{Prompt: "Create a VPC with a public subnet", ProjectName: "ab"}},
			mock:     func(ledger *storagemock.MockJobRepository, starter *starterMock) {},
			expErr:   true,
			expNotOK: true,
		},
		"An unknown provider should fail validation.": {
			req:      create.Request{Input: model.JobInput{Prompt: "Create a VPC with a public subnet", ProjectName: "demo-project", Provider: "oracle"}},
			mock:     func(ledger *storagemock.MockJobRepository, starter *starterMock) {},
			expErr:   true,
			expNotOK: true,
		},
		"A ledger error should fail without starting the job.": {
			req: create.Request{Input: scenarioA},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(nil, fmt.Errorf("db down: %w", model.ErrLedgerUnavailable))
			},
			expErr: true,
		},
		"A start error should still return the created job.": {
			req: create.Request{Input: scenarioA},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(pendingJob(scenarioA), nil)
				starter.On("StartStage1", mock.Anything, "job-1").Once().Return(nil, fmt.Errorf("queue full"))
			},
			expJob: pendingJob(scenarioA),
		},
		"A job already started by another process should be returned.": {
			req: create.Request{Input: scenarioA},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(pendingJob(scenarioA), nil)
				starter.On("StartStage1", mock.Anything, "job-1").Once().Return(nil, model.ErrPreconditionFailed)
			},
			expJob: pendingJob(scenarioA),
		},
		"A deferred request should leave the job pending.": {
			req: create.Request{Input: scenarioA, Deferred: true},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				ledger.On("CreateJob", mock.Anything, "job-1", scenarioA).Once().Return(pendingJob(scenarioA), nil)
			},
			expJob: pendingJob(scenarioA),
		},
		"A request file should be loaded as the input.": {
			req: create.Request{File: "job.yaml"},
			mock: func(ledger *storagemock.MockJobRepository, starter *starterMock) {
				input := model.JobInput{Prompt: "Create a bucket and a function", Provider: model.ProviderAzure, ProjectName: "storage-demo"}
				ledger.On("CreateJob", mock.Anything, "job-1", input).Once().Return(pendingJob(input), nil)
				starter.On("StartStage1", mock.Anything, "job-1").Once().Return(&model.Job{}, nil)
			},
			expJob: pendingJob(model.JobInput{Prompt: "Create a bucket and a function", Provider: model.ProviderAzure, ProjectName: "storage-demo"}),
		},
		"An invalid request file should fail validation.": {
			req:      create.Request{File: "bad.yaml"},
			mock:     func(ledger *storagemock.MockJobRepository, starter *starterMock) {},
			expErr:   true,
			expNotOK: true,
		},
		"A missing request file should fail validation.": {
			req:      create.Request{File: "missing.yaml"},
			mock:     func(ledger *storagemock.MockJobRepository, starter *starterMock) {},
			expErr:   true,
			expNotOK: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			ledger := storagemock.NewMockJobRepository(t)
			starter := &starterMock{}
			test.mock(ledger, starter)

			svc, err := create.NewService(create.ServiceConfig{
				Ledger:  ledger,
				Starter: starter,
				Loader:  io.NewJobRequestYAMLRepository(requestFS),
				IDGen:   func() string { return "job-1" },
			})
			require.NoError(err)

			job, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(err)
				if test.expNotOK {
					assert.ErrorIs(err, model.ErrNotValid)
				}
			} else if assert.NoError(err) {
				assert.Equal(test.expJob, job)
			}

			starter.AssertExpectations(t)
		})
	}
}
