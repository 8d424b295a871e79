package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/infraware/internal/conventions"
	"github.com/slok/infraware/internal/iacspec"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

type stepInfo struct {
	name        string
	description string
}

var designSteps = []stepInfo{
	{name: "generate_spec", description: "Generating YAML from natural language"},
	{name: "validate_spec", description: "Validating YAML"},
	{name: "store_spec", description: "Storing YAML spec"},
	{name: "render_diagrams", description: "Generating diagrams"},
	{name: "store_diagrams", description: "Storing diagrams"},
}

var generateSteps = []stepInfo{
	{name: "render_code", description: "Converting YAML to Terraform"},
	{name: "store_code", description: "Storing Terraform code"},
	{name: "render_docs", description: "Generating documentation"},
	{name: "store_docs", description: "Storing documentation"},
}

// Progress bands of each stage.
const (
	stage1InitialProgress = 5
	stage1FinalProgress   = 70
	stage2FinalProgress   = 100
)

type stepFunc func(ctx context.Context) error

func (o *Orchestrator) runStage1(ctx context.Context, jobID string, input model.JobInput) {
	logger := o.logger.WithValues(log.Kv{"job-id": jobID, "stage": model.StageDesign})

	var (
		spec        []byte
		specLocs    []model.Locator
		diagrams    []model.File
		diagramLocs []model.Locator
	)
	err := o.runStage(ctx, jobID, model.StageDesign, designSteps, stage1InitialProgress, stage1FinalProgress, []stepFunc{
		func(ctx context.Context) error {
			return o.callEngine(ctx, "spec generation", func(ctx context.Context) (err error) {
				spec, err = o.engine.GenerateSpec(ctx, input)
				return err
			})
		},
		func(ctx context.Context) error {
			if _, err := iacspec.Parse(spec); err != nil {
				return newStageError(model.FailureReasonInvalidSpec, "the generated spec is not valid", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			specLocs, err = o.storeFiles(ctx, jobID, model.ArtifactCategorySpec, []model.File{{Name: conventions.SpecFile, Content: spec}})
			return err
		},
		func(ctx context.Context) error {
			err := o.callEngine(ctx, "diagram rendering", func(ctx context.Context) (err error) {
				diagrams, err = o.engine.RenderDiagrams(ctx, spec)
				return err
			})
			if err != nil {
				return err
			}
			if len(diagrams) == 0 {
				return newStageError(model.FailureReasonEngineFailure, "no diagrams were rendered", fmt.Errorf("empty diagrams: %w", model.ErrEngineFailure))
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			diagramLocs, err = o.storeFiles(ctx, jobID, model.ArtifactCategoryDiagrams, diagrams)
			return err
		},
	})
	if err != nil {
		o.fail(ctx, jobID, model.JobStatusStage1Running, err, MessageStage1Failed)
		return
	}

	_, err = o.transition(ctx, jobID, model.JobStatusStage1Running, model.JobPatch{
		Status:          ptr(model.JobStatusAwaitingConfirmation),
		Progress:        ptr(stage1FinalProgress),
		CurrentStep:     ptr(MessageAwaiting),
		Message:         ptr(MessageDiagramsReady),
		SpecLocator:     &specLocs[0],
		DiagramLocators: diagramLocs,
	})
	if err != nil {
		if errors.Is(err, model.ErrPreconditionFailed) {
			logger.Warningf("Job %s changed while running stage 1, results discarded: %s", jobID, err)
			return
		}
		o.fail(ctx, jobID, model.JobStatusStage1Running, err, MessageStage1Failed)
		return
	}

	logger.Infof("Stage 1 of job %s completed with %d diagrams", jobID, len(diagramLocs))
}

func (o *Orchestrator) runStage2(ctx context.Context, jobID string, spec []byte) {
	logger := o.logger.WithValues(log.Kv{"job-id": jobID, "stage": model.StageGenerate})

	var (
		code     []model.File
		codeLocs []model.Locator
		doc      *model.File
		docLocs  []model.Locator
	)
	err := o.runStage(ctx, jobID, model.StageGenerate, generateSteps, stage1FinalProgress, stage2FinalProgress, []stepFunc{
		func(ctx context.Context) error {
			err := o.callEngine(ctx, "code rendering", func(ctx context.Context) (err error) {
				code, err = o.engine.RenderCode(ctx, spec)
				return err
			})
			if err != nil {
				return err
			}
			if len(code) == 0 {
				return newStageError(model.FailureReasonEngineFailure, "no code files were rendered", fmt.Errorf("empty code: %w", model.ErrEngineFailure))
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			codeLocs, err = o.storeFiles(ctx, jobID, model.ArtifactCategoryCode, code)
			return err
		},
		func(ctx context.Context) error {
			err := o.callEngine(ctx, "documentation rendering", func(ctx context.Context) (err error) {
				doc, err = o.engine.RenderDocs(ctx, spec)
				return err
			})
			if err != nil {
				return err
			}
			if doc == nil {
				return newStageError(model.FailureReasonEngineFailure, "no documentation was rendered", fmt.Errorf("empty documentation: %w", model.ErrEngineFailure))
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			docLocs, err = o.storeFiles(ctx, jobID, model.ArtifactCategoryDocs, []model.File{*doc})
			return err
		},
	})
	if err != nil {
		o.fail(ctx, jobID, model.JobStatusStage2Running, err, MessageStage2Failed)
		return
	}

	_, err = o.transition(ctx, jobID, model.JobStatusStage2Running, model.JobPatch{
		Status:       ptr(model.JobStatusCompleted),
		Progress:     ptr(stage2FinalProgress),
		Message:      ptr(MessageCompleted),
		CodeLocators: codeLocs,
		DocLocator:   &docLocs[0],
	})
	if err != nil {
		if errors.Is(err, model.ErrPreconditionFailed) {
			logger.Warningf("Job %s changed while running stage 2, results discarded: %s", jobID, err)
			return
		}
		o.fail(ctx, jobID, model.JobStatusStage2Running, err, MessageStage2Failed)
		return
	}

	logger.Infof("Stage 2 of job %s completed with %d code files", jobID, len(codeLocs))
}

// runStage runs the steps of a stage in order, tracking them and raising the
// job progress inside the [from, to] band. The stage ceiling is left for the
// final transition.
func (o *Orchestrator) runStage(ctx context.Context, jobID string, stage model.Stage, infos []stepInfo, from, to int, steps []stepFunc) error {
	tracked := o.trackSteps(ctx, jobID, stage, infos)

	for i, step := range steps {
		info := infos[i]
		if err := ctx.Err(); err != nil {
			return newStageError(model.FailureReasonInterrupted, "the job was interrupted", err)
		}

		if i > 0 {
			o.advise(ctx, jobID, model.JobPatch{CurrentStep: ptr(info.description)})
		}

		var stepID string
		if tracked {
			stepID = o.nextStep(ctx, jobID, stage, info.name)
		}

		if err := step(ctx); err != nil {
			if stepID != "" {
				if ferr := o.steps.FailStep(ctx, stepID, err); ferr != nil {
					o.logger.Warningf("Could not mark step %s of job %s as failed: %s", info.name, jobID, ferr)
				}
			}
			return err
		}

		if stepID != "" {
			if err := o.steps.CompleteStep(ctx, stepID); err != nil {
				o.logger.Warningf("Could not mark step %s of job %s as done: %s", info.name, jobID, err)
			}
		}

		if i < len(steps)-1 {
			o.advise(ctx, jobID, model.JobPatch{Progress: ptr(from + (to-from)*(i+1)/len(steps))})
		}
	}

	return nil
}

// trackSteps registers the stage steps, a previous run of the stage is replaced.
func (o *Orchestrator) trackSteps(ctx context.Context, jobID string, stage model.Stage, infos []stepInfo) bool {
	if o.steps == nil {
		return false
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.name)
	}

	if err := o.steps.ClearStage(ctx, jobID, stage); err != nil {
		o.logger.Warningf("Could not clear %s steps of job %s: %s", stage, jobID, err)
		return false
	}
	if err := o.steps.AddSteps(ctx, jobID, stage, names); err != nil {
		o.logger.Warningf("Could not add %s steps of job %s: %s", stage, jobID, err)
		return false
	}

	return true
}

// nextStep returns the ID of the next pending step if it's the expected one.
func (o *Orchestrator) nextStep(ctx context.Context, jobID string, stage model.Stage, name string) string {
	st, err := o.steps.NextStep(ctx, jobID, stage)
	if err != nil {
		o.logger.Warningf("Could not get next step of job %s: %s", jobID, err)
		return ""
	}
	if st == nil || st.Name != name {
		o.logger.Warningf("Expected step %s on job %s, got %v", name, jobID, st)
		return ""
	}

	return st.ID
}
