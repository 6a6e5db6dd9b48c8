package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// artifactFactory creates the prompt and run config pair for a job that
// just reached succeeded. It must only run while the job's lock is held.
type artifactFactory struct {
	store  Store
	client Client
	logger *zap.Logger
}

// create reloads the job record from disk and ensures its artifacts exist.
//
// Reloading under the lock is what makes creation exactly-once: a concurrent
// synchronizer that already created the artifacts has persisted their IDs,
// and this call adopts them instead of creating duplicates.
//
// Returns (nil, err) only when the job record or its parent task cannot be
// loaded. Every other failure compensates (partial artifacts deleted, IDs
// cleared) and returns the reloaded record alongside the error so the caller
// can persist OptimizedPrompt and retry on a later poll.
func (f *artifactFactory) create(ctx context.Context, ref datamodel.TaskRef, job *datamodel.OptimizationJob) (*datamodel.OptimizationJob, error) {
	fresh, err := f.store.GetJob(ref, job.ID)
	if err != nil {
		return nil, fmt.Errorf("reload job record: %w", err)
	}
	if fresh.HasArtifacts() {
		return fresh, nil
	}

	if _, err := f.store.GetTask(ref); err != nil {
		return nil, fmt.Errorf("parent task of job %s: %w", job.ID, err)
	}

	// A record cleaned up after an earlier failure still carries the fetched
	// prompt text; reuse it instead of refetching the result.
	text := ""
	if fresh.OptimizedPrompt != nil {
		text = *fresh.OptimizedPrompt
	}
	if text == "" {
		result, err := f.client.GetResult(ctx, fresh.JobType, fresh.RemoteJobID)
		if err != nil {
			return fresh, fmt.Errorf("fetch result: %w", err)
		}
		if result.OptimizedPrompt == "" {
			// Job finished without usable output. Not an error; artifacts stay null.
			f.logger.Warn("job succeeded without an optimized prompt",
				zap.String("job_id", fresh.ID),
				zap.String("remote_job_id", fresh.RemoteJobID))
			return fresh, nil
		}
		text = result.OptimizedPrompt
		fresh.OptimizedPrompt = &text
	}

	prompt := &datamodel.Prompt{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("Optimized prompt %s", time.Now().UTC().Format("2006-01-02 15:04")),
		Prompt:      text,
		GeneratorID: fresh.JobType.GeneratorID(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.store.SavePrompt(ref, prompt); err != nil {
		f.cleanup(ref, fresh, prompt.ID, "")
		return fresh, fmt.Errorf("save prompt: %w", err)
	}

	target, err := f.store.GetRunConfig(ref, fresh.TargetRunConfigID)
	if err != nil {
		f.cleanup(ref, fresh, prompt.ID, "")
		return fresh, fmt.Errorf("target run config %s: %w", fresh.TargetRunConfigID, err)
	}

	// Clone the target's properties but point at the new prompt by ID so the
	// copy picks up prompt edits instead of freezing today's text.
	runConfig := &datamodel.RunConfig{
		ID:                  uuid.New().String(),
		Name:                fmt.Sprintf("%s (optimized)", target.Name),
		RunConfigProperties: target.RunConfigProperties,
		CreatedAt:           time.Now().UTC(),
	}
	runConfig.RunConfigProperties.PromptID = datamodel.PromptIDRef(prompt.ID)

	if err := f.store.SaveRunConfig(ref, runConfig); err != nil {
		f.cleanup(ref, fresh, prompt.ID, runConfig.ID)
		return fresh, fmt.Errorf("save run config: %w", err)
	}

	promptRef := datamodel.PromptIDRef(prompt.ID)
	fresh.CreatedPromptID = &promptRef
	fresh.CreatedRunConfigID = &runConfig.ID
	return fresh, nil
}

// cleanup deletes whatever artifacts were created and clears the job's
// artifact IDs. Each deletion is independent; failures are logged and never
// propagated. OptimizedPrompt is intentionally left in place so a later
// sync can retry creation without refetching the result.
func (f *artifactFactory) cleanup(ref datamodel.TaskRef, job *datamodel.OptimizationJob, promptID, runConfigID string) {
	if promptID != "" {
		if err := f.store.DeletePrompt(ref, promptID); err != nil {
			f.logger.Error("cleanup: deleting prompt failed",
				zap.String("job_id", job.ID),
				zap.String("prompt_id", promptID),
				zap.Error(err))
		}
	}
	if runConfigID != "" {
		if err := f.store.DeleteRunConfig(ref, runConfigID); err != nil {
			f.logger.Error("cleanup: deleting run config failed",
				zap.String("job_id", job.ID),
				zap.String("run_config_id", runConfigID),
				zap.Error(err))
		}
	}
	job.CreatedPromptID = nil
	job.CreatedRunConfigID = nil
}
