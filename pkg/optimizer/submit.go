package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// Credentials supplies the API key for the remote service. The settings
// store satisfies it.
type Credentials interface {
	APIKey() string
}

// StartRequest describes a job submission.
type StartRequest struct {
	JobType           datamodel.JobType `json:"job_type"`
	TargetRunConfigID string            `json:"target_run_config_id"`
	EvalIDs           []string          `json:"eval_ids"`
}

// Submitter validates and starts remote optimization jobs.
type Submitter struct {
	store  Store
	client Client
	creds  Credentials
	logger *zap.Logger
}

// NewSubmitter creates a Submitter. A nil logger disables logging.
func NewSubmitter(store Store, client Client, creds Credentials, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{store: store, client: client, creds: creds, logger: logger}
}

// StartJob validates the request, submits it to the remote service and
// persists a pending job record.
//
// Failure modes, in check order:
//   - ErrNotConfigured when no API key is set
//   - datamodel.ErrNotFound when the project, task, target run config or
//     any referenced eval does not exist
//   - ErrToolsUnsupported when the target run config declares tools
//   - client errors from the remote submission (ErrUnauthorized,
//     ErrValidation, ErrServiceUnavailable)
func (s *Submitter) StartJob(ctx context.Context, ref datamodel.TaskRef, req *StartRequest) (*datamodel.OptimizationJob, error) {
	if s.creds == nil || s.creds.APIKey() == "" {
		return nil, ErrNotConfigured
	}

	jobType := req.JobType
	if jobType == "" {
		jobType = datamodel.JobTypePromptOptimization
	}
	if jobType != datamodel.JobTypePromptOptimization && jobType != datamodel.JobTypeGEPA {
		return nil, fmt.Errorf("%w: unknown job type %q", ErrValidation, req.JobType)
	}

	if _, err := s.store.GetProject(ref.ProjectID); err != nil {
		return nil, fmt.Errorf("project %s: %w", ref.ProjectID, err)
	}
	task, err := s.store.GetTask(ref)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", ref.TaskID, err)
	}
	target, err := s.store.GetRunConfig(ref, req.TargetRunConfigID)
	if err != nil {
		return nil, fmt.Errorf("target run config %s: %w", req.TargetRunConfigID, err)
	}
	if len(target.RunConfigProperties.ToolIDs) > 0 {
		return nil, ErrToolsUnsupported
	}
	for _, evalID := range req.EvalIDs {
		if _, err := s.store.GetEval(ref, evalID); err != nil {
			return nil, fmt.Errorf("eval %s: %w", evalID, err)
		}
	}

	requirements := make([]string, 0, len(task.Requirements))
	for _, r := range task.Requirements {
		requirements = append(requirements, r.Name)
	}

	payload := &SubmitRequest{
		TaskInstruction:     task.Instruction,
		Requirements:        requirements,
		EvalIDs:             req.EvalIDs,
		RunConfigProperties: target.RunConfigProperties,
	}

	remoteID, err := s.client.Submit(ctx, jobType, payload)
	if err != nil {
		return nil, err
	}

	job := &datamodel.OptimizationJob{
		ID:                uuid.New().String(),
		JobType:           jobType,
		RemoteJobID:       remoteID,
		TargetRunConfigID: req.TargetRunConfigID,
		EvalIDs:           req.EvalIDs,
		LatestStatus:      datamodel.JobStatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.SaveJob(ref, job); err != nil {
		return nil, err
	}

	s.logger.Info("optimization job submitted",
		zap.String("job_id", job.ID),
		zap.String("remote_job_id", remoteID),
		zap.String("job_type", string(jobType)))
	return job, nil
}
