// Package optimizer manages remote prompt optimization jobs: submission,
// status synchronization, artifact creation on success, and batch refresh.
//
// The package coordinates three collaborators:
//   - Client: the remote job service (status, result, submission)
//   - Store: the local datamodel (jobs, prompts, run configs)
//   - joblock.Registry: per-job serialization of status updates
//
// Status flows one way. Once a job reaches a terminal status it is never
// queried against the remote service again; the local record is the truth.
package optimizer

import (
	"context"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// Store is the persistence surface the optimizer needs. *datamodel.Store
// satisfies it.
type Store interface {
	GetProject(projectID string) (*datamodel.Project, error)
	GetTask(ref datamodel.TaskRef) (*datamodel.Task, error)
	GetEval(ref datamodel.TaskRef, evalID string) (*datamodel.Eval, error)

	GetJob(ref datamodel.TaskRef, jobID string) (*datamodel.OptimizationJob, error)
	SaveJob(ref datamodel.TaskRef, job *datamodel.OptimizationJob) error
	ListJobs(ref datamodel.TaskRef) ([]datamodel.OptimizationJob, error)

	GetRunConfig(ref datamodel.TaskRef, runConfigID string) (*datamodel.RunConfig, error)
	SaveRunConfig(ref datamodel.TaskRef, rc *datamodel.RunConfig) error
	DeleteRunConfig(ref datamodel.TaskRef, runConfigID string) error

	SavePrompt(ref datamodel.TaskRef, p *datamodel.Prompt) error
	DeletePrompt(ref datamodel.TaskRef, promptID string) error
}

// Client talks to the remote optimization job service.
type Client interface {
	// GetStatus fetches the current remote status of a job.
	GetStatus(ctx context.Context, jobType datamodel.JobType, remoteJobID string) (*RemoteStatus, error)

	// GetResult fetches the output of a completed job.
	GetResult(ctx context.Context, jobType datamodel.JobType, remoteJobID string) (*RemoteResult, error)

	// Submit starts a new remote job and returns its remote identifier.
	Submit(ctx context.Context, jobType datamodel.JobType, req *SubmitRequest) (string, error)
}

// RemoteStatus is the remote service's view of a job.
type RemoteStatus struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// RemoteResult is the output payload of a completed job. OptimizedPrompt is
// empty when the job produced no usable output.
type RemoteResult struct {
	JobID           string `json:"job_id"`
	OptimizedPrompt string `json:"optimized_prompt"`
}

// SubmitRequest is the payload sent to the remote service when starting a
// job. The run config properties describe the configuration being optimized;
// eval IDs tell the service which evaluators score candidate prompts.
type SubmitRequest struct {
	TaskInstruction     string                        `json:"task_instruction"`
	Requirements        []string                      `json:"requirements,omitempty"`
	EvalIDs             []string                      `json:"eval_ids"`
	RunConfigProperties datamodel.RunConfigProperties `json:"run_config_properties"`
}
