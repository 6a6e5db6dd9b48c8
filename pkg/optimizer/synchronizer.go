package optimizer

import (
	"context"

	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/joblock"
)

// Synchronizer reconciles local job records with the remote service.
//
// Sync is safe to call concurrently for any mix of jobs: updates to the same
// job serialize on its registry lock, different jobs proceed independently.
type Synchronizer struct {
	store  Store
	client Client
	locks  *joblock.Registry
	logger *zap.Logger

	artifacts *artifactFactory
}

// NewSynchronizer creates a Synchronizer. A nil logger disables logging.
func NewSynchronizer(store Store, client Client, locks *joblock.Registry, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = joblock.NewRegistry()
	}
	return &Synchronizer{
		store:     store,
		client:    client,
		locks:     locks,
		logger:    logger,
		artifacts: &artifactFactory{store: store, client: client, logger: logger},
	}
}

// Sync refreshes one job record against the remote service and returns the
// record in its freshest known state.
//
// Behavior:
//   - Terminal records return immediately with no remote calls.
//   - Remote status fetch failures are logged and the record is returned
//     unchanged; polling never propagates transport or validation errors.
//   - On the transition into succeeded, the artifact pair (prompt + run
//     config) is created under the job's lock, exactly once per job.
//   - The updated record is persisted before the lock is released.
//
// The only hard failure is a missing parent task during artifact creation;
// that points at reference corruption and is returned to the caller.
func (s *Synchronizer) Sync(ctx context.Context, ref datamodel.TaskRef, job *datamodel.OptimizationJob) (*datamodel.OptimizationJob, error) {
	if job.LatestStatus.IsTerminal() {
		return job, nil
	}

	remote, err := s.client.GetStatus(ctx, job.JobType, job.RemoteJobID)
	if err != nil {
		s.logger.Warn("remote status fetch failed, returning last known state",
			zap.String("job_id", job.ID),
			zap.String("remote_job_id", job.RemoteJobID),
			zap.Error(err))
		return job, nil
	}

	newStatus, err := datamodel.ParseJobStatus(remote.Status)
	if err != nil {
		s.logger.Warn("remote status unparseable, returning last known state",
			zap.String("job_id", job.ID),
			zap.String("remote_status", remote.Status),
			zap.Error(err))
		return job, nil
	}

	release, err := s.locks.Acquire(ctx, job.ID)
	if err != nil {
		return job, err
	}
	defer release()

	previous := job.LatestStatus
	job.LatestStatus = newStatus

	if previous != datamodel.JobStatusSucceeded && newStatus == datamodel.JobStatusSucceeded {
		fresh, err := s.artifacts.create(ctx, ref, job)
		if fresh == nil {
			// The job record or its parent task is gone from disk.
			return nil, err
		}
		if err != nil {
			s.logger.Warn("artifact creation failed, job remains retryable",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		fresh.LatestStatus = newStatus
		job = fresh
	}

	if err := s.store.SaveJob(ref, job); err != nil {
		s.logger.Error("persisting job record failed",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.LatestStatus)),
			zap.Error(err))
	}
	return job, nil
}

// EnsureArtifacts creates the artifact pair for a job that is recorded as
// succeeded but has none, which happens after a cleaned-up creation failure
// or when the result was not usable at transition time. Jobs in any other
// state, and jobs that already have artifacts, are returned unchanged.
//
// Creation failures are logged and the record is returned in its reached
// state; only a missing job record or parent task is a hard error.
func (s *Synchronizer) EnsureArtifacts(ctx context.Context, ref datamodel.TaskRef, job *datamodel.OptimizationJob) (*datamodel.OptimizationJob, error) {
	if job.LatestStatus != datamodel.JobStatusSucceeded || job.HasArtifacts() {
		return job, nil
	}

	release, err := s.locks.Acquire(ctx, job.ID)
	if err != nil {
		return job, err
	}
	defer release()

	fresh, err := s.artifacts.create(ctx, ref, job)
	if fresh == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("artifact creation failed, job remains retryable",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	if saveErr := s.store.SaveJob(ref, fresh); saveErr != nil {
		s.logger.Error("persisting job record failed",
			zap.String("job_id", fresh.ID),
			zap.String("status", string(fresh.LatestStatus)),
			zap.Error(saveErr))
	}
	return fresh, nil
}
