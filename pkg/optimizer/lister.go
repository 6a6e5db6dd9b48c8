package optimizer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// refreshBatchSize is the number of jobs refreshed concurrently per batch.
// Each refresh is one remote call plus a couple of file writes, so a small
// fixed batch keeps listing latency bounded without flooding the service.
const refreshBatchSize = 5

// Lister loads a task's jobs and optionally refreshes the live ones.
type Lister struct {
	store  Store
	syncer *Synchronizer
	logger *zap.Logger
}

// NewLister creates a Lister. A nil logger disables logging.
func NewLister(store Store, syncer *Synchronizer, logger *zap.Logger) *Lister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{store: store, syncer: syncer, logger: logger}
}

// ListAndRefresh returns every optimization job of the task in stable
// creation order.
//
// When updateStatus is true, non-terminal jobs are synchronized against the
// remote service in batches of refreshBatchSize before the list is returned.
// Terminal jobs are never re-queried. A failing or panicking refresh is
// logged and its job is returned in its last known state; it never hides
// the other jobs.
func (l *Lister) ListAndRefresh(ctx context.Context, ref datamodel.TaskRef, updateStatus bool) ([]datamodel.OptimizationJob, error) {
	jobs, err := l.store.ListJobs(ref)
	if err != nil {
		return nil, err
	}
	if !updateStatus || len(jobs) == 0 {
		return jobs, nil
	}

	var live []int
	for i := range jobs {
		if !jobs[i].LatestStatus.IsTerminal() {
			live = append(live, i)
		}
	}

	for start := 0; start < len(live); start += refreshBatchSize {
		end := start + refreshBatchSize
		if end > len(live) {
			end = len(live)
		}
		l.refreshBatch(ctx, ref, jobs, live[start:end])
	}

	return jobs, nil
}

// refreshBatch syncs one batch of jobs concurrently and waits for all of
// them. Results replace the corresponding entries in jobs.
func (l *Lister) refreshBatch(ctx context.Context, ref datamodel.TaskRef, jobs []datamodel.OptimizationJob, batch []int) {
	results := make([]*datamodel.OptimizationJob, len(batch))

	var wg sync.WaitGroup
	for n, idx := range batch {
		wg.Add(1)
		go func(n, idx int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.logger.Warn("job refresh panicked",
						zap.String("job_id", jobs[idx].ID),
						zap.Any("panic", r))
				}
			}()

			job := jobs[idx]
			updated, err := l.syncer.Sync(ctx, ref, &job)
			if err != nil {
				l.logger.Warn("job refresh failed",
					zap.String("job_id", job.ID),
					zap.Error(err))
				return
			}
			results[n] = updated
		}(n, idx)
	}
	wg.Wait()

	for n, idx := range batch {
		if results[n] != nil {
			jobs[idx] = *results[n]
		}
	}
}

// GetRefreshed loads one job, synchronizes it against the remote service,
// and materializes artifacts for a succeeded job that is still missing them.
func (l *Lister) GetRefreshed(ctx context.Context, ref datamodel.TaskRef, jobID string) (*datamodel.OptimizationJob, error) {
	job, err := l.store.GetJob(ref, jobID)
	if err != nil {
		return nil, err
	}
	job, err = l.syncer.Sync(ctx, ref, job)
	if err != nil {
		return nil, err
	}
	return l.syncer.EnsureArtifacts(ctx, ref, job)
}

// Result returns the optimized prompt of a completed job.
func (l *Lister) Result(ctx context.Context, ref datamodel.TaskRef, jobID string) (string, error) {
	job, err := l.GetRefreshed(ctx, ref, jobID)
	if err != nil {
		return "", err
	}
	if job.OptimizedPrompt == nil {
		return "", fmt.Errorf("job %s: %w", jobID, ErrNoResult)
	}
	return *job.OptimizedPrompt, nil
}
