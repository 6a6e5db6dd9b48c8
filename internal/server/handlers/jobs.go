package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/internal/observability"
	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/optimizer"
)

// maxStartRequestBytes caps the submission body size.
const maxStartRequestBytes = 1 << 20

// JobsHandler serves the optimization-job routes under a task.
type JobsHandler struct {
	submitter *optimizer.Submitter
	lister    *optimizer.Lister
	logger    *zap.Logger
}

// NewJobsHandler creates a JobsHandler. A nil logger disables logging.
func NewJobsHandler(submitter *optimizer.Submitter, lister *optimizer.Lister, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{submitter: submitter, lister: lister, logger: logger}
}

// Mount registers the job routes on a router already scoped to
// /api/projects/{projectID}/tasks/{taskID}.
func (h *JobsHandler) Mount(r chi.Router) {
	r.Route("/optimization_jobs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/start", h.start)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/status", h.status)
			r.Get("/result", h.result)
		})
	})
}

func taskRefFromRequest(r *http.Request) datamodel.TaskRef {
	return datamodel.TaskRef{
		ProjectID: chi.URLParam(r, "projectID"),
		TaskID:    chi.URLParam(r, "taskID"),
	}
}

func (h *JobsHandler) start(w http.ResponseWriter, r *http.Request) {
	// Submission persists a job record; an abandoned request must not
	// cancel that midway.
	ctx := context.WithoutCancel(r.Context())
	ref := taskRefFromRequest(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStartRequestBytes))
	if err != nil {
		respondWithError(w, r, fmt.Errorf("%w: reading body: %v", optimizer.ErrInvalidRequest, err))
		return
	}
	if err := optimizer.ValidateStartRequest(body); err != nil {
		respondWithError(w, r, err)
		return
	}

	var req optimizer.StartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, r, fmt.Errorf("%w: %v", optimizer.ErrInvalidRequest, err))
		return
	}

	job, err := h.submitter.StartJob(ctx, ref, &req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	observability.Count("optimization_jobs_started_total", "Optimization jobs accepted for submission.", 1)
	writeJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	ref := taskRefFromRequest(r)
	// Refresh by default; the UI passes update_status=false for cheap reloads.
	updateStatus := r.URL.Query().Get("update_status") != "false"

	jobs, err := h.lister.ListAndRefresh(ctx, ref, updateStatus)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	ref := taskRefFromRequest(r)

	job, err := h.lister.GetRefreshed(ctx, ref, chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type jobStatusResponse struct {
	JobID  string              `json:"job_id"`
	Status datamodel.JobStatus `json:"status"`
}

func (h *JobsHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	ref := taskRefFromRequest(r)

	job, err := h.lister.GetRefreshed(ctx, ref, chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{JobID: job.ID, Status: job.LatestStatus})
}

type jobResultResponse struct {
	OptimizedPrompt string `json:"optimized_prompt"`
}

func (h *JobsHandler) result(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	ref := taskRefFromRequest(r)

	text, err := h.lister.Result(ctx, ref, chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResultResponse{OptimizedPrompt: text})
}
