package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/dataset"
	"github.com/forgelabs/promptforge/pkg/evalstats"
)

// EvalsHandler serves score aggregation routes under a task's evals.
type EvalsHandler struct {
	store  *datamodel.Store
	logger *zap.Logger
}

// NewEvalsHandler creates an EvalsHandler. A nil logger disables logging.
func NewEvalsHandler(store *datamodel.Store, logger *zap.Logger) *EvalsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvalsHandler{store: store, logger: logger}
}

// Mount registers the eval routes on a router already scoped to
// /api/projects/{projectID}/tasks/{taskID}.
func (h *EvalsHandler) Mount(r chi.Router) {
	r.Route("/evals/{evalID}", func(r chi.Router) {
		r.Get("/eval_configs/{evalConfigID}/score_summary", h.scoreSummary)
		r.Get("/eval_configs_score_summary", h.correlationSummary)
	})
}

// scoreSummary rolls up one eval config's runs into per-run-config mean
// scores over the eval set.
func (h *EvalsHandler) scoreSummary(w http.ResponseWriter, r *http.Request) {
	ref := taskRefFromRequest(r)
	evalID := chi.URLParam(r, "evalID")
	configID := chi.URLParam(r, "evalConfigID")

	eval, err := h.store.GetEval(ref, evalID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if _, err := h.store.GetEvalConfig(ref, evalID, configID); err != nil {
		respondWithError(w, r, err)
		return
	}
	evalRuns, err := h.store.ListEvalRuns(ref, evalID, configID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	expected, err := h.expectedDatasetIDs(ref, eval.EvalSetFilterID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evalstats.SummarizeRunConfigScores(eval, evalRuns, expected))
}

// correlationSummary compares every eval config's judge scores against the
// human ratings on the golden set.
func (h *EvalsHandler) correlationSummary(w http.ResponseWriter, r *http.Request) {
	ref := taskRefFromRequest(r)
	evalID := chi.URLParam(r, "evalID")

	task, err := h.store.GetTask(ref)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	eval, err := h.store.GetEval(ref, evalID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	configs, err := h.store.ListEvalConfigs(ref, evalID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	configRuns := make([]evalstats.ConfigRuns, 0, len(configs))
	for _, cfg := range configs {
		runs, err := h.store.ListEvalRuns(ref, evalID, cfg.ID)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		configRuns = append(configRuns, evalstats.ConfigRuns{ConfigID: cfg.ID, Runs: runs})
	}

	items, err := h.goldenItems(ref, eval.EvalConfigsFilterID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evalstats.SummarizeCorrelation(task, eval, configRuns, items))
}

// expectedDatasetIDs resolves an eval set filter to the task run IDs it
// selects.
func (h *EvalsHandler) expectedDatasetIDs(ref datamodel.TaskRef, filterID string) ([]string, error) {
	runs, err := h.selectRuns(ref, filterID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}
	return ids, nil
}

// goldenItems resolves the golden-set filter to the task runs it selects.
func (h *EvalsHandler) goldenItems(ref datamodel.TaskRef, filterID string) ([]datamodel.TaskRun, error) {
	return h.selectRuns(ref, filterID)
}

func (h *EvalsHandler) selectRuns(ref datamodel.TaskRef, filterID string) ([]datamodel.TaskRun, error) {
	filter, err := dataset.ParseFilterID(filterID)
	if err != nil {
		return nil, err
	}
	runs, err := h.store.ListTaskRuns(ref)
	if err != nil {
		return nil, err
	}
	return dataset.Select(runs, filter), nil
}
