package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/forgelabs/promptforge/internal/errors"
	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/joblock"
	"github.com/forgelabs/promptforge/pkg/optimizer"
)

// scriptedClient answers remote calls from canned maps keyed by remote job
// ID and counts how often each operation ran.
type scriptedClient struct {
	mu          sync.Mutex
	status      map[string]string
	result      map[string]string
	submitID    string
	submitErr   error
	statusCalls int
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		status:   make(map[string]string),
		result:   make(map[string]string),
		submitID: "remote-new",
	}
}

func (c *scriptedClient) GetStatus(_ context.Context, _ datamodel.JobType, remoteJobID string) (*optimizer.RemoteStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	st, ok := c.status[remoteJobID]
	if !ok {
		return nil, optimizer.ErrJobNotFound
	}
	return &optimizer.RemoteStatus{JobID: remoteJobID, Status: st}, nil
}

func (c *scriptedClient) GetResult(_ context.Context, _ datamodel.JobType, remoteJobID string) (*optimizer.RemoteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &optimizer.RemoteResult{JobID: remoteJobID, OptimizedPrompt: c.result[remoteJobID]}, nil
}

func (c *scriptedClient) Submit(_ context.Context, _ datamodel.JobType, _ *optimizer.SubmitRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return c.submitID, nil
}

func (c *scriptedClient) statusCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

type staticCreds string

func (s staticCreds) APIKey() string { return string(s) }

// jobsFixture wires the job routes against a real file store and the
// scripted client, mounted the way the server mounts them.
type jobsFixture struct {
	store   *datamodel.Store
	ref     datamodel.TaskRef
	client  *scriptedClient
	handler http.Handler
}

func newJobsFixture(t *testing.T, creds staticCreds) *jobsFixture {
	t.Helper()

	store := datamodel.NewStore(t.TempDir())
	ref := datamodel.TaskRef{ProjectID: "proj-1", TaskID: "task-1"}

	require.NoError(t, store.SaveProject(&datamodel.Project{ID: "proj-1", Name: "demo"}))
	require.NoError(t, store.SaveTask("proj-1", &datamodel.Task{
		ID:          "task-1",
		Name:        "summarize",
		Instruction: "Summarize the input.",
	}))
	require.NoError(t, store.SaveRunConfig(ref, &datamodel.RunConfig{
		ID:   "rc-target",
		Name: "baseline",
		RunConfigProperties: datamodel.RunConfigProperties{
			ModelName:         "gpt-4o",
			ModelProviderName: "openai",
			PromptID:          "simple_prompt_builder",
			Temperature:       0.7,
			TopP:              1,
		},
	}))
	require.NoError(t, store.SaveEval(ref, &datamodel.Eval{ID: "eval-1", Name: "accuracy"}))

	client := newScriptedClient()
	syncer := optimizer.NewSynchronizer(store, client, joblock.NewRegistry(), zap.NewNop())
	h := NewJobsHandler(
		optimizer.NewSubmitter(store, client, creds, zap.NewNop()),
		optimizer.NewLister(store, syncer, zap.NewNop()),
		zap.NewNop(),
	)

	r := chi.NewRouter()
	r.Route("/api/projects/{projectID}/tasks/{taskID}", func(r chi.Router) {
		h.Mount(r)
	})

	return &jobsFixture{store: store, ref: ref, client: client, handler: r}
}

func (fx *jobsFixture) seedJob(t *testing.T, id string, status datamodel.JobStatus) {
	t.Helper()
	require.NoError(t, fx.store.SaveJob(fx.ref, &datamodel.OptimizationJob{
		ID:                id,
		JobType:           datamodel.JobTypePromptOptimization,
		RemoteJobID:       "remote-" + id,
		TargetRunConfigID: "rc-target",
		LatestStatus:      status,
	}))
}

func (fx *jobsFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

const jobsBase = "/api/projects/proj-1/tasks/task-1/optimization_jobs"

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestJobsStart(t *testing.T) {
	fx := newJobsFixture(t, "test-key")

	rec := fx.do(http.MethodPost, jobsBase+"/start",
		`{"job_type": "gepa", "target_run_config_id": "rc-target", "eval_ids": ["eval-1"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var job datamodel.OptimizationJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, datamodel.JobTypeGEPA, job.JobType)
	assert.Equal(t, "remote-new", job.RemoteJobID)
	assert.Equal(t, datamodel.JobStatusPending, job.LatestStatus)

	persisted, err := fx.store.GetJob(fx.ref, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote-new", persisted.RemoteJobID)
}

func TestJobsStart_SchemaViolations(t *testing.T) {
	fx := newJobsFixture(t, "test-key")

	rec := fx.do(http.MethodPost, jobsBase+"/start", `{"job_type": "gepa", "extra": true}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, apperrors.CodeValidationFailed, body.Error.Code)

	violations, ok := body.Error.Details["violations"].([]interface{})
	require.True(t, ok, "expected violations in details, got %#v", body.Error.Details)
	assert.NotEmpty(t, violations)
}

func TestJobsStart_NotConfigured(t *testing.T) {
	fx := newJobsFixture(t, "")

	rec := fx.do(http.MethodPost, jobsBase+"/start", `{"target_run_config_id": "rc-target"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeNotConfigured, decodeErrorBody(t, rec).Error.Code)
}

func TestJobsStart_UnknownTargetRunConfig(t *testing.T) {
	fx := newJobsFixture(t, "test-key")

	rec := fx.do(http.MethodPost, jobsBase+"/start", `{"target_run_config_id": "rc-missing"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeErrorBody(t, rec).Error.Code)
}

func TestJobsList(t *testing.T) {
	fx := newJobsFixture(t, "test-key")
	fx.seedJob(t, "job-1", datamodel.JobStatusRunning)
	fx.client.status["remote-job-1"] = "succeeded"
	fx.client.result["remote-job-1"] = "optimized text"

	t.Run("update_status=false returns stored state", func(t *testing.T) {
		rec := fx.do(http.MethodGet, jobsBase+"?update_status=false", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var jobs []datamodel.OptimizationJob
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, datamodel.JobStatusRunning, jobs[0].LatestStatus)
		assert.Zero(t, fx.client.statusCallCount(), "listing must not poll when refresh is disabled")
	})

	t.Run("with update_status refreshes live jobs", func(t *testing.T) {
		rec := fx.do(http.MethodGet, jobsBase+"?update_status=true", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var jobs []datamodel.OptimizationJob
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, datamodel.JobStatusSucceeded, jobs[0].LatestStatus)
		assert.True(t, jobs[0].HasArtifacts())

		persisted, err := fx.store.GetJob(fx.ref, "job-1")
		require.NoError(t, err)
		assert.Equal(t, datamodel.JobStatusSucceeded, persisted.LatestStatus)
	})
}

func TestJobsGet(t *testing.T) {
	fx := newJobsFixture(t, "test-key")
	fx.seedJob(t, "job-1", datamodel.JobStatusPending)
	fx.client.status["remote-job-1"] = "running"

	rec := fx.do(http.MethodGet, jobsBase+"/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var job datamodel.OptimizationJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, datamodel.JobStatusRunning, job.LatestStatus)
}

func TestJobsGet_Unknown(t *testing.T) {
	fx := newJobsFixture(t, "test-key")

	rec := fx.do(http.MethodGet, jobsBase+"/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeErrorBody(t, rec).Error.Code)
}

func TestJobsStatus(t *testing.T) {
	fx := newJobsFixture(t, "test-key")
	fx.seedJob(t, "job-1", datamodel.JobStatusRunning)
	fx.client.status["remote-job-1"] = "running"

	rec := fx.do(http.MethodGet, jobsBase+"/job-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, map[string]string{"job_id": "job-1", "status": "running"}, got)
}

func TestJobsResult(t *testing.T) {
	fx := newJobsFixture(t, "test-key")
	fx.seedJob(t, "job-1", datamodel.JobStatusRunning)
	fx.client.status["remote-job-1"] = "succeeded"
	fx.client.result["remote-job-1"] = "You are a concise summarizer."

	rec := fx.do(http.MethodGet, jobsBase+"/job-1/result", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "You are a concise summarizer.", got["optimized_prompt"])
}

func TestJobsResult_NotReady(t *testing.T) {
	fx := newJobsFixture(t, "test-key")
	fx.seedJob(t, "job-1", datamodel.JobStatusPending)
	fx.client.status["remote-job-1"] = "pending"

	rec := fx.do(http.MethodGet, jobsBase+"/job-1/result", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeValidationFailed, decodeErrorBody(t, rec).Error.Code)
}
