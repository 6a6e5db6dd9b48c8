package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

func TestHTTPClient_GetStatus(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "r-1", "status": "running"})
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	status, err := c.GetStatus(context.Background(), datamodel.JobTypePromptOptimization, "r-1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/prompt_optimization/jobs/r-1", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "running", status.Status)
}

func TestHTTPClient_Submit(t *testing.T) {
	var gotBody SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/gepa/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "r-new", "status": "pending"})
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	id, err := c.Submit(context.Background(), datamodel.JobTypeGEPA, &SubmitRequest{
		TaskInstruction: "Summarize the input.",
		Requirements:    []string{"Accuracy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "r-new", id)
	assert.Equal(t, "Summarize the input.", gotBody.TaskInstruction)
}

func TestHTTPClient_SubmitRejectsMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Submit(context.Background(), datamodel.JobTypeGEPA, &SubmitRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestHTTPClient_StatusCodeMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrJobNotFound},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusInternalServerError, ErrServiceUnavailable},
		{http.StatusBadGateway, ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := NewHTTPClient(ClientConfig{BaseURL: srv.URL})
			_, err := c.GetStatus(context.Background(), datamodel.JobTypePromptOptimization, "r-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "status %d should map to %v, got %v", tt.code, tt.want, err)

			var ce *ClientError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.code, ce.StatusCode)
		})
	}
}

func TestHTTPClient_UnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.GetStatus(context.Background(), datamodel.JobTypePromptOptimization, "r-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
}

func TestHTTPClient_GarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewHTTPClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.GetResult(context.Background(), datamodel.JobTypePromptOptimization, "r-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}
