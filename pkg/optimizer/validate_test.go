package optimizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStartRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "minimal valid request",
			body: `{"target_run_config_id": "rc-1"}`,
		},
		{
			name: "full valid request",
			body: `{"job_type": "gepa", "target_run_config_id": "rc-1", "eval_ids": ["eval-1", "eval-2"]}`,
		},
		{
			name:    "missing target run config",
			body:    `{"job_type": "prompt_optimization"}`,
			wantErr: true,
		},
		{
			name:    "empty target run config",
			body:    `{"target_run_config_id": ""}`,
			wantErr: true,
		},
		{
			name:    "unknown job type",
			body:    `{"job_type": "dspy", "target_run_config_id": "rc-1"}`,
			wantErr: true,
		},
		{
			name:    "unknown field rejected",
			body:    `{"target_run_config_id": "rc-1", "priority": 3}`,
			wantErr: true,
		},
		{
			name:    "wrong eval_ids type",
			body:    `{"target_run_config_id": "rc-1", "eval_ids": "eval-1"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{"target_run_config_id": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStartRequest([]byte(tt.body))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "expected ErrInvalidRequest, got %v", err)
		})
	}
}

func TestRequestValidationErrors_Error(t *testing.T) {
	errs := RequestValidationErrors{
		{Path: "/target_run_config_id", Message: "is required"},
	}
	assert.Equal(t, "/target_run_config_id: is required", errs.Error())

	errs = append(errs, RequestValidationError{Path: "", Message: "unknown field"})
	msg := errs.Error()
	assert.Contains(t, msg, "2 errors")
	assert.Contains(t, msg, "/target_run_config_id: is required")
	assert.Contains(t, msg, "unknown field")
}
