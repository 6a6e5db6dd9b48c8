package datamodel

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// JobStatus is the lifecycle state of a remote optimization job as last
// observed by this process.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status can never change again. Terminal
// jobs are never re-queried against the remote service.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ParseJobStatus normalizes a remote status string to a JobStatus. Casing
// from the remote service is not trusted.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

// JobType selects which remote optimization backend a job was submitted to.
type JobType string

const (
	JobTypePromptOptimization JobType = "prompt_optimization"
	JobTypeGEPA               JobType = "gepa"
)

// GeneratorID returns the generator tag recorded on prompts produced by
// jobs of this type.
func (t JobType) GeneratorID() string {
	if t == JobTypeGEPA {
		return "gepa_optimizer"
	}
	return "prompt_optimizer"
}

// OptimizationJob is the persistent record written to job.json.
//
// ID is assigned locally at submission time; RemoteJobID is the remote
// service's identifier and never changes once set. LatestStatus is mutated
// only by the status synchronizer. OptimizedPrompt, CreatedPromptID and
// CreatedRunConfigID start null and are populated at most once, on the
// transition into succeeded. CreatedPromptID and CreatedRunConfigID are
// either both set or both null.
type OptimizationJob struct {
	ID                string    `json:"id"`
	JobType           JobType   `json:"job_type"`
	RemoteJobID       string    `json:"job_id"`
	TargetRunConfigID string    `json:"target_run_config_id"`
	EvalIDs           []string  `json:"eval_ids"`
	LatestStatus      JobStatus `json:"latest_status"`
	CreatedAt         time.Time `json:"created_at"`

	OptimizedPrompt    *string `json:"optimized_prompt,omitempty"`
	CreatedPromptID    *string `json:"created_prompt_id,omitempty"`
	CreatedRunConfigID *string `json:"created_run_config_id,omitempty"`
}

// HasArtifacts reports whether the job already references a created prompt
// and run config pair.
func (j *OptimizationJob) HasArtifacts() bool {
	return j.CreatedPromptID != nil && j.CreatedRunConfigID != nil
}

// Prompt is a persisted prompt record. GeneratorID is set on prompts
// produced by an optimization job and left empty on hand-written prompts.
type Prompt struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt"`
	GeneratorID string    `json:"generator_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PromptIDRef returns the reference form "id::<prompt-id>" used by run
// config properties and by OptimizationJob.CreatedPromptID.
func PromptIDRef(promptID string) string {
	return "id::" + promptID
}

// RunConfigProperties holds the execution parameters of a run config.
// PromptID references a prompt either by a builtin generator name or in
// the "id::<prompt-id>" form for saved prompts.
type RunConfigProperties struct {
	ModelName            string   `json:"model_name"`
	ModelProviderName    string   `json:"model_provider_name"`
	PromptID             string   `json:"prompt_id"`
	Temperature          float64  `json:"temperature"`
	TopP                 float64  `json:"top_p"`
	StructuredOutputMode string   `json:"structured_output_mode,omitempty"`
	ToolIDs              []string `json:"tool_ids,omitempty"`
}

// RunConfig is a persisted run configuration record.
type RunConfig struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	RunConfigProperties RunConfigProperties `json:"run_config_properties"`
	CreatedAt           time.Time           `json:"created_at"`
}

// ScoreType classifies how a score or rating value is interpreted.
type ScoreType string

const (
	ScoreTypeFiveStar         ScoreType = "five_star"
	ScoreTypePassFail         ScoreType = "pass_fail"
	ScoreTypePassFailCritical ScoreType = "pass_fail_critical"
	ScoreTypeCustom           ScoreType = "custom"
)

// OverallRatingKey is the reserved score key for a task run's overall
// human rating.
const OverallRatingKey = "overall_rating"

// Requirement is a rubric entry on a task. Human raters score requirements
// individually; the score key for a requirement is JSONKey(Name).
type Requirement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Instruction string    `json:"instruction,omitempty"`
	Priority    int       `json:"priority"`
	Type        ScoreType `json:"type"`
}

// Task is a persisted task record owning prompts, run configs, evals, task
// runs and optimization jobs.
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Instruction  string        `json:"instruction"`
	Requirements []Requirement `json:"requirements,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Project is the top level container record.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EvalOutputScore declares one score an eval produces per item.
type EvalOutputScore struct {
	Name        string    `json:"name"`
	Instruction string    `json:"instruction,omitempty"`
	Type        ScoreType `json:"type"`
}

// JSONKey returns the score map key for this output score.
func (s EvalOutputScore) JSONKey() string {
	return JSONKey(s.Name)
}

// Eval is a persisted evaluator definition. EvalSetFilterID selects the
// dataset items the eval set covers; EvalConfigsFilterID selects the golden
// set used to compare eval configs against human ratings.
type Eval struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	OutputScores        []EvalOutputScore `json:"output_scores"`
	EvalSetFilterID     string            `json:"eval_set_filter_id"`
	EvalConfigsFilterID string            `json:"eval_configs_filter_id"`
	CreatedAt           time.Time         `json:"created_at"`
}

// EvalConfig is one judge configuration of an eval (a model plus judging
// properties). Each eval config owns its eval runs.
type EvalConfig struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ModelName  string         `json:"model_name"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EvalRun is one scored item produced by an eval config. DatasetID names
// the task run that was scored. TaskRunConfigID is set when the run scored
// live output from a run config and nil when it scored the stored dataset
// item directly.
type EvalRun struct {
	ID              string             `json:"id"`
	DatasetID       string             `json:"dataset_id"`
	TaskRunConfigID *string            `json:"task_run_config_id,omitempty"`
	Scores          map[string]float64 `json:"scores"`
	CreatedAt       time.Time          `json:"created_at"`
}

// RequirementRating is a human rating of one task requirement.
type RequirementRating struct {
	Value *float64  `json:"value"`
	Type  ScoreType `json:"type"`
}

// NamedRatingKey returns the requirement-ratings key for a named rating
// that is not backed by a task requirement.
func NamedRatingKey(scoreKey string) string {
	return "named::" + scoreKey
}

// TaskRunRating holds the human ratings attached to a task run output.
// Value is the overall rating; RequirementRatings is keyed by requirement
// record ID, or by NamedRatingKey for ratings without a backing requirement.
type TaskRunRating struct {
	Value              *float64                     `json:"value,omitempty"`
	Type               ScoreType                    `json:"type,omitempty"`
	RequirementRatings map[string]RequirementRating `json:"requirement_ratings,omitempty"`
}

// IsHighQuality reports whether the rating marks the output as good enough
// for curated datasets: four stars and up, or a pass on pass/fail scales.
func (r *TaskRunRating) IsHighQuality() bool {
	if r == nil || r.Value == nil {
		return false
	}
	switch r.Type {
	case ScoreTypeFiveStar:
		return *r.Value >= 4
	case ScoreTypePassFail, ScoreTypePassFailCritical:
		return *r.Value >= 1
	default:
		return *r.Value > 0
	}
}

// TaskOutput is the produced output of a task run, with optional rating.
type TaskOutput struct {
	Output string         `json:"output"`
	Rating *TaskRunRating `json:"rating,omitempty"`
}

// TaskRun is one persisted sample: an input, the produced output, tags and
// optional intermediate content such as reasoning traces.
type TaskRun struct {
	ID                  string            `json:"id"`
	Input               string            `json:"input"`
	Tags                []string          `json:"tags,omitempty"`
	Output              TaskOutput        `json:"output"`
	IntermediateOutputs map[string]string `json:"intermediate_outputs,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// HasOverallRating reports whether a human overall rating is present.
func (r *TaskRun) HasOverallRating() bool {
	return r.Output.Rating != nil && r.Output.Rating.Value != nil
}

// RequirementRatingValue returns the human rating for the given requirement
// record ID, if present.
func (r *TaskRun) RequirementRatingValue(requirementID string) (float64, bool) {
	if r.Output.Rating == nil {
		return 0, false
	}
	rr, ok := r.Output.Rating.RequirementRatings[requirementID]
	if !ok || rr.Value == nil {
		return 0, false
	}
	return *rr.Value, true
}

// JSONKey normalizes a display name to a score map key: lower case, spaces
// collapsed to underscores, all other punctuation dropped.
func JSONKey(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsSpace(r) || r == '_' || r == '-':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
