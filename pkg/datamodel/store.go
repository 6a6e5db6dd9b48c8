package datamodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists and loads datamodel records from an on-disk directory.
//
// Directory layout:
//
//	<root>/<project_id>/project.json
//	<root>/<project_id>/tasks/<task_id>/task.json
//	<root>/<project_id>/tasks/<task_id>/prompts/<prompt_id>/prompt.json
//	<root>/<project_id>/tasks/<task_id>/run_configs/<id>/run_config.json
//	<root>/<project_id>/tasks/<task_id>/optimization_jobs/<id>/job.json
//	<root>/<project_id>/tasks/<task_id>/runs/<id>/task_run.json
//	<root>/<project_id>/tasks/<task_id>/evals/<eval_id>/eval.json
//	<root>/<project_id>/tasks/<task_id>/evals/<eval_id>/eval_configs/<id>/eval_config.json
//	<root>/.../eval_configs/<id>/eval_runs/<id>/eval_run.json
//
// Every record is one JSON file written atomically (temp file + rename), so
// concurrent writers resolve to last-write-wins per record and readers never
// observe a torn file.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

// TaskRef addresses a task within a project.
type TaskRef struct {
	ProjectID string
	TaskID    string
}

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

func (s *Store) taskDir(ref TaskRef) string {
	return filepath.Join(s.projectDir(ref.ProjectID), "tasks", ref.TaskID)
}

func (s *Store) promptDir(ref TaskRef, promptID string) string {
	return filepath.Join(s.taskDir(ref), "prompts", promptID)
}

func (s *Store) runConfigDir(ref TaskRef, runConfigID string) string {
	return filepath.Join(s.taskDir(ref), "run_configs", runConfigID)
}

func (s *Store) jobDir(ref TaskRef, jobID string) string {
	return filepath.Join(s.taskDir(ref), "optimization_jobs", jobID)
}

func (s *Store) taskRunDir(ref TaskRef, runID string) string {
	return filepath.Join(s.taskDir(ref), "runs", runID)
}

func (s *Store) evalDir(ref TaskRef, evalID string) string {
	return filepath.Join(s.taskDir(ref), "evals", evalID)
}

func (s *Store) evalConfigDir(ref TaskRef, evalID, configID string) string {
	return filepath.Join(s.evalDir(ref, evalID), "eval_configs", configID)
}

func (s *Store) evalRunDir(ref TaskRef, evalID, configID, runID string) string {
	return filepath.Join(s.evalConfigDir(ref, evalID, configID), "eval_runs", runID)
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("datamodel root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// writeRecord marshals v and writes it to dir/filename atomically.
func writeRecord(op, dir, filename string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StoreError{Op: op, Path: dir, Err: fmt.Errorf("create record dir: %w", err)}
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &StoreError{Op: op, Path: dir, Err: fmt.Errorf("marshal record: %w", err)}
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, filename+".tmp.*")
	if err != nil {
		return &StoreError{Op: op, Path: dir, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return &StoreError{Op: op, Path: tmpName, Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Op: op, Path: tmpName, Err: fmt.Errorf("close temp file: %w", err)}
	}

	finalPath := filepath.Join(dir, filename)
	if err := os.Rename(tmpName, finalPath); err != nil {
		return &StoreError{Op: op, Path: finalPath, Err: fmt.Errorf("rename record file: %w", err)}
	}
	return nil
}

// readRecord loads and parses one record file. Missing files map to
// ErrNotFound, unparseable files to ErrCorrupt.
func readRecord[T any](op, path string) (*T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StoreError{Op: op, Path: path, Err: ErrNotFound}
		}
		return nil, &StoreError{Op: op, Path: path, Err: err}
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, &StoreError{Op: op, Path: path, Err: ErrCorrupt}
	}

	var record T
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, &StoreError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	return &record, nil
}

// listRecords loads every <root>/<id>/<filename> under root. Unreadable
// entries are skipped so one corrupt record does not hide its siblings.
func listRecords[T any](op, root, filename string) ([]T, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Op: op, Path: root, Err: err}
	}

	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := readRecord[T](op, filepath.Join(root, entry.Name(), filename))
		if err != nil {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return &StoreError{Op: op, Err: fmt.Errorf("%w: id is required", ErrInvalidRecord)}
	}
	return nil
}

// --- Projects ---

func (s *Store) SaveProject(p *Project) error {
	if p == nil {
		return &StoreError{Op: "SaveProject", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveProject", p.ID); err != nil {
		return err
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}
	return writeRecord("SaveProject", s.projectDir(p.ID), "project.json", p)
}

func (s *Store) GetProject(projectID string) (*Project, error) {
	if err := requireID("GetProject", projectID); err != nil {
		return nil, err
	}
	return readRecord[Project]("GetProject", filepath.Join(s.projectDir(projectID), "project.json"))
}

func (s *Store) ListProjects() ([]Project, error) {
	out, err := listRecords[Project]("ListProjects", s.root, "project.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(p Project) (string, string) { return p.CreatedAt.UTC().Format(sortTimeLayout), p.ID })
	return out, nil
}

// --- Tasks ---

func (s *Store) SaveTask(projectID string, t *Task) error {
	if t == nil {
		return &StoreError{Op: "SaveTask", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveTask", t.ID); err != nil {
		return err
	}
	return writeRecord("SaveTask", s.taskDir(TaskRef{ProjectID: projectID, TaskID: t.ID}), "task.json", t)
}

func (s *Store) GetTask(ref TaskRef) (*Task, error) {
	if err := requireID("GetTask", ref.TaskID); err != nil {
		return nil, err
	}
	return readRecord[Task]("GetTask", filepath.Join(s.taskDir(ref), "task.json"))
}

// --- Prompts ---

func (s *Store) SavePrompt(ref TaskRef, p *Prompt) error {
	if p == nil {
		return &StoreError{Op: "SavePrompt", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SavePrompt", p.ID); err != nil {
		return err
	}
	return writeRecord("SavePrompt", s.promptDir(ref, p.ID), "prompt.json", p)
}

func (s *Store) GetPrompt(ref TaskRef, promptID string) (*Prompt, error) {
	if err := requireID("GetPrompt", promptID); err != nil {
		return nil, err
	}
	return readRecord[Prompt]("GetPrompt", filepath.Join(s.promptDir(ref, promptID), "prompt.json"))
}

func (s *Store) ListPrompts(ref TaskRef) ([]Prompt, error) {
	out, err := listRecords[Prompt]("ListPrompts", filepath.Join(s.taskDir(ref), "prompts"), "prompt.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(p Prompt) (string, string) { return p.CreatedAt.UTC().Format(sortTimeLayout), p.ID })
	return out, nil
}

// DeletePrompt removes a prompt record and its directory. Deleting a
// missing prompt is not an error.
func (s *Store) DeletePrompt(ref TaskRef, promptID string) error {
	if err := requireID("DeletePrompt", promptID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.promptDir(ref, promptID)); err != nil {
		return &StoreError{Op: "DeletePrompt", Path: s.promptDir(ref, promptID), Err: err}
	}
	return nil
}

// --- Run configs ---

func (s *Store) SaveRunConfig(ref TaskRef, rc *RunConfig) error {
	if rc == nil {
		return &StoreError{Op: "SaveRunConfig", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveRunConfig", rc.ID); err != nil {
		return err
	}
	return writeRecord("SaveRunConfig", s.runConfigDir(ref, rc.ID), "run_config.json", rc)
}

func (s *Store) GetRunConfig(ref TaskRef, runConfigID string) (*RunConfig, error) {
	if err := requireID("GetRunConfig", runConfigID); err != nil {
		return nil, err
	}
	return readRecord[RunConfig]("GetRunConfig", filepath.Join(s.runConfigDir(ref, runConfigID), "run_config.json"))
}

func (s *Store) ListRunConfigs(ref TaskRef) ([]RunConfig, error) {
	out, err := listRecords[RunConfig]("ListRunConfigs", filepath.Join(s.taskDir(ref), "run_configs"), "run_config.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(rc RunConfig) (string, string) { return rc.CreatedAt.UTC().Format(sortTimeLayout), rc.ID })
	return out, nil
}

// DeleteRunConfig removes a run config record and its directory. Deleting a
// missing run config is not an error.
func (s *Store) DeleteRunConfig(ref TaskRef, runConfigID string) error {
	if err := requireID("DeleteRunConfig", runConfigID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.runConfigDir(ref, runConfigID)); err != nil {
		return &StoreError{Op: "DeleteRunConfig", Path: s.runConfigDir(ref, runConfigID), Err: err}
	}
	return nil
}

// --- Optimization jobs ---

func (s *Store) SaveJob(ref TaskRef, job *OptimizationJob) error {
	if job == nil {
		return &StoreError{Op: "SaveJob", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveJob", job.ID); err != nil {
		return err
	}
	if !job.LatestStatus.Valid() {
		return &StoreError{Op: "SaveJob", Err: fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, job.LatestStatus)}
	}
	return writeRecord("SaveJob", s.jobDir(ref, job.ID), "job.json", job)
}

func (s *Store) GetJob(ref TaskRef, jobID string) (*OptimizationJob, error) {
	if err := requireID("GetJob", jobID); err != nil {
		return nil, err
	}
	return readRecord[OptimizationJob]("GetJob", filepath.Join(s.jobDir(ref, jobID), "job.json"))
}

// ListJobs returns every optimization job of the task in stable order:
// creation time ascending, record ID as tiebreak.
func (s *Store) ListJobs(ref TaskRef) ([]OptimizationJob, error) {
	out, err := listRecords[OptimizationJob]("ListJobs", filepath.Join(s.taskDir(ref), "optimization_jobs"), "job.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(j OptimizationJob) (string, string) { return j.CreatedAt.UTC().Format(sortTimeLayout), j.ID })
	return out, nil
}

// --- Task runs ---

func (s *Store) SaveTaskRun(ref TaskRef, r *TaskRun) error {
	if r == nil {
		return &StoreError{Op: "SaveTaskRun", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveTaskRun", r.ID); err != nil {
		return err
	}
	return writeRecord("SaveTaskRun", s.taskRunDir(ref, r.ID), "task_run.json", r)
}

func (s *Store) GetTaskRun(ref TaskRef, runID string) (*TaskRun, error) {
	if err := requireID("GetTaskRun", runID); err != nil {
		return nil, err
	}
	return readRecord[TaskRun]("GetTaskRun", filepath.Join(s.taskRunDir(ref, runID), "task_run.json"))
}

func (s *Store) ListTaskRuns(ref TaskRef) ([]TaskRun, error) {
	out, err := listRecords[TaskRun]("ListTaskRuns", filepath.Join(s.taskDir(ref), "runs"), "task_run.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(r TaskRun) (string, string) { return r.CreatedAt.UTC().Format(sortTimeLayout), r.ID })
	return out, nil
}

// --- Evals ---

func (s *Store) SaveEval(ref TaskRef, e *Eval) error {
	if e == nil {
		return &StoreError{Op: "SaveEval", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveEval", e.ID); err != nil {
		return err
	}
	return writeRecord("SaveEval", s.evalDir(ref, e.ID), "eval.json", e)
}

func (s *Store) GetEval(ref TaskRef, evalID string) (*Eval, error) {
	if err := requireID("GetEval", evalID); err != nil {
		return nil, err
	}
	return readRecord[Eval]("GetEval", filepath.Join(s.evalDir(ref, evalID), "eval.json"))
}

func (s *Store) ListEvals(ref TaskRef) ([]Eval, error) {
	out, err := listRecords[Eval]("ListEvals", filepath.Join(s.taskDir(ref), "evals"), "eval.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(e Eval) (string, string) { return e.CreatedAt.UTC().Format(sortTimeLayout), e.ID })
	return out, nil
}

// --- Eval configs ---

func (s *Store) SaveEvalConfig(ref TaskRef, evalID string, c *EvalConfig) error {
	if c == nil {
		return &StoreError{Op: "SaveEvalConfig", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveEvalConfig", c.ID); err != nil {
		return err
	}
	return writeRecord("SaveEvalConfig", s.evalConfigDir(ref, evalID, c.ID), "eval_config.json", c)
}

func (s *Store) GetEvalConfig(ref TaskRef, evalID, configID string) (*EvalConfig, error) {
	if err := requireID("GetEvalConfig", configID); err != nil {
		return nil, err
	}
	return readRecord[EvalConfig]("GetEvalConfig", filepath.Join(s.evalConfigDir(ref, evalID, configID), "eval_config.json"))
}

func (s *Store) ListEvalConfigs(ref TaskRef, evalID string) ([]EvalConfig, error) {
	out, err := listRecords[EvalConfig]("ListEvalConfigs", filepath.Join(s.evalDir(ref, evalID), "eval_configs"), "eval_config.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(c EvalConfig) (string, string) { return c.CreatedAt.UTC().Format(sortTimeLayout), c.ID })
	return out, nil
}

// --- Eval runs ---

func (s *Store) SaveEvalRun(ref TaskRef, evalID, configID string, r *EvalRun) error {
	if r == nil {
		return &StoreError{Op: "SaveEvalRun", Err: fmt.Errorf("%w: record is nil", ErrInvalidRecord)}
	}
	if err := requireID("SaveEvalRun", r.ID); err != nil {
		return err
	}
	return writeRecord("SaveEvalRun", s.evalRunDir(ref, evalID, configID, r.ID), "eval_run.json", r)
}

func (s *Store) ListEvalRuns(ref TaskRef, evalID, configID string) ([]EvalRun, error) {
	out, err := listRecords[EvalRun]("ListEvalRuns", filepath.Join(s.evalConfigDir(ref, evalID, configID), "eval_runs"), "eval_run.json")
	if err != nil {
		return nil, err
	}
	sortByCreated(out, func(r EvalRun) (string, string) { return r.CreatedAt.UTC().Format(sortTimeLayout), r.ID })
	return out, nil
}

const sortTimeLayout = "2006-01-02T15:04:05.000000000Z"

func sortByCreated[T any](records []T, key func(T) (string, string)) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, idi := key(records[i])
		tj, idj := key(records[j])
		if ti != tj {
			return ti < tj
		}
		return idi < idj
	})
}
