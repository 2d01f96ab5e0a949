package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run phases, in the order an orchestration passes through them.
const (
	PhaseSubmitted   = "submitted"
	PhaseDecomposing = "decomposing"
	PhaseDelegating  = "delegating"
	PhaseExecuting   = "executing"
	PhaseReviewing   = "reviewing"
	PhaseCompiling   = "compiling"
	PhaseDone        = "done"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// OrchestrationRun records one pass of the orchestrator over a goal.
type OrchestrationRun struct {
	ID          string     `json:"id"`
	RootTaskID  string     `json:"root_task_id,omitempty"`
	Title       string     `json:"title"`
	Phase       string     `json:"phase"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Subtasks    int        `json:"subtasks"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const runColumns = `id, root_task_id, title, phase, status, error, subtasks, started_at, completed_at`

func scanRun(s scanner) (*OrchestrationRun, error) {
	r := &OrchestrationRun{}
	var root, errMsg sql.NullString
	err := s.Scan(&r.ID, &root, &r.Title, &r.Phase, &r.Status, &errMsg, &r.Subtasks, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.RootTaskID = root.String
	r.Error = errMsg.String
	return r, nil
}

func (s *Store) SaveRun(r *OrchestrationRun) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO orchestration_runs (id, root_task_id, title, phase, status, error, subtasks, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_task_id = excluded.root_task_id,
			phase = excluded.phase,
			status = excluded.status,
			error = excluded.error,
			subtasks = excluded.subtasks,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, nullString(r.RootTaskID), r.Title, r.Phase, r.Status, nullString(r.Error), r.Subtasks, r.StartedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*OrchestrationRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM orchestration_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(limit int) ([]OrchestrationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM orchestration_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []OrchestrationRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
